package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zaqqye/complab_backend/internal/apperr"
	"github.com/zaqqye/complab_backend/internal/unlock"
)

type UnlockController struct {
	Coordinator *unlock.Coordinator
}

type rfidRequest struct {
	RFIDUID RFIDUID `json:"rfid_uid" binding:"required"`
}

func bindRFID(c *gin.Context) (string, bool) {
	var req rfidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.FromBinding(err))
		return "", false
	}
	rfid := req.RFIDUID.String()
	if rfid == "" {
		apperr.Respond(c, apperr.Validation(map[string]string{"rfid_uid": "is required"}))
		return "", false
	}
	return rfid, true
}

// UpdateState unlocks one computer for the scanned student.
func (uc *UnlockController) UpdateState(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		apperr.Respond(c, apperr.Validation(map[string]string{"id": "must be a positive number"}))
		return
	}
	rfid, ok := bindRFID(c)
	if !ok {
		return
	}
	res, err := uc.Coordinator.UnlockWithRFID(c.Request.Context(), id, rfid)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "Computer unlocked",
		"computer":    res.Computer,
		"session_log": res.SessionLog,
	})
}

// UnlockAssigned unlocks every computer assigned to the scanned student.
func (uc *UnlockController) UnlockAssigned(c *gin.Context) {
	rfid, ok := bindRFID(c)
	if !ok {
		return
	}
	res, err := uc.Coordinator.UnlockAssigned(c.Request.Context(), rfid)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, bulkBody(res))
}

func (uc *UnlockController) UnlockByLab(c *gin.Context) {
	labID, ok := parseID(c, "labId")
	if !ok {
		apperr.Respond(c, apperr.Validation(map[string]string{"labId": "must be a positive number"}))
		return
	}
	rfid := strings.TrimSpace(c.Param("rfid"))
	res, err := uc.Coordinator.UnlockAssignedInLab(c.Request.Context(), labID, rfid)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, bulkBody(res))
}

func bulkBody(res *unlock.BulkResult) gin.H {
	return gin.H{
		"message":   "Unlock processed",
		"computers": res.Computers,
		"student":   res.Student,
		"conflicts": res.Conflicts,
		"skipped":   res.Skipped,
	}
}
