package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zaqqye/complab_backend/internal/apperr"
	"github.com/zaqqye/complab_backend/internal/directory"
)

type AssignmentController struct {
	Directory *directory.Directory
}

type bulkAssignRequest struct {
	ComputerID uint   `json:"computer_id" binding:"required"`
	StudentIDs []uint `json:"student_ids" binding:"required,min=1"`
}

// BulkAssign binds students to a computer. Students already placed in the
// computer's laboratory come back as conflicts; the call still succeeds.
func (ac *AssignmentController) BulkAssign(c *gin.Context) {
	var req bulkAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.FromBinding(err))
		return
	}
	res, err := ac.Directory.BulkAssign(c.Request.Context(), req.ComputerID, req.StudentIDs)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Assignment processed",
		"assigned":  res.Assigned,
		"conflicts": res.Conflicts,
	})
}
