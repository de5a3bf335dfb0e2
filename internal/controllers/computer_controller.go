package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zaqqye/complab_backend/internal/activity"
	"github.com/zaqqye/complab_backend/internal/apperr"
	"github.com/zaqqye/complab_backend/internal/events"
	"github.com/zaqqye/complab_backend/internal/models"
	"github.com/zaqqye/complab_backend/internal/presence"
	"github.com/zaqqye/complab_backend/internal/registry"
)

type ComputerController struct {
	Registry  *registry.Registry
	Presence  *presence.Service
	Sink      *activity.Sink
	Publisher events.Publisher
	Log       *zap.Logger
}

type registerComputerRequest struct {
	ComputerNumber string `json:"computer_number" binding:"required,max=255"`
	IPAddress      string `json:"ip_address" binding:"required,ip"`
	MACAddress     string `json:"mac_address" binding:"required,mac"`
	LaboratoryID   *uint  `json:"laboratory_id"`
	Status         string `json:"status" binding:"omitempty,oneof=active inactive maintenance"`
}

// Register is agent self-registration. A computer already known by IP or MAC
// is returned unchanged with 200.
func (cc *ComputerController) Register(c *gin.Context) {
	var req registerComputerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.FromBinding(err))
		return
	}
	// registration completes even if the agent hangs up
	ctx := context.WithoutCancel(c.Request.Context())
	computer, created, err := cc.Registry.UpsertByIdentity(ctx,
		strings.TrimSpace(req.IPAddress),
		strings.ToUpper(strings.TrimSpace(req.MACAddress)),
		registry.Attributes{
			ComputerNumber: strings.TrimSpace(req.ComputerNumber),
			Status:         req.Status,
			LaboratoryID:   req.LaboratoryID,
			IsLock:         true,
		})
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if !created {
		c.JSON(http.StatusOK, gin.H{"message": "Computer already registered", "computer": computer})
		return
	}
	events.PublishAll(ctx, cc.Publisher, cc.Log, events.ComputerChanged(computer, "add"))
	c.JSON(http.StatusCreated, gin.H{"message": "Computer registered", "computer": computer})
}

func (cc *ComputerController) Status(c *gin.Context) {
	computer, err := cc.Registry.GetByIP(c.Request.Context(), strings.TrimSpace(c.Param("ip")))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"computer_id":     computer.ID,
		"computer_number": computer.ComputerNumber,
		"ip_address":      computer.IPAddress,
		"is_online":       computer.IsOnline,
		"is_lock":         computer.IsLock,
		"lab_name":        computer.LabName(),
		"status":          computer.Status,
		"last_seen":       computer.LastSeen,
	})
}

func (cc *ComputerController) Heartbeat(c *gin.Context) {
	computer, err := cc.Presence.Heartbeat(c.Request.Context(), strings.TrimSpace(c.Param("ip")))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Heartbeat received",
		"is_online": computer.IsOnline,
		"is_lock":   computer.IsLock,
		"last_seen": computer.LastSeen,
	})
}

func (cc *ComputerController) Online(c *gin.Context) {
	computer, err := cc.Presence.SetOnline(c.Request.Context(), strings.TrimSpace(c.Param("ip")))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Computer marked online", "computer": computer})
}

func (cc *ComputerController) Offline(c *gin.Context) {
	computer, err := cc.Presence.SetOffline(c.Request.Context(), strings.TrimSpace(c.Param("ip")))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Computer marked offline", "computer": computer})
}

// List supports q (number, IP or MAC), laboratory_id, status and is_online
// filters plus the usual page/limit/sort parameters.
func (cc *ComputerController) List(c *gin.Context) {
	params := parseList(c, map[string]string{
		"id":              "id",
		"computer_number": "computer_number",
		"ip_address":      "ip_address",
		"last_seen":       "last_seen",
		"created_at":      "created_at",
	}, "computer_number")

	base := cc.Registry.DB().WithContext(c.Request.Context()).Model(&models.Computer{})
	if q := strings.ToLower(strings.TrimSpace(c.Query("q"))); q != "" {
		like := "%" + q + "%"
		base = base.Where("LOWER(computer_number) LIKE ? OR ip_address LIKE ? OR LOWER(mac_address) LIKE ?", like, like, like)
	}
	if v := strings.TrimSpace(c.Query("laboratory_id")); v != "" {
		labID, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			apperr.Respond(c, apperr.Validation(map[string]string{"laboratory_id": "must be a number"}))
			return
		}
		base = base.Where("laboratory_id = ?", labID)
	}
	if v := strings.TrimSpace(c.Query("status")); v != "" {
		base = base.Where("status = ?", v)
	}
	if v := strings.ToLower(strings.TrimSpace(c.Query("is_online"))); v != "" {
		switch v {
		case "true", "1":
			base = base.Where("is_online = ?", true)
		case "false", "0":
			base = base.Where("is_online = ?", false)
		default:
			apperr.Respond(c, apperr.Validation(map[string]string{"is_online": "must be true or false"}))
			return
		}
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		apperr.Respond(c, apperr.Transient("count computers", err))
		return
	}
	listQ := base.Session(&gorm.Session{}).Preload("Laboratory").Order(params.Order)
	if !params.All {
		listQ = listQ.Offset((params.Page - 1) * params.Limit).Limit(params.Limit)
	}
	var computers []models.Computer
	if err := listQ.Find(&computers).Error; err != nil {
		apperr.Respond(c, apperr.Transient("list computers", err))
		return
	}

	out := make([]events.ComputerView, 0, len(computers))
	for i := range computers {
		out = append(out, events.ViewOf(&computers[i]))
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "meta": params.meta(total)})
}

// Activity returns the computer's activity log, oldest first.
func (cc *ComputerController) Activity(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		apperr.Respond(c, apperr.Validation(map[string]string{"id": "must be a positive number"}))
		return
	}
	if _, err := cc.Registry.Get(c.Request.Context(), id); err != nil {
		apperr.Respond(c, err)
		return
	}
	limit, err := strconv.Atoi(strings.TrimSpace(c.DefaultQuery("limit", "100")))
	if err != nil || limit < 0 {
		apperr.Respond(c, apperr.Validation(map[string]string{"limit": "must be a non-negative number"}))
		return
	}
	entries, err := cc.Sink.List(c.Request.Context(), id, limit)
	if err != nil {
		apperr.Respond(c, apperr.Transient("list activity", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}
