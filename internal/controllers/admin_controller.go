package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zaqqye/complab_backend/internal/apperr"
	"github.com/zaqqye/complab_backend/internal/audit"
	"github.com/zaqqye/complab_backend/internal/middleware"
	"github.com/zaqqye/complab_backend/internal/unlock"
)

type AdminController struct {
	Coordinator *unlock.Coordinator
}

func actorFrom(c *gin.Context) (audit.Actor, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return audit.Actor{}, false
	}
	return audit.Actor{UserID: user.ID, Name: user.FullName, IPAddress: c.ClientIP()}, true
}

func (ac *AdminController) Unlock(c *gin.Context) {
	ac.apply(c, ac.Coordinator.AdminUnlock, "Computer unlocked by administrator")
}

func (ac *AdminController) Lock(c *gin.Context) {
	ac.apply(c, ac.Coordinator.AdminLock, "Computer locked by administrator")
}

func (ac *AdminController) apply(c *gin.Context, op func(ctx context.Context, id uint, actor audit.Actor) (*unlock.AdminResult, error), message string) {
	id, ok := parseID(c, "id")
	if !ok {
		apperr.Respond(c, apperr.Validation(map[string]string{"id": "must be a positive number"}))
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	res, err := op(c.Request.Context(), id, actor)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   message,
		"computer":  res.Computer,
		"audit_log": res.AuditLog,
	})
}
