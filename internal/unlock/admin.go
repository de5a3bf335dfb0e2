package unlock

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/zaqqye/complab_backend/internal/activity"
	"github.com/zaqqye/complab_backend/internal/apperr"
	"github.com/zaqqye/complab_backend/internal/audit"
	"github.com/zaqqye/complab_backend/internal/events"
	"github.com/zaqqye/complab_backend/internal/metrics"
	"github.com/zaqqye/complab_backend/internal/models"
	"github.com/zaqqye/complab_backend/internal/registry"
	"github.com/zaqqye/complab_backend/internal/session"
)

type AdminResult struct {
	Computer *models.Computer `json:"computer"`
	AuditLog *models.AuditLog `json:"audit_log"`
}

// AdminUnlock force-unlocks a computer without student resolution.
func (co *Coordinator) AdminUnlock(ctx context.Context, computerID uint, actor audit.Actor) (*AdminResult, error) {
	return co.admin(ctx, "unlock", computerID, actor, func(tx *gorm.DB, c *models.Computer, now time.Time) error {
		if !c.IsOnline {
			return apperr.Conflict("computer %s is offline and cannot be unlocked", c.ComputerNumber)
		}
		wasLocked := c.IsLock
		if err := registry.SetLockedTx(tx, c, false); err != nil {
			return err
		}
		if wasLocked {
			co.sink.RecordTx(tx, activity.Entry{
				ComputerID: c.ID,
				Type:       models.ActivityUnlocked,
				Reason:     models.ReasonAdminUnlock,
				Details:    "Unlocked by administrator " + actor.Name,
				IPAddress:  c.IPAddress,
				LoggedAt:   now,
			})
		}
		return nil
	})
}

// AdminLock re-locks a computer and ends its open session.
func (co *Coordinator) AdminLock(ctx context.Context, computerID uint, actor audit.Actor) (*AdminResult, error) {
	return co.admin(ctx, "lock", computerID, actor, func(tx *gorm.DB, c *models.Computer, now time.Time) error {
		closed, err := session.CloseOpenTx(tx, c.ID, now)
		if err != nil {
			return apperr.Transient("close sessions", err)
		}
		for _, l := range closed {
			co.sink.RecordTx(tx, activity.Entry{
				ComputerID: c.ID,
				Type:       models.ActivitySessionEnd,
				Reason:     models.ReasonAdminLock,
				Details:    fmt.Sprintf("Session %d closed after %ds", l.ID, l.Uptime),
				IPAddress:  c.IPAddress,
				LoggedAt:   now,
			})
		}
		wasLocked := c.IsLock
		if err := registry.SetLockedTx(tx, c, true); err != nil {
			return apperr.Transient("lock computer", err)
		}
		if !wasLocked {
			co.sink.RecordTx(tx, activity.Entry{
				ComputerID: c.ID,
				Type:       models.ActivityLocked,
				Reason:     models.ReasonAdminLock,
				Details:    "Locked by administrator " + actor.Name,
				IPAddress:  c.IPAddress,
				LoggedAt:   now,
			})
		}
		return nil
	})
}

type adminFunc func(tx *gorm.DB, c *models.Computer, now time.Time) error

func (co *Coordinator) admin(ctx context.Context, action string, computerID uint, actor audit.Actor, fn adminFunc) (*AdminResult, error) {
	ctx = context.WithoutCancel(ctx)
	now := co.clock()
	var row *models.AuditLog
	err := co.reg.WithLocked(ctx, computerID, func(tx *gorm.DB, c *models.Computer) error {
		before := audit.SnapshotComputer(c)
		if err := fn(tx, c, now); err != nil {
			return err
		}
		var err error
		row, err = co.trail.RecordTx(tx, audit.Entry{
			Actor:       actor,
			Action:      "admin_" + action,
			EntityType:  "computer",
			EntityID:    c.ID,
			Before:      before,
			After:       audit.SnapshotComputer(c),
			Description: fmt.Sprintf("Administrator %s %sed computer %s", actor.Name, action, c.ComputerNumber),
			At:          now,
		})
		if err != nil {
			return apperr.Transient("write audit log", err)
		}
		return nil
	})
	if err != nil {
		metrics.UnlocksTotal.WithLabelValues("admin_"+action, "rejected").Inc()
		return nil, err
	}
	metrics.UnlocksTotal.WithLabelValues("admin_"+action, "ok").Inc()

	c, err := co.reg.Get(ctx, computerID)
	if err != nil {
		return nil, err
	}
	evts := events.Audited(row)
	evts = append(evts, events.UnlockRequested(c, "", now)...)
	evts = append(evts, events.StatusUpdated(c)...)
	evts = append(evts, events.ComputerChanged(c, action)...)
	events.PublishAll(ctx, co.pub, co.log, evts)
	return &AdminResult{Computer: c, AuditLog: row}, nil
}
