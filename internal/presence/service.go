// Package presence owns the online flag: heartbeat ingest, manual overrides
// and the stale-heartbeat sweep.
package presence

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zaqqye/complab_backend/internal/activity"
	"github.com/zaqqye/complab_backend/internal/apperr"
	"github.com/zaqqye/complab_backend/internal/events"
	"github.com/zaqqye/complab_backend/internal/metrics"
	"github.com/zaqqye/complab_backend/internal/models"
	"github.com/zaqqye/complab_backend/internal/registry"
	"github.com/zaqqye/complab_backend/internal/session"
)

type Service struct {
	reg  *registry.Registry
	sink *activity.Sink
	pub  events.Publisher
	log  *zap.Logger
	now  func() time.Time
}

func NewService(reg *registry.Registry, sink *activity.Sink, pub events.Publisher, log *zap.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{reg: reg, sink: sink, pub: pub, log: log, now: now}
}

func (s *Service) clock() time.Time { return s.now().UTC() }

// Heartbeat marks the computer at ip online and refreshes lastSeen. It never
// creates a computer and publishes nothing. Like every mutating call here it
// ignores cancellation of ctx: a disconnected agent does not undo the write.
func (s *Service) Heartbeat(ctx context.Context, ip string) (*models.Computer, error) {
	ctx = context.WithoutCancel(ctx)
	now := s.clock()
	err := s.reg.WithLockedByIP(ctx, ip, func(tx *gorm.DB, c *models.Computer) error {
		wasOffline, err := registry.TouchTx(tx, c, now)
		if err != nil {
			return apperr.Transient("record heartbeat", err)
		}
		if wasOffline {
			s.sink.RecordTx(tx, activity.Entry{
				ComputerID: c.ID,
				Type:       models.ActivityOnline,
				Reason:     models.ReasonHeartbeatReceived,
				Details:    "Heartbeat received after being offline",
				IPAddress:  c.IPAddress,
				LoggedAt:   now,
			})
			metrics.TransitionsTotal.WithLabelValues("online", models.ReasonHeartbeatReceived).Inc()
		}
		return nil
	})
	if err != nil {
		result := "error"
		if apperr.Is(err, apperr.KindNotFound) {
			result = "not_found"
		}
		metrics.HeartbeatsTotal.WithLabelValues(result).Inc()
		return nil, err
	}
	metrics.HeartbeatsTotal.WithLabelValues("ok").Inc()
	return s.reg.GetByIP(ctx, ip)
}

// SetOnline is the manual override that brings a computer online and
// locked.
func (s *Service) SetOnline(ctx context.Context, ip string) (*models.Computer, error) {
	ctx = context.WithoutCancel(ctx)
	now := s.clock()
	var wasOffline bool
	err := s.reg.WithLockedByIP(ctx, ip, func(tx *gorm.DB, c *models.Computer) error {
		wasOffline = !c.IsOnline
		if err := registry.SetOnlineTx(tx, c, true, &now); err != nil {
			return apperr.Transient("set online", err)
		}
		if !c.IsLock {
			if err := registry.SetLockedTx(tx, c, true); err != nil {
				return apperr.Transient("lock computer", err)
			}
		}
		if wasOffline {
			s.sink.RecordTx(tx, activity.Entry{
				ComputerID: c.ID,
				Type:       models.ActivityOnline,
				Reason:     models.ReasonManualOnline,
				Details:    "Manually marked online",
				IPAddress:  c.IPAddress,
				LoggedAt:   now,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if wasOffline {
		metrics.TransitionsTotal.WithLabelValues("online", models.ReasonManualOnline).Inc()
	}

	c, err := s.reg.GetByIP(ctx, ip)
	if err != nil {
		return nil, err
	}
	evts := events.ComputerChanged(c, "update")
	if wasOffline {
		evts = append(evts, events.CameOnline(c, models.ReasonManualOnline, now)...)
	}
	events.PublishAll(ctx, s.pub, s.log, evts)
	return c, nil
}

// SetOffline is the manual override that takes a computer offline, locks it
// and closes its sessions.
func (s *Service) SetOffline(ctx context.Context, ip string) (*models.Computer, error) {
	ctx = context.WithoutCancel(ctx)
	now := s.clock()
	var wasOnline bool
	err := s.reg.WithLockedByIP(ctx, ip, func(tx *gorm.DB, c *models.Computer) error {
		wasOnline = c.IsOnline
		return s.goOfflineTx(tx, c, models.ReasonManualOffline, "Manually marked offline", now)
	})
	if err != nil {
		return nil, err
	}

	c, err := s.reg.GetByIP(ctx, ip)
	if err != nil {
		return nil, err
	}
	evts := events.ComputerChanged(c, "update")
	if wasOnline {
		evts = append(evts, events.WentOffline(c, events.OfflineReason(models.ReasonManualOffline), now)...)
	}
	events.PublishAll(ctx, s.pub, s.log, evts)
	return c, nil
}

// goOfflineTx clears the online flag, forces the lock and ends any open
// session. The offline activity entry is only written when the computer was
// online.
func (s *Service) goOfflineTx(tx *gorm.DB, c *models.Computer, reason, details string, now time.Time) error {
	wasOnline := c.IsOnline
	if err := registry.SetOnlineTx(tx, c, false, nil); err != nil {
		return apperr.Transient("set offline", err)
	}
	closed, err := session.CloseOpenTx(tx, c.ID, now)
	if err != nil {
		return apperr.Transient("close sessions", err)
	}
	for _, l := range closed {
		s.sink.RecordTx(tx, activity.Entry{
			ComputerID: c.ID,
			Type:       models.ActivitySessionEnd,
			Reason:     reason,
			Details:    fmt.Sprintf("Session %d closed after %ds", l.ID, l.Uptime),
			IPAddress:  c.IPAddress,
			LoggedAt:   now,
		})
	}
	if wasOnline {
		s.sink.RecordTx(tx, activity.Entry{
			ComputerID: c.ID,
			Type:       models.ActivityOffline,
			Reason:     reason,
			Details:    details,
			IPAddress:  c.IPAddress,
			LoggedAt:   now,
		})
		metrics.TransitionsTotal.WithLabelValues("offline", reason).Inc()
	}
	return nil
}
