// Package activity is the append-only audit trail of computer state
// transitions.
package activity

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zaqqye/complab_backend/internal/models"
)

type Entry struct {
	ComputerID uint
	Type       string
	Reason     string
	Details    string
	IPAddress  string
	LoggedAt   time.Time
}

type Sink struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewSink(db *gorm.DB, log *zap.Logger) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{db: db, log: log}
}

func (s *Sink) Record(ctx context.Context, e Entry) error {
	return insert(s.db.WithContext(ctx), e)
}

const savepoint = "activity_log"

// RecordTx appends inside the caller's transaction behind a savepoint. A
// failed append is rolled back to the savepoint and logged so the caller's
// state change still commits.
func (s *Sink) RecordTx(tx *gorm.DB, e Entry) {
	if err := tx.SavePoint(savepoint).Error; err != nil {
		s.log.Error("activity savepoint failed", zap.Uint("computer_id", e.ComputerID), zap.Error(err))
		return
	}
	if err := insert(tx, e); err != nil {
		s.log.Error("activity append failed",
			zap.Uint("computer_id", e.ComputerID),
			zap.String("activity_type", e.Type),
			zap.String("reason", e.Reason),
			zap.Error(err),
		)
		if rerr := tx.RollbackTo(savepoint).Error; rerr != nil {
			s.log.Error("activity rollback to savepoint failed", zap.Error(rerr))
		}
	}
}

func insert(db *gorm.DB, e Entry) error {
	row := models.ComputerActivityLog{
		ComputerID:   e.ComputerID,
		ActivityType: e.Type,
		Reason:       e.Reason,
		Details:      e.Details,
		IPAddress:    e.IPAddress,
		LoggedAt:     e.LoggedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return fmt.Errorf("append activity %s/%s: %w", e.Type, e.Reason, err)
	}
	return nil
}

// List returns a computer's entries in insertion order, newest last. limit
// <= 0 returns everything.
func (s *Sink) List(ctx context.Context, computerID uint, limit int) ([]models.ComputerActivityLog, error) {
	q := s.db.WithContext(ctx).Where("computer_id = ?", computerID).Order("id ASC")
	if limit > 0 {
		// keep the latest entries while preserving order
		sub := s.db.Model(&models.ComputerActivityLog{}).Select("id").
			Where("computer_id = ?", computerID).Order("id DESC").Limit(limit)
		q = q.Where("id IN (?)", sub)
	}
	var out []models.ComputerActivityLog
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return out, nil
}
