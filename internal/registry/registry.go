// Package registry is the canonical store of lab computers. Every
// read-modify-write runs inside a transaction holding the computer's row
// lock, so heartbeats, sweeps and unlocks never interleave on one row.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zaqqye/complab_backend/internal/apperr"
	"github.com/zaqqye/complab_backend/internal/models"
)

type Registry struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// DB exposes the underlying handle for read-only listing queries.
func (r *Registry) DB() *gorm.DB { return r.db }

func (r *Registry) Get(ctx context.Context, id uint) (*models.Computer, error) {
	return r.first(ctx, "Computer", "id", id, "id = ?", id)
}

func (r *Registry) GetByIP(ctx context.Context, ip string) (*models.Computer, error) {
	return r.first(ctx, "Computer", "ip_address", ip, "ip_address = ?", ip)
}

func (r *Registry) GetByMAC(ctx context.Context, mac string) (*models.Computer, error) {
	return r.first(ctx, "Computer", "mac_address", mac, "mac_address = ?", mac)
}

func (r *Registry) first(ctx context.Context, entity, key string, value any, query string, args ...any) (*models.Computer, error) {
	var c models.Computer
	err := r.db.WithContext(ctx).Preload("Laboratory").Where(query, args...).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound(entity, key, value)
	}
	if err != nil {
		return nil, apperr.Transient("load computer", err)
	}
	return &c, nil
}

// Attributes are the fields an agent supplies when registering itself.
type Attributes struct {
	ComputerNumber string
	Status         string
	LaboratoryID   *uint
	IsLock         bool
	IsOnline       bool
}

// UpsertByIdentity returns the computer matching ip or mac unchanged, or
// creates one. created reports whether a row was inserted.
func (r *Registry) UpsertByIdentity(ctx context.Context, ip, mac string, attrs Attributes) (*models.Computer, bool, error) {
	existing, err := r.findByIdentity(ctx, ip, mac)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	c := &models.Computer{
		ComputerNumber: attrs.ComputerNumber,
		IPAddress:      ip,
		MACAddress:     mac,
		Status:         attrs.Status,
		LaboratoryID:   attrs.LaboratoryID,
		IsOnline:       attrs.IsOnline,
		// offline implies locked
		IsLock: attrs.IsLock || !attrs.IsOnline,
	}
	if c.Status == "" {
		c.Status = models.ComputerActive
	}
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a race with a concurrent registration of the same identity.
			existing, ferr := r.findByIdentity(ctx, ip, mac)
			if ferr != nil {
				return nil, false, ferr
			}
			if existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, apperr.Transient("register computer", err)
	}
	created, err := r.Get(ctx, c.ID)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func (r *Registry) findByIdentity(ctx context.Context, ip, mac string) (*models.Computer, error) {
	var c models.Computer
	err := r.db.WithContext(ctx).Preload("Laboratory").
		Where("ip_address = ? OR mac_address = ?", ip, mac).
		Order("id ASC").First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Transient("load computer", err)
	}
	return &c, nil
}

// LockedFunc runs with the computer's row locked inside tx.
type LockedFunc func(tx *gorm.DB, c *models.Computer) error

// WithLocked runs fn in a transaction holding the row lock of computer id.
// Returning an error from fn rolls the transaction back.
func (r *Registry) WithLocked(ctx context.Context, id uint, fn LockedFunc) error {
	return r.withLocked(ctx, "id", id, "id = ?", id, fn)
}

func (r *Registry) WithLockedByIP(ctx context.Context, ip string, fn LockedFunc) error {
	return r.withLocked(ctx, "ip_address", ip, "ip_address = ?", ip, fn)
}

func (r *Registry) withLocked(ctx context.Context, key string, value any, query string, arg any, fn LockedFunc) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Computer
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where(query, arg).First(&c).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("Computer", key, value)
		}
		if err != nil {
			return apperr.Transient("lock computer", err)
		}
		return fn(tx, &c)
	})
}

// SetOnlineTx writes isOnline and lastSeen together. Going offline also
// forces the lock. lastSeen nil leaves the stored value untouched.
func SetOnlineTx(tx *gorm.DB, c *models.Computer, online bool, lastSeen *time.Time) error {
	updates := map[string]any{"is_online": online}
	if lastSeen != nil {
		updates["last_seen"] = *lastSeen
	}
	if !online {
		updates["is_lock"] = true
	}
	if err := tx.Model(c).Updates(updates).Error; err != nil {
		return fmt.Errorf("set online=%t: %w", online, err)
	}
	c.IsOnline = online
	if lastSeen != nil {
		ts := *lastSeen
		c.LastSeen = &ts
	}
	if !online {
		c.IsLock = true
	}
	return nil
}

// SetLockedTx flips the lock flag. Unlocking an offline computer is refused.
func SetLockedTx(tx *gorm.DB, c *models.Computer, locked bool) error {
	if !locked && !c.IsOnline {
		return apperr.Conflict("computer %s is offline and cannot be unlocked", c.ComputerNumber)
	}
	if err := tx.Model(c).Update("is_lock", locked).Error; err != nil {
		return fmt.Errorf("set locked=%t: %w", locked, err)
	}
	c.IsLock = locked
	return nil
}

// TouchTx records a heartbeat at ts. lastSeen only moves forward: a heartbeat
// carrying an older timestamp than the stored one keeps the newer value.
func TouchTx(tx *gorm.DB, c *models.Computer, ts time.Time) (wasOffline bool, err error) {
	wasOffline = !c.IsOnline
	res := tx.Model(c).
		Where("last_seen IS NULL OR last_seen < ?", ts).
		Updates(map[string]any{"is_online": true, "last_seen": ts})
	if res.Error != nil {
		return wasOffline, fmt.Errorf("touch: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if err := tx.Model(c).Update("is_online", true).Error; err != nil {
			return wasOffline, fmt.Errorf("touch: %w", err)
		}
		c.IsOnline = true
		return wasOffline, nil
	}
	c.IsOnline = true
	c.LastSeen = &ts
	return wasOffline, nil
}

// SetOnline is the non-transactional form of SetOnlineTx.
func (r *Registry) SetOnline(ctx context.Context, id uint, online bool, lastSeen *time.Time) error {
	return r.WithLocked(ctx, id, func(tx *gorm.DB, c *models.Computer) error {
		return SetOnlineTx(tx, c, online, lastSeen)
	})
}

func (r *Registry) SetLocked(ctx context.Context, id uint, locked bool) error {
	return r.WithLocked(ctx, id, func(tx *gorm.DB, c *models.Computer) error {
		return SetLockedTx(tx, c, locked)
	})
}

// ListStale materializes online computers whose heartbeat is missing or older
// than cutoff.
func (r *Registry) ListStale(ctx context.Context, cutoff time.Time) ([]models.Computer, error) {
	var out []models.Computer
	err := r.db.WithContext(ctx).
		Where("is_online = ?", true).
		Where("last_seen IS NULL OR last_seen < ?", cutoff).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list stale computers: %w", err)
	}
	return out, nil
}

// IsStale reports whether c should be demoted at cutoff.
func IsStale(c *models.Computer, cutoff time.Time) bool {
	if !c.IsOnline {
		return false
	}
	return c.LastSeen == nil || c.LastSeen.Before(cutoff)
}
