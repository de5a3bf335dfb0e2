// Package audit records administrator actions with explicit before and after
// snapshots.
package audit

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/zaqqye/complab_backend/internal/models"
)

// Actor identifies who performed an action. It is passed explicitly rather
// than read from request state.
type Actor struct {
	UserID    uint
	Name      string
	IPAddress string
}

type Snapshot map[string]any

func SnapshotComputer(c *models.Computer) Snapshot {
	s := Snapshot{
		"computer_number": c.ComputerNumber,
		"ip_address":      c.IPAddress,
		"mac_address":     c.MACAddress,
		"status":          c.Status,
		"is_online":       c.IsOnline,
		"is_lock":         c.IsLock,
		"laboratory_id":   nil,
	}
	if c.LaboratoryID != nil {
		s["laboratory_id"] = *c.LaboratoryID
	}
	return s
}

// Diff returns the old and new values of keys that differ. Keys present on
// only one side are included with a nil counterpart.
func Diff(before, after Snapshot) (old, changed Snapshot) {
	old, changed = Snapshot{}, Snapshot{}
	for k, nv := range after {
		ov, ok := before[k]
		if ok && reflect.DeepEqual(ov, nv) {
			continue
		}
		old[k] = ov
		changed[k] = nv
	}
	for k, ov := range before {
		if _, ok := after[k]; !ok {
			old[k] = ov
			changed[k] = nil
		}
	}
	return old, changed
}

// Keys lists snapshot keys in sorted order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type Entry struct {
	Actor       Actor
	Action      string
	EntityType  string
	EntityID    uint
	Before      Snapshot
	After       Snapshot
	Description string
	At          time.Time
}

type Trail struct{}

func NewTrail() *Trail { return &Trail{} }

// RecordTx stores only the changed fields of e inside tx.
func (t *Trail) RecordTx(tx *gorm.DB, e Entry) (*models.AuditLog, error) {
	old, changed := Diff(e.Before, e.After)
	oldJSON, err := json.Marshal(old)
	if err != nil {
		return nil, fmt.Errorf("encode old data: %w", err)
	}
	newJSON, err := json.Marshal(changed)
	if err != nil {
		return nil, fmt.Errorf("encode new data: %w", err)
	}
	row := &models.AuditLog{
		UserID:      e.Actor.UserID,
		Action:      e.Action,
		EntityType:  e.EntityType,
		EntityID:    strconv.FormatUint(uint64(e.EntityID), 10),
		OldData:     datatypes.JSON(oldJSON),
		NewData:     datatypes.JSON(newJSON),
		Description: e.Description,
		IPAddress:   e.Actor.IPAddress,
	}
	if !e.At.IsZero() {
		row.CreatedAt = e.At
		row.UpdatedAt = e.At
	}
	if err := tx.Create(row).Error; err != nil {
		return nil, fmt.Errorf("write audit log: %w", err)
	}
	return row, nil
}
