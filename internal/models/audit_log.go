package models

import (
	"time"

	"gorm.io/datatypes"
)

type AuditLog struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"index" json:"user_id"`
	Action      string         `gorm:"size:64;not null;index" json:"action"`
	EntityType  string         `gorm:"size:64" json:"entity_type"`
	EntityID    string         `gorm:"size:64" json:"entity_id"`
	OldData     datatypes.JSON `json:"old_data"`
	NewData     datatypes.JSON `json:"new_data"`
	Description string         `gorm:"type:text" json:"description"`
	IPAddress   string         `gorm:"size:64" json:"ip_address"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
