package models

import "time"

// Administrative status, independent of presence.
const (
	ComputerActive      = "active"
	ComputerInactive    = "inactive"
	ComputerMaintenance = "maintenance"
)

// Computer is a lab workstation. IsOnline and IsLock are orthogonal flags;
// an offline computer is always locked.
type Computer struct {
	ID             uint        `gorm:"primaryKey" json:"id"`
	LaboratoryID   *uint       `gorm:"index" json:"laboratory_id"`
	Laboratory     *Laboratory `json:"laboratory,omitempty"`
	ComputerNumber string      `gorm:"size:255;not null" json:"computer_number"`
	IPAddress      string      `gorm:"size:64;not null;uniqueIndex" json:"ip_address"`
	MACAddress     string      `gorm:"size:64;not null;uniqueIndex" json:"mac_address"`
	Status         string      `gorm:"size:32;not null" json:"status"`
	IsOnline       bool        `gorm:"not null;index" json:"is_online"`
	IsLock         bool        `gorm:"not null" json:"is_lock"`
	LastSeen       *time.Time  `gorm:"index" json:"last_seen"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

func (c *Computer) LabName() string {
	if c.Laboratory == nil {
		return ""
	}
	return c.Laboratory.Name
}
