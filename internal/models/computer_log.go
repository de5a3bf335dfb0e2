package models

import "time"

// ComputerLog is one student session on one computer. EndTime is nil while
// the session is open. Program and YearLevel are copied from the student at
// creation time.
type ComputerLog struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	StudentID  uint       `gorm:"not null;index" json:"student_id"`
	ComputerID uint       `gorm:"not null;index" json:"computer_id"`
	IPAddress  string     `gorm:"size:64" json:"ip_address"`
	MACAddress string     `gorm:"size:64" json:"mac_address"`
	Program    string     `gorm:"size:255" json:"program"`
	YearLevel  string     `gorm:"size:255" json:"year_level"`
	StartTime  time.Time  `gorm:"not null" json:"start_time"`
	EndTime    *time.Time `gorm:"index" json:"end_time"`
	Uptime     int64      `json:"uptime"` // seconds, set on close
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
