package models

import "time"

const (
	ActivityOnline       = "online"
	ActivityOffline      = "offline"
	ActivitySessionStart = "session_start"
	ActivitySessionEnd   = "session_end"
	ActivityLocked       = "locked"
	ActivityUnlocked     = "unlocked"
)

const (
	ReasonHeartbeatReceived = "heartbeat_received"
	ReasonMissedHeartbeat   = "missed_heartbeat"
	ReasonNoHeartbeat       = "no_heartbeat"
	ReasonManualOnline      = "manual_online"
	ReasonManualOffline     = "manual_offline"
	ReasonRFIDUnlock        = "rfid_unlock"
	ReasonAdminUnlock       = "admin_unlock"
	ReasonAdminLock         = "admin_lock"
	ReasonSessionReplaced   = "session_replaced"
)

// ComputerActivityLog is append-only.
type ComputerActivityLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ComputerID   uint      `gorm:"not null;index" json:"computer_id"`
	ActivityType string    `gorm:"size:32;not null;index" json:"activity_type"`
	Reason       string    `gorm:"size:64" json:"reason"`
	Details      string    `gorm:"type:text" json:"details"`
	IPAddress    string    `gorm:"size:64" json:"ip_address"`
	LoggedAt     time.Time `gorm:"not null;index" json:"logged_at"`
	CreatedAt    time.Time `json:"created_at"`
}
