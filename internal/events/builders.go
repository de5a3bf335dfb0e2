package events

import (
	"fmt"
	"time"

	"github.com/zaqqye/complab_backend/internal/models"
)

const (
	ComputerEvent           = "ComputerEvent"
	ComputerStatusUpdated   = "ComputerStatusUpdated"
	ComputerWentOffline     = "ComputerWentOffline"
	ComputerCameOnline      = "ComputerCameOnline"
	ComputerUnlockRequested = "ComputerUnlockRequested"
	ComputersUnlocked       = "ComputersUnlocked"
	StudentScanned          = "StudentScanned"
	AuditLogged             = "AuditLogged"
)

const (
	OfflineMissedHeartbeats = "missed_heartbeats"
	OfflineNoHeartbeat      = "no_heartbeat"
	OfflineManual           = "manual"
	OfflineShutdown         = "shutdown"
	OfflineMaintenance      = "maintenance"
)

type ComputerView struct {
	ID             uint       `json:"id"`
	ComputerNumber string     `json:"computer_number"`
	IPAddress      string     `json:"ip_address"`
	MACAddress     string     `json:"mac_address"`
	LaboratoryID   *uint      `json:"laboratory_id"`
	LabName        string     `json:"lab_name"`
	Status         string     `json:"status"`
	IsOnline       bool       `json:"is_online"`
	IsLock         bool       `json:"is_lock"`
	LastSeen       *time.Time `json:"last_seen"`
}

func ViewOf(c *models.Computer) ComputerView {
	return ComputerView{
		ID:             c.ID,
		ComputerNumber: c.ComputerNumber,
		IPAddress:      c.IPAddress,
		MACAddress:     c.MACAddress,
		LaboratoryID:   c.LaboratoryID,
		LabName:        c.LabName(),
		Status:         c.Status,
		IsOnline:       c.IsOnline,
		IsLock:         c.IsLock,
		LastSeen:       c.LastSeen,
	}
}

// Student is the student identity carried by scan and batch events.
type Student struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	StudentID string `json:"student_id"`
}

func scoped(c *models.Computer) []string {
	topics := []string{TopicComputerStatus, ComputerTopic(c.IPAddress)}
	if c.LaboratoryID != nil {
		topics = append(topics, LabTopic(*c.LaboratoryID))
	}
	return topics
}

func fanout(name string, p Payload, topics ...string) []Event {
	out := make([]Event, 0, len(topics))
	for _, t := range topics {
		out = append(out, Event{Topic: t, Name: name, Payload: p})
	}
	return out
}

// ComputerChanged announces a row change (add, update, delete, unlock, lock)
// to the dashboard.
func ComputerChanged(c *models.Computer, action string) []Event {
	return fanout(ComputerEvent, Payload{Type: "computer", Action: action, Data: ViewOf(c)}, TopicComputerStatus)
}

type statusData struct {
	ComputerID     uint       `json:"computer_id"`
	ComputerNumber string     `json:"computer_number"`
	IPAddress      string     `json:"ip_address"`
	LabName        string     `json:"lab_name"`
	IsOnline       bool       `json:"is_online"`
	IsLock         bool       `json:"is_lock"`
	LastSeen       *time.Time `json:"last_seen"`
}

func StatusUpdated(c *models.Computer) []Event {
	p := Payload{Type: "computer", Action: "status", Data: statusData{
		ComputerID:     c.ID,
		ComputerNumber: c.ComputerNumber,
		IPAddress:      c.IPAddress,
		LabName:        c.LabName(),
		IsOnline:       c.IsOnline,
		IsLock:         c.IsLock,
		LastSeen:       c.LastSeen,
	}}
	return fanout(ComputerStatusUpdated, p, TopicComputerStatus, ComputerTopic(c.IPAddress))
}

// OfflineReason maps an activity reason onto the reason key carried by the
// went-offline event.
func OfflineReason(activityReason string) string {
	switch activityReason {
	case models.ReasonMissedHeartbeat:
		return OfflineMissedHeartbeats
	case models.ReasonNoHeartbeat:
		return OfflineNoHeartbeat
	case models.ReasonManualOffline:
		return OfflineManual
	default:
		return activityReason
	}
}

// OfflineMessage renders the human-readable text for a reason key.
func OfflineMessage(c *models.Computer, reason string) string {
	switch reason {
	case OfflineMissedHeartbeats:
		return fmt.Sprintf("Computer %s (%s) went offline due to missed heartbeats", c.ComputerNumber, c.IPAddress)
	case OfflineManual:
		return fmt.Sprintf("Computer %s was manually taken offline", c.ComputerNumber)
	case OfflineShutdown:
		return fmt.Sprintf("Computer %s was shut down", c.ComputerNumber)
	case OfflineMaintenance:
		return fmt.Sprintf("Computer %s taken offline for maintenance", c.ComputerNumber)
	default:
		return fmt.Sprintf("Computer %s went offline unexpectedly", c.ComputerNumber)
	}
}

type offlineData struct {
	Computer  ComputerView `json:"computer"`
	Reason    string       `json:"reason"`
	Message   string       `json:"message"`
	OfflineAt time.Time    `json:"offline_at"`
}

func WentOffline(c *models.Computer, reason string, at time.Time) []Event {
	p := Payload{Type: "computer", Action: "offline", Data: offlineData{
		Computer:  ViewOf(c),
		Reason:    reason,
		Message:   OfflineMessage(c, reason),
		OfflineAt: at.UTC(),
	}}
	return fanout(ComputerWentOffline, p, scoped(c)...)
}

type onlineData struct {
	Computer ComputerView `json:"computer"`
	Reason   string       `json:"reason"`
	OnlineAt time.Time    `json:"online_at"`
}

func CameOnline(c *models.Computer, reason string, at time.Time) []Event {
	p := Payload{Type: "computer", Action: "online", Data: onlineData{
		Computer: ViewOf(c),
		Reason:   reason,
		OnlineAt: at.UTC(),
	}}
	return fanout(ComputerCameOnline, p, scoped(c)...)
}

type unlockData struct {
	ComputerID uint      `json:"computer_id"`
	IPAddress  string    `json:"ip_address"`
	IsLock     bool      `json:"is_lock"`
	RFIDUID    string    `json:"rfid_uid,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// UnlockRequested tells the kiosk at c.IPAddress to apply its lock flag. rfid
// is empty for administrator actions.
func UnlockRequested(c *models.Computer, rfid string, at time.Time) []Event {
	p := Payload{Type: "computer", Action: "unlock_requested", Data: unlockData{
		ComputerID: c.ID,
		IPAddress:  c.IPAddress,
		IsLock:     c.IsLock,
		RFIDUID:    rfid,
		Timestamp:  at.UTC(),
	}}
	return fanout(ComputerUnlockRequested, p, TopicComputerStatus, ComputerTopic(c.IPAddress))
}

type batchData struct {
	Computers []ComputerView `json:"computers"`
	Student   Student        `json:"student"`
	LabID     *uint          `json:"laboratory_id,omitempty"`
	Count     int            `json:"count"`
	Timestamp time.Time      `json:"timestamp"`
}

// BatchUnlocked is one logical event for a whole bulk unlock, addressed to
// the global topic plus every affected computer and lab topic.
func BatchUnlocked(computers []*models.Computer, student Student, labID *uint, at time.Time) []Event {
	views := make([]ComputerView, 0, len(computers))
	topics := []string{TopicComputerStatus}
	seen := map[string]struct{}{TopicComputerStatus: {}}
	add := func(t string) {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			topics = append(topics, t)
		}
	}
	for _, c := range computers {
		views = append(views, ViewOf(c))
		add(ComputerTopic(c.IPAddress))
		if c.LaboratoryID != nil {
			add(LabTopic(*c.LaboratoryID))
		}
	}
	p := Payload{Type: "computer", Action: "bulk_unlock", Data: batchData{
		Computers: views,
		Student:   student,
		LabID:     labID,
		Count:     len(views),
		Timestamp: at.UTC(),
	}}
	return fanout(ComputersUnlocked, p, topics...)
}

type scanData struct {
	Student   Student   `json:"student"`
	RFIDUID   string    `json:"rfid_uid"`
	Unlocked  int       `json:"unlocked"`
	Timestamp time.Time `json:"timestamp"`
}

func Scanned(student Student, rfid string, unlocked int, at time.Time) []Event {
	p := Payload{Type: "student", Action: "scan", Data: scanData{
		Student:   student,
		RFIDUID:   rfid,
		Unlocked:  unlocked,
		Timestamp: at.UTC(),
	}}
	return fanout(StudentScanned, p, TopicComputerStatus)
}

func Audited(row *models.AuditLog) []Event {
	return fanout(AuditLogged, Payload{Type: "audit", Action: "created", Data: row}, TopicAudit)
}
