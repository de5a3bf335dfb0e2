package testfixtures

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/zaqqye/complab_backend/internal/models"
)

var seq atomic.Uint64

func next() uint64 { return seq.Add(1) }

func Lab(t testing.TB, db *gorm.DB, name string) *models.Laboratory {
	t.Helper()
	lab := &models.Laboratory{Name: name, Code: fmt.Sprintf("LAB-%d", next()), Status: "active"}
	if err := db.Create(lab).Error; err != nil {
		t.Fatalf("create lab: %v", err)
	}
	return lab
}

// ComputerOpt tweaks a computer before it is inserted.
type ComputerOpt func(*models.Computer)

func InLab(lab *models.Laboratory) ComputerOpt {
	return func(c *models.Computer) { c.LaboratoryID = &lab.ID }
}

func Online(lastSeen time.Time) ComputerOpt {
	return func(c *models.Computer) {
		c.IsOnline = true
		c.LastSeen = &lastSeen
	}
}

func Unlocked() ComputerOpt {
	return func(c *models.Computer) { c.IsLock = false }
}

func WithStatus(status string) ComputerOpt {
	return func(c *models.Computer) { c.Status = status }
}

func WithIP(ip string) ComputerOpt {
	return func(c *models.Computer) { c.IPAddress = ip }
}

// Computer inserts an offline, locked, active computer with unique identity.
func Computer(t testing.TB, db *gorm.DB, opts ...ComputerOpt) *models.Computer {
	t.Helper()
	n := next()
	c := &models.Computer{
		ComputerNumber: fmt.Sprintf("PC-%02d", n),
		IPAddress:      fmt.Sprintf("10.0.%d.%d", n/250, n%250+1),
		MACAddress:     fmt.Sprintf("AA:BB:CC:00:%02X:%02X", (n>>8)&0xff, n&0xff),
		Status:         models.ComputerActive,
		IsLock:         true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("create computer: %v", err)
	}
	return c
}

func Student(t testing.TB, db *gorm.DB, first, last, rfid string) *models.Student {
	t.Helper()
	n := next()
	program := &models.Program{ProgramName: "BS Computer Science", ProgramCode: "BSCS"}
	if err := db.Create(program).Error; err != nil {
		t.Fatalf("create program: %v", err)
	}
	year := &models.YearLevel{Name: "3rd Year"}
	if err := db.Create(year).Error; err != nil {
		t.Fatalf("create year level: %v", err)
	}
	s := &models.Student{
		StudentID:   fmt.Sprintf("2025-%05d", n),
		FirstName:   first,
		LastName:    last,
		RFIDUID:     rfid,
		ProgramID:   &program.ID,
		YearLevelID: &year.ID,
		Status:      "active",
	}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("create student: %v", err)
	}
	return s
}

func Assign(t testing.TB, db *gorm.DB, student *models.Student, computer *models.Computer) *models.ComputerStudent {
	t.Helper()
	a := &models.ComputerStudent{StudentID: student.ID, ComputerID: computer.ID, LaboratoryID: computer.LaboratoryID}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("assign: %v", err)
	}
	return a
}

// OpenSession inserts an open session for student on computer.
func OpenSession(t testing.TB, db *gorm.DB, student *models.Student, computer *models.Computer, start time.Time) *models.ComputerLog {
	t.Helper()
	l := &models.ComputerLog{
		StudentID:  student.ID,
		ComputerID: computer.ID,
		IPAddress:  computer.IPAddress,
		MACAddress: computer.MACAddress,
		StartTime:  start,
	}
	if err := db.Create(l).Error; err != nil {
		t.Fatalf("open session: %v", err)
	}
	return l
}

// OpenSessions counts sessions with no end time for a computer.
func OpenSessions(t testing.TB, db *gorm.DB, computerID uint) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&models.ComputerLog{}).Where("computer_id = ? AND end_time IS NULL", computerID).Count(&n).Error; err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	return n
}

func Reload(t testing.TB, db *gorm.DB, id uint) *models.Computer {
	t.Helper()
	var c models.Computer
	if err := db.First(&c, id).Error; err != nil {
		t.Fatalf("reload computer %d: %v", id, err)
	}
	return &c
}

func Activity(t testing.TB, db *gorm.DB, computerID uint) []models.ComputerActivityLog {
	t.Helper()
	var out []models.ComputerActivityLog
	if err := db.Where("computer_id = ?", computerID).Order("id ASC").Find(&out).Error; err != nil {
		t.Fatalf("activity: %v", err)
	}
	return out
}
