package models

import (
	"strings"
	"time"
)

type Program struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	ProgramName string `gorm:"size:255;not null" json:"program_name"`
	ProgramCode string `gorm:"size:64" json:"program_code"`
}

type YearLevel struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:64;not null" json:"name"`
}

type Student struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	StudentID   string     `gorm:"size:64;uniqueIndex" json:"student_id"`
	FirstName   string     `gorm:"size:255" json:"first_name"`
	MiddleName  string     `gorm:"size:255" json:"middle_name"`
	LastName    string     `gorm:"size:255" json:"last_name"`
	Email       string     `gorm:"size:255" json:"email"`
	RFIDUID     string     `gorm:"column:rfid_uid;size:255;index" json:"rfid_uid"`
	ProgramID   *uint      `json:"program_id"`
	Program     *Program   `json:"program,omitempty"`
	YearLevelID *uint      `json:"year_level_id"`
	YearLevel   *YearLevel `json:"year_level,omitempty"`
	Status      string     `gorm:"size:32" json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (s *Student) FullName() string {
	parts := []string{s.FirstName, s.MiddleName, s.LastName}
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// ComputerStudent pre-assigns a student to a computer. A student holds at most
// one assignment per laboratory.
type ComputerStudent struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	StudentID    uint      `gorm:"not null;uniqueIndex:uniq_student_lab;index" json:"student_id"`
	ComputerID   uint      `gorm:"not null;index" json:"computer_id"`
	LaboratoryID *uint     `gorm:"uniqueIndex:uniq_student_lab" json:"laboratory_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
