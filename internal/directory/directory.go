// Package directory resolves students by RFID and manages their
// pre-assignments to computers.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/zaqqye/complab_backend/internal/apperr"
	"github.com/zaqqye/complab_backend/internal/models"
)

const notAvailable = "N/A"

type Directory struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// Resolved is a student plus the program and year level names copied onto
// sessions.
type Resolved struct {
	Student   *models.Student
	Program   string
	YearLevel string
}

func (r *Resolved) Summary() StudentSummary {
	return StudentSummary{ID: r.Student.ID, Name: r.Student.FullName(), StudentID: r.Student.StudentID}
}

type StudentSummary struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	StudentID string `json:"student_id"`
}

func (d *Directory) FindByRFID(ctx context.Context, rfid string) (*Resolved, error) {
	var s models.Student
	err := d.db.WithContext(ctx).Preload("Program").Preload("YearLevel").
		Where("rfid_uid = ?", rfid).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Student", "rfid_uid", rfid)
	}
	if err != nil {
		return nil, apperr.Transient("find student by rfid", err)
	}
	r := &Resolved{Student: &s, Program: notAvailable, YearLevel: notAvailable}
	if s.Program != nil && s.Program.ProgramName != "" {
		r.Program = s.Program.ProgramName
	}
	if s.YearLevel != nil && s.YearLevel.Name != "" {
		r.YearLevel = s.YearLevel.Name
	}
	return r, nil
}

// AssignedComputerIDs returns every computer the student is pre-assigned to.
func (d *Directory) AssignedComputerIDs(ctx context.Context, studentID uint) ([]uint, error) {
	return d.assigned(d.db.WithContext(ctx).Where("student_id = ?", studentID))
}

// AssignedComputerIDsInLab returns the student's assignment within one lab.
func (d *Directory) AssignedComputerIDsInLab(ctx context.Context, studentID, labID uint) ([]uint, error) {
	return d.assigned(d.db.WithContext(ctx).Where("student_id = ? AND laboratory_id = ?", studentID, labID))
}

func (d *Directory) assigned(q *gorm.DB) ([]uint, error) {
	var ids []uint
	if err := q.Model(&models.ComputerStudent{}).Order("computer_id ASC").Distinct().Pluck("computer_id", &ids).Error; err != nil {
		return nil, apperr.Transient("list assignments", err)
	}
	return ids, nil
}

type AssignConflict struct {
	StudentID  uint   `json:"student_id"`
	Name       string `json:"name"`
	ComputerID uint   `json:"computer_id"`
	Reason     string `json:"reason"`
}

type AssignResult struct {
	Assigned  []StudentSummary `json:"assigned"`
	Conflicts []AssignConflict `json:"conflicts"`
}

// BulkAssign binds each student to computerID within the computer's lab.
// Students that already hold an assignment in that lab are reported as
// conflicts rather than failing the batch.
func (d *Directory) BulkAssign(ctx context.Context, computerID uint, studentIDs []uint) (*AssignResult, error) {
	db := d.db.WithContext(ctx)

	var computer models.Computer
	if err := db.First(&computer, computerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Computer", "id", computerID)
		}
		return nil, apperr.Transient("find computer", err)
	}
	if computer.LaboratoryID == nil {
		return nil, apperr.Conflict("computer %s is not assigned to a laboratory", computer.ComputerNumber)
	}

	ids := dedupe(studentIDs)
	var students []models.Student
	if err := db.Where("id IN ?", ids).Find(&students).Error; err != nil {
		return nil, apperr.Transient("load students", err)
	}
	byID := make(map[uint]*models.Student, len(students))
	for i := range students {
		byID[students[i].ID] = &students[i]
	}
	missing := map[string]string{}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing["student_ids"] = fmt.Sprintf("student %d does not exist", id)
			break
		}
	}
	if len(missing) > 0 {
		return nil, apperr.Validation(missing)
	}

	res := &AssignResult{Assigned: []StudentSummary{}, Conflicts: []AssignConflict{}}
	for _, id := range ids {
		s := byID[id]
		var existing models.ComputerStudent
		err := db.Where("student_id = ? AND laboratory_id = ?", id, *computer.LaboratoryID).First(&existing).Error
		switch {
		case err == nil:
			reason := "already assigned in this laboratory"
			if existing.ComputerID == computer.ID {
				reason = "already assigned to this computer"
			}
			res.Conflicts = append(res.Conflicts, AssignConflict{StudentID: id, Name: s.FullName(), ComputerID: existing.ComputerID, Reason: reason})
			continue
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, apperr.Transient("check assignment", err)
		}

		a := models.ComputerStudent{StudentID: id, ComputerID: computer.ID, LaboratoryID: computer.LaboratoryID}
		if err := db.Create(&a).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				res.Conflicts = append(res.Conflicts, AssignConflict{StudentID: id, Name: s.FullName(), Reason: "already assigned in this laboratory"})
				continue
			}
			return nil, apperr.Transient("create assignment", err)
		}
		res.Assigned = append(res.Assigned, StudentSummary{ID: s.ID, Name: s.FullName(), StudentID: s.StudentID})
	}
	return res, nil
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
