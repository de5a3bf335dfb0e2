// Package session tracks student occupancy of computers. A session is open
// while its end_time is null; at most one is open per computer.
package session

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/zaqqye/complab_backend/internal/models"
)

// CloseOpenTx ends every open session on a computer and returns the closed
// rows. Uptime is whole seconds and never negative.
func CloseOpenTx(tx *gorm.DB, computerID uint, at time.Time) ([]models.ComputerLog, error) {
	open, err := FindOpenTx(tx, computerID)
	if err != nil {
		return nil, err
	}
	for i := range open {
		uptime := int64(at.Sub(open[i].StartTime) / time.Second)
		if uptime < 0 {
			uptime = 0
		}
		end := at
		if err := tx.Model(&open[i]).Updates(map[string]any{
			"end_time": end,
			"uptime":   uptime,
		}).Error; err != nil {
			return nil, fmt.Errorf("close session %d: %w", open[i].ID, err)
		}
		open[i].EndTime = &end
		open[i].Uptime = uptime
	}
	return open, nil
}

// FindOpenTx lists open sessions on a computer, oldest first.
func FindOpenTx(tx *gorm.DB, computerID uint) ([]models.ComputerLog, error) {
	var open []models.ComputerLog
	if err := tx.Where("computer_id = ? AND end_time IS NULL", computerID).
		Order("start_time ASC, id ASC").Find(&open).Error; err != nil {
		return nil, fmt.Errorf("find open sessions: %w", err)
	}
	return open, nil
}

// OpenTx starts a session for student on computer. Callers close any prior
// session first.
func OpenTx(tx *gorm.DB, student *models.Student, computer *models.Computer, program, yearLevel string, at time.Time) (*models.ComputerLog, error) {
	l := &models.ComputerLog{
		StudentID:  student.ID,
		ComputerID: computer.ID,
		IPAddress:  computer.IPAddress,
		MACAddress: computer.MACAddress,
		Program:    program,
		YearLevel:  yearLevel,
		StartTime:  at,
	}
	if err := tx.Create(l).Error; err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return l, nil
}
