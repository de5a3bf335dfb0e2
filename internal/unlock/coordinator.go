// Package unlock is the single place lock flags are flipped on behalf of a
// student or an administrator.
package unlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zaqqye/complab_backend/internal/activity"
	"github.com/zaqqye/complab_backend/internal/apperr"
	"github.com/zaqqye/complab_backend/internal/audit"
	"github.com/zaqqye/complab_backend/internal/directory"
	"github.com/zaqqye/complab_backend/internal/events"
	"github.com/zaqqye/complab_backend/internal/metrics"
	"github.com/zaqqye/complab_backend/internal/models"
	"github.com/zaqqye/complab_backend/internal/registry"
	"github.com/zaqqye/complab_backend/internal/session"
)

type Coordinator struct {
	reg   *registry.Registry
	dir   *directory.Directory
	sink  *activity.Sink
	trail *audit.Trail
	pub   events.Publisher
	log   *zap.Logger
	now   func() time.Time
}

type Deps struct {
	Registry  *registry.Registry
	Directory *directory.Directory
	Sink      *activity.Sink
	Trail     *audit.Trail
	Publisher events.Publisher
	Logger    *zap.Logger
	Now       func() time.Time
}

func New(d Deps) *Coordinator {
	c := &Coordinator{
		reg:   d.Registry,
		dir:   d.Directory,
		sink:  d.Sink,
		trail: d.Trail,
		pub:   d.Publisher,
		log:   d.Logger,
		now:   d.Now,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.trail == nil {
		c.trail = audit.NewTrail()
	}
	return c
}

func (co *Coordinator) clock() time.Time { return co.now().UTC() }

type SingleResult struct {
	Computer   *models.Computer    `json:"computer"`
	SessionLog *models.ComputerLog `json:"session_log"`
}

// UnlockWithRFID unlocks one computer for the student holding rfid. Any
// session still open on the computer is closed before the new one opens.
// Cancelling ctx does not abandon the write; the same holds for the bulk and
// admin paths.
func (co *Coordinator) UnlockWithRFID(ctx context.Context, computerID uint, rfid string) (*SingleResult, error) {
	ctx = context.WithoutCancel(ctx)
	student, err := co.dir.FindByRFID(ctx, rfid)
	if err != nil {
		metrics.UnlocksTotal.WithLabelValues("rfid", "rejected").Inc()
		return nil, err
	}
	now := co.clock()

	var opened *models.ComputerLog
	err = co.reg.WithLocked(ctx, computerID, func(tx *gorm.DB, c *models.Computer) error {
		if err := admissible(c); err != nil {
			return err
		}
		var err error
		opened, err = co.startSessionTx(tx, c, student, models.ReasonRFIDUnlock, now)
		return err
	})
	if err != nil {
		metrics.UnlocksTotal.WithLabelValues("rfid", "rejected").Inc()
		return nil, err
	}
	metrics.UnlocksTotal.WithLabelValues("rfid", "ok").Inc()

	c, err := co.reg.Get(ctx, computerID)
	if err != nil {
		return nil, err
	}
	evts := events.UnlockRequested(c, rfid, now)
	evts = append(evts, events.StatusUpdated(c)...)
	events.PublishAll(ctx, co.pub, co.log, evts)
	return &SingleResult{Computer: c, SessionLog: opened}, nil
}

// admissible refuses computers that must stay locked.
func admissible(c *models.Computer) error {
	if c.Status != models.ComputerActive {
		return apperr.Conflict("computer %s is %s", c.ComputerNumber, c.Status)
	}
	if !c.IsOnline {
		return apperr.Conflict("computer %s is offline and cannot be unlocked", c.ComputerNumber)
	}
	return nil
}

// startSessionTx closes open sessions, unlocks c and opens a session for the
// student, appending activity for each step.
func (co *Coordinator) startSessionTx(tx *gorm.DB, c *models.Computer, student *directory.Resolved, reason string, now time.Time) (*models.ComputerLog, error) {
	closed, err := session.CloseOpenTx(tx, c.ID, now)
	if err != nil {
		return nil, apperr.Transient("close sessions", err)
	}
	for _, l := range closed {
		co.sink.RecordTx(tx, activity.Entry{
			ComputerID: c.ID,
			Type:       models.ActivitySessionEnd,
			Reason:     models.ReasonSessionReplaced,
			Details:    fmt.Sprintf("Session %d closed after %ds", l.ID, l.Uptime),
			IPAddress:  c.IPAddress,
			LoggedAt:   now,
		})
	}

	wasLocked := c.IsLock
	if err := registry.SetLockedTx(tx, c, false); err != nil {
		return nil, err
	}
	if wasLocked {
		co.sink.RecordTx(tx, activity.Entry{
			ComputerID: c.ID,
			Type:       models.ActivityUnlocked,
			Reason:     reason,
			Details:    "Unlocked by " + student.Student.FullName(),
			IPAddress:  c.IPAddress,
			LoggedAt:   now,
		})
	}

	opened, err := session.OpenTx(tx, student.Student, c, student.Program, student.YearLevel, now)
	if err != nil {
		return nil, apperr.Transient("open session", err)
	}
	co.sink.RecordTx(tx, activity.Entry{
		ComputerID: c.ID,
		Type:       models.ActivitySessionStart,
		Reason:     reason,
		Details:    fmt.Sprintf("Session %d started for %s", opened.ID, student.Student.StudentID),
		IPAddress:  c.IPAddress,
		LoggedAt:   now,
	})
	return opened, nil
}

type Skip struct {
	ComputerID     uint   `json:"computer_id"`
	ComputerNumber string `json:"computer_number"`
	Reason         string `json:"reason"`
}

type BulkResult struct {
	Computers []*models.Computer       `json:"computers"`
	Student   directory.StudentSummary `json:"student"`
	Conflicts []Skip                   `json:"conflicts"`
	Skipped   []Skip                   `json:"skipped"`
}

// UnlockAssigned unlocks every computer the student is pre-assigned to.
func (co *Coordinator) UnlockAssigned(ctx context.Context, rfid string) (*BulkResult, error) {
	ctx = context.WithoutCancel(ctx)
	student, err := co.dir.FindByRFID(ctx, rfid)
	if err != nil {
		return nil, err
	}
	ids, err := co.dir.AssignedComputerIDs(ctx, student.Student.ID)
	if err != nil {
		return nil, err
	}
	return co.bulk(ctx, student, rfid, ids, nil)
}

// UnlockAssignedInLab unlocks the student's assignment within labID only.
func (co *Coordinator) UnlockAssignedInLab(ctx context.Context, labID uint, rfid string) (*BulkResult, error) {
	ctx = context.WithoutCancel(ctx)
	var lab models.Laboratory
	if err := co.reg.DB().WithContext(ctx).First(&lab, labID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Laboratory", "id", labID)
		}
		return nil, apperr.Transient("load laboratory", err)
	}
	student, err := co.dir.FindByRFID(ctx, rfid)
	if err != nil {
		return nil, err
	}
	ids, err := co.dir.AssignedComputerIDsInLab(ctx, student.Student.ID, labID)
	if err != nil {
		return nil, err
	}
	return co.bulk(ctx, student, rfid, ids, &lab.ID)
}

// outcome carries a per-computer refusal out of its transaction.
type outcome struct {
	conflict bool
	reason   string
}

func (o *outcome) Error() string { return o.reason }

// bulk runs each target in its own transaction; earlier successes stay
// committed when a later target fails.
func (co *Coordinator) bulk(ctx context.Context, student *directory.Resolved, rfid string, ids []uint, labID *uint) (*BulkResult, error) {
	if len(ids) == 0 {
		metrics.UnlocksTotal.WithLabelValues("bulk", "rejected").Inc()
		return nil, &apperr.Error{
			Kind:    apperr.KindNotFound,
			Message: "No computers assigned to this student",
			Fields:  map[string]string{"rfid_uid": rfid},
		}
	}
	now := co.clock()
	res := &BulkResult{
		Computers: []*models.Computer{},
		Student:   student.Summary(),
		Conflicts: []Skip{},
		Skipped:   []Skip{},
	}

	for _, id := range ids {
		var number string
		err := co.reg.WithLocked(ctx, id, func(tx *gorm.DB, c *models.Computer) error {
			number = c.ComputerNumber
			if c.Status != models.ComputerActive {
				return &outcome{reason: c.Status}
			}
			if !c.IsOnline {
				return &outcome{reason: "offline"}
			}
			if holder, err := occupant(tx, c, student.Student.ID); err != nil {
				return apperr.Transient("check occupant", err)
			} else if holder != "" {
				return &outcome{conflict: true, reason: "occupied by " + holder}
			}
			_, err := co.startSessionTx(tx, c, student, models.ReasonRFIDUnlock, now)
			return err
		})

		var oc *outcome
		switch {
		case err == nil:
			c, gerr := co.reg.Get(ctx, id)
			if gerr != nil {
				co.log.Warn("reload after bulk unlock failed", zap.Uint("computer_id", id), zap.Error(gerr))
				continue
			}
			res.Computers = append(res.Computers, c)
			metrics.UnlocksTotal.WithLabelValues("bulk", "ok").Inc()
		case errors.As(err, &oc) && oc.conflict:
			res.Conflicts = append(res.Conflicts, Skip{ComputerID: id, ComputerNumber: number, Reason: oc.reason})
			metrics.UnlocksTotal.WithLabelValues("bulk", "conflict").Inc()
		case errors.As(err, &oc):
			res.Skipped = append(res.Skipped, Skip{ComputerID: id, ComputerNumber: number, Reason: oc.reason})
			metrics.UnlocksTotal.WithLabelValues("bulk", "skipped").Inc()
		default:
			co.log.Error("bulk unlock item failed", zap.Uint("computer_id", id), zap.Error(err))
			res.Skipped = append(res.Skipped, Skip{ComputerID: id, ComputerNumber: number, Reason: "error"})
			metrics.UnlocksTotal.WithLabelValues("bulk", "error").Inc()
		}
	}

	ref := events.Student{ID: student.Student.ID, Name: student.Student.FullName(), StudentID: student.Student.StudentID}
	evts := events.BatchUnlocked(res.Computers, ref, labID, now)
	evts = append(evts, events.Scanned(ref, rfid, len(res.Computers), now)...)
	events.PublishAll(ctx, co.pub, co.log, evts)
	return res, nil
}

// occupant names another student who holds a live session on an unlocked
// computer. Sessions on a locked computer are stale and get replaced.
func occupant(tx *gorm.DB, c *models.Computer, studentID uint) (string, error) {
	if c.IsLock {
		return "", nil
	}
	open, err := session.FindOpenTx(tx, c.ID)
	if err != nil {
		return "", err
	}
	for _, l := range open {
		if l.StudentID == studentID {
			continue
		}
		var other models.Student
		if err := tx.First(&other, l.StudentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return "", err
		}
		return other.FullName(), nil
	}
	return "", nil
}
