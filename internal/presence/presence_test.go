package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/zaqqye/complab_backend/internal/activity"
	"github.com/zaqqye/complab_backend/internal/apperr"
	"github.com/zaqqye/complab_backend/internal/events"
	"github.com/zaqqye/complab_backend/internal/models"
	"github.com/zaqqye/complab_backend/internal/registry"
	"github.com/zaqqye/complab_backend/internal/testfixtures"
)

type harness struct {
	db      *gorm.DB
	clock   *testfixtures.Clock
	rec     *events.Recorder
	svc     *Service
	monitor *Monitor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testfixtures.NewDB(t)
	log := zaptest.NewLogger(t)
	clock := testfixtures.NewClock(testfixtures.ReferenceTime())
	rec := &events.Recorder{}
	svc := NewService(registry.New(db), activity.NewSink(db, log), rec, log, clock.Now)
	mon := NewMonitor(svc, MonitorConfig{Threshold: 5 * time.Minute, Interval: time.Minute, ItemTimeout: 5 * time.Second}, log)
	return &harness{db: db, clock: clock, rec: rec, svc: svc, monitor: mon}
}

func TestHeartbeatUnknownIP(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Heartbeat(context.Background(), "192.168.1.5")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, "Computer not found", err.Error())

	var n int64
	require.NoError(t, h.db.Model(&models.Computer{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestHeartbeatBringsComputerOnline(t *testing.T) {
	h := newHarness(t)
	c := testfixtures.Computer(t, h.db)

	got, err := h.svc.Heartbeat(context.Background(), c.IPAddress)
	require.NoError(t, err)
	assert.True(t, got.IsOnline)
	require.NotNil(t, got.LastSeen)
	assert.True(t, got.LastSeen.Equal(h.clock.Now()))

	log := testfixtures.Activity(t, h.db, c.ID)
	require.Len(t, log, 1)
	assert.Equal(t, models.ActivityOnline, log[0].ActivityType)
	assert.Equal(t, models.ReasonHeartbeatReceived, log[0].Reason)
	assert.Empty(t, h.rec.Messages())

	h.clock.Advance(time.Minute)
	_, err = h.svc.Heartbeat(context.Background(), c.IPAddress)
	require.NoError(t, err)
	assert.Len(t, testfixtures.Activity(t, h.db, c.ID), 1)
}

func TestConcurrentHeartbeatsKeepNewestLastSeen(t *testing.T) {
	h := newHarness(t)
	c := testfixtures.Computer(t, h.db)
	h.svc.now = h.clock.Ticking(time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Heartbeat(context.Background(), c.IPAddress)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got := testfixtures.Reload(t, h.db, c.ID)
	require.NotNil(t, got.LastSeen)
	assert.True(t, got.LastSeen.Equal(h.clock.Now()), "last_seen %s want %s", got.LastSeen, h.clock.Now())
	assert.True(t, got.IsOnline)
}

func TestSweepSixMinuteScenario(t *testing.T) {
	h := newHarness(t)
	c := testfixtures.Computer(t, h.db, testfixtures.Online(h.clock.Now()), testfixtures.Unlocked())
	h.clock.Advance(6 * time.Minute)

	res, err := h.monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Candidates: 1, Demoted: 1}, res)

	got := testfixtures.Reload(t, h.db, c.ID)
	assert.False(t, got.IsOnline)
	assert.True(t, got.IsLock)

	log := testfixtures.Activity(t, h.db, c.ID)
	require.Len(t, log, 1)
	assert.Equal(t, models.ActivityOffline, log[0].ActivityType)
	assert.Equal(t, models.ReasonMissedHeartbeat, log[0].Reason)

	offline := h.rec.Named(events.ComputerWentOffline)
	require.NotEmpty(t, offline)
	assert.Equal(t, events.TopicComputerStatus, offline[0].Topic)
	assert.Len(t, h.rec.Named(events.ComputerEvent), 1)
}

func TestSweepThresholdBoundary(t *testing.T) {
	h := newHarness(t)
	now := h.clock.Now()
	fresh := testfixtures.Computer(t, h.db, testfixtures.Online(now.Add(-(4*time.Minute + 59*time.Second))))
	stale := testfixtures.Computer(t, h.db, testfixtures.Online(now.Add(-(5*time.Minute + time.Second))))

	res, err := h.monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Demoted)
	assert.True(t, testfixtures.Reload(t, h.db, fresh.ID).IsOnline)
	assert.False(t, testfixtures.Reload(t, h.db, stale.ID).IsOnline)
}

func TestSweepForcesLockAndClosesSessions(t *testing.T) {
	h := newHarness(t)
	start := h.clock.Now()
	c := testfixtures.Computer(t, h.db, testfixtures.Online(start), testfixtures.Unlocked())
	s := testfixtures.Student(t, h.db, "Ana", "Cruz", "RF-1")
	testfixtures.OpenSession(t, h.db, s, c, start)
	h.clock.Advance(10 * time.Minute)

	_, err := h.monitor.Sweep(context.Background())
	require.NoError(t, err)

	assert.True(t, testfixtures.Reload(t, h.db, c.ID).IsLock)
	assert.Zero(t, testfixtures.OpenSessions(t, h.db, c.ID))

	var l models.ComputerLog
	require.NoError(t, h.db.Where("computer_id = ?", c.ID).First(&l).Error)
	assert.Equal(t, int64(600), l.Uptime)

	log := testfixtures.Activity(t, h.db, c.ID)
	require.Len(t, log, 2)
	assert.Equal(t, models.ActivitySessionEnd, log[0].ActivityType)
	assert.Equal(t, models.ActivityOffline, log[1].ActivityType)
}

func TestSweepNoHeartbeatReason(t *testing.T) {
	h := newHarness(t)
	c := testfixtures.Computer(t, h.db, func(c *models.Computer) { c.IsOnline = true })

	_, err := h.monitor.Sweep(context.Background())
	require.NoError(t, err)

	log := testfixtures.Activity(t, h.db, c.ID)
	require.Len(t, log, 1)
	assert.Equal(t, models.ReasonNoHeartbeat, log[0].Reason)
}

func TestSweepIsolatesItemFailures(t *testing.T) {
	h := newHarness(t)
	seen := h.clock.Now()
	a := testfixtures.Computer(t, h.db, testfixtures.Online(seen))
	bad := testfixtures.Computer(t, h.db, testfixtures.Online(seen))
	b := testfixtures.Computer(t, h.db, testfixtures.Online(seen))
	h.clock.Advance(6 * time.Minute)

	require.NoError(t, h.db.Callback().Update().Before("gorm:update").Register("test:fail_one", func(tx *gorm.DB) {
		if c, ok := tx.Statement.Model.(*models.Computer); ok && c.ID == bad.ID {
			tx.AddError(errors.New("connection reset"))
		}
	}))

	res, err := h.monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Candidates: 3, Demoted: 2, Failed: 1}, res)
	assert.False(t, testfixtures.Reload(t, h.db, a.ID).IsOnline)
	assert.True(t, testfixtures.Reload(t, h.db, bad.ID).IsOnline)
	assert.False(t, testfixtures.Reload(t, h.db, b.ID).IsOnline)
}

func TestSweepTimesOutStuckItem(t *testing.T) {
	h := newHarness(t)
	seen := h.clock.Now()
	stuck := testfixtures.Computer(t, h.db, testfixtures.Online(seen))
	ok := testfixtures.Computer(t, h.db, testfixtures.Online(seen))
	h.clock.Advance(6 * time.Minute)

	require.NoError(t, h.db.Callback().Update().Before("gorm:update").Register("test:stall_one", func(tx *gorm.DB) {
		c, isComputer := tx.Statement.Model.(*models.Computer)
		if !isComputer || c.ID != stuck.ID {
			return
		}
		select {
		case <-tx.Statement.Context.Done():
			tx.AddError(tx.Statement.Context.Err())
		case <-time.After(5 * time.Second):
			tx.AddError(errors.New("item context never expired"))
		}
	}))

	mon := NewMonitor(h.svc, MonitorConfig{
		Threshold:   5 * time.Minute,
		Interval:    time.Minute,
		ItemTimeout: 50 * time.Millisecond,
	}, zaptest.NewLogger(t))

	started := time.Now()
	res, err := mon.Sweep(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 5*time.Second)
	assert.Equal(t, SweepResult{Candidates: 2, Demoted: 1, Failed: 1}, res)
	assert.True(t, testfixtures.Reload(t, h.db, stuck.ID).IsOnline)
	assert.Empty(t, testfixtures.Activity(t, h.db, stuck.ID))
	assert.False(t, testfixtures.Reload(t, h.db, ok.ID).IsOnline)
	assert.True(t, testfixtures.Reload(t, h.db, ok.ID).IsLock)
}

func TestHeartbeatCommitsAfterCallerCancels(t *testing.T) {
	h := newHarness(t)
	c := testfixtures.Computer(t, h.db)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := h.svc.Heartbeat(ctx, c.IPAddress)
	require.NoError(t, err)
	assert.True(t, got.IsOnline)

	stored := testfixtures.Reload(t, h.db, c.ID)
	assert.True(t, stored.IsOnline)
	require.NotNil(t, stored.LastSeen)
	assert.True(t, stored.LastSeen.Equal(h.clock.Now()))
	assert.Len(t, testfixtures.Activity(t, h.db, c.ID), 1)
}

func TestSweepSkipsWhenHeartbeatLandsAfterSelection(t *testing.T) {
	h := newHarness(t)
	c := testfixtures.Computer(t, h.db, testfixtures.Online(h.clock.Now()))
	h.clock.Advance(6 * time.Minute)

	cutoff := h.clock.Now().Add(-5 * time.Minute)
	_, err := h.svc.Heartbeat(context.Background(), c.IPAddress)
	require.NoError(t, err)

	err = h.monitor.demote(context.Background(), c.ID, cutoff, h.clock.Now())
	assert.ErrorIs(t, err, errFresh)
	assert.True(t, testfixtures.Reload(t, h.db, c.ID).IsOnline)
}

func TestSweepSingleFlight(t *testing.T) {
	h := newHarness(t)
	h.monitor.running.Store(true)

	_, err := h.monitor.Sweep(context.Background())
	assert.ErrorIs(t, err, ErrSweepInProgress)

	h.monitor.running.Store(false)
	_, err = h.monitor.Sweep(context.Background())
	assert.NoError(t, err)
}

func TestManualOverrides(t *testing.T) {
	h := newHarness(t)
	lab := testfixtures.Lab(t, h.db, "Lab A")
	c := testfixtures.Computer(t, h.db, testfixtures.InLab(lab))
	ctx := context.Background()

	got, err := h.svc.SetOnline(ctx, c.IPAddress)
	require.NoError(t, err)
	assert.True(t, got.IsOnline)
	assert.True(t, got.IsLock)
	assert.Equal(t, "Lab A", got.LabName())
	assert.Equal(t, []string{"computer-status", "computer-status." + c.IPAddress, events.LabTopic(lab.ID)}, h.rec.Topics(events.ComputerCameOnline))

	h.rec.Reset()
	got, err = h.svc.SetOffline(ctx, c.IPAddress)
	require.NoError(t, err)
	assert.False(t, got.IsOnline)
	offline := h.rec.Named(events.ComputerWentOffline)
	require.Len(t, offline, 3)

	log := testfixtures.Activity(t, h.db, c.ID)
	require.Len(t, log, 2)
	assert.Equal(t, models.ReasonManualOnline, log[0].Reason)
	assert.Equal(t, models.ReasonManualOffline, log[1].Reason)

	_, err = h.svc.SetOffline(ctx, "10.9.9.9")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestMonitorStartStop(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.monitor.Start(context.Background()))
	require.NoError(t, h.monitor.Start(context.Background()))
	h.monitor.Stop()
	h.monitor.Stop()
}
