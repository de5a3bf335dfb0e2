package presence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zaqqye/complab_backend/internal/events"
	"github.com/zaqqye/complab_backend/internal/metrics"
	"github.com/zaqqye/complab_backend/internal/models"
	"github.com/zaqqye/complab_backend/internal/registry"
)

var ErrSweepInProgress = errors.New("presence: sweep already running")

// errFresh aborts a demotion whose heartbeat landed after candidate
// selection.
var errFresh = errors.New("presence: heartbeat is fresh")

type MonitorConfig struct {
	Threshold   time.Duration
	Interval    time.Duration
	ItemTimeout time.Duration
}

type SweepResult struct {
	Candidates int
	Demoted    int
	Skipped    int
	Failed     int
}

// Monitor demotes computers whose heartbeat is older than Threshold. Only one
// sweep runs at a time.
type Monitor struct {
	svc     *Service
	cfg     MonitorConfig
	log     *zap.Logger
	running atomic.Bool

	mu   sync.Mutex
	cron *cron.Cron
}

func NewMonitor(svc *Service, cfg MonitorConfig, log *zap.Logger) *Monitor {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5 * time.Minute
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{svc: svc, cfg: cfg, log: log}
}

// Sweep materializes the stale set, then demotes each computer in its own
// transaction. A failing computer is logged and counted; the rest proceed.
func (m *Monitor) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	if !m.running.CompareAndSwap(false, true) {
		metrics.SweepsTotal.WithLabelValues("overlap").Inc()
		return res, ErrSweepInProgress
	}
	defer m.running.Store(false)

	started := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(started).Seconds()) }()

	now := m.svc.clock()
	cutoff := now.Add(-m.cfg.Threshold)
	stale, err := m.svc.reg.ListStale(ctx, cutoff)
	if err != nil {
		metrics.SweepsTotal.WithLabelValues("error").Inc()
		m.log.Error("presence sweep failed to list candidates", zap.Error(err))
		return res, err
	}
	res.Candidates = len(stale)

	for i := range stale {
		c := &stale[i]
		itemCtx, cancel := context.WithTimeout(ctx, m.cfg.ItemTimeout)
		err := m.demote(itemCtx, c.ID, cutoff, now)
		cancel()
		switch {
		case err == nil:
			res.Demoted++
		case errors.Is(err, errFresh):
			res.Skipped++
		default:
			res.Failed++
			metrics.SweepItemFailures.Inc()
			m.log.Error("presence sweep item failed",
				zap.Uint("computer_id", c.ID),
				zap.String("ip_address", c.IPAddress),
				zap.Error(err),
			)
		}
	}

	metrics.SweepsTotal.WithLabelValues("ok").Inc()
	m.log.Info("presence sweep finished",
		zap.Int("candidates", res.Candidates),
		zap.Int("demoted", res.Demoted),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
		zap.Duration("took", time.Since(started)),
	)
	return res, nil
}

func (m *Monitor) demote(ctx context.Context, id uint, cutoff, now time.Time) error {
	var reason string
	err := m.svc.reg.WithLocked(ctx, id, func(tx *gorm.DB, c *models.Computer) error {
		// re-read under the row lock: a heartbeat may have landed since selection
		if !registry.IsStale(c, cutoff) {
			return errFresh
		}
		reason = models.ReasonMissedHeartbeat
		details := "Automatically marked offline due to missed heartbeats"
		if c.LastSeen == nil {
			reason = models.ReasonNoHeartbeat
			details = "Marked offline because no heartbeat was ever received"
		}
		return m.svc.goOfflineTx(tx, c, reason, details, now)
	})
	if err != nil {
		return err
	}

	c, err := m.svc.reg.Get(ctx, id)
	if err != nil {
		// committed; only the notification is lost
		m.log.Warn("reload after demotion failed", zap.Uint("computer_id", id), zap.Error(err))
		return nil
	}
	m.log.Info("computer went offline",
		zap.Uint("computer_id", c.ID),
		zap.String("ip_address", c.IPAddress),
		zap.String("reason", reason),
	)
	evts := events.ComputerChanged(c, "update")
	evts = append(evts, events.WentOffline(c, events.OfflineReason(reason), now)...)
	events.PublishAll(ctx, m.svc.pub, m.log, evts)
	return nil
}

// Start schedules Sweep every Interval. Ticks that fire while a sweep is
// still running are skipped.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron != nil {
		return nil
	}
	logger := cronLogger{m.log.Sugar()}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	_, err := c.AddFunc("@every "+m.cfg.Interval.String(), func() {
		if _, err := m.Sweep(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
			m.log.Error("presence sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	m.cron = c
	m.log.Info("presence monitor started",
		zap.Duration("interval", m.cfg.Interval),
		zap.Duration("threshold", m.cfg.Threshold),
	)
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	c := m.cron
	m.cron = nil
	m.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	m.log.Info("presence monitor stopped")
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
