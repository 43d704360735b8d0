package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/clinic/backend/internal/infrastructure/config"
	"github.com/clinic/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	ErrSchedulerNotRunning = errors.New("overdue sweep scheduler is not running")
	ErrInvalidConfig       = errors.New("invalid overdue sweep configuration")
	// ErrSweepInProgress rejects a manual trigger while a run is active
	ErrSweepInProgress     = errors.New("overdue sweep already in progress")
)

// Sweeper flips overdue actions. Implemented by the action service.
type Sweeper interface {
	SweepOverdue(ctx context.Context, now time.Time) (int, error)
}

// OverdueSweepConfig holds configuration for the overdue sweep
type OverdueSweepConfig struct {
	Enabled bool
	// Schedule is a standard cron expression or descriptor (@every 5m, @hourly)
	Schedule string
	// Timeout bounds a single sweep run
	Timeout time.Duration
}

// DefaultOverdueSweepConfig returns default sweep configuration
func DefaultOverdueSweepConfig() OverdueSweepConfig {
	return OverdueSweepConfig{
		Enabled:  true,
		Schedule: "@every 5m",
		Timeout:  2 * time.Minute,
	}
}

// OverdueSweepConfigFrom maps the CRM section of the application config
func OverdueSweepConfigFrom(cfg config.CRMConfig) OverdueSweepConfig {
	c := DefaultOverdueSweepConfig()
	c.Enabled = cfg.SweepEnabled
	if cfg.SweepSchedule != "" {
		c.Schedule = cfg.SweepSchedule
	}
	if cfg.SweepTimeout > 0 {
		c.Timeout = cfg.SweepTimeout
	}
	return c
}

// OverdueSweepScheduler runs the overdue sweep on a cron schedule.
// Runs never overlap: a tick that fires while a sweep is still running is
// skipped, and a manual trigger during a run returns ErrSweepInProgress.
type OverdueSweepScheduler struct {
	config  OverdueSweepConfig
	sweeper Sweeper
	runs    *SweepRunRepository
	logger  *zap.Logger
	now     func() time.Time

	cron    *cron.Cron
	entryID cron.EntryID
	runMu   sync.Mutex

	mu        sync.Mutex
	isRunning bool
	lastRunAt *time.Time
	lastCount int
	lastErr   error
}

// NewOverdueSweepScheduler creates a sweep scheduler. runs may be nil when
// run history is not persisted.
func NewOverdueSweepScheduler(
	config OverdueSweepConfig,
	sweeper Sweeper,
	runs *SweepRunRepository,
	logger *zap.Logger,
) *OverdueSweepScheduler {
	return &OverdueSweepScheduler{
		config:  config,
		sweeper: sweeper,
		runs:    runs,
		logger:  logger,
		now:     time.Now,
	}
}

// Start registers the sweep with cron and starts ticking
func (s *OverdueSweepScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	if !s.config.Enabled {
		s.logger.Info("overdue sweep disabled")
		return nil
	}

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cronLogger{s.logger}), cron.SkipIfStillRunning(cronLogger{s.logger})),
	)
	id, err := c.AddFunc(s.config.Schedule, func() {
		if _, err := s.run(context.WithoutCancel(ctx), "cron"); err != nil && !errors.Is(err, ErrSweepInProgress) {
			s.logger.Error("scheduled overdue sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("%w: sweep schedule %q: %v", ErrInvalidConfig, s.config.Schedule, err)
	}

	s.cron = c
	s.entryID = id
	s.isRunning = true
	c.Start()

	s.logger.Info("overdue sweep scheduler started",
		zap.String("schedule", s.config.Schedule),
		zap.Duration("timeout", s.config.Timeout),
		zap.Time("next_run_at", c.Entry(id).Next),
	)
	return nil
}

// Stop stops the cron and waits for a running sweep to finish
func (s *OverdueSweepScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	c := s.cron
	s.mu.Unlock()

	select {
	case <-c.Stop().Done():
		s.logger.Info("overdue sweep scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("overdue sweep scheduler stop timed out")
		return ctx.Err()
	}
}

// TriggerManualRun sweeps immediately, outside the schedule
func (s *OverdueSweepScheduler) TriggerManualRun(ctx context.Context) (int, error) {
	s.mu.Lock()
	running := s.isRunning
	s.mu.Unlock()
	if !running {
		return 0, ErrSchedulerNotRunning
	}
	return s.run(ctx, "manual")
}

// RunOnce performs one sweep regardless of the scheduler state
func (s *OverdueSweepScheduler) RunOnce(ctx context.Context) (int, error) {
	return s.run(ctx, "once")
}

func (s *OverdueSweepScheduler) run(ctx context.Context, source string) (int, error) {
	if !s.runMu.TryLock() {
		return 0, ErrSweepInProgress
	}
	defer s.runMu.Unlock()

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	ctx, span := telemetry.StartSpan(ctx, "scheduler", "overdue_sweep", telemetry.Attr("sweep.source", source))
	now := s.now().UTC()
	runID := s.recordStart(ctx, source, now)

	flipped, err := s.sweeper.SweepOverdue(ctx, now)
	span.SetAttributes(telemetry.Attr("sweep.flipped", flipped))
	telemetry.EndSpan(span, err)

	s.recordComplete(ctx, runID, flipped, err)

	s.mu.Lock()
	s.lastRunAt = &now
	s.lastCount = flipped
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		return flipped, err
	}
	s.logger.Debug("overdue sweep finished",
		zap.String("source", source),
		zap.Int("flipped", flipped),
		zap.Duration("took", s.now().UTC().Sub(now)),
	)
	return flipped, nil
}

func (s *OverdueSweepScheduler) recordStart(ctx context.Context, source string, at time.Time) uuid.UUID {
	if s.runs == nil {
		return uuid.Nil
	}
	id, err := s.runs.RecordStart(ctx, source, at)
	if err != nil {
		s.logger.Warn("failed to record sweep start", zap.Error(err))
		return uuid.Nil
	}
	return id
}

func (s *OverdueSweepScheduler) recordComplete(ctx context.Context, id uuid.UUID, flipped int, runErr error) {
	if s.runs == nil || id == uuid.Nil {
		return
	}
	// the run context may have timed out, history is still written
	if err := s.runs.RecordComplete(context.WithoutCancel(ctx), id, flipped, runErr); err != nil {
		s.logger.Warn("failed to record sweep completion", zap.String("run_id", id.String()), zap.Error(err))
	}
}

// NextRunAt returns when cron fires next, or nil when stopped
func (s *OverdueSweepScheduler) NextRunAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return nil
	}
	next := s.cron.Entry(s.entryID).Next
	return &next
}

// LastRunAt returns when the last sweep started
func (s *OverdueSweepScheduler) LastRunAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRunAt
}

// GetStatus returns the current status of the scheduler
func (s *OverdueSweepScheduler) GetStatus() map[string]any {
	next := s.NextRunAt()

	s.mu.Lock()
	defer s.mu.Unlock()

	status := map[string]any{
		"enabled":      s.config.Enabled,
		"is_running":   s.isRunning,
		"schedule":     s.config.Schedule,
		"last_run_at":  s.lastRunAt,
		"next_run_at":  next,
		"last_flipped": s.lastCount,
	}
	if s.lastErr != nil {
		status["last_error"] = s.lastErr.Error()
	}
	return status
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
