package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clinic/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeSweeper struct {
	calls   atomic.Int32
	flipped int
	err     error
	block   chan struct{}
	mu      sync.Mutex
	lastNow time.Time
}

func (f *fakeSweeper) SweepOverdue(ctx context.Context, now time.Time) (int, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastNow = now
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return f.flipped, f.err
}

func setupSweepRunDB(t *testing.T) *SweepRunRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&SweepRunRecord{}))
	return NewSweepRunRepository(db)
}

func TestDefaultOverdueSweepConfig(t *testing.T) {
	cfg := DefaultOverdueSweepConfig()

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "@every 5m", cfg.Schedule)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
}

func TestOverdueSweepConfigFrom(t *testing.T) {
	cfg := OverdueSweepConfigFrom(config.CRMConfig{
		SweepEnabled:  true,
		SweepSchedule: "*/10 * * * *",
	})

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "*/10 * * * *", cfg.Schedule)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
}

func TestOverdueSweepScheduler_RunOnce(t *testing.T) {
	runs := setupSweepRunDB(t)
	sweeper := &fakeSweeper{flipped: 3}
	s := NewOverdueSweepScheduler(DefaultOverdueSweepConfig(), sweeper, runs, zap.NewNop())
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.FixedZone("UTC+8", 8*3600))
	s.now = func() time.Time { return fixed }

	flipped, err := s.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, flipped)
	assert.Equal(t, time.UTC, sweeper.lastNow.Location())
	assert.True(t, sweeper.lastNow.Equal(fixed))
	require.NotNil(t, s.LastRunAt())

	latest, err := runs.Latest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, SweepRunSuccess, latest.Status)
	assert.Equal(t, 3, latest.Flipped)
	assert.Equal(t, "once", latest.Source)
	assert.NotNil(t, latest.CompletedAt)
}

func TestOverdueSweepScheduler_RunFailureIsRecorded(t *testing.T) {
	runs := setupSweepRunDB(t)
	sweeper := &fakeSweeper{err: errors.New("db unavailable")}
	s := NewOverdueSweepScheduler(DefaultOverdueSweepConfig(), sweeper, runs, zap.NewNop())

	_, err := s.RunOnce(context.Background())
	require.Error(t, err)

	latest, err := runs.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepRunFailed, latest.Status)
	assert.Equal(t, "db unavailable", latest.Error)
	assert.Equal(t, "db unavailable", s.GetStatus()["last_error"])
}

func TestOverdueSweepScheduler_NoOverlap(t *testing.T) {
	sweeper := &fakeSweeper{block: make(chan struct{})}
	s := NewOverdueSweepScheduler(DefaultOverdueSweepConfig(), sweeper, nil, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return sweeper.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrSweepInProgress)

	close(sweeper.block)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), sweeper.calls.Load())
}

func TestOverdueSweepScheduler_Timeout(t *testing.T) {
	sweeper := &fakeSweeper{block: make(chan struct{})}
	cfg := DefaultOverdueSweepConfig()
	cfg.Timeout = 20 * time.Millisecond
	s := NewOverdueSweepScheduler(cfg, sweeper, nil, zap.NewNop())

	_, err := s.RunOnce(context.Background())

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOverdueSweepScheduler_StartStop(t *testing.T) {
	sweeper := &fakeSweeper{}
	cfg := DefaultOverdueSweepConfig()
	cfg.Schedule = "@every 1s"
	s := NewOverdueSweepScheduler(cfg, sweeper, nil, zap.NewNop())

	_, err := s.TriggerManualRun(context.Background())
	assert.ErrorIs(t, err, ErrSchedulerNotRunning)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	require.NotNil(t, s.NextRunAt())

	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)

	_, err = s.TriggerManualRun(context.Background())
	require.NoError(t, err)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	assert.Nil(t, s.NextRunAt())
	assert.False(t, s.GetStatus()["is_running"].(bool))
}

func TestOverdueSweepScheduler_InvalidSchedule(t *testing.T) {
	cfg := DefaultOverdueSweepConfig()
	cfg.Schedule = "every five minutes"
	s := NewOverdueSweepScheduler(cfg, &fakeSweeper{}, nil, zap.NewNop())

	err := s.Start(context.Background())

	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestOverdueSweepScheduler_Disabled(t *testing.T) {
	cfg := DefaultOverdueSweepConfig()
	cfg.Enabled = false
	s := NewOverdueSweepScheduler(cfg, &fakeSweeper{}, nil, zap.NewNop())

	require.NoError(t, s.Start(context.Background()))
	assert.Nil(t, s.NextRunAt())
	require.NoError(t, s.Stop(context.Background()))
}

func TestSweepRunRepository_LatestEmpty(t *testing.T) {
	runs := setupSweepRunDB(t)

	latest, err := runs.Latest(context.Background())

	require.NoError(t, err)
	assert.Nil(t, latest)
}
