package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clinic/backend/internal/domain/shared"
	"github.com/clinic/backend/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// stubOutbox overrides single repository calls on top of the sqlite store
type stubOutbox struct {
	*GormOutboxRepository
	findDue func(ctx context.Context, now time.Time, limit int) ([]*shared.OutboxEntry, error)
	claim   func(ctx context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error)
}

func (s *stubOutbox) FindDue(ctx context.Context, now time.Time, limit int) ([]*shared.OutboxEntry, error) {
	if s.findDue != nil {
		return s.findDue(ctx, now, limit)
	}
	return s.GormOutboxRepository.FindDue(ctx, now, limit)
}

func (s *stubOutbox) Claim(ctx context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error) {
	if s.claim != nil {
		return s.claim(ctx, ids)
	}
	return s.GormOutboxRepository.Claim(ctx, ids)
}

type processorFixture struct {
	repo      *stubOutbox
	bus       *InMemoryEventBus
	handler   *testHandler
	processor *OutboxProcessor
	clock     time.Time
}

func newProcessorFixture(t *testing.T, cfg OutboxProcessorConfig, logger *zap.Logger) *processorFixture {
	t.Helper()
	f := &processorFixture{
		repo:    &stubOutbox{GormOutboxRepository: NewGormOutboxRepository(setupOutboxDB(t))},
		bus:     newStartedBus(t),
		handler: newTestHandler("TestEvent"),
		clock:   time.Now().UTC(),
	}
	require.NoError(t, f.bus.Subscribe(f.handler, "TestEvent"))
	f.processor = NewOutboxProcessor(f.repo, f.bus, newTestCodec(), cfg, logger)
	f.processor.now = func() time.Time { return f.clock }
	return f
}

func (f *processorFixture) enqueue(t *testing.T, eventType string) *shared.OutboxEntry {
	t.Helper()
	event := newTestEvent(eventType)
	payload := []byte(`{"type":"` + eventType + `"}`)
	if eventType == "TestEvent" {
		var err error
		payload, err = newTestCodec().Encode(event)
		require.NoError(t, err)
	}
	entry := shared.NewOutboxEntry(event, payload)
	require.NoError(t, f.repo.Insert(context.Background(), entry))
	return entry
}

func (f *processorFixture) stored(t *testing.T, id uuid.UUID) shared.OutboxEntry {
	t.Helper()
	var entry shared.OutboxEntry
	require.NoError(t, f.repo.db.First(&entry, "id = ?", id).Error)
	return entry
}

func TestOutboxProcessor_DeliversDueEntries(t *testing.T) {
	f := newProcessorFixture(t, DefaultOutboxProcessorConfig(), zap.NewNop())
	first := f.enqueue(t, "TestEvent")
	second := f.enqueue(t, "TestEvent")

	assert.Equal(t, 2, f.processor.ProcessBatch(context.Background()))

	assert.Len(t, f.handler.getHandled(), 2)
	for _, id := range []uuid.UUID{first.ID, second.ID} {
		stored := f.stored(t, id)
		assert.Equal(t, shared.OutboxStatusSent, stored.Status)
		require.NotNil(t, stored.ProcessedAt)
	}

	// nothing left on the next round
	assert.Zero(t, f.processor.ProcessBatch(context.Background()))
}

func TestOutboxProcessor_HandlerFailureWaitsForRetry(t *testing.T) {
	cfg := DefaultOutboxProcessorConfig()
	cfg.Retry = shared.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Minute}
	f := newProcessorFixture(t, cfg, zap.NewNop())
	f.handler.setError(errors.New("downstream unavailable"))
	entry := f.enqueue(t, "TestEvent")

	assert.Zero(t, f.processor.ProcessBatch(context.Background()))

	stored := f.stored(t, entry.ID)
	assert.Equal(t, shared.OutboxStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Contains(t, stored.LastError, "downstream unavailable")

	// not due yet
	assert.Zero(t, f.processor.ProcessBatch(context.Background()))
	assert.Len(t, f.handler.getHandled(), 1)

	f.handler.setError(nil)
	f.clock = f.clock.Add(2 * time.Minute)
	assert.Equal(t, 1, f.processor.ProcessBatch(context.Background()))
	assert.Equal(t, shared.OutboxStatusSent, f.stored(t, entry.ID).Status)
}

func TestOutboxProcessor_ExhaustedEntryIsDead(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	cfg := DefaultOutboxProcessorConfig()
	cfg.Retry = shared.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second}
	f := newProcessorFixture(t, cfg, zap.New(core))
	f.handler.setError(errors.New("still failing"))
	entry := f.enqueue(t, "TestEvent")

	f.processor.ProcessBatch(context.Background())
	f.clock = f.clock.Add(time.Minute)
	f.processor.ProcessBatch(context.Background())

	stored := f.stored(t, entry.ID)
	assert.Equal(t, shared.OutboxStatusDead, stored.Status)
	assert.Equal(t, 2, stored.RetryCount)

	dead := logs.FilterMessage("outbox entry is dead").All()
	require.Len(t, dead, 1)
	assert.Equal(t, entry.EventID.String(), dead[0].ContextMap()["event_id"])

	// dead entries are never picked up again
	f.clock = f.clock.Add(time.Hour)
	assert.Zero(t, f.processor.ProcessBatch(context.Background()))
}

func TestOutboxProcessor_UndecodableEntryFails(t *testing.T) {
	f := newProcessorFixture(t, DefaultOutboxProcessorConfig(), zap.NewNop())
	entry := f.enqueue(t, "UnregisteredEvent")

	assert.Zero(t, f.processor.ProcessBatch(context.Background()))

	stored := f.stored(t, entry.ID)
	assert.Equal(t, shared.OutboxStatusFailed, stored.Status)
	assert.Contains(t, stored.LastError, ErrUnknownEventType.Error())
	assert.Empty(t, f.handler.getHandled())
}

func TestOutboxProcessor_RepositoryErrors(t *testing.T) {
	t.Run("scan", func(t *testing.T) {
		f := newProcessorFixture(t, DefaultOutboxProcessorConfig(), zap.NewNop())
		f.enqueue(t, "TestEvent")
		f.repo.findDue = func(context.Context, time.Time, int) ([]*shared.OutboxEntry, error) {
			return nil, errors.New("db down")
		}

		assert.Zero(t, f.processor.ProcessBatch(context.Background()))
		assert.Empty(t, f.handler.getHandled())
	})

	t.Run("claim lost to another worker", func(t *testing.T) {
		f := newProcessorFixture(t, DefaultOutboxProcessorConfig(), zap.NewNop())
		entry := f.enqueue(t, "TestEvent")
		f.repo.claim = func(context.Context, []uuid.UUID) ([]*shared.OutboxEntry, error) {
			return nil, nil
		}

		assert.Zero(t, f.processor.ProcessBatch(context.Background()))
		assert.Empty(t, f.handler.getHandled())
		assert.Equal(t, shared.OutboxStatusPending, f.stored(t, entry.ID).Status)
	})
}

func TestOutboxProcessor_PurgesDeliveredEntries(t *testing.T) {
	cfg := DefaultOutboxProcessorConfig()
	cfg.Retention = time.Hour
	f := newProcessorFixture(t, cfg, zap.NewNop())
	entry := f.enqueue(t, "TestEvent")
	require.Equal(t, 1, f.processor.ProcessBatch(context.Background()))

	f.processor.purge(context.Background())
	f.stored(t, entry.ID)

	f.clock = f.clock.Add(2 * time.Hour)
	f.processor.purge(context.Background())
	var count int64
	require.NoError(t, f.repo.db.Model(&shared.OutboxEntry{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestOutboxProcessor_StartAndStop(t *testing.T) {
	cfg := DefaultOutboxProcessorConfig()
	cfg.PollInterval = 10 * time.Millisecond
	f := newProcessorFixture(t, cfg, zap.NewNop())
	f.processor.now = func() time.Time { return time.Now().UTC() }
	f.enqueue(t, "TestEvent")

	require.NoError(t, f.processor.Start(context.Background()))
	assert.Eventually(t, func() bool { return len(f.handler.getHandled()) == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.processor.Stop(ctx))
}

func TestOutboxProcessorConfigFrom(t *testing.T) {
	cfg := OutboxProcessorConfigFrom(config.EventConfig{
		BatchSize:        25,
		PollInterval:     time.Second,
		MaxRetries:       8,
		CleanupEnabled:   true,
		CleanupRetention: 48 * time.Hour,
	})
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 8, cfg.Retry.MaxAttempts)
	assert.Equal(t, shared.DefaultRetryPolicy.BaseDelay, cfg.Retry.BaseDelay)
	assert.Equal(t, 48*time.Hour, cfg.Retention)

	off := OutboxProcessorConfigFrom(config.EventConfig{CleanupEnabled: false, CleanupRetention: time.Hour})
	assert.Zero(t, off.Retention)
	assert.Equal(t, 100, off.BatchSize)
}
