package event

import (
	"context"
	"sync"
	"time"

	"github.com/clinic/backend/internal/domain/shared"
	"github.com/clinic/backend/internal/infrastructure/config"
	"github.com/clinic/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OutboxProcessorConfig tunes the delivery loop. A zero Retention keeps
// delivered entries forever.
type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	Retry         shared.RetryPolicy
	Retention     time.Duration
	PurgeInterval time.Duration
}

func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:     100,
		PollInterval:  5 * time.Second,
		Retry:         shared.DefaultRetryPolicy,
		Retention:     7 * 24 * time.Hour,
		PurgeInterval: time.Hour,
	}
}

// OutboxProcessorConfigFrom maps the event section of the application config
func OutboxProcessorConfigFrom(cfg config.EventConfig) OutboxProcessorConfig {
	c := DefaultOutboxProcessorConfig()
	if cfg.BatchSize > 0 {
		c.BatchSize = cfg.BatchSize
	}
	if cfg.PollInterval > 0 {
		c.PollInterval = cfg.PollInterval
	}
	if cfg.MaxRetries > 0 {
		c.Retry.MaxAttempts = cfg.MaxRetries
	}
	switch {
	case !cfg.CleanupEnabled:
		c.Retention = 0
	case cfg.CleanupRetention > 0:
		c.Retention = cfg.CleanupRetention
	}
	return c
}

// OutboxProcessor polls the outbox and publishes due entries on the event
// bus. Delivery is at least once; handlers deduplicate by event ID.
type OutboxProcessor struct {
	repo   shared.OutboxRepository
	bus    shared.EventBus
	codec  *EventCodec
	config OutboxProcessorConfig
	logger *zap.Logger
	now    func() time.Time

	cancel context.CancelFunc
	loops  sync.WaitGroup
}

func NewOutboxProcessor(
	repo shared.OutboxRepository,
	bus shared.EventBus,
	codec *EventCodec,
	config OutboxProcessorConfig,
	logger *zap.Logger,
) *OutboxProcessor {
	return &OutboxProcessor{
		repo:   repo,
		bus:    bus,
		codec:  codec,
		config: config,
		logger: logger.Named("outbox"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the delivery loop and, when a retention is set, the purge
// loop. Both stop when ctx is cancelled or Stop is called.
func (p *OutboxProcessor) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)

	p.loop(ctx, p.config.PollInterval, func(ctx context.Context) { p.ProcessBatch(ctx) })
	if p.config.Retention > 0 {
		p.loop(ctx, p.config.PurgeInterval, p.purge)
	}
	return nil
}

// Stop cancels the loops and waits for the current round to finish
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	done := make(chan struct{})
	go func() {
		p.loops.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *OutboxProcessor) loop(ctx context.Context, interval time.Duration, round func(context.Context)) {
	p.loops.Add(1)
	go func() {
		defer p.loops.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				round(ctx)
			}
		}
	}()
}

// ProcessBatch claims up to BatchSize due entries and publishes them. It
// returns the number delivered.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) int {
	due, err := p.repo.FindDue(ctx, p.now(), p.config.BatchSize)
	if err != nil {
		p.logger.Error("outbox scan failed", zap.Error(err))
		return 0
	}
	if len(due) == 0 {
		return 0
	}

	ids := make([]uuid.UUID, len(due))
	for i, e := range due {
		ids[i] = e.ID
	}
	won, err := p.repo.Claim(ctx, ids)
	if err != nil {
		p.logger.Error("outbox claim failed", zap.Int("candidates", len(ids)), zap.Error(err))
		return 0
	}

	delivered := 0
	for _, entry := range won {
		if p.deliver(ctx, entry) {
			delivered++
		}
	}
	return delivered
}

func (p *OutboxProcessor) deliver(ctx context.Context, entry *shared.OutboxEntry) bool {
	ctx, span := telemetry.StartSpan(ctx, "outbox", "deliver",
		telemetry.Attr("event.type", entry.EventType),
		telemetry.Attr("event.id", entry.EventID.String()),
		telemetry.Attr("event.attempt", entry.RetryCount+1),
	)
	var spanErr error
	defer func() { telemetry.EndSpan(span, spanErr) }()

	event, err := p.codec.Decode(entry.EventType, entry.Payload)
	if err == nil {
		err = p.bus.Publish(ctx, event)
	}
	if err != nil {
		spanErr = err
		p.recordFailure(ctx, entry, err)
		return false
	}

	entry.Delivered(p.now())
	if err := p.repo.Update(ctx, entry); err != nil {
		// the entry stays PROCESSING and is not picked up again; handlers
		// already saw the event
		spanErr = err
		p.logger.Error("outbox entry delivered but not marked sent",
			zap.String("event_id", entry.EventID.String()),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (p *OutboxProcessor) recordFailure(ctx context.Context, entry *shared.OutboxEntry, cause error) {
	fields := []zap.Field{
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
		zap.String("aggregate_id", entry.AggregateID.String()),
		zap.Error(cause),
	}
	if entry.Failed(cause, p.now(), p.config.Retry) {
		p.logger.Warn("outbox entry is dead", append(fields, zap.Int("attempts", entry.RetryCount))...)
	} else {
		p.logger.Error("outbox delivery failed", append(fields, zap.Timep("next_retry_at", entry.NextRetryAt))...)
	}
	if err := p.repo.Update(ctx, entry); err != nil {
		p.logger.Error("outbox entry update failed", zap.String("event_id", entry.EventID.String()), zap.Error(err))
	}
}

func (p *OutboxProcessor) purge(ctx context.Context) {
	cutoff := p.now().Add(-p.config.Retention)
	purged, err := p.repo.PurgeDelivered(ctx, cutoff)
	if err != nil {
		p.logger.Error("outbox purge failed", zap.Error(err))
		return
	}
	if purged > 0 {
		p.logger.Info("outbox purged", zap.Int64("entries", purged), zap.Time("cutoff", cutoff))
	}
}
