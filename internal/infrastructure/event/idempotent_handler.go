package event

import (
	"context"
	"fmt"

	"github.com/clinic/backend/internal/domain/shared"
	"github.com/clinic/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Handler outcomes reported to an OutcomeRecorder.
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

// OutcomeRecorder receives one call per delivery seen by an IdempotentHandler.
type OutcomeRecorder interface {
	RecordHandlerOutcome(ctx context.Context, handler, eventType, outcome string)
}

type nopOutcomeRecorder struct{}

func (nopOutcomeRecorder) RecordHandlerOutcome(context.Context, string, string, string) {}

// IdempotentHandler wraps an EventHandler so that each event ID is handled at
// most once per handler name. A failed delivery releases its key so the
// outbox retry is handled again.
type IdempotentHandler struct {
	handler  shared.EventHandler
	store    shared.IdempotencyStore
	config   shared.IdempotencyConfig
	logger   *zap.Logger
	recorder OutcomeRecorder
	name     string
}

// IdempotentHandlerOption configures an IdempotentHandler
type IdempotentHandlerOption func(*IdempotentHandler)

// WithIdempotencyConfig sets the TTL and the enabled flag
func WithIdempotencyConfig(config shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.config = config
	}
}

// WithOutcomeRecorder reports processed/duplicate/failed deliveries
func WithOutcomeRecorder(recorder OutcomeRecorder) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		if recorder != nil {
			h.recorder = recorder
		}
	}
}

// WithHandlerName sets the name that scopes idempotency keys. Defaults to the
// wrapped handler's type name.
func WithHandlerName(name string) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.name = name
	}
}

// NewIdempotentHandler wraps handler with deduplication backed by store
func NewIdempotentHandler(
	handler shared.EventHandler,
	store shared.IdempotencyStore,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) *IdempotentHandler {
	h := &IdempotentHandler{
		handler:  handler,
		store:    store,
		config:   shared.DefaultIdempotencyConfig(),
		logger:   logger,
		recorder: nopOutcomeRecorder{},
		name:     fmt.Sprintf("%T", handler),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name is the prefix used for this handler's idempotency keys
func (h *IdempotentHandler) Name() string {
	return h.name
}

// EventTypes delegates to the wrapped handler
func (h *IdempotentHandler) EventTypes() []string {
	return h.handler.EventTypes()
}

// Handle runs the wrapped handler unless this handler already saw the event.
// An unavailable store does not block delivery.
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if !h.config.Enabled {
		return h.handler.Handle(ctx, event)
	}

	key := h.key(event)
	ctx = logger.WithCorrelationID(ctx, event.EventID().String())
	log := logger.For(ctx, h.logger).With(
		zap.String("handler", h.name),
		zap.String("event_type", event.EventType()),
	)

	isNew, err := h.store.MarkProcessed(ctx, key, h.config.TTL)
	switch {
	case err != nil:
		log.Warn("idempotency store unavailable, handling anyway", zap.Error(err))
	case !isNew:
		h.recorder.RecordHandlerOutcome(ctx, h.name, event.EventType(), OutcomeDuplicate)
		log.Debug("event already handled, skipping")
		return nil
	}

	if err := h.handler.Handle(ctx, event); err != nil {
		h.recorder.RecordHandlerOutcome(ctx, h.name, event.EventType(), OutcomeFailed)
		log.Error("event handler failed", zap.Error(err))
		if releaseErr := h.store.Release(ctx, key); releaseErr != nil {
			log.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(releaseErr))
		}
		return err
	}

	h.recorder.RecordHandlerOutcome(ctx, h.name, event.EventType(), OutcomeProcessed)
	log.Debug("event handled")
	return nil
}

func (h *IdempotentHandler) key(event shared.DomainEvent) string {
	return h.name + ":" + event.EventID().String()
}

// Unwrap returns the decorated handler
func (h *IdempotentHandler) Unwrap() shared.EventHandler {
	return h.handler
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
