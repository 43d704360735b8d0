package event

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/clinic/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Dispatch outcomes reported to a DispatchRecorder.
const (
	DispatchDelivered = "delivered"
	DispatchFailed    = "failed"
	DispatchPanicked  = "panicked"
	DispatchUnrouted  = "unrouted"
)

// ErrBusStopped is returned by Publish before Start and after Stop. The
// outbox keeps the entry and retries it.
var ErrBusStopped = errors.New("event bus is not running")

// DispatchRecorder receives one call per handler dispatch, or one
// DispatchUnrouted call for an event with no subscriber.
type DispatchRecorder interface {
	RecordDispatch(ctx context.Context, eventType, outcome string)
}

type nopDispatchRecorder struct{}

func (nopDispatchRecorder) RecordDispatch(context.Context, string, string) {}

// InMemoryEventBus delivers outbox events synchronously to in-process
// handlers. Stop waits for dispatches already in progress.
type InMemoryEventBus struct {
	routes   *routes
	known    map[string]bool
	recorder DispatchRecorder
	logger   *zap.Logger

	mu       sync.RWMutex
	running  bool
	inflight sync.WaitGroup
}

// BusOption configures an InMemoryEventBus
type BusOption func(*InMemoryEventBus)

// WithKnownEventTypes makes Subscribe reject event types outside the set,
// so a misspelt subscription fails at startup instead of never firing.
func WithKnownEventTypes(eventTypes ...string) BusOption {
	return func(b *InMemoryEventBus) {
		b.known = make(map[string]bool, len(eventTypes))
		for _, t := range eventTypes {
			b.known[t] = true
		}
	}
}

// WithDispatchRecorder reports per-handler dispatch outcomes
func WithDispatchRecorder(recorder DispatchRecorder) BusOption {
	return func(b *InMemoryEventBus) {
		if recorder != nil {
			b.recorder = recorder
		}
	}
}

// NewInMemoryEventBus creates a stopped bus
func NewInMemoryEventBus(logger *zap.Logger, opts ...BusOption) *InMemoryEventBus {
	b := &InMemoryEventBus{
		routes:   newRoutes(),
		recorder: nopDispatchRecorder{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe routes eventTypes to handler. With no explicit types the
// handler's own EventTypes are used.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) error {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	if len(eventTypes) == 0 {
		return fmt.Errorf("handler %T subscribes to no event types", handler)
	}
	if b.known != nil {
		for _, t := range eventTypes {
			if !b.known[t] {
				return fmt.Errorf("subscribe %T: %w: %s", handler, ErrUnknownEventType, t)
			}
		}
	}

	b.routes.add(handler, eventTypes)
	b.logger.Debug("handler subscribed",
		zap.String("handler", fmt.Sprintf("%T", handler)),
		zap.Strings("event_types", eventTypes),
	)
	return nil
}

// Publish hands each event to every subscribed handler. A failing handler
// does not stop the others; their errors are joined so the outbox retries
// the entry.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	b.mu.RLock()
	if !b.running {
		b.mu.RUnlock()
		return ErrBusStopped
	}
	b.inflight.Add(1)
	b.mu.RUnlock()
	defer b.inflight.Done()

	var errs []error
	for _, event := range events {
		handlers := b.routes.lookup(event.EventType())
		if len(handlers) == 0 {
			b.recorder.RecordDispatch(ctx, event.EventType(), DispatchUnrouted)
			continue
		}
		for _, handler := range handlers {
			if err := b.dispatch(ctx, handler, event); err != nil {
				b.logger.Error("event handler failed",
					zap.String("handler", fmt.Sprintf("%T", handler)),
					zap.String("event_type", event.EventType()),
					zap.String("event_id", event.EventID().String()),
					zap.Error(err),
				)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (b *InMemoryEventBus) dispatch(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.recorder.RecordDispatch(ctx, event.EventType(), DispatchPanicked)
			err = fmt.Errorf("handler %T panicked on %s: %v", handler, event.EventType(), r)
		}
	}()

	if err := handler.Handle(ctx, event); err != nil {
		b.recorder.RecordDispatch(ctx, event.EventType(), DispatchFailed)
		return err
	}
	b.recorder.RecordDispatch(ctx, event.EventType(), DispatchDelivered)
	return nil
}

// Start lets Publish deliver events
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	b.mu.Lock()
	b.running = true
	b.mu.Unlock()
	b.logger.Info("event bus started")
	return nil
}

// Stop refuses new publishes and waits for in-flight ones or ctx
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("event bus stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
