package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEvent struct {
	shared.BaseDomainEvent
	Data string `json:"data"`
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", uuid.New()),
		Data:            "test data",
	}
}

type testHandler struct {
	mu         sync.Mutex
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
}

func newTestHandler(eventTypes ...string) *testHandler {
	return &testHandler{eventTypes: eventTypes}
}

func (h *testHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	return h.err
}

func (h *testHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *testHandler) setError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

func (h *testHandler) getHandled() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.handled...)
}

type panickingHandler struct{}

func (panickingHandler) Handle(context.Context, shared.DomainEvent) error {
	panic("boom")
}

func (panickingHandler) EventTypes() []string { return []string{"TestEvent"} }

// dispatchLog counts dispatch outcomes per event type
type dispatchLog struct {
	mu     sync.Mutex
	counts map[string]int
}

func (l *dispatchLog) RecordDispatch(_ context.Context, eventType, outcome string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts == nil {
		l.counts = make(map[string]int)
	}
	l.counts[eventType+"/"+outcome]++
}

func (l *dispatchLog) get(eventType, outcome string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[eventType+"/"+outcome]
}

func newStartedBus(t *testing.T, opts ...BusOption) *InMemoryEventBus {
	t.Helper()
	bus := NewInMemoryEventBus(zap.NewNop(), opts...)
	require.NoError(t, bus.Start(context.Background()))
	return bus
}

func TestInMemoryEventBus_RoutesByEventType(t *testing.T) {
	bus := newStartedBus(t)
	status := newTestHandler("CustomerStatusChanged")
	comms := newTestHandler("CommunicationRecorded")
	require.NoError(t, bus.Subscribe(status))
	require.NoError(t, bus.Subscribe(comms))

	statusEvent := newTestEvent("CustomerStatusChanged")
	commEvent := newTestEvent("CommunicationRecorded")
	require.NoError(t, bus.Publish(context.Background(), statusEvent, commEvent))

	assert.Equal(t, []shared.DomainEvent{statusEvent}, status.getHandled())
	assert.Equal(t, []shared.DomainEvent{commEvent}, comms.getHandled())
}

func TestInMemoryEventBus_ExplicitTypesOverrideHandlerTypes(t *testing.T) {
	bus := newStartedBus(t)
	handler := newTestHandler("CustomerStatusChanged")
	require.NoError(t, bus.Subscribe(handler, "CrmActionOverdue"))

	require.NoError(t, bus.Publish(context.Background(),
		newTestEvent("CustomerStatusChanged"), newTestEvent("CrmActionOverdue")))

	require.Len(t, handler.getHandled(), 1)
	assert.Equal(t, "CrmActionOverdue", handler.getHandled()[0].EventType())
}

func TestInMemoryEventBus_DuplicateSubscriptionDeliversOnce(t *testing.T) {
	bus := newStartedBus(t)
	handler := newTestHandler("TestEvent")
	require.NoError(t, bus.Subscribe(handler))
	require.NoError(t, bus.Subscribe(handler))

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("TestEvent")))

	assert.Len(t, handler.getHandled(), 1)
}

func TestInMemoryEventBus_SubscribeValidation(t *testing.T) {
	t.Run("no event types", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		err := bus.Subscribe(newTestHandler())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no event types")
	})

	t.Run("type outside the known set", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop(), WithKnownEventTypes(NewCRMEventCodec().EventTypes()...))
		err := bus.Subscribe(newTestHandler("CustomerStatusChange"))
		assert.ErrorIs(t, err, ErrUnknownEventType)
	})

	t.Run("known type", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop(), WithKnownEventTypes(NewCRMEventCodec().EventTypes()...))
		assert.NoError(t, bus.Subscribe(newTestHandler("CustomerStatusChanged")))
	})
}

func TestInMemoryEventBus_HandlerErrorDoesNotStopOthers(t *testing.T) {
	recorder := &dispatchLog{}
	bus := newStartedBus(t, WithDispatchRecorder(recorder))

	failing := newTestHandler("TestEvent")
	failing.setError(errors.New("handler error"))
	after := newTestHandler("TestEvent")
	require.NoError(t, bus.Subscribe(failing))
	require.NoError(t, bus.Subscribe(after))

	err := bus.Publish(context.Background(), newTestEvent("TestEvent"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler error")
	assert.Len(t, after.getHandled(), 1)
	assert.Equal(t, 1, recorder.get("TestEvent", DispatchFailed))
	assert.Equal(t, 1, recorder.get("TestEvent", DispatchDelivered))
}

func TestInMemoryEventBus_HandlerPanicIsReturned(t *testing.T) {
	recorder := &dispatchLog{}
	bus := newStartedBus(t, WithDispatchRecorder(recorder))

	after := newTestHandler("TestEvent")
	require.NoError(t, bus.Subscribe(panickingHandler{}))
	require.NoError(t, bus.Subscribe(after))

	err := bus.Publish(context.Background(), newTestEvent("TestEvent"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked on TestEvent")
	assert.Len(t, after.getHandled(), 1)
	assert.Equal(t, 1, recorder.get("TestEvent", DispatchPanicked))
}

func TestInMemoryEventBus_UnroutedEventRecorded(t *testing.T) {
	recorder := &dispatchLog{}
	bus := newStartedBus(t, WithDispatchRecorder(recorder))

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("ReferralApplied")))

	assert.Equal(t, 1, recorder.get("ReferralApplied", DispatchUnrouted))
}

func TestInMemoryEventBus_PublishRequiresRunningBus(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler("TestEvent")
	require.NoError(t, bus.Subscribe(handler))

	assert.ErrorIs(t, bus.Publish(context.Background(), newTestEvent("TestEvent")), ErrBusStopped)

	require.NoError(t, bus.Start(context.Background()))
	require.NoError(t, bus.Publish(context.Background(), newTestEvent("TestEvent")))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Stop(ctx))

	assert.ErrorIs(t, bus.Publish(context.Background(), newTestEvent("TestEvent")), ErrBusStopped)
	assert.Len(t, handler.getHandled(), 1)
}

// blockingHandler holds Handle until release is closed
type blockingHandler struct {
	entered chan struct{}
	release chan struct{}
}

func (h *blockingHandler) Handle(context.Context, shared.DomainEvent) error {
	close(h.entered)
	<-h.release
	return nil
}

func (h *blockingHandler) EventTypes() []string { return []string{"TestEvent"} }

func TestInMemoryEventBus_StopWaitsForInFlightDispatch(t *testing.T) {
	bus := newStartedBus(t)
	handler := &blockingHandler{entered: make(chan struct{}), release: make(chan struct{})}
	require.NoError(t, bus.Subscribe(handler))

	published := make(chan error, 1)
	go func() { published <- bus.Publish(context.Background(), newTestEvent("TestEvent")) }()
	<-handler.entered

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Stop(short), context.DeadlineExceeded)

	close(handler.release)
	require.NoError(t, <-published)

	ctx, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	assert.NoError(t, bus.Stop(ctx))
}
