package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/clinic/backend/internal/domain/shared"
)

// ErrUnknownEventType is returned for event types the codec cannot decode.
var ErrUnknownEventType = errors.New("unknown event type")

// EventCodec encodes domain events into outbox payloads and decodes them
// back into their concrete types.
type EventCodec struct {
	mu        sync.RWMutex
	factories map[string]func() shared.DomainEvent
}

// NewEventCodec creates an empty codec. Most callers want NewCRMEventCodec.
func NewEventCodec() *EventCodec {
	return &EventCodec{factories: make(map[string]func() shared.DomainEvent)}
}

// Register binds eventType to a constructor for its concrete event type
func (c *EventCodec) Register(eventType string, factory func() shared.DomainEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[eventType] = factory
}

func (c *EventCodec) factory(eventType string) (func() shared.DomainEvent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[eventType]
	return f, ok
}

// Encode serializes an event. Unregistered types are refused at write time so
// that an undeliverable entry never reaches the outbox.
func (c *EventCodec) Encode(event shared.DomainEvent) ([]byte, error) {
	if _, ok := c.factory(event.EventType()); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, event.EventType())
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event.EventType(), err)
	}
	return payload, nil
}

// Decode rebuilds the event stored under eventType. The decoded event must
// report the same type, which catches payload fields that overwrite the
// event envelope.
func (c *EventCodec) Decode(eventType string, payload []byte) (shared.DomainEvent, error) {
	newEvent, ok := c.factory(eventType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}
	event := newEvent()
	if err := json.Unmarshal(payload, event); err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventType, err)
	}
	if event.EventType() != eventType {
		return nil, fmt.Errorf("decode %s: payload carries event type %q", eventType, event.EventType())
	}
	return event, nil
}

// EventTypes returns the registered event types in sorted order
func (c *EventCodec) EventTypes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	types := make([]string, 0, len(c.factories))
	for t := range c.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
