package shared

import "context"

// EventHandler reacts to committed domain events delivered from the outbox.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes lists the event types the handler subscribes to
	EventTypes() []string
}

// EventBus routes delivered events to the handlers subscribed to their type.
type EventBus interface {
	Publish(ctx context.Context, events ...DomainEvent) error
	Subscribe(handler EventHandler, eventTypes ...string) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// EventOutbox appends events to the outbox inside an open storage
// transaction, so they commit or roll back with the state change that
// raised them. tx is the store's transaction handle (a *gorm.DB for gorm).
type EventOutbox interface {
	Append(ctx context.Context, tx any, events ...DomainEvent) error
}
