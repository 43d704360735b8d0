package shared

import "time"

// AggregateRoot is what a transaction scope needs from an aggregate to flush
// its pending events to the outbox.
type AggregateRoot interface {
	GetDomainEvents() []DomainEvent
	ClearDomainEvents()
}

// BaseAggregateRoot adds optimistic versioning and pending events to an entity.
// Version moves by exactly one per state-changing operation; repositories
// save with `WHERE version = Version-1`.
type BaseAggregateRoot struct {
	BaseEntity
	Version      int `gorm:"not null;default:1"`
	domainEvents []DomainEvent
}

// NewBaseAggregateRoot starts a new aggregate at version 1
func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity: NewBaseEntity(),
		Version:    1,
	}
}

// MarkChanged records one state change: the version moves forward and
// UpdatedAt is stamped.
func (a *BaseAggregateRoot) MarkChanged() {
	a.Version++
	a.Touch(time.Now())
}

func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
}

// GetDomainEvents returns the events raised since the last flush
func (a *BaseAggregateRoot) GetDomainEvents() []DomainEvent {
	return a.domainEvents
}

func (a *BaseAggregateRoot) ClearDomainEvents() {
	a.domainEvents = nil
}
