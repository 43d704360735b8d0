package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the delivery state of an outbox entry
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
)

// RetryPolicy bounds redelivery of a failed entry. The n-th failure waits
// BaseDelay * 2^(n-1), never more than MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy gives five attempts spread over roughly fifteen seconds
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	BaseDelay:   time.Second,
	MaxDelay:    5 * time.Minute,
}

// Delay returns the wait after the given failed attempt (1-based)
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// OutboxEntry is a domain event persisted in the same transaction as the
// state change that raised it, awaiting delivery to the event bus
type OutboxEntry struct {
	ID            uuid.UUID    `gorm:"type:uuid;primaryKey"`
	EventID       uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex"`
	EventType     string       `gorm:"size:100;not null;index"`
	AggregateID   uuid.UUID    `gorm:"type:uuid;not null;index"`
	AggregateType string       `gorm:"size:100;not null"`
	Payload       []byte       `gorm:"not null"`
	Status        OutboxStatus `gorm:"size:20;not null;index"`
	RetryCount    int          `gorm:"not null;default:0"`
	MaxRetries    int          `gorm:"not null;default:5"`
	LastError     string
	NextRetryAt   *time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (OutboxEntry) TableName() string {
	return "outbox_entries"
}

// NewOutboxEntry wraps an encoded event as a pending entry
func NewOutboxEntry(event DomainEvent, payload []byte) *OutboxEntry {
	now := time.Now().UTC()
	return &OutboxEntry{
		ID:            uuid.New(),
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		Payload:       payload,
		Status:        OutboxStatusPending,
		MaxRetries:    DefaultRetryPolicy.MaxAttempts,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Delivered records a successful publish
func (e *OutboxEntry) Delivered(at time.Time) {
	e.Status = OutboxStatusSent
	e.ProcessedAt = &at
	e.NextRetryAt = nil
	e.UpdatedAt = at
}

// Failed records a failed attempt. The entry is parked as DEAD once it has
// used its attempts, the policy's MaxAttempts when set and the stored
// MaxRetries otherwise; until then it waits out the policy's delay.
// It reports whether the entry is dead.
func (e *OutboxEntry) Failed(cause error, at time.Time, policy RetryPolicy) bool {
	if policy.MaxAttempts > 0 {
		e.MaxRetries = policy.MaxAttempts
	}
	e.RetryCount++
	e.LastError = cause.Error()
	e.UpdatedAt = at

	if e.RetryCount >= e.MaxRetries {
		e.Status = OutboxStatusDead
		e.NextRetryAt = nil
		return true
	}
	next := at.Add(policy.Delay(e.RetryCount))
	e.Status = OutboxStatusFailed
	e.NextRetryAt = &next
	return false
}

// OutboxRepository persists outbox entries for the background processor
type OutboxRepository interface {
	Insert(ctx context.Context, entries ...*OutboxEntry) error
	// FindDue returns pending entries and failed entries whose retry time has
	// passed, oldest first
	FindDue(ctx context.Context, now time.Time, limit int) ([]*OutboxEntry, error)
	// Claim moves entries to PROCESSING and returns the ones this worker won
	Claim(ctx context.Context, ids []uuid.UUID) ([]*OutboxEntry, error)
	Update(ctx context.Context, entry *OutboxEntry) error
	// PurgeDelivered removes sent entries processed before the cutoff
	PurgeDelivered(ctx context.Context, before time.Time) (int64, error)
}
