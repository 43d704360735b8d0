package event

import (
	"context"
	"fmt"

	"github.com/clinic/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// OutboxWriter stores domain events as outbox rows in the caller's gorm
// transaction. Nothing is delivered until the transaction commits and the
// OutboxProcessor picks the rows up.
type OutboxWriter struct {
	codec *EventCodec
}

// NewOutboxWriter creates a writer encoding payloads with codec
func NewOutboxWriter(codec *EventCodec) *OutboxWriter {
	return &OutboxWriter{codec: codec}
}

// Append encodes events and inserts them through tx. An event the codec
// cannot encode fails the whole append, and with it the transaction.
func (w *OutboxWriter) Append(ctx context.Context, tx any, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	db, ok := tx.(*gorm.DB)
	if !ok {
		return fmt.Errorf("outbox append needs a *gorm.DB transaction, got %T", tx)
	}

	entries := make([]*shared.OutboxEntry, len(events))
	for i, event := range events {
		payload, err := w.codec.Encode(event)
		if err != nil {
			return fmt.Errorf("outbox append %s for %s %s: %w",
				event.EventType(), event.AggregateType(), event.AggregateID(), err)
		}
		entries[i] = shared.NewOutboxEntry(event, payload)
	}
	return NewGormOutboxRepository(db).Insert(ctx, entries...)
}

var _ shared.EventOutbox = (*OutboxWriter)(nil)
