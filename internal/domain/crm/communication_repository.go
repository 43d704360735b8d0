package crm

import (
	"context"

	"github.com/google/uuid"
)

// CommunicationRepository is the append-only store of the communication log.
// There are intentionally no update or delete methods.
type CommunicationRepository interface {
	// Append inserts a new entry
	Append(ctx context.Context, entry *CommunicationEntry) error

	// FindByID finds an entry by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*CommunicationEntry, error)

	// FindByCustomerRecord lists entries of a record newest first, up to limit
	FindByCustomerRecord(ctx context.Context, recordID uuid.UUID, limit int) ([]CommunicationEntry, error)
}
