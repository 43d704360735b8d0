package crm

import (
	"context"

	"github.com/clinic/backend/internal/domain/crm"
	"github.com/clinic/backend/internal/domain/shared"
)

// TransactionScope provides transactional access to the CRM repositories.
// Every service operation runs inside exactly one Execute call, so the state
// change and its outbox entries commit or roll back together.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all CRM repositories within a
// transaction. All repositories returned share the same underlying transaction.
type TransactionalRepositories interface {
	CustomerRecords() crm.CustomerRecordRepository
	Campaigns() crm.AdCampaignRepository
	Attributions() crm.AdAttributionRepository
	Actions() crm.CrmActionRepository
	Communications() crm.CommunicationRepository
	Referrals() crm.ReferralRepository
	// Outbox returns the sink that stores domain events in the transaction
	Outbox() EventSink
}

// EventSink stores domain events for later publication
type EventSink interface {
	Append(ctx context.Context, events ...shared.DomainEvent) error
}

// flushEvents moves the pending events of an aggregate into the outbox
func flushEvents(ctx context.Context, sink EventSink, aggregate shared.AggregateRoot) error {
	events := aggregate.GetDomainEvents()
	if len(events) == 0 {
		return nil
	}
	if err := sink.Append(ctx, events...); err != nil {
		return err
	}
	aggregate.ClearDomainEvents()
	return nil
}
