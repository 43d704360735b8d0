package persistence

import (
	"context"

	appcrm "github.com/clinic/backend/internal/application/crm"
	"github.com/clinic/backend/internal/domain/crm"
	"github.com/clinic/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// Domain events appended through Outbox() are written in the same transaction.
type GormTransactionScope struct {
	db          *gorm.DB
	outbox shared.EventOutbox
}

// NewGormTransactionScope creates a new GormTransactionScope. outbox may
// be nil, in which case events are dropped.
func NewGormTransactionScope(db *gorm.DB, outbox shared.EventOutbox) *GormTransactionScope {
	return &GormTransactionScope{db: db, outbox: outbox}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appcrm.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx, outbox: s.outbox})
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx          *gorm.DB
	outbox shared.EventOutbox
}

func (r *gormTransactionalRepositories) CustomerRecords() crm.CustomerRecordRepository {
	return NewGormCustomerRecordRepository(r.tx)
}

func (r *gormTransactionalRepositories) Campaigns() crm.AdCampaignRepository {
	return NewGormAdCampaignRepository(r.tx)
}

func (r *gormTransactionalRepositories) Attributions() crm.AdAttributionRepository {
	return NewGormAdAttributionRepository(r.tx)
}

func (r *gormTransactionalRepositories) Actions() crm.CrmActionRepository {
	return NewGormCrmActionRepository(r.tx)
}

func (r *gormTransactionalRepositories) Communications() crm.CommunicationRepository {
	return NewGormCommunicationRepository(r.tx)
}

func (r *gormTransactionalRepositories) Referrals() crm.ReferralRepository {
	return NewGormReferralRepository(r.tx)
}

// Outbox returns an event sink bound to the current transaction
func (r *gormTransactionalRepositories) Outbox() appcrm.EventSink {
	return &outboxSink{tx: r.tx, outbox: r.outbox}
}

type outboxSink struct {
	tx     *gorm.DB
	outbox shared.EventOutbox
}

func (s *outboxSink) Append(ctx context.Context, events ...shared.DomainEvent) error {
	if s.outbox == nil || len(events) == 0 {
		return nil
	}
	return s.outbox.Append(ctx, s.tx, events...)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appcrm.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ appcrm.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
