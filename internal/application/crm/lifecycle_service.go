package crm

import (
	"context"
	"errors"
	"time"

	"github.com/clinic/backend/internal/domain/crm"
	"github.com/clinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CustomerLifecycleService keeps customer records in step with appointment
// and activity signals from other subsystems
type CustomerLifecycleService struct {
	scope  TransactionScope
	logger *zap.Logger
	opts   options
}

// NewCustomerLifecycleService creates a new CustomerLifecycleService
func NewCustomerLifecycleService(scope TransactionScope, logger *zap.Logger, opts ...Option) *CustomerLifecycleService {
	return &CustomerLifecycleService{
		scope:  scope,
		logger: logger,
		opts:   buildOptions(opts),
	}
}

// EnsureRecord returns the customer's record, creating it in the new status
// when it does not exist yet
func (s *CustomerLifecycleService) EnsureRecord(ctx context.Context, customerID uuid.UUID) (*CustomerRecordResponse, error) {
	var response CustomerRecordResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		record, err := ensureRecord(ctx, repos, customerID)
		if err != nil {
			return err
		}
		response = ToCustomerRecordResponse(record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// GetRecord retrieves the record of a customer
func (s *CustomerLifecycleService) GetRecord(ctx context.Context, customerID uuid.UUID) (*CustomerRecordResponse, error) {
	var response CustomerRecordResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		record, err := repos.CustomerRecords().FindByCustomerID(ctx, customerID)
		if err != nil {
			return err
		}
		response = ToCustomerRecordResponse(record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// OnAppointmentScheduled counts a newly scheduled appointment
func (s *CustomerLifecycleService) OnAppointmentScheduled(ctx context.Context, customerID uuid.UUID) (*CustomerRecordResponse, error) {
	now := s.opts.clock()
	return s.mutate(ctx, "appointment_scheduled", customerID, func(r *crm.CustomerRecord) (bool, error) {
		r.ScheduleAppointment(now)
		return true, nil
	})
}

// OnAppointmentCompleted counts a completed appointment and adds its amount
// to the lifetime value
func (s *CustomerLifecycleService) OnAppointmentCompleted(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal) (*CustomerRecordResponse, error) {
	now := s.opts.clock()
	return s.mutate(ctx, "appointment_completed", customerID, func(r *crm.CustomerRecord) (bool, error) {
		return true, r.CompleteAppointment(amount, now)
	})
}

// OnAppointmentCancelled counts a cancelled appointment
func (s *CustomerLifecycleService) OnAppointmentCancelled(ctx context.Context, customerID uuid.UUID) (*CustomerRecordResponse, error) {
	return s.mutate(ctx, "appointment_cancelled", customerID, func(r *crm.CustomerRecord) (bool, error) {
		r.CancelAppointment()
		return true, nil
	})
}

// OnRefund lowers the lifetime value by amount
func (s *CustomerLifecycleService) OnRefund(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal) (*CustomerRecordResponse, error) {
	return s.mutate(ctx, "refund", customerID, func(r *crm.CustomerRecord) (bool, error) {
		return true, r.Refund(amount)
	})
}

// MarkLost retires a customer after prolonged inactivity. Already lost
// records are left untouched.
func (s *CustomerLifecycleService) MarkLost(ctx context.Context, customerID uuid.UUID) (*CustomerRecordResponse, error) {
	return s.mutate(ctx, "mark_lost", customerID, func(r *crm.CustomerRecord) (bool, error) {
		return r.MarkLost(), nil
	})
}

// RegisterActivity records customer-initiated activity at the given time
func (s *CustomerLifecycleService) RegisterActivity(ctx context.Context, customerID uuid.UUID, at time.Time) (*CustomerRecordResponse, error) {
	if at.IsZero() {
		at = s.opts.clock()
	}
	return s.mutate(ctx, "register_activity", customerID, func(r *crm.CustomerRecord) (bool, error) {
		r.RegisterActivity(at)
		return true, nil
	})
}

// mutate loads the record, applies fn and saves it under the version check,
// retrying once on a concurrency conflict. fn reports whether it changed the
// record.
func (s *CustomerLifecycleService) mutate(
	ctx context.Context,
	operation string,
	customerID uuid.UUID,
	fn func(r *crm.CustomerRecord) (bool, error),
) (*CustomerRecordResponse, error) {
	var (
		response  CustomerRecordResponse
		oldStatus crm.CustomerStatus
	)

	err := withConflictRetry(s.logger, s.opts.metrics, operation, func() error {
		return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			record, err := repos.CustomerRecords().FindByCustomerID(ctx, customerID)
			if err != nil {
				return err
			}
			oldStatus = record.Status

			changed, err := fn(record)
			if err != nil {
				return err
			}
			if changed {
				if err := repos.CustomerRecords().SaveWithLock(ctx, record); err != nil {
					return err
				}
				if err := flushEvents(ctx, repos.Outbox(), record); err != nil {
					return err
				}
			}
			response = ToCustomerRecordResponse(record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if string(oldStatus) != response.Status {
		s.opts.metrics.RecordCustomerStatusChange(ctx, string(oldStatus), response.Status)
		s.logger.Info("customer status changed",
			zap.String("customer_id", customerID.String()),
			zap.String("from", string(oldStatus)),
			zap.String("to", response.Status),
			zap.String("operation", operation),
		)
	}
	return &response, nil
}

// ensureRecord returns the record of a customer, creating it when missing.
// A concurrent creator wins the unique index and the existing row is read back.
func ensureRecord(ctx context.Context, repos TransactionalRepositories, customerID uuid.UUID) (*crm.CustomerRecord, error) {
	records := repos.CustomerRecords()

	record, err := records.FindByCustomerID(ctx, customerID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	record, err = crm.NewCustomerRecord(customerID)
	if err != nil {
		return nil, err
	}
	if err := records.Create(ctx, record); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return records.FindByCustomerID(ctx, customerID)
		}
		return nil, err
	}
	if err := flushEvents(ctx, repos.Outbox(), record); err != nil {
		return nil, err
	}
	return record, nil
}
