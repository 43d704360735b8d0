package crm

import (
	"context"
	"errors"
	"time"

	"github.com/clinic/backend/internal/domain/crm"
	"github.com/clinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ActionService schedules salesperson work and drives the action state machine
type ActionService struct {
	scope  TransactionScope
	logger *zap.Logger
	opts   options
}

// NewActionService creates a new ActionService
func NewActionService(scope TransactionScope, logger *zap.Logger, opts ...Option) *ActionService {
	return &ActionService{
		scope:  scope,
		logger: logger,
		opts:   buildOptions(opts),
	}
}

// CreateAction creates a pending action for a customer that has a record
func (s *ActionService) CreateAction(ctx context.Context, req CreateActionRequest) (*ActionResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var response ActionResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if _, err := repos.CustomerRecords().FindByCustomerID(ctx, req.CustomerID); err != nil {
			return err
		}

		action, err := crm.NewCrmAction(crm.NewActionParams{
			CustomerID:    req.CustomerID,
			SalespersonID: req.SalespersonID,
			ActionType:    crm.ActionType(req.ActionType),
			Title:         req.Title,
			Description:   req.Description,
			Priority:      crm.ActionPriority(req.Priority),
			DueDate:       req.DueDate,
		}, s.opts.clock())
		if err != nil {
			return err
		}

		if err := repos.Actions().Create(ctx, action); err != nil {
			return err
		}
		if err := flushEvents(ctx, repos.Outbox(), action); err != nil {
			return err
		}
		response = ToActionResponse(action)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.opts.metrics.RecordActionCreated(ctx, response.ActionType)
	s.logger.Info("crm action created",
		zap.String("action_id", response.ID.String()),
		zap.String("customer_id", response.CustomerID.String()),
		zap.String("salesperson_id", response.SalespersonID.String()),
		zap.String("type", response.ActionType),
		zap.String("priority", response.Priority),
	)
	return &response, nil
}

// GetAction retrieves an action by ID
func (s *ActionService) GetAction(ctx context.Context, actionID uuid.UUID) (*ActionResponse, error) {
	var response ActionResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		action, err := repos.Actions().FindByID(ctx, actionID)
		if err != nil {
			return err
		}
		response = ToActionResponse(action)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// Transition moves an action to a new status. The move is saved under the
// version check and retried once if another writer got there first.
func (s *ActionService) Transition(ctx context.Context, req TransitionActionRequest) (*ActionResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	target := crm.ActionStatus(req.Status)
	completedAt := req.CompletedAt
	if target == crm.ActionStatusCompleted && completedAt == nil {
		now := s.opts.clock()
		completedAt = &now
	}

	var (
		response  ActionResponse
		oldStatus crm.ActionStatus
	)
	err := withConflictRetry(s.logger, s.opts.metrics, "action_transition", func() error {
		return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			action, err := repos.Actions().FindByID(ctx, req.ActionID)
			if err != nil {
				return err
			}
			oldStatus = action.Status

			err = action.Transition(target, crm.TransitionOptions{
				CompletedAt: completedAt,
				Outcome:     req.Outcome.toDomain(),
				Reason:      req.Reason,
			})
			if err != nil {
				return err
			}
			if err := repos.Actions().SaveWithLock(ctx, action); err != nil {
				return err
			}
			if err := flushEvents(ctx, repos.Outbox(), action); err != nil {
				return err
			}
			response = ToActionResponse(action)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.opts.metrics.RecordActionTransition(ctx, string(oldStatus), response.Status)
	s.logger.Info("crm action transitioned",
		zap.String("action_id", response.ID.String()),
		zap.String("from", string(oldStatus)),
		zap.String("to", response.Status),
	)
	return &response, nil
}

// SweepOverdue flips every pending or in_progress action due before now to
// overdue and returns how many rows it flipped. Each row is written with a
// status-filtered update, so concurrent sweeps and late transitions never
// double-flip or overwrite a terminal status.
func (s *ActionService) SweepOverdue(ctx context.Context, now time.Time) (int, error) {
	batchSize := s.opts.settings.SweepBatchSize
	total := 0

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		var fetched, flipped int
		err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			candidates, err := repos.Actions().FindOverdueCandidates(ctx, now, batchSize)
			if err != nil {
				return err
			}
			fetched = len(candidates)

			for i := range candidates {
				action := &candidates[i]
				if !action.MarkOverdue(now) {
					continue
				}
				ok, err := repos.Actions().MarkOverdue(ctx, action)
				if err != nil {
					return err
				}
				if !ok {
					action.ClearDomainEvents()
					continue
				}
				if err := flushEvents(ctx, repos.Outbox(), action); err != nil {
					return err
				}
				flipped++
			}
			return nil
		})
		if err != nil {
			return total, err
		}
		total += flipped

		if fetched < batchSize || flipped == 0 {
			break
		}
	}

	if total > 0 {
		s.logger.Info("overdue sweep flipped actions", zap.Int("count", total), zap.Time("now", now))
	}
	s.opts.metrics.RecordOverdueSwept(ctx, total)
	return total, nil
}

// ListOpenForCustomer lists pending, in_progress and overdue actions of a customer
func (s *ActionService) ListOpenForCustomer(ctx context.Context, customerID uuid.UUID) ([]ActionResponse, error) {
	var responses []ActionResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		actions, err := repos.Actions().FindOpenByCustomer(ctx, customerID)
		if err != nil {
			return err
		}
		responses = ToActionResponses(actions)
		return nil
	})
	return responses, err
}

// ListOpenForSalesperson lists the open actions in a salesperson's queue
func (s *ActionService) ListOpenForSalesperson(ctx context.Context, salespersonID uuid.UUID) ([]ActionResponse, error) {
	var responses []ActionResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		actions, err := repos.Actions().FindOpenBySalesperson(ctx, salespersonID)
		if err != nil {
			return err
		}
		responses = ToActionResponses(actions)
		return nil
	})
	return responses, err
}

// LatestForCustomer returns the most recently created action of a customer,
// nil when there is none
func (s *ActionService) LatestForCustomer(ctx context.Context, customerID uuid.UUID) (*ActionResponse, error) {
	var response *ActionResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		action, err := repos.Actions().FindLatestByCustomer(ctx, customerID)
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		r := ToActionResponse(action)
		response = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

// CancelOpenForCustomer cancels every open action of a customer and returns
// how many were cancelled
func (s *ActionService) CancelOpenForCustomer(ctx context.Context, customerID uuid.UUID, reason string) (int, error) {
	var cancelled int
	err := withConflictRetry(s.logger, s.opts.metrics, "cancel_open_actions", func() error {
		cancelled = 0
		return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			actions, err := repos.Actions().FindOpenByCustomer(ctx, customerID)
			if err != nil {
				return err
			}
			for i := range actions {
				action := &actions[i]
				if err := action.Transition(crm.ActionStatusCancelled, crm.TransitionOptions{Reason: reason}); err != nil {
					return err
				}
				if err := repos.Actions().SaveWithLock(ctx, action); err != nil {
					return err
				}
				if err := flushEvents(ctx, repos.Outbox(), action); err != nil {
					return err
				}
				cancelled++
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	if cancelled > 0 {
		s.logger.Info("cancelled open crm actions",
			zap.String("customer_id", customerID.String()),
			zap.Int("count", cancelled),
			zap.String("reason", reason),
		)
	}
	return cancelled, nil
}
