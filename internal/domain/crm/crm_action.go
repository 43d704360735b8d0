package crm

import (
	"strings"
	"time"

	"github.com/clinic/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// ActionType is the kind of salesperson work an action represents
type ActionType string

const (
	ActionTypePhoneCall               ActionType = "phone_call"
	ActionTypeEmail                   ActionType = "email"
	ActionTypeFollowUp                ActionType = "follow_up"
	ActionTypeAppointmentConfirmation ActionType = "appointment_confirmation"
	ActionTypeTreatmentReminder       ActionType = "treatment_reminder"
	ActionTypeMeeting                 ActionType = "meeting"
)

// IsValid checks if the action type is a known value
func (t ActionType) IsValid() bool {
	switch t {
	case ActionTypePhoneCall, ActionTypeEmail, ActionTypeFollowUp,
		ActionTypeAppointmentConfirmation, ActionTypeTreatmentReminder, ActionTypeMeeting:
		return true
	}
	return false
}

// ActionStatus is the state of a CRM action
type ActionStatus string

const (
	ActionStatusPending    ActionStatus = "pending"
	ActionStatusInProgress ActionStatus = "in_progress"
	ActionStatusCompleted  ActionStatus = "completed"
	ActionStatusOverdue    ActionStatus = "overdue"
	ActionStatusCancelled  ActionStatus = "cancelled"
)

// AllActionStatuses returns every action status
func AllActionStatuses() []ActionStatus {
	return []ActionStatus{
		ActionStatusPending,
		ActionStatusInProgress,
		ActionStatusCompleted,
		ActionStatusOverdue,
		ActionStatusCancelled,
	}
}

// IsValid checks if the status is a known value
func (s ActionStatus) IsValid() bool {
	switch s {
	case ActionStatusPending, ActionStatusInProgress, ActionStatusCompleted,
		ActionStatusOverdue, ActionStatusCancelled:
		return true
	}
	return false
}

// IsTerminal returns true for completed and cancelled
func (s ActionStatus) IsTerminal() bool {
	return s == ActionStatusCompleted || s == ActionStatusCancelled
}

// OpenActionStatuses are the statuses that still need salesperson attention
func OpenActionStatuses() []ActionStatus {
	return []ActionStatus{ActionStatusPending, ActionStatusInProgress, ActionStatusOverdue}
}

// SweepableActionStatuses are the statuses the overdue sweep may flip
func SweepableActionStatuses() []ActionStatus {
	return []ActionStatus{ActionStatusPending, ActionStatusInProgress}
}

// manualTransitions lists the moves a caller may request.
// pending|in_progress -> overdue is reserved for the sweep.
var manualTransitions = map[ActionStatus][]ActionStatus{
	ActionStatusPending:    {ActionStatusInProgress, ActionStatusCancelled},
	ActionStatusInProgress: {ActionStatusCompleted, ActionStatusCancelled},
	ActionStatusOverdue:    {ActionStatusCompleted, ActionStatusCancelled},
}

// CanTransitionTo reports whether a caller may move an action from s to target
func (s ActionStatus) CanTransitionTo(target ActionStatus) bool {
	for _, allowed := range manualTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// ActionPriority orders actions in a salesperson's queue
type ActionPriority string

const (
	ActionPriorityLow    ActionPriority = "low"
	ActionPriorityMedium ActionPriority = "medium"
	ActionPriorityHigh   ActionPriority = "high"
	ActionPriorityUrgent ActionPriority = "urgent"
)

// IsValid checks if the priority is a known value
func (p ActionPriority) IsValid() bool {
	return p.Weight() > 0
}

// Weight ranks priorities, urgent highest
func (p ActionPriority) Weight() int {
	switch p {
	case ActionPriorityLow:
		return 1
	case ActionPriorityMedium:
		return 2
	case ActionPriorityHigh:
		return 3
	case ActionPriorityUrgent:
		return 4
	}
	return 0
}

// CrmAction is a unit of salesperson work tied to a customer
type CrmAction struct {
	shared.BaseAggregateRoot
	CustomerID    uuid.UUID
	SalespersonID uuid.UUID
	ActionType    ActionType
	Title         string
	Description   string
	Status        ActionStatus
	Priority      ActionPriority
	DueDate       *time.Time
	CompletedAt   *time.Time
	CancelReason  string
	Outcome       ActionOutcome
}

// NewActionParams holds the fields required to create an action
type NewActionParams struct {
	CustomerID    uuid.UUID
	SalespersonID uuid.UUID
	ActionType    ActionType
	Title         string
	Description   string
	Priority      ActionPriority
	DueDate       *time.Time
}

// NewCrmAction creates a pending action. A due date in the past relative to
// now is rejected.
func NewCrmAction(params NewActionParams, now time.Time) (*CrmAction, error) {
	if params.CustomerID == uuid.Nil {
		return nil, shared.NewValidationError("Customer ID cannot be empty")
	}
	if params.SalespersonID == uuid.Nil {
		return nil, shared.NewValidationError("Salesperson ID cannot be empty")
	}
	if !params.ActionType.IsValid() {
		return nil, shared.NewValidationError("Invalid action type: " + string(params.ActionType))
	}
	if params.Priority == "" {
		params.Priority = ActionPriorityMedium
	}
	if !params.Priority.IsValid() {
		return nil, shared.NewValidationError("Invalid action priority: " + string(params.Priority))
	}

	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, shared.NewValidationError("Action title cannot be empty")
	}
	if len(title) > 200 {
		return nil, shared.NewValidationError("Action title cannot exceed 200 characters")
	}
	if params.DueDate != nil && params.DueDate.Before(now) {
		return nil, shared.NewValidationError("Due date cannot be in the past")
	}

	action := &CrmAction{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		CustomerID:        params.CustomerID,
		SalespersonID:     params.SalespersonID,
		ActionType:        params.ActionType,
		Title:             title,
		Description:       strings.TrimSpace(params.Description),
		Status:            ActionStatusPending,
		Priority:          params.Priority,
		DueDate:           params.DueDate,
	}
	action.AddDomainEvent(NewActionCreatedEvent(action))
	return action, nil
}

// TransitionOptions carries the optional data of a manual transition
type TransitionOptions struct {
	// CompletedAt defaults to the current time when completing
	CompletedAt *time.Time
	// Outcome is recorded on completion
	Outcome *ActionOutcome
	// Reason is recorded on cancellation
	Reason string
}

// Transition moves the action to target following the manual transition table
func (a *CrmAction) Transition(target ActionStatus, opts TransitionOptions) error {
	if !target.IsValid() || !a.Status.CanTransitionTo(target) {
		return shared.NewInvalidStateTransitionError("action", string(a.Status), string(target))
	}

	if opts.Outcome != nil && !opts.Outcome.IsEmpty() {
		if target != ActionStatusCompleted {
			return shared.NewValidationError("Outcome can only be recorded when completing an action")
		}
		if err := opts.Outcome.ValidateFor(a.ActionType); err != nil {
			return err
		}
	}

	oldStatus := a.Status
	a.Status = target

	switch target {
	case ActionStatusCompleted:
		completedAt := time.Now()
		if opts.CompletedAt != nil {
			completedAt = *opts.CompletedAt
		}
		a.CompletedAt = &completedAt
		if opts.Outcome != nil {
			a.Outcome = *opts.Outcome
		}
	case ActionStatusCancelled:
		a.CancelReason = strings.TrimSpace(opts.Reason)
	}

	a.MarkChanged()
	a.AddDomainEvent(NewActionStatusChangedEvent(a, oldStatus))
	return nil
}

// IsDueBefore reports whether the action has a due date strictly before now
func (a *CrmAction) IsDueBefore(now time.Time) bool {
	return a.DueDate != nil && a.DueDate.Before(now)
}

// MarkOverdue is the sweep-only move from pending or in_progress to overdue.
// Returns false, leaving the action untouched, when it is not due yet or its
// status is not sweepable.
func (a *CrmAction) MarkOverdue(now time.Time) bool {
	if a.Status != ActionStatusPending && a.Status != ActionStatusInProgress {
		return false
	}
	if !a.IsDueBefore(now) {
		return false
	}

	oldStatus := a.Status
	a.Status = ActionStatusOverdue
	a.MarkChanged()
	a.AddDomainEvent(NewActionOverdueEvent(a, oldStatus))
	return true
}

// IsOpen returns true while the action still needs attention
func (a *CrmAction) IsOpen() bool {
	return !a.Status.IsTerminal()
}
