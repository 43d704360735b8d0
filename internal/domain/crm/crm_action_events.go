package crm

import (
	"time"

	"github.com/clinic/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Aggregate type constant
const AggregateTypeCrmAction = "CrmAction"

// Event type constants
const (
	EventTypeActionCreated       = "CrmActionCreated"
	EventTypeActionStatusChanged = "CrmActionStatusChanged"
	EventTypeActionOverdue       = "CrmActionOverdue"
)

// ActionCreatedEvent is published when an action is created.
// Reminder delivery subscribes to it to schedule notifications.
type ActionCreatedEvent struct {
	shared.BaseDomainEvent
	ActionID      uuid.UUID      `json:"action_id"`
	CustomerID    uuid.UUID      `json:"customer_id"`
	SalespersonID uuid.UUID      `json:"salesperson_id"`
	ActionType    ActionType     `json:"action_type"`
	Priority      ActionPriority `json:"priority"`
	Title         string         `json:"title"`
	DueDate       *time.Time     `json:"due_date,omitempty"`
}

// NewActionCreatedEvent creates a new ActionCreatedEvent
func NewActionCreatedEvent(action *CrmAction) *ActionCreatedEvent {
	return &ActionCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeActionCreated, AggregateTypeCrmAction, action.ID),
		ActionID:        action.ID,
		CustomerID:      action.CustomerID,
		SalespersonID:   action.SalespersonID,
		ActionType:      action.ActionType,
		Priority:        action.Priority,
		Title:           action.Title,
		DueDate:         action.DueDate,
	}
}

// ActionStatusChangedEvent is published on every manual transition
type ActionStatusChangedEvent struct {
	shared.BaseDomainEvent
	ActionID      uuid.UUID    `json:"action_id"`
	CustomerID    uuid.UUID    `json:"customer_id"`
	SalespersonID uuid.UUID    `json:"salesperson_id"`
	OldStatus     ActionStatus `json:"old_status"`
	NewStatus     ActionStatus `json:"new_status"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
}

// NewActionStatusChangedEvent creates a new ActionStatusChangedEvent
func NewActionStatusChangedEvent(action *CrmAction, oldStatus ActionStatus) *ActionStatusChangedEvent {
	return &ActionStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeActionStatusChanged, AggregateTypeCrmAction, action.ID),
		ActionID:        action.ID,
		CustomerID:      action.CustomerID,
		SalespersonID:   action.SalespersonID,
		OldStatus:       oldStatus,
		NewStatus:       action.Status,
		CompletedAt:     action.CompletedAt,
	}
}

// ActionOverdueEvent is published when the sweep flips an action to overdue
type ActionOverdueEvent struct {
	shared.BaseDomainEvent
	ActionID      uuid.UUID    `json:"action_id"`
	CustomerID    uuid.UUID    `json:"customer_id"`
	SalespersonID uuid.UUID    `json:"salesperson_id"`
	OldStatus     ActionStatus `json:"old_status"`
	DueDate       time.Time    `json:"due_date"`
}

// NewActionOverdueEvent creates a new ActionOverdueEvent
func NewActionOverdueEvent(action *CrmAction, oldStatus ActionStatus) *ActionOverdueEvent {
	return &ActionOverdueEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeActionOverdue, AggregateTypeCrmAction, action.ID),
		ActionID:        action.ID,
		CustomerID:      action.CustomerID,
		SalespersonID:   action.SalespersonID,
		OldStatus:       oldStatus,
		DueDate:         *action.DueDate,
	}
}
