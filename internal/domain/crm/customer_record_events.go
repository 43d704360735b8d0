package crm

import (
	"github.com/clinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Aggregate type constant
const AggregateTypeCustomerRecord = "CustomerRecord"

// Event type constants
const (
	EventTypeCustomerRecordCreated      = "CustomerRecordCreated"
	EventTypeCustomerStatusChanged      = "CustomerStatusChanged"
	EventTypeLifetimeValueChanged       = "CustomerLifetimeValueChanged"
	EventTypePrimaryAttributionAssigned = "CustomerPrimaryAttributionAssigned"
)

// CustomerRecordCreatedEvent is published when a customer record is first created
type CustomerRecordCreatedEvent struct {
	shared.BaseDomainEvent
	RecordID   uuid.UUID `json:"record_id"`
	CustomerID uuid.UUID `json:"customer_id"`
}

// NewCustomerRecordCreatedEvent creates a new CustomerRecordCreatedEvent
func NewCustomerRecordCreatedEvent(record *CustomerRecord) *CustomerRecordCreatedEvent {
	return &CustomerRecordCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCustomerRecordCreated, AggregateTypeCustomerRecord, record.ID),
		RecordID:        record.ID,
		CustomerID:      record.CustomerID,
	}
}

// CustomerStatusChangedEvent is published when a record moves between lifecycle statuses
type CustomerStatusChangedEvent struct {
	shared.BaseDomainEvent
	RecordID   uuid.UUID      `json:"record_id"`
	CustomerID uuid.UUID      `json:"customer_id"`
	OldStatus  CustomerStatus `json:"old_status"`
	NewStatus  CustomerStatus `json:"new_status"`
	Reason     string         `json:"reason"`
}

// NewCustomerStatusChangedEvent creates a new CustomerStatusChangedEvent
func NewCustomerStatusChangedEvent(record *CustomerRecord, oldStatus, newStatus CustomerStatus, reason string) *CustomerStatusChangedEvent {
	return &CustomerStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCustomerStatusChanged, AggregateTypeCustomerRecord, record.ID),
		RecordID:        record.ID,
		CustomerID:      record.CustomerID,
		OldStatus:       oldStatus,
		NewStatus:       newStatus,
		Reason:          reason,
	}
}

// LifetimeValueChangedEvent is published when a record's lifetime value changes
type LifetimeValueChangedEvent struct {
	shared.BaseDomainEvent
	RecordID   uuid.UUID       `json:"record_id"`
	CustomerID uuid.UUID       `json:"customer_id"`
	OldValue   decimal.Decimal `json:"old_value"`
	NewValue   decimal.Decimal `json:"new_value"`
	Reason     string          `json:"reason"`
}

// NewLifetimeValueChangedEvent creates a new LifetimeValueChangedEvent
func NewLifetimeValueChangedEvent(record *CustomerRecord, oldValue decimal.Decimal, reason string) *LifetimeValueChangedEvent {
	return &LifetimeValueChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeLifetimeValueChanged, AggregateTypeCustomerRecord, record.ID),
		RecordID:        record.ID,
		CustomerID:      record.CustomerID,
		OldValue:        oldValue,
		NewValue:        record.LifetimeValue,
		Reason:          reason,
	}
}

// PrimaryAttributionAssignedEvent is published when a record's first-touch
// attribution is fixed
type PrimaryAttributionAssignedEvent struct {
	shared.BaseDomainEvent
	RecordID      uuid.UUID `json:"record_id"`
	AttributionID uuid.UUID `json:"attribution_id"`
	CampaignID    uuid.UUID `json:"campaign_id"`
}

// NewPrimaryAttributionAssignedEvent creates a new PrimaryAttributionAssignedEvent
func NewPrimaryAttributionAssignedEvent(recordID uuid.UUID, attribution *AdAttribution) *PrimaryAttributionAssignedEvent {
	return &PrimaryAttributionAssignedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePrimaryAttributionAssigned, AggregateTypeCustomerRecord, recordID),
		RecordID:        recordID,
		AttributionID:   attribution.ID,
		CampaignID:      attribution.AdCampaignID,
	}
}
