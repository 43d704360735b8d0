package crm

import (
	"strings"
	"time"

	"github.com/clinic/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// CommunicationType is the channel of a contact
type CommunicationType string

const (
	CommunicationTypePhoneCall CommunicationType = "phone_call"
	CommunicationTypeSMS       CommunicationType = "sms"
	CommunicationTypeEmail     CommunicationType = "email"
	CommunicationTypeWhatsApp  CommunicationType = "whatsapp"
	CommunicationTypeInPerson  CommunicationType = "in_person"
)

// IsValid checks if the communication type is a known value
func (t CommunicationType) IsValid() bool {
	switch t {
	case CommunicationTypePhoneCall, CommunicationTypeSMS, CommunicationTypeEmail,
		CommunicationTypeWhatsApp, CommunicationTypeInPerson:
		return true
	}
	return false
}

// UsesPhoneNumber returns true for channels addressed by a phone number
func (t CommunicationType) UsesPhoneNumber() bool {
	return t == CommunicationTypePhoneCall || t == CommunicationTypeSMS || t == CommunicationTypeWhatsApp
}

// CommunicationDirection tells who initiated a contact
type CommunicationDirection string

const (
	CommunicationDirectionInbound  CommunicationDirection = "inbound"
	CommunicationDirectionOutbound CommunicationDirection = "outbound"
)

// IsValid checks if the direction is a known value
func (d CommunicationDirection) IsValid() bool {
	return d == CommunicationDirectionInbound || d == CommunicationDirectionOutbound
}

// CommunicationStatus is how a contact attempt ended
type CommunicationStatus string

const (
	CommunicationStatusCompleted CommunicationStatus = "completed"
	CommunicationStatusMissed    CommunicationStatus = "missed"
	CommunicationStatusNoAnswer  CommunicationStatus = "no_answer"
	CommunicationStatusFailed    CommunicationStatus = "failed"
	CommunicationStatusVoicemail CommunicationStatus = "voicemail"
)

// IsValid checks if the status is a known value
func (s CommunicationStatus) IsValid() bool {
	switch s {
	case CommunicationStatusCompleted, CommunicationStatusMissed, CommunicationStatusNoAnswer,
		CommunicationStatusFailed, CommunicationStatusVoicemail:
		return true
	}
	return false
}

// IsUnanswered returns true for missed and no_answer
func (s CommunicationStatus) IsUnanswered() bool {
	return s == CommunicationStatusMissed || s == CommunicationStatusNoAnswer
}

// CommunicationEntry is one immutable line of the communication log.
// Entries are appended and never edited or deleted.
type CommunicationEntry struct {
	shared.BaseAggregateRoot
	CustomerRecordID uuid.UUID
	CustomerID       uuid.UUID
	Type             CommunicationType
	Direction        CommunicationDirection
	Status           CommunicationStatus
	Outcome          string
	Notes            string
	SalespersonID    *uuid.UUID
	ContactAddress   string
	OccurredAt       time.Time
}

// NewCommunicationParams holds the fields of a contact to log
type NewCommunicationParams struct {
	Type           CommunicationType
	Direction      CommunicationDirection
	Status         CommunicationStatus
	Outcome        string
	Notes          string
	SalespersonID  *uuid.UUID
	ContactAddress string
	OccurredAt     time.Time
}

// NewCommunicationEntry creates a log entry for a customer record
func NewCommunicationEntry(record *CustomerRecord, params NewCommunicationParams) (*CommunicationEntry, error) {
	if record == nil {
		return nil, shared.NewValidationError("Communication requires a customer record")
	}
	if !params.Type.IsValid() {
		return nil, shared.NewValidationError("Invalid communication type: " + string(params.Type))
	}
	if !params.Direction.IsValid() {
		return nil, shared.NewValidationError("Invalid communication direction: " + string(params.Direction))
	}
	if !params.Status.IsValid() {
		return nil, shared.NewValidationError("Invalid communication status: " + string(params.Status))
	}
	if len(params.Outcome) > 255 {
		return nil, shared.NewValidationError("Communication outcome cannot exceed 255 characters")
	}

	occurredAt := params.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	entry := &CommunicationEntry{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		CustomerRecordID:  record.ID,
		CustomerID:        record.CustomerID,
		Type:              params.Type,
		Direction:         params.Direction,
		Status:            params.Status,
		Outcome:           strings.TrimSpace(params.Outcome),
		Notes:             strings.TrimSpace(params.Notes),
		SalespersonID:     params.SalespersonID,
		ContactAddress:    strings.TrimSpace(params.ContactAddress),
		OccurredAt:        occurredAt,
	}
	entry.AddDomainEvent(NewCommunicationRecordedEvent(entry))
	return entry, nil
}

// IsMissedInboundCall reports whether the customer called and nobody picked up
func (e *CommunicationEntry) IsMissedInboundCall() bool {
	return e.Type == CommunicationTypePhoneCall &&
		e.Direction == CommunicationDirectionInbound &&
		e.Status.IsUnanswered()
}

// IsCustomerActivity reports whether the entry shows the customer engaging:
// an inbound contact that went through
func (e *CommunicationEntry) IsCustomerActivity() bool {
	return e.Direction == CommunicationDirectionInbound && e.Status == CommunicationStatusCompleted
}

// CountTrailingUnanswered counts the consecutive unanswered entries at the
// head of a newest-first history
func CountTrailingUnanswered(newestFirst []CommunicationEntry) int {
	count := 0
	for _, e := range newestFirst {
		if !e.Status.IsUnanswered() {
			break
		}
		count++
	}
	return count
}

// Aggregate type constant
const AggregateTypeCommunication = "Communication"

// Event type constant
const EventTypeCommunicationRecorded = "CommunicationRecorded"

// CommunicationRecordedEvent is published for every appended log entry
type CommunicationRecordedEvent struct {
	shared.BaseDomainEvent
	EntryID          uuid.UUID              `json:"entry_id"`
	CustomerRecordID uuid.UUID              `json:"customer_record_id"`
	CustomerID       uuid.UUID              `json:"customer_id"`
	Channel          CommunicationType      `json:"channel"`
	Direction        CommunicationDirection `json:"direction"`
	Status           CommunicationStatus    `json:"status"`
	SalespersonID    *uuid.UUID             `json:"salesperson_id,omitempty"`
	ContactAt        time.Time              `json:"contact_at"`
}

// NewCommunicationRecordedEvent creates a new CommunicationRecordedEvent
func NewCommunicationRecordedEvent(entry *CommunicationEntry) *CommunicationRecordedEvent {
	return &CommunicationRecordedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypeCommunicationRecorded, AggregateTypeCommunication, entry.ID),
		EntryID:          entry.ID,
		CustomerRecordID: entry.CustomerRecordID,
		CustomerID:       entry.CustomerID,
		Channel:          entry.Type,
		Direction:        entry.Direction,
		Status:           entry.Status,
		SalespersonID:    entry.SalespersonID,
		ContactAt:        entry.OccurredAt,
	}
}

// IsMissedInboundCall mirrors CommunicationEntry.IsMissedInboundCall for event consumers
func (e *CommunicationRecordedEvent) IsMissedInboundCall() bool {
	return e.Channel == CommunicationTypePhoneCall &&
		e.Direction == CommunicationDirectionInbound &&
		e.Status.IsUnanswered()
}

// IsCustomerActivity mirrors CommunicationEntry.IsCustomerActivity for event consumers
func (e *CommunicationRecordedEvent) IsCustomerActivity() bool {
	return e.Direction == CommunicationDirectionInbound && e.Status == CommunicationStatusCompleted
}
