package crm

import (
	"time"

	"github.com/clinic/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// InteractionKind is the kind of ad interaction that touched an attribution edge
type InteractionKind string

const (
	InteractionKindClick    InteractionKind = "click"
	InteractionKindLeadForm InteractionKind = "lead_form"
	InteractionKindMessage  InteractionKind = "message"
	InteractionKindCall     InteractionKind = "call"
)

// IsValid checks if the interaction kind is a known value
func (k InteractionKind) IsValid() bool {
	switch k {
	case InteractionKindClick, InteractionKindLeadForm, InteractionKindMessage, InteractionKindCall:
		return true
	}
	return false
}

// Interaction is one inbound touch of a campaign by a customer
type Interaction struct {
	At         time.Time
	Kind       InteractionKind
	LeadFormID *string
}

// Validate checks the interaction and applies the click default
func (i *Interaction) Validate() error {
	if i.At.IsZero() {
		return shared.NewValidationError("Interaction timestamp is required")
	}
	if i.Kind == "" {
		i.Kind = InteractionKindClick
	}
	if !i.Kind.IsValid() {
		return shared.NewValidationError("Invalid interaction kind: " + string(i.Kind))
	}
	if i.LeadFormID != nil && i.Kind != InteractionKindLeadForm {
		return shared.NewValidationError("Lead form ID is only recognised for lead_form interactions")
	}
	return nil
}

// AdAttribution links one customer record to one campaign.
// There is at most one edge per (record, campaign) pair; repeat interactions
// update it. FirstInteractionAt and ConvertedAt are write-once.
type AdAttribution struct {
	shared.BaseAggregateRoot
	CustomerRecordID    uuid.UUID
	AdCampaignID        uuid.UUID
	FirstInteractionAt  time.Time
	LastInteractionAt   time.Time
	InteractionCount    int
	LastInteractionKind InteractionKind
	LeadFormID          *string
	Converted           bool
	ConvertedAt         *time.Time
}

// NewAdAttribution creates the edge for a first interaction
func NewAdAttribution(recordID, campaignID uuid.UUID, interaction Interaction) (*AdAttribution, error) {
	if recordID == uuid.Nil || campaignID == uuid.Nil {
		return nil, shared.NewValidationError("Attribution requires a customer record and a campaign")
	}
	if err := interaction.Validate(); err != nil {
		return nil, err
	}

	return &AdAttribution{
		BaseAggregateRoot:   shared.NewBaseAggregateRoot(),
		CustomerRecordID:    recordID,
		AdCampaignID:        campaignID,
		FirstInteractionAt:  interaction.At,
		LastInteractionAt:   interaction.At,
		InteractionCount:    1,
		LastInteractionKind: interaction.Kind,
		LeadFormID:          interaction.LeadFormID,
	}, nil
}

// MarkConverted flips the edge to converted at the given time.
// Returns false when it was already converted; the original timestamp stays.
func (a *AdAttribution) MarkConverted(at time.Time) bool {
	if a.Converted {
		return false
	}
	if at.IsZero() {
		at = time.Now()
	}
	a.Converted = true
	a.ConvertedAt = &at
	a.MarkChanged()
	a.AddDomainEvent(NewAttributionConvertedEvent(a))
	return true
}
