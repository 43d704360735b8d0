package event

import (
	"github.com/clinic/backend/internal/domain/crm"
	"github.com/clinic/backend/internal/domain/shared"
)

// NewCRMEventCodec returns a codec that knows every event the CRM aggregates raise.
func NewCRMEventCodec() *EventCodec {
	c := NewEventCodec()
	c.Register(crm.EventTypeCustomerRecordCreated, func() shared.DomainEvent { return &crm.CustomerRecordCreatedEvent{} })
	c.Register(crm.EventTypeCustomerStatusChanged, func() shared.DomainEvent { return &crm.CustomerStatusChangedEvent{} })
	c.Register(crm.EventTypeLifetimeValueChanged, func() shared.DomainEvent { return &crm.LifetimeValueChangedEvent{} })
	c.Register(crm.EventTypePrimaryAttributionAssigned, func() shared.DomainEvent { return &crm.PrimaryAttributionAssignedEvent{} })

	c.Register(crm.EventTypeAdCampaignCreated, func() shared.DomainEvent { return &crm.AdCampaignCreatedEvent{} })
	c.Register(crm.EventTypeAttributionCreated, func() shared.DomainEvent { return &crm.AttributionCreatedEvent{} })
	c.Register(crm.EventTypeAttributionConverted, func() shared.DomainEvent { return &crm.AttributionConvertedEvent{} })

	c.Register(crm.EventTypeActionCreated, func() shared.DomainEvent { return &crm.ActionCreatedEvent{} })
	c.Register(crm.EventTypeActionStatusChanged, func() shared.DomainEvent { return &crm.ActionStatusChangedEvent{} })
	c.Register(crm.EventTypeActionOverdue, func() shared.DomainEvent { return &crm.ActionOverdueEvent{} })

	c.Register(crm.EventTypeCommunicationRecorded, func() shared.DomainEvent { return &crm.CommunicationRecordedEvent{} })

	c.Register(crm.EventTypeReferralCodeIssued, func() shared.DomainEvent { return &crm.ReferralCodeIssuedEvent{} })
	c.Register(crm.EventTypeReferralApplied, func() shared.DomainEvent { return &crm.ReferralAppliedEvent{} })
	return c
}
