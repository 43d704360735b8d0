package crm

import (
	"time"

	"github.com/clinic/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Aggregate type constants
const (
	AggregateTypeAdCampaign    = "AdCampaign"
	AggregateTypeAdAttribution = "AdAttribution"
)

// Event type constants
const (
	EventTypeAdCampaignCreated    = "AdCampaignCreated"
	EventTypeAttributionCreated   = "AdAttributionCreated"
	EventTypeAttributionConverted = "AdAttributionConverted"
)

// AdCampaignCreatedEvent is published when a campaign is first seen
type AdCampaignCreatedEvent struct {
	shared.BaseDomainEvent
	CampaignID uuid.UUID `json:"campaign_id"`
	Platform   string    `json:"platform"`
	ExternalID string    `json:"external_id"`
}

// NewAdCampaignCreatedEvent creates a new AdCampaignCreatedEvent
func NewAdCampaignCreatedEvent(campaign *AdCampaign) *AdCampaignCreatedEvent {
	return &AdCampaignCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeAdCampaignCreated, AggregateTypeAdCampaign, campaign.ID),
		CampaignID:      campaign.ID,
		Platform:        campaign.Platform,
		ExternalID:      campaign.ExternalID,
	}
}

// AttributionCreatedEvent is published when a customer first touches a campaign
type AttributionCreatedEvent struct {
	shared.BaseDomainEvent
	AttributionID      uuid.UUID `json:"attribution_id"`
	CustomerRecordID   uuid.UUID `json:"customer_record_id"`
	CampaignID         uuid.UUID `json:"campaign_id"`
	FirstInteractionAt time.Time `json:"first_interaction_at"`
}

// NewAttributionCreatedEvent creates a new AttributionCreatedEvent
func NewAttributionCreatedEvent(attribution *AdAttribution) *AttributionCreatedEvent {
	return &AttributionCreatedEvent{
		BaseDomainEvent:    shared.NewBaseDomainEvent(EventTypeAttributionCreated, AggregateTypeAdAttribution, attribution.ID),
		AttributionID:      attribution.ID,
		CustomerRecordID:   attribution.CustomerRecordID,
		CampaignID:         attribution.AdCampaignID,
		FirstInteractionAt: attribution.FirstInteractionAt,
	}
}

// AttributionConvertedEvent is published when an attribution edge converts
type AttributionConvertedEvent struct {
	shared.BaseDomainEvent
	AttributionID    uuid.UUID `json:"attribution_id"`
	CustomerRecordID uuid.UUID `json:"customer_record_id"`
	CampaignID       uuid.UUID `json:"campaign_id"`
	ConvertedAt      time.Time `json:"converted_at"`
}

// NewAttributionConvertedEvent creates a new AttributionConvertedEvent
func NewAttributionConvertedEvent(attribution *AdAttribution) *AttributionConvertedEvent {
	return &AttributionConvertedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypeAttributionConverted, AggregateTypeAdAttribution, attribution.ID),
		AttributionID:    attribution.ID,
		CustomerRecordID: attribution.CustomerRecordID,
		CampaignID:       attribution.AdCampaignID,
		ConvertedAt:      *attribution.ConvertedAt,
	}
}
