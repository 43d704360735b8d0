package crm

import (
	"strings"
	"time"

	"github.com/clinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Known ad platforms. Other platform names are accepted as-is.
const (
	PlatformFacebook  = "facebook"
	PlatformInstagram = "instagram"
	PlatformGoogle    = "google"
	PlatformTikTok    = "tiktok"
)

// CampaignRef identifies a campaign by the platform that hosts it and the
// platform's own ID for it
type CampaignRef struct {
	Platform   string
	ExternalID string
}

// Normalize lowercases the platform and trims both parts
func (r CampaignRef) Normalize() CampaignRef {
	return CampaignRef{
		Platform:   strings.ToLower(strings.TrimSpace(r.Platform)),
		ExternalID: strings.TrimSpace(r.ExternalID),
	}
}

// Validate checks that both parts are present
func (r CampaignRef) Validate() error {
	n := r.Normalize()
	if n.Platform == "" {
		return shared.NewValidationError("Campaign platform cannot be empty")
	}
	if n.ExternalID == "" {
		return shared.NewValidationError("Campaign external ID cannot be empty")
	}
	if len(n.Platform) > 50 {
		return shared.NewValidationError("Campaign platform cannot exceed 50 characters")
	}
	if len(n.ExternalID) > 255 {
		return shared.NewValidationError("Campaign external ID cannot exceed 255 characters")
	}
	return nil
}

// CampaignMetadata holds the recognised campaign options synced from the ad platform
type CampaignMetadata struct {
	Objective  string
	AdSetID    string
	CreativeID string
	UTMSource  string
}

// AdCampaign is an advertising campaign on an external platform.
// Platform and ExternalID never change after creation.
type AdCampaign struct {
	shared.BaseAggregateRoot
	Platform     string
	ExternalID   string
	OwnerAgentID *uuid.UUID
	Name         string
	Budget       decimal.Decimal
	StartDate    *time.Time
	EndDate      *time.Time
	Metadata     CampaignMetadata
}

// NewAdCampaign creates a campaign for the given platform reference.
// An empty name defaults to the external ID.
func NewAdCampaign(ref CampaignRef, name string) (*AdCampaign, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	ref = ref.Normalize()

	name = strings.TrimSpace(name)
	if name == "" {
		name = ref.ExternalID
	}
	if len(name) > 255 {
		return nil, shared.NewValidationError("Campaign name cannot exceed 255 characters")
	}

	campaign := &AdCampaign{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Platform:          ref.Platform,
		ExternalID:        ref.ExternalID,
		Name:              name,
		Budget:            decimal.Zero,
	}
	campaign.AddDomainEvent(NewAdCampaignCreatedEvent(campaign))
	return campaign, nil
}

// Ref returns the campaign's platform reference
func (c *AdCampaign) Ref() CampaignRef {
	return CampaignRef{Platform: c.Platform, ExternalID: c.ExternalID}
}

// CampaignDetails carries the mutable campaign fields
type CampaignDetails struct {
	Name         string
	OwnerAgentID *uuid.UUID
	Budget       decimal.Decimal
	StartDate    *time.Time
	EndDate      *time.Time
	Metadata     CampaignMetadata
}

// UpdateDetails replaces the mutable fields. Identity is untouched.
func (c *AdCampaign) UpdateDetails(details CampaignDetails) error {
	name := strings.TrimSpace(details.Name)
	if name == "" {
		name = c.Name
	}
	if len(name) > 255 {
		return shared.NewValidationError("Campaign name cannot exceed 255 characters")
	}
	if details.Budget.IsNegative() {
		return shared.NewValidationError("Campaign budget cannot be negative")
	}
	if details.StartDate != nil && details.EndDate != nil && details.EndDate.Before(*details.StartDate) {
		return shared.NewValidationError("Campaign end date cannot be before start date")
	}

	c.Name = name
	c.OwnerAgentID = details.OwnerAgentID
	c.Budget = details.Budget
	c.StartDate = details.StartDate
	c.EndDate = details.EndDate
	c.Metadata = details.Metadata
	c.MarkChanged()
	return nil
}

// IsActiveAt reports whether t falls inside the campaign's run dates.
// Open-ended dates are treated as unbounded.
func (c *AdCampaign) IsActiveAt(t time.Time) bool {
	if c.StartDate != nil && t.Before(*c.StartDate) {
		return false
	}
	if c.EndDate != nil && t.After(*c.EndDate) {
		return false
	}
	return true
}
