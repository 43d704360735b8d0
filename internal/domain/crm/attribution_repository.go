package crm

import (
	"context"

	"github.com/clinic/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// AdCampaignRepository defines persistence for ad campaigns
type AdCampaignRepository interface {
	// FindByID finds a campaign by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*AdCampaign, error)

	// FindByRef finds a campaign by platform and external ID
	FindByRef(ctx context.Context, ref CampaignRef) (*AdCampaign, error)

	// Ensure inserts the campaign unless one with the same (platform,
	// external_id) exists, then returns the stored campaign. Safe under
	// concurrent callers.
	Ensure(ctx context.Context, campaign *AdCampaign) (*AdCampaign, bool, error)

	// SaveWithLock updates a campaign guarded by its version
	SaveWithLock(ctx context.Context, campaign *AdCampaign) error

	// FindAll lists campaigns, optionally filtered by platform
	FindAll(ctx context.Context, platform string, page shared.PageQuery) ([]AdCampaign, int64, error)
}

// AdAttributionRepository defines persistence for attribution edges
type AdAttributionRepository interface {
	// FindByID finds an edge by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*AdAttribution, error)

	// FindByPair finds the edge for a record and campaign
	FindByPair(ctx context.Context, recordID, campaignID uuid.UUID) (*AdAttribution, error)

	// FindByCustomerRecord lists all edges of a record, earliest-created first
	FindByCustomerRecord(ctx context.Context, recordID uuid.UUID) ([]AdAttribution, error)

	// Touch records an interaction atomically. It inserts the candidate edge
	// when the pair is new, otherwise increments interaction_count and moves
	// last_interaction_at forward in a single statement. Returns true when the
	// candidate was inserted.
	Touch(ctx context.Context, candidate *AdAttribution) (bool, error)

	// SaveWithLock updates an edge guarded by its version
	SaveWithLock(ctx context.Context, attribution *AdAttribution) error
}
