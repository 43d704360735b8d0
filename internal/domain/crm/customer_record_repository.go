package crm

import (
	"context"

	"github.com/google/uuid"
)

// CustomerRecordRepository defines persistence for customer records
type CustomerRecordRepository interface {
	// FindByID finds a record by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*CustomerRecord, error)

	// FindByCustomerID finds the record owned by a user
	FindByCustomerID(ctx context.Context, customerID uuid.UUID) (*CustomerRecord, error)

	// Create inserts a new record. Returns shared.ErrAlreadyExists when the
	// user already has one.
	Create(ctx context.Context, record *CustomerRecord) error

	// SaveWithLock updates a record guarded by its version
	SaveWithLock(ctx context.Context, record *CustomerRecord) error

	// AssignPrimaryAttribution sets ad_attribution_id only while it is unset.
	// Returns true if this call set it.
	AssignPrimaryAttribution(ctx context.Context, recordID, attributionID uuid.UUID) (bool, error)

	// AssignFacebookCampaign sets facebook_campaign_id only while it is unset
	AssignFacebookCampaign(ctx context.Context, recordID uuid.UUID, externalID string) (bool, error)
}
