package crm

import (
	"context"

	"github.com/google/uuid"
)

// ReferralRepository defines persistence for the referral forest
type ReferralRepository interface {
	// FindByUserID finds the node of a user
	FindByUserID(ctx context.Context, userID uuid.UUID) (*ReferralNode, error)

	// FindByCode finds the node owning a referral code
	FindByCode(ctx context.Context, code string) (*ReferralNode, error)

	// ExistsByCode checks whether a referral code is taken
	ExistsByCode(ctx context.Context, code string) (bool, error)

	// FindParentID returns the referrer of a user, nil when the user is a root
	// or has no node
	FindParentID(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error)

	// LockForest serialises referrer link changes until the surrounding
	// transaction ends, so two cycle checks cannot pass on stale chains
	LockForest(ctx context.Context) error

	// Create inserts a new node. Returns shared.ErrAlreadyExists on a unique
	// violation of user_id or referral_code.
	Create(ctx context.Context, node *ReferralNode) error

	// SaveWithLock updates a node guarded by its version. Returns
	// shared.ErrAlreadyExists on a referral_code collision.
	SaveWithLock(ctx context.Context, node *ReferralNode) error
}
