package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/clinic/backend/internal/domain/crm"
	"github.com/clinic/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const entityReferralNode = "ReferralNode"

// referralForestLockKey is the postgres advisory lock taken before a
// referrer link is written
const referralForestLockKey int64 = 0x5245464c

// GormReferralRepository implements ReferralRepository using GORM
type GormReferralRepository struct {
	db *gorm.DB
}

// NewGormReferralRepository creates a new GormReferralRepository
func NewGormReferralRepository(db *gorm.DB) *GormReferralRepository {
	return &GormReferralRepository{db: db}
}

// FindByUserID finds the node of a user
func (r *GormReferralRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*crm.ReferralNode, error) {
	var model models.ReferralNodeModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&model).Error; err != nil {
		return nil, translateError(err, entityReferralNode, userID)
	}
	return model.ToDomain(), nil
}

// FindByCode finds the node owning a referral code
func (r *GormReferralRepository) FindByCode(ctx context.Context, code string) (*crm.ReferralNode, error) {
	var model models.ReferralNodeModel
	if err := r.db.WithContext(ctx).Where("referral_code = ?", code).First(&model).Error; err != nil {
		return nil, translateError(err, entityReferralNode, code)
	}
	return model.ToDomain(), nil
}

// ExistsByCode reports whether any node holds the code
func (r *GormReferralRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ReferralNodeModel{}).
		Where("referral_code = ?", code).
		Count(&count).Error
	if err != nil {
		return false, translateError(err, entityReferralNode, code)
	}
	return count > 0, nil
}

// FindParentID returns the referrer of a user, or nil for a root or unknown user
func (r *GormReferralRepository) FindParentID(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error) {
	var model models.ReferralNodeModel
	err := r.db.WithContext(ctx).
		Select("referred_by_id").
		Where("user_id = ?", userID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translateError(err, entityReferralNode, userID)
	}
	return model.ReferredByID, nil
}

// LockForest takes a transaction scoped advisory lock on postgres. Other
// dialects rely on the database running one writer at a time.
func (r *GormReferralRepository) LockForest(ctx context.Context) error {
	if r.db.Dialector.Name() != "postgres" {
		return nil
	}
	err := r.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(?)", referralForestLockKey).Error
	if err != nil {
		return fmt.Errorf("lock referral forest: %w", err)
	}
	return nil
}

// Create inserts a new node. A taken user ID or code is ALREADY_EXISTS.
func (r *GormReferralRepository) Create(ctx context.Context, node *crm.ReferralNode) error {
	model := models.ReferralNodeModelFromDomain(node)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateError(err, entityReferralNode, node.UserID)
	}
	return nil
}

// SaveWithLock writes the code and referrer under the version check
func (r *GormReferralRepository) SaveWithLock(ctx context.Context, node *crm.ReferralNode) error {
	model := models.ReferralNodeModelFromDomain(node)
	result := r.db.WithContext(ctx).
		Model(model).
		Select(models.ReferralNodeColumns).
		Where("id = ? AND version = ?", node.ID, node.Version-1).
		Updates(model)
	return optimisticLockResult(result, entityReferralNode, node.ID)
}

// Ensure GormReferralRepository implements ReferralRepository
var _ crm.ReferralRepository = (*GormReferralRepository)(nil)
