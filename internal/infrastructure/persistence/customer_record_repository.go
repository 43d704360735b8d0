package persistence

import (
	"context"

	"github.com/clinic/backend/internal/domain/crm"
	"github.com/clinic/backend/internal/domain/shared"
	"github.com/clinic/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const entityCustomerRecord = "CustomerRecord"

// GormCustomerRecordRepository implements CustomerRecordRepository using GORM
type GormCustomerRecordRepository struct {
	db *gorm.DB
}

// NewGormCustomerRecordRepository creates a new GormCustomerRecordRepository
func NewGormCustomerRecordRepository(db *gorm.DB) *GormCustomerRecordRepository {
	return &GormCustomerRecordRepository{db: db}
}

// FindByID finds a record by its ID
func (r *GormCustomerRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*crm.CustomerRecord, error) {
	var model models.CustomerRecordModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, translateError(err, entityCustomerRecord, id)
	}
	return model.ToDomain(), nil
}

// FindByCustomerID finds the record owned by a user
func (r *GormCustomerRecordRepository) FindByCustomerID(ctx context.Context, customerID uuid.UUID) (*crm.CustomerRecord, error) {
	var model models.CustomerRecordModel
	if err := r.db.WithContext(ctx).Where("customer_id = ?", customerID).First(&model).Error; err != nil {
		return nil, translateError(err, entityCustomerRecord, customerID)
	}
	return model.ToDomain(), nil
}

// Create inserts a new record. A record that already exists for the user is
// reported as ALREADY_EXISTS without failing the surrounding transaction.
func (r *GormCustomerRecordRepository) Create(ctx context.Context, record *crm.CustomerRecord) error {
	model := models.CustomerRecordModelFromDomain(record)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "customer_id"}}, DoNothing: true}).
		Create(model)
	if result.Error != nil {
		return translateError(result.Error, entityCustomerRecord, record.CustomerID)
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError(shared.CodeAlreadyExists, "Customer record already exists")
	}
	return nil
}

// SaveWithLock writes the lifecycle columns if the stored version is the one
// the record was loaded with
func (r *GormCustomerRecordRepository) SaveWithLock(ctx context.Context, record *crm.CustomerRecord) error {
	model := models.CustomerRecordModelFromDomain(record)
	result := r.db.WithContext(ctx).
		Model(model).
		Select(models.CustomerRecordLifecycleColumns).
		Where("id = ? AND version = ?", record.ID, record.Version-1).
		Updates(model)
	return optimisticLockResult(result, entityCustomerRecord, record.ID)
}

// AssignPrimaryAttribution sets ad_attribution_id only while it is unset
func (r *GormCustomerRecordRepository) AssignPrimaryAttribution(ctx context.Context, recordID, attributionID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CustomerRecordModel{}).
		Where("id = ? AND ad_attribution_id IS NULL", recordID).
		Update("ad_attribution_id", attributionID)
	if result.Error != nil {
		return false, translateError(result.Error, entityCustomerRecord, recordID)
	}
	return result.RowsAffected == 1, nil
}

// AssignFacebookCampaign sets facebook_campaign_id only while it is unset
func (r *GormCustomerRecordRepository) AssignFacebookCampaign(ctx context.Context, recordID uuid.UUID, externalID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CustomerRecordModel{}).
		Where("id = ? AND facebook_campaign_id IS NULL", recordID).
		Update("facebook_campaign_id", externalID)
	if result.Error != nil {
		return false, translateError(result.Error, entityCustomerRecord, recordID)
	}
	return result.RowsAffected == 1, nil
}

// Ensure GormCustomerRecordRepository implements CustomerRecordRepository
var _ crm.CustomerRecordRepository = (*GormCustomerRecordRepository)(nil)
