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

const entityAdCampaign = "AdCampaign"

// GormAdCampaignRepository implements AdCampaignRepository using GORM
type GormAdCampaignRepository struct {
	db *gorm.DB
}

// NewGormAdCampaignRepository creates a new GormAdCampaignRepository
func NewGormAdCampaignRepository(db *gorm.DB) *GormAdCampaignRepository {
	return &GormAdCampaignRepository{db: db}
}

// FindByID finds a campaign by its ID
func (r *GormAdCampaignRepository) FindByID(ctx context.Context, id uuid.UUID) (*crm.AdCampaign, error) {
	var model models.AdCampaignModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, translateError(err, entityAdCampaign, id)
	}
	return model.ToDomain(), nil
}

// FindByRef finds a campaign by platform and external ID
func (r *GormAdCampaignRepository) FindByRef(ctx context.Context, ref crm.CampaignRef) (*crm.AdCampaign, error) {
	var model models.AdCampaignModel
	err := r.db.WithContext(ctx).
		Where("platform = ? AND external_id = ?", ref.Platform, ref.ExternalID).
		First(&model).Error
	if err != nil {
		return nil, translateError(err, entityAdCampaign, ref.Platform+"/"+ref.ExternalID)
	}
	return model.ToDomain(), nil
}

// Ensure inserts the campaign unless its (platform, external_id) is taken,
// then returns the stored campaign. The boolean is true when this call
// inserted it.
func (r *GormAdCampaignRepository) Ensure(ctx context.Context, campaign *crm.AdCampaign) (*crm.AdCampaign, bool, error) {
	model := models.AdCampaignModelFromDomain(campaign)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "platform"}, {Name: "external_id"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		return nil, false, translateError(result.Error, entityAdCampaign, campaign.ExternalID)
	}
	if result.RowsAffected == 1 {
		return campaign, true, nil
	}

	existing, err := r.FindByRef(ctx, campaign.Ref())
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// SaveWithLock writes the mutable campaign columns under the version check
func (r *GormAdCampaignRepository) SaveWithLock(ctx context.Context, campaign *crm.AdCampaign) error {
	model := models.AdCampaignModelFromDomain(campaign)
	result := r.db.WithContext(ctx).
		Model(model).
		Select(models.AdCampaignDetailColumns).
		Where("id = ? AND version = ?", campaign.ID, campaign.Version-1).
		Updates(model)
	return optimisticLockResult(result, entityAdCampaign, campaign.ID)
}

// FindAll lists campaigns in the page's order (newest first by default),
// optionally filtered by platform
func (r *GormAdCampaignRepository) FindAll(ctx context.Context, platform string, page shared.PageQuery) ([]crm.AdCampaign, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.AdCampaignModel{})
	if platform != "" {
		query = query.Where("platform = ?", platform)
	}
	if page.Search != "" {
		like := "%" + page.Search + "%"
		query = query.Where("name LIKE ? OR external_id LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translateError(err, entityAdCampaign, "list")
	}

	var rows []models.AdCampaignModel
	err := query.
		Order(campaignSort.Clause(page.SortBy, page.SortDir)).
		Order("id").
		Offset(page.Offset()).
		Limit(page.Size).
		Find(&rows).Error
	if err != nil {
		return nil, 0, translateError(err, entityAdCampaign, "list")
	}

	campaigns := make([]crm.AdCampaign, len(rows))
	for i := range rows {
		campaigns[i] = *rows[i].ToDomain()
	}
	return campaigns, total, nil
}

// Ensure GormAdCampaignRepository implements AdCampaignRepository
var _ crm.AdCampaignRepository = (*GormAdCampaignRepository)(nil)
