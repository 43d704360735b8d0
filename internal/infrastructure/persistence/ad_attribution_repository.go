package persistence

import (
	"context"
	"time"

	"github.com/clinic/backend/internal/domain/crm"
	"github.com/clinic/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const entityAdAttribution = "AdAttribution"

// GormAdAttributionRepository implements AdAttributionRepository using GORM
type GormAdAttributionRepository struct {
	db *gorm.DB
}

// NewGormAdAttributionRepository creates a new GormAdAttributionRepository
func NewGormAdAttributionRepository(db *gorm.DB) *GormAdAttributionRepository {
	return &GormAdAttributionRepository{db: db}
}

// FindByID finds an edge by its ID
func (r *GormAdAttributionRepository) FindByID(ctx context.Context, id uuid.UUID) (*crm.AdAttribution, error) {
	var model models.AdAttributionModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, translateError(err, entityAdAttribution, id)
	}
	return model.ToDomain(), nil
}

// FindByPair finds the edge between a record and a campaign
func (r *GormAdAttributionRepository) FindByPair(ctx context.Context, recordID, campaignID uuid.UUID) (*crm.AdAttribution, error) {
	var model models.AdAttributionModel
	err := r.db.WithContext(ctx).
		Where("customer_record_id = ? AND ad_campaign_id = ?", recordID, campaignID).
		First(&model).Error
	if err != nil {
		return nil, translateError(err, entityAdAttribution, recordID.String()+"/"+campaignID.String())
	}
	return model.ToDomain(), nil
}

// FindByCustomerRecord lists all edges of a record, earliest-created first
func (r *GormAdAttributionRepository) FindByCustomerRecord(ctx context.Context, recordID uuid.UUID) ([]crm.AdAttribution, error) {
	var rows []models.AdAttributionModel
	err := r.db.WithContext(ctx).
		Where("customer_record_id = ?", recordID).
		Order("created_at ASC").
		Order("first_interaction_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err, entityAdAttribution, recordID)
	}

	edges := make([]crm.AdAttribution, len(rows))
	for i := range rows {
		edges[i] = *rows[i].ToDomain()
	}
	return edges, nil
}

// Touch inserts the candidate edge or, when the pair already exists, bumps
// the stored edge in one statement: interaction_count + 1 and
// last_interaction_at moved forward only. first_interaction_at is never
// touched on the update path.
func (r *GormAdAttributionRepository) Touch(ctx context.Context, candidate *crm.AdAttribution) (bool, error) {
	model := models.AdAttributionModelFromDomain(candidate)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "customer_record_id"}, {Name: "ad_campaign_id"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		return false, translateError(result.Error, entityAdAttribution, candidate.ID)
	}
	if result.RowsAffected == 1 {
		return true, nil
	}

	at := candidate.LastInteractionAt.UTC()
	updates := map[string]any{
		"interaction_count":     gorm.Expr("interaction_count + 1"),
		"last_interaction_at":   gorm.Expr("CASE WHEN last_interaction_at < ? THEN ? ELSE last_interaction_at END", at, at),
		"last_interaction_kind": gorm.Expr("CASE WHEN last_interaction_at <= ? THEN ? ELSE last_interaction_kind END", at, string(candidate.LastInteractionKind)),
		"version":               gorm.Expr("version + 1"),
		"updated_at":            time.Now().UTC(),
	}
	if candidate.LeadFormID != nil {
		updates["lead_form_id"] = *candidate.LeadFormID
	}

	result = r.db.WithContext(ctx).
		Model(&models.AdAttributionModel{}).
		Where("customer_record_id = ? AND ad_campaign_id = ?", candidate.CustomerRecordID, candidate.AdCampaignID).
		Updates(updates)
	if result.Error != nil {
		return false, translateError(result.Error, entityAdAttribution, candidate.ID)
	}
	return false, nil
}

// SaveWithLock writes the conversion columns under the version check
func (r *GormAdAttributionRepository) SaveWithLock(ctx context.Context, attribution *crm.AdAttribution) error {
	model := models.AdAttributionModelFromDomain(attribution)
	result := r.db.WithContext(ctx).
		Model(model).
		Select("converted", "converted_at", "version", "updated_at").
		Where("id = ? AND version = ?", attribution.ID, attribution.Version-1).
		Updates(model)
	return optimisticLockResult(result, entityAdAttribution, attribution.ID)
}

// Ensure GormAdAttributionRepository implements AdAttributionRepository
var _ crm.AdAttributionRepository = (*GormAdAttributionRepository)(nil)
