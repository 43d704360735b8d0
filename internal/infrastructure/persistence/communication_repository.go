package persistence

import (
	"context"

	"github.com/clinic/backend/internal/domain/crm"
	"github.com/clinic/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const entityCommunication = "CommunicationEntry"

// GormCommunicationRepository implements CommunicationRepository using GORM.
// The log is append-only.
type GormCommunicationRepository struct {
	db *gorm.DB
}

// NewGormCommunicationRepository creates a new GormCommunicationRepository
func NewGormCommunicationRepository(db *gorm.DB) *GormCommunicationRepository {
	return &GormCommunicationRepository{db: db}
}

// Append inserts a new entry
func (r *GormCommunicationRepository) Append(ctx context.Context, entry *crm.CommunicationEntry) error {
	model := models.CommunicationEntryModelFromDomain(entry)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateError(err, entityCommunication, entry.ID)
	}
	return nil
}

// FindByID finds an entry by its ID
func (r *GormCommunicationRepository) FindByID(ctx context.Context, id uuid.UUID) (*crm.CommunicationEntry, error) {
	var model models.CommunicationEntryModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, translateError(err, entityCommunication, id)
	}
	return model.ToDomain(), nil
}

// FindByCustomerRecord returns up to limit entries, newest first
func (r *GormCommunicationRepository) FindByCustomerRecord(ctx context.Context, recordID uuid.UUID, limit int) ([]crm.CommunicationEntry, error) {
	var rows []models.CommunicationEntryModel
	err := r.db.WithContext(ctx).
		Where("customer_record_id = ?", recordID).
		Order("occurred_at DESC").
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err, entityCommunication, recordID)
	}

	entries := make([]crm.CommunicationEntry, len(rows))
	for i := range rows {
		entries[i] = *rows[i].ToDomain()
	}
	return entries, nil
}

// Ensure GormCommunicationRepository implements CommunicationRepository
var _ crm.CommunicationRepository = (*GormCommunicationRepository)(nil)
