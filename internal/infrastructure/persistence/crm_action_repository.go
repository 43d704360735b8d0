package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/clinic/backend/internal/domain/crm"
	"github.com/clinic/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const entityCrmAction = "CrmAction"

// queueOrder sorts an action queue by priority (urgent first), then by due
// date with undated actions last
const queueOrder = "CASE priority WHEN 'urgent' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END DESC, " +
	"CASE WHEN due_date IS NULL THEN 1 ELSE 0 END, due_date ASC, created_at ASC"

// GormCrmActionRepository implements CrmActionRepository using GORM
type GormCrmActionRepository struct {
	db *gorm.DB
}

// NewGormCrmActionRepository creates a new GormCrmActionRepository
func NewGormCrmActionRepository(db *gorm.DB) *GormCrmActionRepository {
	return &GormCrmActionRepository{db: db}
}

// FindByID finds an action by its ID
func (r *GormCrmActionRepository) FindByID(ctx context.Context, id uuid.UUID) (*crm.CrmAction, error) {
	var model models.CrmActionModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, translateError(err, entityCrmAction, id)
	}
	return model.ToDomain(), nil
}

// Create inserts a new action
func (r *GormCrmActionRepository) Create(ctx context.Context, action *crm.CrmAction) error {
	model := models.CrmActionModelFromDomain(action)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateError(err, entityCrmAction, action.ID)
	}
	return nil
}

// SaveWithLock writes the state columns under the version check
func (r *GormCrmActionRepository) SaveWithLock(ctx context.Context, action *crm.CrmAction) error {
	model := models.CrmActionModelFromDomain(action)
	result := r.db.WithContext(ctx).
		Model(model).
		Select(models.CrmActionStateColumns).
		Where("id = ? AND version = ?", action.ID, action.Version-1).
		Updates(model)
	return optimisticLockResult(result, entityCrmAction, action.ID)
}

// FindOpenByCustomer lists a customer's open actions in queue order
func (r *GormCrmActionRepository) FindOpenByCustomer(ctx context.Context, customerID uuid.UUID) ([]crm.CrmAction, error) {
	return r.findOpen(ctx, "customer_id = ?", customerID)
}

// FindOpenBySalesperson lists a salesperson's open actions in queue order
func (r *GormCrmActionRepository) FindOpenBySalesperson(ctx context.Context, salespersonID uuid.UUID) ([]crm.CrmAction, error) {
	return r.findOpen(ctx, "salesperson_id = ?", salespersonID)
}

func (r *GormCrmActionRepository) findOpen(ctx context.Context, cond string, id uuid.UUID) ([]crm.CrmAction, error) {
	var rows []models.CrmActionModel
	err := r.db.WithContext(ctx).
		Where(cond, id).
		Where("status IN ?", crm.OpenActionStatuses()).
		Order(queueOrder).
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err, entityCrmAction, id)
	}
	return toCrmActions(rows), nil
}

// FindLatestByCustomer returns the customer's most recently created action in
// any status
func (r *GormCrmActionRepository) FindLatestByCustomer(ctx context.Context, customerID uuid.UUID) (*crm.CrmAction, error) {
	var model models.CrmActionModel
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Order("id DESC").
		First(&model).Error
	if err != nil {
		return nil, translateError(err, entityCrmAction, customerID)
	}
	return model.ToDomain(), nil
}

// FindOverdueCandidates lists sweepable actions due before now, oldest due first
func (r *GormCrmActionRepository) FindOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]crm.CrmAction, error) {
	var rows []models.CrmActionModel
	err := r.db.WithContext(ctx).
		Where("status IN ?", crm.SweepableActionStatuses()).
		Where("due_date IS NOT NULL AND due_date < ?", now.UTC()).
		Order("due_date ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err, entityCrmAction, "overdue")
	}
	return toCrmActions(rows), nil
}

// MarkOverdue flips one action to overdue only if it is still in a sweepable
// status. It returns false when a concurrent writer got there first.
func (r *GormCrmActionRepository) MarkOverdue(ctx context.Context, action *crm.CrmAction) (bool, error) {
	if action.Status != crm.ActionStatusOverdue {
		return false, errors.New("crm action: MarkOverdue called before the domain transition")
	}
	result := r.db.WithContext(ctx).
		Model(&models.CrmActionModel{}).
		Where("id = ? AND status IN ?", action.ID, crm.SweepableActionStatuses()).
		Updates(map[string]any{
			"status":     string(crm.ActionStatusOverdue),
			"version":    gorm.Expr("version + 1"),
			"updated_at": action.UpdatedAt.UTC(),
		})
	if result.Error != nil {
		return false, translateError(result.Error, entityCrmAction, action.ID)
	}
	return result.RowsAffected == 1, nil
}

func toCrmActions(rows []models.CrmActionModel) []crm.CrmAction {
	actions := make([]crm.CrmAction, len(rows))
	for i := range rows {
		actions[i] = *rows[i].ToDomain()
	}
	return actions
}

// Ensure GormCrmActionRepository implements CrmActionRepository
var _ crm.CrmActionRepository = (*GormCrmActionRepository)(nil)
