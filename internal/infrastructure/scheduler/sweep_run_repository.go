package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SweepRunStatus is the outcome of one sweep run
type SweepRunStatus string

const (
	SweepRunRunning SweepRunStatus = "running"
	SweepRunSuccess SweepRunStatus = "success"
	SweepRunFailed  SweepRunStatus = "failed"
)

// SweepRunRecord is the audit row of one overdue sweep
type SweepRunRecord struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Source      string         `gorm:"column:source;size:20;not null"`
	Status      SweepRunStatus `gorm:"column:status;size:20;not null"`
	Flipped     int            `gorm:"column:flipped;not null;default:0"`
	Error       string         `gorm:"column:error;type:text"`
	StartedAt   time.Time      `gorm:"column:started_at;not null"`
	CompletedAt *time.Time     `gorm:"column:completed_at"`
}

// TableName returns the table name for GORM
func (SweepRunRecord) TableName() string {
	return "sweep_runs"
}

// SweepRunRepository persists sweep run history
type SweepRunRepository struct {
	db *gorm.DB
}

// NewSweepRunRepository creates a new SweepRunRepository
func NewSweepRunRepository(db *gorm.DB) *SweepRunRepository {
	return &SweepRunRepository{db: db}
}

// RecordStart inserts a running record and returns its ID
func (r *SweepRunRepository) RecordStart(ctx context.Context, source string, at time.Time) (uuid.UUID, error) {
	record := &SweepRunRecord{
		ID:        uuid.New(),
		Source:    source,
		Status:    SweepRunRunning,
		StartedAt: at.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return uuid.Nil, err
	}
	return record.ID, nil
}

// RecordComplete closes a run with its outcome
func (r *SweepRunRepository) RecordComplete(ctx context.Context, id uuid.UUID, flipped int, runErr error) error {
	status := SweepRunSuccess
	errMsg := ""
	if runErr != nil {
		status = SweepRunFailed
		errMsg = runErr.Error()
	}
	return r.db.WithContext(ctx).
		Model(&SweepRunRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       status,
			"flipped":      flipped,
			"error":        errMsg,
			"completed_at": time.Now().UTC(),
		}).Error
}

// Latest returns the most recent run, or nil when none has happened
func (r *SweepRunRepository) Latest(ctx context.Context) (*SweepRunRecord, error) {
	var record SweepRunRecord
	err := r.db.WithContext(ctx).Order("started_at DESC").Limit(1).Find(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == uuid.Nil {
		return nil, nil
	}
	return &record, nil
}
