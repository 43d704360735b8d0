package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBMetrics records query latency and connection pool state.
type DBMetrics struct {
	queryDuration *Histogram
	queryErrors   *Counter
	registration  metric.Registration
	logger        *zap.Logger
}

// RegisterDBMetrics installs query timing hooks on db and observes the pool
// statistics of sqlDB on every collection.
func RegisterDBMetrics(db *gorm.DB, sqlDB *sql.DB, meter metric.Meter, logger *zap.Logger) (*DBMetrics, error) {
	duration, err := NewHistogram(meter, "db.query.duration", "Database query duration", "s", DBDurationBuckets...)
	if err != nil {
		return nil, err
	}
	queryErrors, err := NewCounter(meter, "db.query.errors", "Failed database queries", "{count}")
	if err != nil {
		return nil, err
	}

	open, err := meter.Int64ObservableGauge("db.pool.connections", metric.WithDescription("Connections by state"))
	if err != nil {
		return nil, fmt.Errorf("failed to create pool gauge: %w", err)
	}
	waits, err := meter.Int64ObservableCounter("db.pool.wait_count", metric.WithDescription("Connections waited for"))
	if err != nil {
		return nil, fmt.Errorf("failed to create wait counter: %w", err)
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := sqlDB.Stats()
		o.ObserveInt64(open, int64(stats.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
		o.ObserveInt64(open, int64(stats.Idle), metric.WithAttributes(AttrDBState.String("idle")))
		o.ObserveInt64(open, int64(stats.MaxOpenConnections), metric.WithAttributes(AttrDBState.String("max")))
		o.ObserveInt64(waits, stats.WaitCount)
		return nil
	}, open, waits)
	if err != nil {
		return nil, fmt.Errorf("failed to register pool callback: %w", err)
	}

	m := &DBMetrics{
		queryDuration: duration,
		queryErrors:   queryErrors,
		registration:  reg,
		logger:        logger,
	}
	if err := registerAround(db, "otel_metrics", m.onQueryDone); err != nil {
		_ = reg.Unregister()
		return nil, err
	}
	return m, nil
}

func (m *DBMetrics) onQueryDone(db *gorm.DB, op string, elapsed time.Duration) {
	ctx := db.Statement.Context
	table := db.Statement.Table
	m.queryDuration.RecordDuration(ctx, elapsed, AttrDBOperation.String(op), AttrDBTable.String(table))

	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		m.queryErrors.Inc(ctx, AttrDBOperation.String(op), AttrDBTable.String(table))
	}
}

// Stop unregisters the pool callback.
func (m *DBMetrics) Stop() {
	if err := m.registration.Unregister(); err != nil {
		m.logger.Warn("failed to unregister db pool metrics", zap.Error(err))
	}
}
