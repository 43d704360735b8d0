package telemetry

import (
	"fmt"
	"time"

	"github.com/clinic/backend/internal/infrastructure/config"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool          // include bound variables in spans (dev only)
	SlowQueryThresh time.Duration // default: 200ms
	DBSystem        string        // default: "postgresql"
}

// DBTracingConfigFrom maps the telemetry section of the application config.
func DBTracingConfigFrom(cfg config.TelemetryConfig) DBTracingConfig {
	c := DefaultDBTracingConfig()
	c.Enabled = cfg.Enabled && cfg.DBTraceEnabled
	c.LogFullSQL = cfg.DBLogFullSQL
	if cfg.DBSlowQueryThresh > 0 {
		c.SlowQueryThresh = cfg.DBSlowQueryThresh
	}
	return c
}

// DefaultDBTracingConfig returns default configuration for database tracing.
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "postgresql",
	}
}

type gormRegistrar interface {
	Register(name string, fn func(*gorm.DB)) error
}

// timingHook is the start/done pair for one gorm processor. Both sit inside
// otelgorm's own hooks, so the statement span is still open when done runs.
type timingHook struct {
	op          string
	start, done gormRegistrar
}

func timingHooks(db *gorm.DB) []timingHook {
	cb := db.Callback()
	return []timingHook{
		{"create", cb.Create().After("otel:before:create").Before("gorm:create"), cb.Create().After("gorm:create").Before("otel:after:create")},
		{"query", cb.Query().After("otel:before:select").Before("gorm:query"), cb.Query().After("gorm:query").Before("otel:after:select")},
		{"update", cb.Update().After("otel:before:update").Before("gorm:update"), cb.Update().After("gorm:update").Before("otel:after:update")},
		{"delete", cb.Delete().After("otel:before:delete").Before("gorm:delete"), cb.Delete().After("gorm:delete").Before("otel:after:delete")},
		{"row", cb.Row().After("otel:before:row").Before("gorm:row"), cb.Row().After("gorm:row").Before("otel:after:row")},
		{"raw", cb.Raw().After("otel:before:raw").Before("gorm:raw"), cb.Raw().After("gorm:raw").Before("otel:after:raw")},
	}
}

// queryStartSetting is kept in the statement's instance settings; otelgorm
// swaps Statement.Context back to the parent when its span ends.
const queryStartSetting = "crm:query_start"

func (p *DBTracingPlugin) registerTimingHooks(db *gorm.DB) error {
	stamp := func(db *gorm.DB) {
		db.InstanceSet(queryStartSetting, time.Now())
	}
	for _, h := range timingHooks(db) {
		op := h.op
		done := func(db *gorm.DB) {
			v, ok := db.InstanceGet(queryStartSetting)
			if !ok {
				return
			}
			if start, ok := v.(time.Time); ok {
				p.onQueryDone(db, op, time.Since(start))
			}
		}
		if err := h.start.Register("crm:query_start_"+op, stamp); err != nil {
			return fmt.Errorf("register %s start hook: %w", op, err)
		}
		if err := h.done.Register("crm:query_done_"+op, done); err != nil {
			return fmt.Errorf("register %s done hook: %w", op, err)
		}
	}
	return nil
}

// DBTracingPlugin wraps the otelgorm plugin with slow query detection.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin creates a new database tracing plugin.
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	return &DBTracingPlugin{config: cfg, logger: logger}
}

// RegisterOtelGorm installs otelgorm and the slow query hooks on db.
func (p *DBTracingPlugin) RegisterOtelGorm(db *gorm.DB) error {
	if !p.config.Enabled {
		p.logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBSystem)}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	if err := p.registerTimingHooks(db); err != nil {
		return err
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
	)
	return nil
}

// onQueryDone flags slow statements on the active span and in the log.
func (p *DBTracingPlugin) onQueryDone(db *gorm.DB, op string, elapsed time.Duration) {
	if p.config.SlowQueryThresh <= 0 || elapsed < p.config.SlowQueryThresh {
		return
	}

	span := trace.SpanFromContext(db.Statement.Context)
	span.SetAttributes(
		attribute.Bool("db.slow_query", true),
		attribute.Int64("db.duration_ms", elapsed.Milliseconds()),
	)

	p.logger.Warn("slow query",
		zap.String("operation", op),
		zap.String("table", db.Statement.Table),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", db.Statement.RowsAffected),
		zap.String("trace_id", GetTraceID(db.Statement.Context)),
	)
}
