package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/clinic/backend/internal/infrastructure/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultPingTimeout = 5 * time.Second

// Database owns the gorm handle the CRM repositories and the outbox share.
type Database struct {
	DB *gorm.DB
}

type databaseOptions struct {
	gorm        *gorm.Config
	pingTimeout time.Duration
}

// DatabaseOption adjusts how the connection is opened
type DatabaseOption func(*databaseOptions)

// WithGormLogger sets the gorm logger, typically the zap adapter from the logger package
func WithGormLogger(l logger.Interface) DatabaseOption {
	return func(o *databaseOptions) {
		o.gorm.Logger = l
	}
}

// WithPingTimeout bounds the startup connectivity check
func WithPingTimeout(d time.Duration) DatabaseOption {
	return func(o *databaseOptions) {
		o.pingTimeout = d
	}
}

// NewDatabase connects to postgres using cfg
func NewDatabase(cfg *config.DatabaseConfig, opts ...DatabaseOption) (*Database, error) {
	return NewDatabaseWithDialector(postgres.Open(cfg.DSN()), cfg, opts...)
}

// NewDatabaseWithDialector opens a connection through any gorm dialector,
// applies the pool settings from cfg (when non-nil) and checks the
// connection once. Tests use it with sqlmock or sqlite.
func NewDatabaseWithDialector(dialector gorm.Dialector, cfg *config.DatabaseConfig, opts ...DatabaseOption) (*Database, error) {
	o := &databaseOptions{
		gorm: &gorm.Config{
			Logger:                 logger.Default.LogMode(logger.Silent),
			SkipDefaultTransaction: true,
			TranslateError:         true,
			// pinged below, after the pool is configured
			DisableAutomaticPing: true,
			NowFunc: func() time.Time {
				return time.Now().UTC()
			},
		},
		pingTimeout: defaultPingTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	db, err := gorm.Open(dialector, o.gorm)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if cfg != nil {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
		sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{DB: db}, nil
}

// Close closes the connection pool
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}
