package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds all application configuration. Keys follow the mapstructure
// tags, so database.max_open_conns is CRM_DATABASE_MAX_OPEN_CONNS in the
// environment.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	Event     EventConfig     `mapstructure:"event"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	CRM       CRMConfig       `mapstructure:"crm"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
	Output string `mapstructure:"output"` // stdout, stderr, or file path
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // minutes
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // minutes
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

// RedisConfig holds Redis connection settings. An empty Host selects the
// in-memory idempotency store.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type EventConfig struct {
	ProcessorEnabled bool          `mapstructure:"processor_enabled"`
	BatchSize        int           `mapstructure:"batch_size"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	MaxRetries       int           `mapstructure:"max_retries"`
	CleanupEnabled   bool          `mapstructure:"cleanup_enabled"`
	CleanupRetention time.Duration `mapstructure:"cleanup_retention"`
	IdempotencyTTL   time.Duration `mapstructure:"idempotency_ttl"`
}

// TelemetryConfig holds OpenTelemetry export and database tracing options
type TelemetryConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	CollectorEndpoint string        `mapstructure:"collector_endpoint"` // host:port of the OTLP gRPC collector
	SamplingRatio     float64       `mapstructure:"sampling_ratio"`
	ServiceName       string        `mapstructure:"service_name"`
	Insecure          bool          `mapstructure:"insecure"`
	MetricsInterval   time.Duration `mapstructure:"metrics_interval"`
	DBTraceEnabled    bool          `mapstructure:"db_trace_enabled"`
	DBLogFullSQL      bool          `mapstructure:"db_log_full_sql"` // never in production
	DBSlowQueryThresh time.Duration `mapstructure:"db_slow_query_threshold"`
}

// CRMConfig holds the tunables of the attribution and action engine
type CRMConfig struct {
	SweepEnabled         bool          `mapstructure:"sweep_enabled"`
	SweepSchedule        string        `mapstructure:"sweep_schedule"` // cron spec or @every descriptor
	SweepTimeout         time.Duration `mapstructure:"sweep_timeout"`
	SweepBatchSize       int           `mapstructure:"sweep_batch_size"`
	ReferralCodeAttempts int           `mapstructure:"referral_code_attempts"`
	ReferralMaxDepth     int           `mapstructure:"referral_max_depth"`
	DefaultPhoneRegion   string        `mapstructure:"default_phone_region"` // ISO 3166-1 alpha-2
	FollowUpDelay        time.Duration `mapstructure:"follow_up_delay"`
	CallbackDelay        time.Duration `mapstructure:"callback_delay"`
	WebhookDedupTTL      time.Duration `mapstructure:"webhook_dedup_ttl"`
}

// defaults lists every key. Unmarshal only consults the environment for keys
// viper already knows, so keys without a meaningful default are listed with
// their zero value.
var defaults = map[string]any{
	"app.name": "crm-engine",
	"app.env":  "development",

	"database.host":               "localhost",
	"database.port":               5432,
	"database.user":               "postgres",
	"database.password":           "",
	"database.dbname":             "crm",
	"database.sslmode":            "disable",
	"database.max_open_conns":     25,
	"database.max_idle_conns":     5,
	"database.conn_max_lifetime":  60,
	"database.conn_max_idle_time": 30,
	"database.auto_migrate":       false,

	"redis.host":     "",
	"redis.port":     6379,
	"redis.password": "",
	"redis.db":       0,

	"log.level":  "info",
	"log.format": "console",
	"log.output": "stdout",

	"event.processor_enabled": true,
	"event.batch_size":        100,
	"event.poll_interval":     5 * time.Second,
	"event.max_retries":       5,
	"event.cleanup_enabled":   true,
	"event.cleanup_retention": 7 * 24 * time.Hour,
	"event.idempotency_ttl":   24 * time.Hour,

	"telemetry.enabled":                 false,
	"telemetry.collector_endpoint":      "localhost:4317",
	"telemetry.sampling_ratio":          1.0,
	"telemetry.service_name":            "crm-engine",
	"telemetry.insecure":                false,
	"telemetry.metrics_interval":        time.Minute,
	"telemetry.db_trace_enabled":        false,
	"telemetry.db_log_full_sql":         false,
	"telemetry.db_slow_query_threshold": 200 * time.Millisecond,

	"crm.sweep_enabled":          true,
	"crm.sweep_schedule":         "@every 5m",
	"crm.sweep_timeout":          2 * time.Minute,
	"crm.sweep_batch_size":       500,
	"crm.referral_code_attempts": 10,
	"crm.referral_max_depth":     1000,
	"crm.default_phone_region":   "US",
	"crm.follow_up_delay":        72 * time.Hour,
	"crm.callback_delay":         2 * time.Hour,
	"crm.webhook_dedup_ttl":      24 * time.Hour,
}

// Load reads config.toml from the working directory or /app, then lets
// CRM_-prefixed environment variables override it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("CRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	db := c.Database
	switch {
	case db.MaxOpenConns <= 0:
		return fmt.Errorf("database.max_open_conns must be positive")
	case db.MaxIdleConns < 0:
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	case db.MaxIdleConns > db.MaxOpenConns:
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			db.MaxIdleConns, db.MaxOpenConns)
	}

	if c.App.Env == "production" {
		switch {
		case db.Password == "":
			return fmt.Errorf("database.password is required in production")
		case db.SSLMode == "disable":
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		case c.Telemetry.DBLogFullSQL:
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
	}

	if r := c.Telemetry.SamplingRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be within [0, 1], got %g", r)
	}

	crm := c.CRM
	if _, err := cron.ParseStandard(crm.SweepSchedule); err != nil {
		return fmt.Errorf("crm.sweep_schedule %q is invalid: %w", crm.SweepSchedule, err)
	}
	if crm.SweepBatchSize < 0 || crm.ReferralCodeAttempts < 0 || crm.ReferralMaxDepth < 0 {
		return fmt.Errorf("crm.sweep_batch_size, crm.referral_code_attempts and crm.referral_max_depth cannot be negative")
	}
	if len(crm.DefaultPhoneRegion) != 2 {
		return fmt.Errorf("crm.default_phone_region must be a two-letter region code, got %q", crm.DefaultPhoneRegion)
	}
	if crm.FollowUpDelay < 0 || crm.CallbackDelay < 0 {
		return fmt.Errorf("crm.follow_up_delay and crm.callback_delay cannot be negative")
	}
	return nil
}

// DSN returns a postgres URL with the credentials escaped
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}
