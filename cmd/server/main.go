package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	appcrm "github.com/clinic/backend/internal/application/crm"
	"github.com/clinic/backend/internal/domain/shared"
	"github.com/clinic/backend/internal/infrastructure/cache"
	"github.com/clinic/backend/internal/infrastructure/config"
	"github.com/clinic/backend/internal/infrastructure/event"
	"github.com/clinic/backend/internal/infrastructure/logger"
	"github.com/clinic/backend/internal/infrastructure/migration"
	"github.com/clinic/backend/internal/infrastructure/persistence"
	"github.com/clinic/backend/internal/infrastructure/phone"
	"github.com/clinic/backend/internal/infrastructure/scheduler"
	"github.com/clinic/backend/internal/infrastructure/telemetry"
	"github.com/clinic/backend/migrations"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	baseLog, err := logger.New(logger.OptionsFor(cfg.Log, cfg.App.Env))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = baseLog.Sync()
	}()

	ctx := context.Background()

	// Telemetry providers are no-ops unless telemetry is enabled
	otelProviders, err := telemetry.Setup(ctx, cfg.Telemetry, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	log := otelProviders.Bridge(baseLog, zapcore.InfoLevel)
	meter := otelProviders.Meter(telemetry.TracerName)

	log.Info("Starting CRM engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.Bool("telemetry", cfg.Telemetry.Enabled),
	)

	// Initialize database connection with zap-backed GORM logger
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
	)
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatal("Failed to access connection pool", zap.Error(err))
	}

	if cfg.Database.AutoMigrate {
		if err := migrateUp(&cfg.Database, log); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	tracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfigFrom(cfg.Telemetry), log)
	if err := tracing.RegisterOtelGorm(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, sqlDB, meter, log)
	if err != nil {
		log.Fatal("Failed to register database metrics", zap.Error(err))
	}
	defer dbMetrics.Stop()

	crmMetrics, err := telemetry.NewCRMMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create CRM metrics", zap.Error(err))
	}

	// Idempotency store backs both webhook dedup and handler dedup
	storeMode := cache.DegradeToMemory
	if cfg.App.Env == "production" {
		storeMode = cache.RequireRedis
	}
	store, err := cache.OpenIdempotencyStore(ctx, cfg.Redis, storeMode, log)
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	// Event codec and transactional outbox
	eventCodec := event.NewCRMEventCodec()
	outboxRepo := event.NewGormOutboxRepository(db.DB)

	scope := persistence.NewGormTransactionScope(db.DB, event.NewOutboxWriter(eventCodec))

	// Application services
	opts := []appcrm.Option{
		appcrm.WithSettings(appcrm.Settings{
			SweepBatchSize:       cfg.CRM.SweepBatchSize,
			ReferralCodeAttempts: cfg.CRM.ReferralCodeAttempts,
			ReferralMaxDepth:     cfg.CRM.ReferralMaxDepth,
			FollowUpDelay:        cfg.CRM.FollowUpDelay,
			CallbackDelay:        cfg.CRM.CallbackDelay,
			WebhookDedupTTL:      cfg.CRM.WebhookDedupTTL,
		}),
		appcrm.WithMetrics(crmMetrics),
	}
	svc := newServices(scope, store, cfg.CRM, log, opts...)

	// Event bus and handlers
	eventBus := event.NewInMemoryEventBus(log,
		event.WithKnownEventTypes(eventCodec.EventTypes()...),
		event.WithDispatchRecorder(crmMetrics),
	)
	automation := event.NewIdempotentHandler(
		appcrm.NewAutomationHandler(svc.Actions, svc.Lifecycle, log, opts...),
		store,
		log,
		event.WithHandlerName("crm_automation"),
		event.WithOutcomeRecorder(crmMetrics),
		event.WithIdempotencyConfig(shared.IdempotencyConfig{TTL: cfg.Event.IdempotencyTTL, Enabled: true}),
	)
	if err := eventBus.Subscribe(automation); err != nil {
		log.Fatal("Failed to subscribe automation handler", zap.Error(err))
	}
	log.Info("Event handlers registered", zap.Strings("crm_automation_events", automation.EventTypes()))

	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	// Outbox processor delivers committed events to the bus
	var outboxProcessor *event.OutboxProcessor
	if cfg.Event.ProcessorEnabled {
		processorConfig := event.OutboxProcessorConfigFrom(cfg.Event)
		outboxProcessor = event.NewOutboxProcessor(outboxRepo, eventBus, eventCodec, processorConfig, log)
		if err := outboxProcessor.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
		log.Info("Outbox processor started",
			zap.Int("batch_size", processorConfig.BatchSize),
			zap.Duration("poll_interval", processorConfig.PollInterval),
		)
	}

	// Overdue sweep
	sweepScheduler := scheduler.NewOverdueSweepScheduler(
		scheduler.OverdueSweepConfigFrom(cfg.CRM),
		svc.Actions,
		scheduler.NewSweepRunRepository(db.DB),
		log,
	)
	if err := sweepScheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start overdue sweep", zap.Error(err))
	}

	log.Info("CRM engine running", zap.Any("sweep", sweepScheduler.GetStatus()))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down CRM engine...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := sweepScheduler.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping overdue sweep", zap.Error(err))
	}
	if outboxProcessor != nil {
		if err := outboxProcessor.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping outbox processor", zap.Error(err))
		}
	}
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping event bus", zap.Error(err))
	}
	if err := otelProviders.Shutdown(shutdownCtx); err != nil {
		baseLog.Error("Error shutting down telemetry", zap.Error(err))
	}

	log.Info("CRM engine exited gracefully")
}

// services groups the CRM application services exposed by this process
type services struct {
	Attribution   *appcrm.AttributionService
	Actions       *appcrm.ActionService
	Lifecycle     *appcrm.CustomerLifecycleService
	Communication *appcrm.CommunicationService
	Referrals     *appcrm.ReferralService
	Leads         *appcrm.LeadIngestor
}

func newServices(scope appcrm.TransactionScope, store shared.IdempotencyStore, cfg config.CRMConfig, log *zap.Logger, opts ...appcrm.Option) *services {
	attribution := appcrm.NewAttributionService(scope, log, opts...)
	return &services{
		Attribution:   attribution,
		Actions:       appcrm.NewActionService(scope, log, opts...),
		Lifecycle:     appcrm.NewCustomerLifecycleService(scope, log, opts...),
		Communication: appcrm.NewCommunicationService(scope, phone.NewNormalizer(cfg.DefaultPhoneRegion), log, opts...),
		Referrals:     appcrm.NewReferralService(scope, log, opts...),
		Leads:         appcrm.NewLeadIngestor(attribution, store, log, opts...),
	}
}

// migrateUp applies the embedded schema migrations over a dedicated
// connection, which the migrator closes when done
func migrateUp(cfg *config.DatabaseConfig, log *zap.Logger) error {
	conn, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return err
	}
	m, err := migration.NewEmbedded(conn, migrations.FS, log)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Error closing migrator", zap.Error(err))
		}
	}()
	return m.Up()
}
