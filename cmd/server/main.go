package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appcrmsync "github.com/storefront/backend/internal/application/crmsync"
	apppayment "github.com/storefront/backend/internal/application/payment"
	"github.com/storefront/backend/internal/domain/crmsync"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/infrastructure/auth"
	"github.com/storefront/backend/internal/infrastructure/cache"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/crm"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/infrastructure/notify"
	infrapayment "github.com/storefront/backend/internal/infrastructure/payment"
	"github.com/storefront/backend/internal/infrastructure/persistence"
	"github.com/storefront/backend/internal/infrastructure/scheduler"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
	"github.com/storefront/backend/internal/interfaces/http/handler"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
	"github.com/storefront/backend/internal/interfaces/http/router"
)

//	@title			Storefront Backend API
//	@version		1.0
//	@description	Payment webhook, order fulfillment and CRM sync administration

//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Admin bearer token. Format: "Bearer {token}"

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	// Telemetry goes first so every later component gets the global providers.
	providers, err := telemetry.Setup(context.Background(), cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		_ = providers.Shutdown(context.Background())
	}()
	log = log.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, providers.ZapCore(core))
	}))

	log.Info("Starting storefront backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Database.SlowQueryThresh))
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if providers.Enabled() {
		if err := telemetry.InstrumentGorm(db.DB, cfg.Database.DBName); err != nil {
			log.Warn("Database tracing disabled", zap.Error(err))
		}
	}
	log.Info("Database connected successfully")

	metrics, err := telemetry.NewSyncMetrics(providers.Meter())
	if err != nil {
		log.Fatal("Failed to create metrics", zap.Error(err))
	}

	// Repositories
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	syncQueueRepo := persistence.NewGormSyncQueueRepository(db.DB)
	txScope := persistence.NewGormTransactionScope(db.DB)

	// CRM sync outbox
	policy := crmsync.BackoffPolicy{
		BaseDelay:   cfg.Sync.BaseBackoff,
		MaxDelay:    cfg.Sync.MaxBackoff,
		MaxAttempts: cfg.Sync.MaxAttempts,
	}
	queueService := appcrmsync.NewQueueService(syncQueueRepo, policy, cfg.Sync.StaleClaimTimeout, log)
	recorder := appcrmsync.NewRecorder(queueService, txScope, crmsync.TargetZohoCRM,
		appcrmsync.EnqueuePolicy(cfg.Sync.EnqueuePolicy), log)
	adminService := appcrmsync.NewAdminService(syncQueueRepo, log)

	// Strict recording writes the sales order row inside the confirmation
	// transaction, so nothing is enqueued after commit.
	var orderEvents apppayment.OrderEventRecorder = recorder
	var fulfillmentOpts []persistence.FulfillmentOption
	if recorder.Strict() {
		fulfillmentOpts = append(fulfillmentOpts, persistence.WithConfirmHook(recorder.OrderConfirmedTx))
		orderEvents = nil
	}

	var fulfillment order.FulfillmentStore
	switch cfg.Payment.FulfillmentMode {
	case config.FulfillmentModeProcedure:
		fulfillment = persistence.NewProcedureFulfillmentStore(db.DB, fulfillmentOpts...)
	default:
		fulfillment = persistence.NewGormFulfillmentStore(db.DB, fulfillmentOpts...)
	}

	// Payment webhook
	verifier, err := infrapayment.NewEasebuzzVerifier(infrapayment.EasebuzzConfig{
		MerchantKey: cfg.Payment.MerchantKey,
		Salt:        cfg.Payment.Salt,
	}, log)
	if err != nil {
		log.Fatal("Invalid payment gateway configuration", zap.Error(err))
	}

	serviceCtx, stopServices := context.WithCancel(context.Background())
	defer stopServices()

	notifier := notify.Multi{notify.NewLogNotifier(log, cfg.Notify.Channels...)}
	if cfg.Notify.AMQPURL != "" {
		publisher, err := notify.NewAMQPPublisher(cfg.Notify, log)
		if err != nil {
			log.Fatal("Failed to connect order event publisher", zap.Error(err))
		}
		defer func() { _ = publisher.Close() }()
		notifier = append(notifier, publisher)
	}

	webhookCfg := apppayment.WebhookServiceConfig{
		Verifier:           verifier,
		Fulfillment:        fulfillment,
		Orders:             orderRepo,
		DedupTTL:           cfg.Payment.DedupTTL,
		FulfillmentTimeout: cfg.Payment.FulfillmentTimeout,
		Recorder:           orderEvents,
		Notifier:           notifier,
		Metrics:            metrics,
		Logger:             log,
	}
	if cfg.Payment.DedupEnabled {
		dedup := cache.NewDedupStore(serviceCtx, cfg.Redis, log)
		if closer, ok := dedup.(io.Closer); ok {
			defer func() { _ = closer.Close() }()
		}
		webhookCfg.Dedup = dedup
	}
	webhookService := apppayment.NewWebhookService(webhookCfg)

	// Sync worker
	var worker *scheduler.SyncWorker
	if cfg.Sync.WorkerEnabled {
		registry := crm.NewRegistry()
		registry.Register(crmsync.TargetZohoCRM, crm.NewZohoClient(cfg.CRM, nil, log))
		worker = scheduler.NewSyncWorker(scheduler.SyncWorkerConfig{
			PollInterval: cfg.Sync.PollInterval,
			BatchSize:    cfg.Sync.BatchSize,
			Concurrency:  cfg.Sync.Concurrency,
			CallTimeout:  cfg.Sync.CallTimeout,
		}, queueService, registry, metrics, log)
		if err := worker.Start(serviceCtx); err != nil {
			log.Fatal("Failed to start CRM sync worker", zap.Error(err))
		}
	} else {
		log.Info("CRM sync worker disabled, run the syncworker command from cron instead")
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	checks := map[string]handler.Pinger{"database": db}
	engine, err := router.NewEngine(router.EngineConfig{
		Logger:         log,
		Meter:          providers.Meter(),
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: providers.Enabled(),
		CORS: middleware.CORSConfig{
			AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
			AllowMethods:     cfg.HTTP.CORSAllowMethods,
			AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
			ExposeHeaders:    []string{middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		},
		TrustedProxies: cfg.HTTP.TrustedProxies,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		AdminAuth: middleware.AdminAuthConfig{
			Enabled: cfg.Admin.AuthEnabled,
			Tokens:  auth.NewTokenService(cfg.Admin),
			Logger:  log,
		},
		AdminRatePerMinute: cfg.Admin.RateLimitPerMinute,
		System:             handler.NewSystemHandler(cfg.App.Name, version, checks),
		Webhooks:           handler.NewPaymentWebhookHandler(webhookService, log),
		SyncLogs:           handler.NewSyncLogHandler(adminService, log),
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if worker != nil {
		if err := worker.Stop(ctx); err != nil {
			log.Error("CRM sync worker did not stop cleanly", zap.Error(err))
		}
	}
	stopServices()
	// Post-confirmation side effects and fire-and-forget enqueues finish before exit.
	webhookService.Wait()
	queueService.Wait()

	log.Info("Server exited gracefully")
}
