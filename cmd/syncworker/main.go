package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	appcrmsync "github.com/storefront/backend/internal/application/crmsync"
	"github.com/storefront/backend/internal/domain/crmsync"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/crm"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/infrastructure/persistence"
	"github.com/storefront/backend/internal/infrastructure/scheduler"
	"github.com/storefront/backend/internal/infrastructure/storage"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:          "syncworker",
		Short:        "Drain the CRM sync outbox",
		Version:      version,
		SilenceUsage: true,
	}
	root.AddCommand(runOnceCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(archiveCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runOnceCmd() *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "run-once",
		Short: "Process one batch of due sync items and exit",
		Long: `Claim up to batch-size due items, push each to the CRM and record the
result. Intended for an external scheduler such as cron. The batch report
is printed to stdout as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withWorker(cmd.Context(), batchSize, func(ctx context.Context, w *scheduler.SyncWorker, log *zap.Logger) error {
				report, err := w.RunOnce(ctx)
				if err != nil {
					return fmt.Errorf("sync batch failed: %w", err)
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(report)
			})
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "items to claim (default from sync.batch_size)")
	return cmd
}

func serveCmd() *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll the sync outbox until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return withWorker(ctx, batchSize, func(ctx context.Context, w *scheduler.SyncWorker, log *zap.Logger) error {
				if err := w.Start(ctx); err != nil {
					return err
				}
				<-ctx.Done()
				log.Info("Shutting down sync worker...")

				stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				return w.Stop(stopCtx)
			})
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "items to claim per poll (default from sync.batch_size)")
	return cmd
}

func archiveCmd() *cobra.Command {
	var retain time.Duration
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Export old succeeded sync logs to object storage",
		Long: `Export succeeded sync log entries completed before now minus --retain to
the archive bucket as NDJSON objects and stamp them archived. Rows stay in
the database. Failed and in-flight entries are never archived.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			store, err := storage.NewS3ObjectStorage(ctx, e.cfg.Archive, storage.WithLogger(e.log))
			if err != nil {
				return fmt.Errorf("archive storage: %w", err)
			}
			if err := store.EnsureBucket(ctx); err != nil {
				return err
			}
			if retain <= 0 {
				retain = e.cfg.Archive.Retention
			}

			svc := appcrmsync.NewArchiveService(persistence.NewGormSyncQueueRepository(e.db.DB),
				store, e.cfg.Archive.Prefix, e.cfg.Archive.BatchSize, e.log)
			report, err := svc.Archive(ctx, retain)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(report)
		},
	}
	cmd.Flags().DurationVar(&retain, "retain", 0, "keep entries newer than this (default from archive.retention)")
	return cmd
}

// env holds what every subcommand needs
type env struct {
	cfg       *config.Config
	log       *zap.Logger
	db        *persistence.Database
	providers *telemetry.Providers
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log = log.With(zap.String("component", "syncworker"))

	providers, err := telemetry.Setup(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	db, err := persistence.NewDatabase(&cfg.Database,
		logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level)))
	if err != nil {
		_ = providers.Shutdown(ctx)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if providers.Enabled() {
		if err := telemetry.InstrumentGorm(db.DB, cfg.Database.DBName); err != nil {
			log.Warn("Database tracing disabled", zap.Error(err))
		}
	}
	return &env{cfg: cfg, log: log, db: db, providers: providers}, nil
}

func (e *env) close() {
	if err := e.db.Close(); err != nil {
		e.log.Error("Error closing database", zap.Error(err))
	}
	_ = e.providers.Shutdown(context.Background())
	_ = logger.Sync(e.log)
}

// withWorker hands fn a worker wired to the database and the CRM
func withWorker(ctx context.Context, batchSize int, fn func(context.Context, *scheduler.SyncWorker, *zap.Logger) error) error {
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.close()
	cfg := e.cfg

	metrics, err := telemetry.NewSyncMetrics(e.providers.Meter())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	queue := appcrmsync.NewQueueService(
		persistence.NewGormSyncQueueRepository(e.db.DB),
		crmsync.BackoffPolicy{
			BaseDelay:   cfg.Sync.BaseBackoff,
			MaxDelay:    cfg.Sync.MaxBackoff,
			MaxAttempts: cfg.Sync.MaxAttempts,
		},
		cfg.Sync.StaleClaimTimeout,
		e.log,
	)

	registry := crm.NewRegistry()
	registry.Register(crmsync.TargetZohoCRM, crm.NewZohoClient(cfg.CRM, nil, e.log))

	if batchSize <= 0 {
		batchSize = cfg.Sync.BatchSize
	}
	worker := scheduler.NewSyncWorker(scheduler.SyncWorkerConfig{
		PollInterval: cfg.Sync.PollInterval,
		BatchSize:    batchSize,
		Concurrency:  cfg.Sync.Concurrency,
		CallTimeout:  cfg.Sync.CallTimeout,
	}, queue, registry, metrics, e.log)

	return fn(ctx, worker, e.log)
}
