package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/storefront/backend/internal/domain/crmsync"
	"github.com/storefront/backend/internal/infrastructure/crm"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
)

// SyncQueue is the part of the sync outbox the worker drives
type SyncQueue interface {
	ClaimDue(ctx context.Context, limit int) ([]*crmsync.QueueItem, error)
	MarkSucceeded(ctx context.Context, claim *crmsync.QueueItem, response json.RawMessage) (*crmsync.QueueItem, error)
	MarkFailed(ctx context.Context, claim *crmsync.QueueItem, errMsg string, details json.RawMessage) (*crmsync.QueueItem, error)
}

// SyncWorkerConfig holds configuration for the CRM sync worker
type SyncWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Concurrency  int
	// CallTimeout bounds every CRM call so one slow request cannot stall the batch
	CallTimeout time.Duration
}

// DefaultSyncWorkerConfig returns default configuration
func DefaultSyncWorkerConfig() SyncWorkerConfig {
	return SyncWorkerConfig{
		PollInterval: time.Minute,
		BatchSize:    25,
		Concurrency:  4,
		CallTimeout:  15 * time.Second,
	}
}

func (c SyncWorkerConfig) normalize() SyncWorkerConfig {
	d := DefaultSyncWorkerConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	return c
}

// BatchReport summarises one RunOnce pass
type BatchReport struct {
	Claimed   int `json:"claimed"`
	Succeeded int `json:"succeeded"`
	Retrying  int `json:"retrying"`
	Failed    int `json:"failed"`
	// Skipped items were reset or reclaimed by someone else mid-flight
	Skipped int `json:"skipped"`
}

func (r *BatchReport) add(result string) {
	switch result {
	case telemetry.SyncResultSucceeded:
		r.Succeeded++
	case telemetry.SyncResultRetrying:
		r.Retrying++
	case telemetry.SyncResultFailed:
		r.Failed++
	default:
		r.Skipped++
	}
}

const syncResultSkipped = "skipped"

// SyncWorker drains the CRM sync outbox. RunOnce processes one batch and is
// what an external cron calls; Start runs it on a ticker.
type SyncWorker struct {
	config  SyncWorkerConfig
	queue   SyncQueue
	client  crm.Client
	metrics *telemetry.SyncMetrics
	logger  *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	batchMu   sync.Mutex
}

// NewSyncWorker creates a new SyncWorker. metrics may be nil.
func NewSyncWorker(config SyncWorkerConfig, queue SyncQueue, client crm.Client, metrics *telemetry.SyncMetrics, logger *zap.Logger) *SyncWorker {
	return &SyncWorker{
		config:  config.normalize(),
		queue:   queue,
		client:  client,
		metrics: metrics,
		logger:  logger,
	}
}

// Start starts the background loop
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = true
	w.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.runLoop(ctx)

	w.logger.Info("CRM sync worker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize),
		zap.Int("concurrency", w.config.Concurrency),
	)
	return nil
}

// Stop stops the loop and waits for the in-flight batch
func (w *SyncWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("CRM sync worker stopped")
		return nil
	case <-ctx.Done():
		w.logger.Warn("CRM sync worker stop timed out")
		return ctx.Err()
	}
}

func (w *SyncWorker) runLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("CRM sync batch failed", zap.Error(err))
			}
		}
	}
}

// RunOnce claims up to BatchSize due items and pushes each to the CRM.
// A failing item never affects the others; only a failed claim is returned
// as an error.
func (w *SyncWorker) RunOnce(ctx context.Context) (*BatchReport, error) {
	// Batches within one process never overlap. Across processes the
	// claim itself keeps items exclusive.
	w.batchMu.Lock()
	defer w.batchMu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, "crmsync.batch")
	defer span.End()

	items, err := w.queue.ClaimDue(ctx, w.config.BatchSize)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	report := &BatchReport{Claimed: len(items)}
	span.SetAttributes(telemetry.AttrBatchSize.Int(len(items)))
	if len(items) == 0 {
		return report, nil
	}
	w.metrics.RecordClaimed(ctx, len(items))

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(w.config.Concurrency)
	for _, item := range items {
		g.Go(func() error {
			result := w.process(ctx, item)
			mu.Lock()
			report.add(result)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	w.logger.Info("CRM sync batch processed",
		zap.Int("claimed", report.Claimed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("retrying", report.Retrying),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

// process performs one CRM write and records its result on the item
func (w *SyncWorker) process(ctx context.Context, item *crmsync.QueueItem) string {
	ctx, span := telemetry.StartSpan(ctx, "crmsync.item",
		telemetry.AttrSyncItemID.String(item.ID.String()),
		telemetry.AttrSyncModule.String(item.TargetEntityType),
		telemetry.AttrSyncOperation.String(string(item.Operation)),
	)
	defer span.End()

	log := w.logger.With(
		zap.String("id", item.ID.String()),
		zap.String("entity_type", item.EntityType),
		zap.String("entity_id", item.EntityID),
		zap.String("target_entity_type", item.TargetEntityType),
		zap.Int("attempt", item.AttemptCount+1),
	)

	start := time.Now()
	resp, callErr := w.call(ctx, item)
	elapsed := time.Since(start)

	// Bookkeeping must land even when the worker is being shut down.
	bctx := context.WithoutCancel(ctx)

	var (
		updated *crmsync.QueueItem
		err     error
	)
	if callErr == nil {
		var body json.RawMessage
		if resp != nil {
			body = resp.Body
		}
		updated, err = w.queue.MarkSucceeded(bctx, item, body)
	} else {
		telemetry.RecordError(span, callErr)
		updated, err = w.queue.MarkFailed(bctx, item, callErr.Error(), errorDetails(callErr))
	}

	if err != nil {
		if errors.Is(err, crmsync.ErrConcurrentUpdate) || errors.Is(err, crmsync.ErrItemNotFound) {
			log.Info("Sync item changed while in flight, result discarded", zap.NamedError("call_error", callErr))
			return syncResultSkipped
		}
		log.Error("Failed to record sync result", zap.Error(err), zap.NamedError("call_error", callErr))
		return syncResultSkipped
	}

	result := telemetry.SyncResultSucceeded
	switch updated.Status {
	case crmsync.StatusRetrying:
		result = telemetry.SyncResultRetrying
		log.Warn("CRM sync attempt failed, retry scheduled",
			zap.Time("next_retry_at", updated.NextRetryAt),
			zap.Error(callErr),
		)
	case crmsync.StatusFailed:
		result = telemetry.SyncResultFailed
	default:
		log.Debug("CRM sync succeeded", zap.Duration("elapsed", elapsed))
	}
	w.metrics.RecordSyncAttempt(ctx, item.TargetEntityType, result, elapsed)
	return result
}

func (w *SyncWorker) call(ctx context.Context, item *crmsync.QueueItem) (*crm.Response, error) {
	req, err := crm.BuildRequest(item)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, w.config.CallTimeout)
	defer cancel()
	return w.client.Sync(cctx, req)
}

// errorDetails renders a call failure for the item's error_details column
func errorDetails(err error) json.RawMessage {
	if cerr, ok := crm.AsError(err); ok {
		return cerr.Details()
	}
	out, _ := json.Marshal(map[string]string{"error": err.Error()})
	return out
}
