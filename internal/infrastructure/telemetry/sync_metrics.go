package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Sync attempt results
const (
	SyncResultSucceeded = "succeeded"
	SyncResultRetrying  = "retrying"
	SyncResultFailed    = "failed"
)

var (
	attrResult  = attribute.Key("result")
	attrModule  = attribute.Key("module")
	attrOutcome = attribute.Key("outcome")
)

// SyncMetrics records CRM sync attempts and payment webhook outcomes.
// A nil *SyncMetrics is valid and records nothing.
type SyncMetrics struct {
	syncAttempts    metric.Int64Counter
	syncDuration    metric.Float64Histogram
	webhookOutcomes metric.Int64Counter
	claimedItems    metric.Int64Counter
}

// NewSyncMetrics creates the instruments on meter
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	m := &SyncMetrics{}
	var err error

	m.syncAttempts, err = meter.Int64Counter(
		"store_sync_attempts_total",
		metric.WithDescription("CRM sync attempts by result"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store_sync_attempts_total: %w", err)
	}

	m.syncDuration, err = meter.Float64Histogram(
		"store_sync_attempt_duration_seconds",
		metric.WithDescription("Latency of a single CRM sync call"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store_sync_attempt_duration_seconds: %w", err)
	}

	m.webhookOutcomes, err = meter.Int64Counter(
		"store_webhook_outcomes_total",
		metric.WithDescription("Payment webhook deliveries by outcome"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store_webhook_outcomes_total: %w", err)
	}

	m.claimedItems, err = meter.Int64Counter(
		"store_sync_claimed_items_total",
		metric.WithDescription("Sync queue items claimed by workers"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store_sync_claimed_items_total: %w", err)
	}

	return m, nil
}

// RecordSyncAttempt records one CRM call for module with its result and latency
func (m *SyncMetrics) RecordSyncAttempt(ctx context.Context, module, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attrModule.String(module), attrResult.String(result))
	m.syncAttempts.Add(ctx, 1, attrs)
	m.syncDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordClaimed records the size of a claimed batch
func (m *SyncMetrics) RecordClaimed(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.claimedItems.Add(ctx, int64(n))
}

// RecordWebhookOutcome records how a webhook delivery was resolved
func (m *SyncMetrics) RecordWebhookOutcome(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.webhookOutcomes.Add(ctx, 1, metric.WithAttributes(attrOutcome.String(outcome)))
}
