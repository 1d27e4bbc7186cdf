// Package payment resolves payment-gateway callbacks into order state changes.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/order"
	domainpayment "github.com/storefront/backend/internal/domain/payment"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
)

// Outcome is how a webhook delivery was resolved
type Outcome string

const (
	OutcomeConfirmed     Outcome = "confirmed"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeRejected      Outcome = "rejected"
	OutcomeManualReview  Outcome = "manual_review"
	OutcomePaymentFailed Outcome = "payment_failed"
	OutcomeIgnored       Outcome = "ignored"
	OutcomeOrderNotFound Outcome = "order_not_found"
)

// ErrInvalidPayload is returned for callbacks missing required fields
var ErrInvalidPayload = shared.NewDomainError("INVALID_PAYLOAD", "Payment callback is missing required fields")

// Review reasons stored on flagged orders
const (
	ReasonInsufficientInventory = "insufficient inventory"
	ReasonFulfillmentTimeout    = "fulfillment timed out"
	ReasonPaidAfterFailure      = "payment captured for an order already marked failed"
)

const (
	defaultFulfillmentTimeout = 10 * time.Second
	defaultDedupTTL           = 24 * time.Hour
	sideEffectTimeout         = 10 * time.Second
)

// OrderEventRecorder mirrors confirmed orders to the CRM
type OrderEventRecorder interface {
	OrderConfirmed(ctx context.Context, orderID uuid.UUID) error
}

// OutcomeMetrics counts resolved deliveries
type OutcomeMetrics interface {
	RecordWebhookOutcome(ctx context.Context, outcome string)
}

// WebhookServiceConfig wires a WebhookService. Dedup, Recorder, Notifier and
// Metrics are optional.
type WebhookServiceConfig struct {
	Verifier           domainpayment.Verifier
	Fulfillment        order.FulfillmentStore
	Orders             order.Repository
	Dedup              shared.IdempotencyStore
	DedupTTL           time.Duration
	FulfillmentTimeout time.Duration
	Recorder           OrderEventRecorder
	Notifier           order.Notifier
	Metrics            OutcomeMetrics
	Logger             *zap.Logger
}

// Result describes a handled delivery
type Result struct {
	Outcome Outcome
	OrderID uuid.UUID
}

// WebhookService applies verified gateway callbacks to orders. Every
// delivery ends in a deliberate Outcome; an error means a transient
// infrastructure failure the gateway may safely retry.
type WebhookService struct {
	verifier    domainpayment.Verifier
	fulfillment order.FulfillmentStore
	orders      order.Repository
	dedup       shared.IdempotencyStore
	dedupTTL    time.Duration
	timeout     time.Duration
	recorder    OrderEventRecorder
	notifier    order.Notifier
	metrics     OutcomeMetrics
	logger      *zap.Logger

	background sync.WaitGroup
}

// NewWebhookService creates a new WebhookService
func NewWebhookService(cfg WebhookServiceConfig) *WebhookService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.FulfillmentTimeout
	if timeout <= 0 {
		timeout = defaultFulfillmentTimeout
	}
	ttl := cfg.DedupTTL
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &WebhookService{
		verifier:    cfg.Verifier,
		fulfillment: cfg.Fulfillment,
		orders:      cfg.Orders,
		dedup:       cfg.Dedup,
		dedupTTL:    ttl,
		timeout:     timeout,
		recorder:    cfg.Recorder,
		notifier:    cfg.Notifier,
		metrics:     cfg.Metrics,
		logger:      logger,
	}
}

// DedupKey identifies one gateway delivery
func DedupKey(n *domainpayment.Notification) string {
	return fmt.Sprintf("easebuzz:%s:%s", n.PaymentID(), strings.ToLower(strings.TrimSpace(n.Status)))
}

// Handle resolves one callback. The order is never mutated unless the
// signature verifies.
func (s *WebhookService) Handle(ctx context.Context, n *domainpayment.Notification) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "payment.webhook",
		telemetry.AttrPaymentStatus.String(n.Status),
		telemetry.AttrPaymentID.String(n.PaymentID()),
	)
	defer span.End()

	result, err := s.handle(ctx, n)
	if err != nil {
		telemetry.RecordError(span, err)
		s.recordOutcome(ctx, "error")
		return nil, err
	}
	span.SetAttributes(telemetry.AttrOutcome.String(string(result.Outcome)))
	s.recordOutcome(ctx, string(result.Outcome))
	return result, nil
}

func (s *WebhookService) handle(ctx context.Context, n *domainpayment.Notification) (*Result, error) {
	if missing := n.MissingFields(); len(missing) > 0 {
		s.logger.Warn("Payment callback missing required fields", zap.Strings("missing", missing))
		return nil, ErrInvalidPayload
	}

	log := logger.For(ctx, s.logger).With(
		zap.String("txnid", n.TxnID),
		zap.String("easepayid", n.EasepayID),
		zap.String("status", n.Status),
		zap.String("order_ref", n.OrderRef()),
	)

	if !s.verifier.Verify(n) {
		log.Warn("Payment callback signature rejected", logger.SecurityEvent())
		return &Result{Outcome: OutcomeRejected}, nil
	}

	key := DedupKey(n)
	if s.seen(ctx, key, log) {
		log.Info("Duplicate payment callback")
		return &Result{Outcome: OutcomeDuplicate}, nil
	}

	orderID, err := uuid.Parse(n.OrderRef())
	if err != nil {
		log.Error("Payment callback references an unparseable order id")
		return &Result{Outcome: OutcomeOrderNotFound}, nil
	}

	var result *Result
	if n.IsSuccess() {
		result, err = s.handleSuccess(ctx, orderID, n, log)
	} else {
		result, err = s.handleFailure(ctx, orderID, n, log)
	}
	if err != nil {
		return nil, err
	}

	switch result.Outcome {
	case OutcomeConfirmed, OutcomeDuplicate, OutcomePaymentFailed, OutcomeIgnored:
		s.remember(ctx, key, log)
	}
	return result, nil
}

func (s *WebhookService) handleSuccess(ctx context.Context, orderID uuid.UUID, n *domainpayment.Notification, log *zap.Logger) (*Result, error) {
	// A disconnecting gateway must not abort the fulfillment half-way through
	// the round trip; only the fulfillment timeout bounds it.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	res, err := s.fulfillment.ConfirmAndDeduct(fctx, orderID, n.PaymentID(), n.PaymentMethod())
	switch {
	case err == nil && !res.AlreadyTerminal:
		log.Info("Order confirmed", zap.Int("items_deducted", res.ItemsDeducted), zap.Bool("cart_cleared", res.CartCleared))
		s.afterConfirm(ctx, orderID)
		return &Result{Outcome: OutcomeConfirmed, OrderID: orderID}, nil

	case err == nil && res.Status == order.StatusConfirmed:
		log.Info("Order already confirmed")
		return &Result{Outcome: OutcomeDuplicate, OrderID: orderID}, nil

	case err == nil:
		log.Error("Payment captured for a non-pending order", zap.String("order_status", string(res.Status)))
		return s.flag(ctx, orderID, ReasonPaidAfterFailure, n.PaymentID(), log)

	case errors.Is(err, order.ErrInsufficientInventory):
		log.Error("Insufficient inventory for paid order", zap.Error(err))
		return s.flag(ctx, orderID, ReasonInsufficientInventory, n.PaymentID(), log)

	case errors.Is(err, context.DeadlineExceeded):
		log.Error("Fulfillment timed out", zap.Duration("timeout", s.timeout))
		return s.flag(ctx, orderID, ReasonFulfillmentTimeout, n.PaymentID(), log)

	case errors.Is(err, order.ErrOrderNotFound):
		log.Error("Payment callback for unknown order")
		return &Result{Outcome: OutcomeOrderNotFound, OrderID: orderID}, nil

	default:
		log.Error("Fulfillment failed", zap.Error(err))
		return nil, fmt.Errorf("fulfill order %s: %w", orderID, err)
	}
}

func (s *WebhookService) handleFailure(ctx context.Context, orderID uuid.UUID, n *domainpayment.Notification, log *zap.Logger) (*Result, error) {
	changed, err := s.orders.MarkPaymentFailed(ctx, orderID, n.PaymentID())
	if err != nil {
		log.Error("Failed to record payment failure", zap.Error(err))
		return nil, fmt.Errorf("mark order %s failed: %w", orderID, err)
	}
	if !changed {
		log.Info("Payment failure ignored, order is not pending")
		return &Result{Outcome: OutcomeIgnored, OrderID: orderID}, nil
	}
	log.Info("Order payment failed", zap.String("error_message", n.ErrorMsg))
	return &Result{Outcome: OutcomePaymentFailed, OrderID: orderID}, nil
}

// flag records a paid order that needs an operator. It runs in its own
// statement so it lands even when the fulfillment rolled back or timed out.
func (s *WebhookService) flag(ctx context.Context, orderID uuid.UUID, reason, paymentID string, log *zap.Logger) (*Result, error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.orders.FlagForReview(fctx, orderID, reason, paymentID); err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return &Result{Outcome: OutcomeOrderNotFound, OrderID: orderID}, nil
		}
		log.Error("Failed to flag order for review", zap.String("reason", reason), zap.Error(err))
		return nil, fmt.Errorf("flag order %s for review: %w", orderID, err)
	}
	log.Error("Order flagged for manual review", logger.ManualReview(reason))
	return &Result{Outcome: OutcomeManualReview, OrderID: orderID}, nil
}

// afterConfirm enqueues the CRM sync and notifies the customer. Neither may
// affect the webhook response.
func (s *WebhookService) afterConfirm(ctx context.Context, orderID uuid.UUID) {
	ctx = context.WithoutCancel(ctx)

	if s.recorder != nil {
		if err := s.recorder.OrderConfirmed(ctx, orderID); err != nil {
			s.logger.Error("Failed to enqueue order sync", zap.String("order_id", orderID.String()), zap.Error(err))
		}
	}

	if s.notifier == nil {
		return
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
		defer cancel()

		o, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			s.logger.Warn("Failed to load order for notification", zap.String("order_id", orderID.String()), zap.Error(err))
			return
		}
		if err := s.notifier.OrderConfirmed(ctx, order.Confirmation{
			OrderID:       o.ID,
			OrderNumber:   o.OrderNumber,
			CustomerEmail: o.CustomerEmail,
			CustomerName:  o.CustomerName,
			CustomerPhone: o.CustomerPhone,
			Total:         o.Total.StringFixed(2),
			PaymentID:     o.PaymentID,
		}); err != nil {
			s.logger.Warn("Order confirmation notification failed", zap.String("order_id", orderID.String()), zap.Error(err))
		}
	}()
}

// Wait blocks until background notifications have finished
func (s *WebhookService) Wait() {
	s.background.Wait()
}

func (s *WebhookService) seen(ctx context.Context, key string, log *zap.Logger) bool {
	if s.dedup == nil {
		return false
	}
	ok, err := s.dedup.IsProcessed(ctx, key)
	if err != nil {
		log.Warn("Dedup store lookup failed, processing anyway", zap.Error(err))
		return false
	}
	return ok
}

func (s *WebhookService) remember(ctx context.Context, key string, log *zap.Logger) {
	if s.dedup == nil {
		return
	}
	if _, err := s.dedup.MarkProcessed(context.WithoutCancel(ctx), key, s.dedupTTL); err != nil {
		log.Warn("Dedup store write failed", zap.Error(err))
	}
}

func (s *WebhookService) recordOutcome(ctx context.Context, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordWebhookOutcome(ctx, outcome)
	}
}
