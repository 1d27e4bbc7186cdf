package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/storefront/backend/internal/domain/order"
	domainpayment "github.com/storefront/backend/internal/domain/payment"
	"github.com/storefront/backend/internal/infrastructure/cache"
	infrapayment "github.com/storefront/backend/internal/infrastructure/payment"
)

type mockFulfillment struct{ mock.Mock }

func (m *mockFulfillment) ConfirmAndDeduct(ctx context.Context, orderID uuid.UUID, paymentID, method string) (*order.FulfillmentResult, error) {
	args := m.Called(ctx, orderID, paymentID, method)
	if r := args.Get(0); r != nil {
		return r.(*order.FulfillmentResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockOrders struct{ mock.Mock }

func (m *mockOrders) FindByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, id)
	if o := args.Get(0); o != nil {
		return o.(*order.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrders) MarkPaymentFailed(ctx context.Context, id uuid.UUID, paymentID string) (bool, error) {
	args := m.Called(ctx, id, paymentID)
	return args.Bool(0), args.Error(1)
}

func (m *mockOrders) FlagForReview(ctx context.Context, id uuid.UUID, reason, paymentID string) error {
	return m.Called(ctx, id, reason, paymentID).Error(0)
}

type mockRecorder struct{ mock.Mock }

func (m *mockRecorder) OrderConfirmed(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) OrderConfirmed(ctx context.Context, c order.Confirmation) error {
	return m.Called(ctx, c).Error(0)
}

type countingMetrics struct{ outcomes []string }

func (c *countingMetrics) RecordWebhookOutcome(_ context.Context, outcome string) {
	c.outcomes = append(c.outcomes, outcome)
}

type webhookFixture struct {
	svc         *WebhookService
	verifier    *infrapayment.EasebuzzVerifier
	fulfillment *mockFulfillment
	orders      *mockOrders
	recorder    *mockRecorder
	notifier    *mockNotifier
	dedup       *cache.InMemoryDedupStore
	metrics     *countingMetrics
	orderID     uuid.UUID
}

func newWebhookFixture(t *testing.T, logger *zap.Logger) *webhookFixture {
	t.Helper()
	verifier, err := infrapayment.NewEasebuzzVerifier(infrapayment.EasebuzzConfig{MerchantKey: "MKEY", Salt: "SALT"}, nil)
	require.NoError(t, err)

	fx := &webhookFixture{
		verifier:    verifier,
		fulfillment: &mockFulfillment{},
		orders:      &mockOrders{},
		recorder:    &mockRecorder{},
		notifier:    &mockNotifier{},
		dedup:       cache.NewInMemoryDedupStore(0),
		metrics:     &countingMetrics{},
		orderID:     uuid.New(),
	}
	t.Cleanup(func() { _ = fx.dedup.Close() })

	fx.svc = NewWebhookService(WebhookServiceConfig{
		Verifier:           verifier,
		Fulfillment:        fx.fulfillment,
		Orders:             fx.orders,
		Dedup:              fx.dedup,
		FulfillmentTimeout: 200 * time.Millisecond,
		Recorder:           fx.recorder,
		Notifier:           fx.notifier,
		Metrics:            fx.metrics,
		Logger:             logger,
	})
	return fx
}

func (fx *webhookFixture) notification(status string) *domainpayment.Notification {
	n := &domainpayment.Notification{
		TxnID:       "TXN-1",
		Amount:      "236.00",
		ProductInfo: "Order ORD-1001",
		FirstName:   "Asha",
		Email:       "asha@example.com",
		Status:      status,
		EasepayID:   "E100",
		Mode:        "UPI",
	}
	n.UDF[0] = fx.orderID.String()
	fx.verifier.Sign(n)
	return n
}

func (fx *webhookFixture) confirmedOrder() *order.Order {
	return &order.Order{
		ID:            fx.orderID,
		OrderNumber:   "ORD-1001",
		CustomerEmail: "asha@example.com",
		Status:        order.StatusConfirmed,
		PaymentID:     "E100",
		Total:         decimal.RequireFromString("236"),
	}
}

func TestWebhookService_Success(t *testing.T) {
	fx := newWebhookFixture(t, zap.NewNop())
	ctx := context.Background()

	fx.fulfillment.On("ConfirmAndDeduct", mock.Anything, fx.orderID, "E100", "UPI").
		Return(&order.FulfillmentResult{OrderID: fx.orderID, Status: order.StatusConfirmed, ItemsDeducted: 2, CartCleared: true}, nil).Once()
	fx.recorder.On("OrderConfirmed", mock.Anything, fx.orderID).Return(nil).Once()
	fx.orders.On("FindByID", mock.Anything, fx.orderID).Return(fx.confirmedOrder(), nil).Once()
	fx.notifier.On("OrderConfirmed", mock.Anything, mock.MatchedBy(func(c order.Confirmation) bool {
		return c.OrderNumber == "ORD-1001" && c.Total == "236.00"
	})).Return(nil).Once()

	res, err := fx.svc.Handle(ctx, fx.notification("success"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, res.Outcome)
	assert.Equal(t, fx.orderID, res.OrderID)
	fx.svc.Wait()

	seen, err := fx.dedup.IsProcessed(ctx, "easebuzz:E100:success")
	require.NoError(t, err)
	assert.True(t, seen)

	again, err := fx.svc.Handle(ctx, fx.notification("success"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, again.Outcome)

	fx.fulfillment.AssertExpectations(t)
	fx.recorder.AssertExpectations(t)
	fx.notifier.AssertExpectations(t)
	assert.Equal(t, []string{"confirmed", "duplicate"}, fx.metrics.outcomes)
}

func TestWebhookService_SideEffectFailuresDoNotLeak(t *testing.T) {
	fx := newWebhookFixture(t, zap.NewNop())

	fx.fulfillment.On("ConfirmAndDeduct", mock.Anything, fx.orderID, "E100", "UPI").
		Return(&order.FulfillmentResult{OrderID: fx.orderID, Status: order.StatusConfirmed}, nil)
	fx.recorder.On("OrderConfirmed", mock.Anything, fx.orderID).Return(errors.New("queue down"))
	fx.orders.On("FindByID", mock.Anything, fx.orderID).Return(fx.confirmedOrder(), nil)
	fx.notifier.On("OrderConfirmed", mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	res, err := fx.svc.Handle(context.Background(), fx.notification("success"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, res.Outcome)
	fx.svc.Wait()
}

func TestWebhookService_AlreadyConfirmedIsDuplicate(t *testing.T) {
	fx := newWebhookFixture(t, zap.NewNop())

	fx.fulfillment.On("ConfirmAndDeduct", mock.Anything, fx.orderID, "E100", "UPI").
		Return(&order.FulfillmentResult{OrderID: fx.orderID, AlreadyTerminal: true, Status: order.StatusConfirmed}, nil)

	res, err := fx.svc.Handle(context.Background(), fx.notification("success"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)
	fx.recorder.AssertNotCalled(t, "OrderConfirmed", mock.Anything, mock.Anything)
}

func TestWebhookService_SignatureRejected(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	fx := newWebhookFixture(t, zap.New(core))

	n := fx.notification("success")
	n.Hash = "deadbeef"

	res, err := fx.svc.Handle(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)

	fx.fulfillment.AssertNotCalled(t, "ConfirmAndDeduct", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	fx.orders.AssertNotCalled(t, "MarkPaymentFailed", mock.Anything, mock.Anything, mock.Anything)

	rejected := logs.FilterMessage("Payment callback signature rejected").All()
	require.Len(t, rejected, 1)
	assert.Equal(t, true, rejected[0].ContextMap()["security_event"])
}

func TestWebhookService_TamperedStatusNeverMutates(t *testing.T) {
	fx := newWebhookFixture(t, zap.NewNop())

	n := fx.notification("failure")
	n.Status = "success"

	res, err := fx.svc.Handle(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	fx.fulfillment.AssertNotCalled(t, "ConfirmAndDeduct", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookService_MissingFields(t *testing.T) {
	fx := newWebhookFixture(t, zap.NewNop())

	n := fx.notification("success")
	n.UDF[0] = ""

	_, err := fx.svc.Handle(context.Background(), n)
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.Equal(t, []string{"error"}, fx.metrics.outcomes)
}

func TestWebhookService_InsufficientInventoryFlagsOrder(t *testing.T) {
	fx := newWebhookFixture(t, zap.NewNop())

	fx.fulfillment.On("ConfirmAndDeduct", mock.Anything, fx.orderID, "E100", "UPI").
		Return(nil, &order.InsufficientInventoryError{VariantID: uuid.New(), Requested: 3, Available: 1})
	fx.orders.On("FlagForReview", mock.Anything, fx.orderID, ReasonInsufficientInventory, "E100").Return(nil).Once()

	res, err := fx.svc.Handle(context.Background(), fx.notification("success"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeManualReview, res.Outcome)
	fx.orders.AssertExpectations(t)
	fx.recorder.AssertNotCalled(t, "OrderConfirmed", mock.Anything, mock.Anything)

	seen, _ := fx.dedup.IsProcessed(context.Background(), "easebuzz:E100:success")
	assert.False(t, seen)
}

func TestWebhookService_TimeoutFlagsOrder(t *testing.T) {
	fx := newWebhookFixture(t, zap.NewNop())

	fx.fulfillment.On("ConfirmAndDeduct", mock.Anything, fx.orderID, "E100", "UPI").
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)
	fx.orders.On("FlagForReview", mock.Anything, fx.orderID, ReasonFulfillmentTimeout, "E100").Return(nil).Once()

	start := time.Now()
	res, err := fx.svc.Handle(context.Background(), fx.notification("success"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeManualReview, res.Outcome)
	assert.Less(t, time.Since(start), 2*time.Second)
	fx.orders.AssertExpectations(t)
}

func TestWebhookService_CallerCancelDoesNotAbortFulfillment(t *testing.T) {
	fx := newWebhookFixture(t, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fx.fulfillment.On("ConfirmAndDeduct", mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil }), fx.orderID, "E100", "UPI").
		Return(&order.FulfillmentResult{OrderID: fx.orderID, Status: order.StatusConfirmed}, nil)
	fx.recorder.On("OrderConfirmed", mock.Anything, fx.orderID).Return(nil)
	fx.orders.On("FindByID", mock.Anything, fx.orderID).Return(fx.confirmedOrder(), nil)
	fx.notifier.On("OrderConfirmed", mock.Anything, mock.Anything).Return(nil)

	res, err := fx.svc.Handle(ctx, fx.notification("success"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, res.Outcome)
	fx.svc.Wait()
}

func TestWebhookService_PaidAfterFailureFlagsOrder(t *testing.T) {
	fx := newWebhookFixture(t, zap.NewNop())

	fx.fulfillment.On("ConfirmAndDeduct", mock.Anything, fx.orderID, "E100", "UPI").
		Return(&order.FulfillmentResult{OrderID: fx.orderID, AlreadyTerminal: true, Status: order.StatusFailed}, nil)
	fx.orders.On("FlagForReview", mock.Anything, fx.orderID, ReasonPaidAfterFailure, "E100").Return(nil)

	res, err := fx.svc.Handle(context.Background(), fx.notification("success"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeManualReview, res.Outcome)
}

func TestWebhookService_FulfillmentErrors(t *testing.T) {
	t.Run("unknown order is acknowledged", func(t *testing.T) {
		fx := newWebhookFixture(t, zap.NewNop())
		fx.fulfillment.On("ConfirmAndDeduct", mock.Anything, fx.orderID, "E100", "UPI").Return(nil, order.ErrOrderNotFound)

		res, err := fx.svc.Handle(context.Background(), fx.notification("success"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeOrderNotFound, res.Outcome)
	})

	t.Run("infrastructure failure is returned", func(t *testing.T) {
		fx := newWebhookFixture(t, zap.NewNop())
		boom := errors.New("connection refused")
		fx.fulfillment.On("ConfirmAndDeduct", mock.Anything, fx.orderID, "E100", "UPI").Return(nil, boom)

		_, err := fx.svc.Handle(context.Background(), fx.notification("success"))
		assert.ErrorIs(t, err, boom)

		seen, _ := fx.dedup.IsProcessed(context.Background(), "easebuzz:E100:success")
		assert.False(t, seen)
	})

	t.Run("unparseable order reference", func(t *testing.T) {
		fx := newWebhookFixture(t, zap.NewNop())
		n := fx.notification("success")
		n.UDF[0] = "ORD-1001"
		fx.verifier.Sign(n)

		res, err := fx.svc.Handle(context.Background(), n)
		require.NoError(t, err)
		assert.Equal(t, OutcomeOrderNotFound, res.Outcome)
	})
}

func TestWebhookService_FailureStatus(t *testing.T) {
	t.Run("pending order is failed", func(t *testing.T) {
		fx := newWebhookFixture(t, zap.NewNop())
		fx.orders.On("MarkPaymentFailed", mock.Anything, fx.orderID, "E100").Return(true, nil)

		res, err := fx.svc.Handle(context.Background(), fx.notification("failure"))
		require.NoError(t, err)
		assert.Equal(t, OutcomePaymentFailed, res.Outcome)
		fx.fulfillment.AssertNotCalled(t, "ConfirmAndDeduct", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("late failure after confirmation is ignored", func(t *testing.T) {
		fx := newWebhookFixture(t, zap.NewNop())
		fx.orders.On("MarkPaymentFailed", mock.Anything, fx.orderID, "E100").Return(false, nil)

		res, err := fx.svc.Handle(context.Background(), fx.notification("usercancelled"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, res.Outcome)
	})

	t.Run("store error is returned", func(t *testing.T) {
		fx := newWebhookFixture(t, zap.NewNop())
		fx.orders.On("MarkPaymentFailed", mock.Anything, fx.orderID, "E100").Return(false, errors.New("timeout"))

		_, err := fx.svc.Handle(context.Background(), fx.notification("failure"))
		assert.Error(t, err)
	})
}

func TestDedupKey(t *testing.T) {
	n := &domainpayment.Notification{EasepayID: "E9", Status: " Success "}
	assert.Equal(t, "easebuzz:E9:success", DedupKey(n))
}
