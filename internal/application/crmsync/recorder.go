package crmsync

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/crmsync"
	"github.com/storefront/backend/internal/domain/order"
)

// EnqueuePolicy decides whether a failed outbox insert reaches the caller
type EnqueuePolicy string

const (
	// PolicyFireAndForget logs insert failures and drops the event
	PolicyFireAndForget EnqueuePolicy = "fire_and_forget"
	// PolicyStrict returns insert failures. Callers holding a transaction
	// use the Tx variants so the outbox row commits with their write.
	PolicyStrict EnqueuePolicy = "strict"
)

// UserRegistration is a newly registered customer
type UserRegistration struct {
	UserID    uuid.UUID
	FirstName string
	LastName  string
	Email     string
	Phone     string
	City      string
}

// ContactSubmission is a contact-form message
type ContactSubmission struct {
	ID      uuid.UUID
	Name    string
	Email   string
	Phone   string
	Company string
	Message string
}

// QuoteSubmission is a B2B quote request
type QuoteSubmission struct {
	ID              uuid.UUID
	Company         string
	ContactEmail    string
	EstimatedAmount string
	Notes           string
}

// Recorder turns business events into CRM sync queue items
type Recorder struct {
	queue   *QueueService
	scope   TransactionScope
	service string
	policy  EnqueuePolicy
	logger  *zap.Logger
}

// NewRecorder creates a Recorder that targets the given CRM service
func NewRecorder(queue *QueueService, scope TransactionScope, service string, policy EnqueuePolicy, logger *zap.Logger) *Recorder {
	if policy != PolicyStrict {
		policy = PolicyFireAndForget
	}
	return &Recorder{queue: queue, scope: scope, service: service, policy: policy, logger: logger}
}

// Strict reports whether enqueue failures reach the caller
func (r *Recorder) Strict() bool {
	return r.policy == PolicyStrict
}

// UserRegistered mirrors a new customer as a CRM contact
func (r *Recorder) UserRegistered(ctx context.Context, u UserRegistration) error {
	return r.record(ctx, r.userRequest(u))
}

// UserRegisteredTx enqueues the contact inside the caller's transaction
func (r *Recorder) UserRegisteredTx(ctx context.Context, repos TransactionalRepositories, u UserRegistration) error {
	_, err := r.queue.EnqueueTx(ctx, repos, r.userRequest(u))
	return err
}

// ContactSubmitted mirrors a contact-form message as a CRM lead
func (r *Recorder) ContactSubmitted(ctx context.Context, c ContactSubmission) error {
	return r.record(ctx, r.contactRequest(c))
}

// ContactSubmittedTx enqueues the lead inside the caller's transaction
func (r *Recorder) ContactSubmittedTx(ctx context.Context, repos TransactionalRepositories, c ContactSubmission) error {
	_, err := r.queue.EnqueueTx(ctx, repos, r.contactRequest(c))
	return err
}

// QuoteSubmitted mirrors a quote request as a CRM deal
func (r *Recorder) QuoteSubmitted(ctx context.Context, q QuoteSubmission) error {
	return r.record(ctx, r.quoteRequest(q))
}

// QuoteSubmittedTx enqueues the deal inside the caller's transaction
func (r *Recorder) QuoteSubmittedTx(ctx context.Context, repos TransactionalRepositories, q QuoteSubmission) error {
	_, err := r.queue.EnqueueTx(ctx, repos, r.quoteRequest(q))
	return err
}

// OrderConfirmed mirrors a confirmed order as a CRM sales order after the
// confirmation has committed. Strict deployments enqueue through
// OrderConfirmedTx from within the fulfillment transaction instead.
func (r *Recorder) OrderConfirmed(ctx context.Context, orderID uuid.UUID) error {
	if r.policy == PolicyStrict {
		return r.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			return r.OrderConfirmedTx(ctx, repos, orderID)
		})
	}

	var o *order.Order
	err := r.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		o, err = repos.Orders().FindByID(ctx, orderID)
		return err
	})
	if err != nil {
		r.logger.Error("Failed to load order for CRM sync, event dropped",
			zap.String("order_id", orderID.String()), zap.Error(err))
		return nil
	}
	r.queue.EnqueueAsync(ctx, r.salesOrderRequest(o))
	return nil
}

// OrderConfirmedTx reads the order and enqueues its sales order through the
// caller's transaction, so the outbox row commits or rolls back with it
func (r *Recorder) OrderConfirmedTx(ctx context.Context, repos TransactionalRepositories, orderID uuid.UUID) error {
	o, err := repos.Orders().FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	_, err = r.queue.EnqueueTx(ctx, repos, r.salesOrderRequest(o))
	return err
}

// record enqueues outside any caller transaction: synchronously under
// PolicyStrict, in the background otherwise
func (r *Recorder) record(ctx context.Context, req EnqueueRequest) error {
	if r.policy == PolicyStrict {
		_, err := r.queue.Enqueue(ctx, req)
		return err
	}
	r.queue.EnqueueAsync(ctx, req)
	return nil
}

func (r *Recorder) userRequest(u UserRegistration) EnqueueRequest {
	return EnqueueRequest{
		EntityType:    "user",
		EntityID:      u.UserID.String(),
		Operation:     crmsync.OperationCreate,
		TargetService: r.service,
		Payload: crmsync.ContactPayload{
			FirstName:   u.FirstName,
			LastName:    lastNameOrEmail(u.LastName, u.Email),
			Email:       u.Email,
			Phone:       u.Phone,
			MailingCity: u.City,
		},
	}
}

func (r *Recorder) contactRequest(c ContactSubmission) EnqueueRequest {
	first, last := splitName(c.Name)
	return EnqueueRequest{
		EntityType:    "contact_submission",
		EntityID:      c.ID.String(),
		Operation:     crmsync.OperationCreate,
		TargetService: r.service,
		Payload: crmsync.LeadPayload{
			FirstName:   first,
			LastName:    lastNameOrEmail(last, c.Email),
			Email:       c.Email,
			Phone:       c.Phone,
			Company:     c.Company,
			LeadSource:  "Website Contact Form",
			Description: c.Message,
		},
	}
}

func (r *Recorder) quoteRequest(q QuoteSubmission) EnqueueRequest {
	return EnqueueRequest{
		EntityType:    "quote_request",
		EntityID:      q.ID.String(),
		Operation:     crmsync.OperationCreate,
		TargetService: r.service,
		Payload: crmsync.DealPayload{
			DealName:     fmt.Sprintf("Quote - %s", q.Company),
			Stage:        "Qualification",
			Amount:       q.EstimatedAmount,
			ContactEmail: q.ContactEmail,
			Description:  q.Notes,
		},
	}
}

func (r *Recorder) salesOrderRequest(o *order.Order) EnqueueRequest {
	lines := make([]crmsync.SalesOrderLine, len(o.Items))
	for i, item := range o.Items {
		lines[i] = crmsync.SalesOrderLine{
			SKU:       item.SKU,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
			Total:     item.TotalPrice.StringFixed(2),
		}
	}
	return EnqueueRequest{
		EntityType:    "order",
		EntityID:      o.ID.String(),
		Operation:     crmsync.OperationCreate,
		TargetService: r.service,
		Payload: crmsync.SalesOrderPayload{
			Subject:       "Order " + o.OrderNumber,
			OrderNumber:   o.OrderNumber,
			Status:        string(o.Status),
			CustomerEmail: o.CustomerEmail,
			CustomerName:  o.CustomerName,
			PaymentID:     o.PaymentID,
			Subtotal:      o.Subtotal.StringFixed(2),
			Tax:           o.Tax.StringFixed(2),
			Shipping:      o.Shipping.StringFixed(2),
			Discount:      o.Discount.StringFixed(2),
			Total:         o.Total.StringFixed(2),
			Lines:         lines,
		},
	}
}

func splitName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	if i := strings.LastIndex(name, " "); i >= 0 {
		return strings.TrimSpace(name[:i]), name[i+1:]
	}
	return "", name
}

// lastNameOrEmail fills the CRM's mandatory Last_Name when none was given
func lastNameOrEmail(last, email string) string {
	if last != "" {
		return last
	}
	return email
}
