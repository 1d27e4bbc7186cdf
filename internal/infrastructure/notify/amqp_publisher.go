package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/infrastructure/config"
)

// EventOrderConfirmed is the event type header on published confirmations
const EventOrderConfirmed = "order.confirmed"

// ErrPublisherClosed is returned after Close
var ErrPublisherClosed = errors.New("order event publisher is closed")

// OrderConfirmedEvent is the message body consumed by the delivery services
type OrderConfirmedEvent struct {
	EventID       uuid.UUID `json:"event_id"`
	OccurredAt    time.Time `json:"occurred_at"`
	OrderID       uuid.UUID `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	CustomerEmail string    `json:"customer_email"`
	CustomerName  string    `json:"customer_name,omitempty"`
	CustomerPhone string    `json:"customer_phone,omitempty"`
	Total         string    `json:"total"`
	PaymentID     string    `json:"payment_id,omitempty"`
	Channels      []string  `json:"channels"`
}

// amqpChannel is the part of *amqp.Channel the publisher uses
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes order confirmations to a topic exchange
type AMQPPublisher struct {
	mu         sync.Mutex
	conn       *amqp.Connection
	channel    amqpChannel
	exchange   string
	routingKey string
	channels   []string
	now        func() time.Time
	logger     *zap.Logger
	closed     bool
}

// NewAMQPPublisher dials the broker and declares a durable topic exchange
func NewAMQPPublisher(cfg config.NotifyConfig, logger *zap.Logger) (*AMQPPublisher, error) {
	if cfg.AMQPURL == "" {
		return nil, errors.New("notify.amqp_url is required")
	}
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("connect to message broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open broker channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	p := newAMQPPublisher(ch, cfg, logger)
	p.conn = conn
	logger.Info("Order events publishing to broker",
		zap.String("exchange", cfg.Exchange),
		zap.String("routing_key", cfg.RoutingKey))
	return p, nil
}

func newAMQPPublisher(ch amqpChannel, cfg config.NotifyConfig, logger *zap.Logger) *AMQPPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AMQPPublisher{
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		channels:   cfg.Channels,
		now:        time.Now,
		logger:     logger,
	}
}

// OrderConfirmed implements order.Notifier
func (p *AMQPPublisher) OrderConfirmed(ctx context.Context, c order.Confirmation) error {
	event := OrderConfirmedEvent{
		EventID:       uuid.New(),
		OccurredAt:    p.now().UTC(),
		OrderID:       c.OrderID,
		OrderNumber:   c.OrderNumber,
		CustomerEmail: c.CustomerEmail,
		CustomerName:  c.CustomerName,
		CustomerPhone: c.CustomerPhone,
		Total:         c.Total,
		PaymentID:     c.PaymentID,
		Channels:      p.channels,
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode order event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	err = p.channel.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		MessageId:    event.EventID.String(),
		Timestamp:    event.OccurredAt,
		DeliveryMode: amqp.Persistent,
		Type:         EventOrderConfirmed,
		Headers:      amqp.Table{"order_id": c.OrderID.String()},
	})
	if err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	p.logger.Debug("Order event published",
		zap.String("order_id", c.OrderID.String()),
		zap.String("event_id", event.EventID.String()))
	return nil
}

// Close closes the channel and the connection
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if err := p.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, err)
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ order.Notifier = (*AMQPPublisher)(nil)
