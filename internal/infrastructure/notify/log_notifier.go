// Package notify delivers customer notifications. Delivery channels (email,
// WhatsApp) live outside this service: AMQPPublisher hands confirmations to
// them over the message broker and LogNotifier records what was handed over.
package notify

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/infrastructure/logger"
)

// LogNotifier writes order confirmations to the log
type LogNotifier struct {
	channels []string
	logger   *zap.Logger
}

// NewLogNotifier creates a LogNotifier. channels defaults to email.
func NewLogNotifier(logger *zap.Logger, channels ...string) *LogNotifier {
	if len(channels) == 0 {
		channels = []string{"email"}
	}
	return &LogNotifier{channels: channels, logger: logger}
}

// OrderConfirmed implements order.Notifier
func (n *LogNotifier) OrderConfirmed(ctx context.Context, c order.Confirmation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.For(ctx, n.logger).Info("Order confirmation queued for delivery",
		zap.String("order_id", c.OrderID.String()),
		zap.String("order_number", c.OrderNumber),
		zap.String("recipient", maskEmail(c.CustomerEmail)),
		zap.String("total", c.Total),
		zap.Strings("channels", n.channels),
	)
	return nil
}

// maskEmail keeps the first character of the local part and the domain
func maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

var _ order.Notifier = (*LogNotifier)(nil)
