package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apppayment "github.com/storefront/backend/internal/application/payment"
	domainpayment "github.com/storefront/backend/internal/domain/payment"
	infrapayment "github.com/storefront/backend/internal/infrastructure/payment"
	"github.com/storefront/backend/internal/interfaces/http/dto"
)

// WebhookMaxBodyBytes bounds a gateway callback body
const WebhookMaxBodyBytes = 64 << 10

// WebhookProcessor resolves one verified or unverified gateway callback
type WebhookProcessor interface {
	Handle(ctx context.Context, n *domainpayment.Notification) (*apppayment.Result, error)
}

// PaymentWebhookHandler receives payment gateway callbacks. The endpoint is
// unauthenticated; the payload signature is the only credential.
type PaymentWebhookHandler struct {
	BaseHandler
	processor WebhookProcessor
	logger    *zap.Logger
}

// NewPaymentWebhookHandler creates a new PaymentWebhookHandler
func NewPaymentWebhookHandler(processor WebhookProcessor, logger *zap.Logger) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{processor: processor, logger: logger}
}

// HandleEasebuzz godoc
//
// Every resolved delivery, including a rejected signature, is acknowledged
// with 200 so the gateway stops retrying. Only malformed payloads (400) and
// transient failures (500, safe to retry) answer otherwise.
//
//	@ID				handleEasebuzzPaymentWebhook
//	@Summary		Handle Easebuzz payment callback
//	@Description	Verify an Easebuzz server-to-server callback and confirm or fail the order it references
//	@Tags			payment-webhooks
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			txnid		formData	string				true	"Gateway transaction id"
//	@Param			status		formData	string				true	"Payment status"
//	@Param			easepayid	formData	string				true	"Easebuzz payment id"
//	@Param			udf1		formData	string				true	"Order id set at checkout"
//	@Param			hash		formData	string				true	"SHA-512 reverse hash"
//	@Param			amount		formData	string				false	"Amount"
//	@Param			mode		formData	string				false	"Payment mode"
//	@Success		200			{object}	dto.WebhookAck		"Delivery handled"
//	@Failure		400			{object}	dto.Response		"Malformed payload"
//	@Failure		413			{object}	dto.Response		"Body too large"
//	@Failure		500			{object}	dto.Response		"Transient failure, retry"
//	@Router			/payments/easebuzz/webhook [post]
func (h *PaymentWebhookHandler) HandleEasebuzz(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Callback body too large")
			return
		}
		h.logger.Warn("Unparseable payment callback body", zap.Error(err))
		h.BadRequest(c, "Unparseable callback body")
		return
	}

	n := infrapayment.ParseEasebuzzForm(c.Request.PostForm)
	if _, err := h.processor.Handle(c.Request.Context(), n); err != nil {
		if errors.Is(err, apppayment.ErrInvalidPayload) {
			h.HandleError(c, err)
			return
		}
		h.logger.Error("Payment callback processing failed",
			zap.String("txnid", n.TxnID),
			zap.String("easepayid", n.EasepayID),
			zap.Error(err),
		)
		h.InternalError(c, "Callback could not be processed")
		return
	}

	c.JSON(http.StatusOK, dto.WebhookAck{Received: true})
}
