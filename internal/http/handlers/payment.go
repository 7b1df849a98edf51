package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/databanana-backend/internal/http/middleware"
	"github.com/yungbote/databanana-backend/internal/http/response"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
	"github.com/yungbote/databanana-backend/internal/services"
)

// Stripe payloads are small; anything larger is not a real event.
const maxWebhookBytes = 1 << 16

type PaymentHandler struct {
	log      *logger.Logger
	payments services.PaymentService
}

func NewPaymentHandler(log *logger.Logger, payments services.PaymentService) *PaymentHandler {
	return &PaymentHandler{log: log.With("handler", "PaymentHandler"), payments: payments}
}

// POST /api/payments/checkout
// body: { "amount": 12.50 }
func (ph *PaymentHandler) CreateCheckout(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("not authenticated"))
		return
	}
	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := ph.payments.CreateCheckout(c.Request.Context(), userID, req.Amount)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

// POST /api/payments/webhook
// Public; authenticated by the Stripe-Signature header.
func (ph *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	topUp, err := ph.payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if topUp != nil {
		ph.log.Info("stripe top-up handled", "event_id", topUp.EventID, "applied", topUp.Applied)
	}
	response.RespondOK(c, gin.H{"received": true})
}
