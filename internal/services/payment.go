package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/yungbote/databanana-backend/internal/data/repos"
	"github.com/yungbote/databanana-backend/internal/domain"
	"github.com/yungbote/databanana-backend/internal/pipeline"
	"github.com/yungbote/databanana-backend/internal/platform/apierr"
	"github.com/yungbote/databanana-backend/internal/platform/dbctx"
	"github.com/yungbote/databanana-backend/internal/platform/envutil"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
)

const (
	minTopUpCents = 100
	maxTopUpCents = 100000
)

type PaymentConfig struct {
	SecretKey     string
	WebhookSecret string
	FrontendURL   string
}

func LoadPaymentConfig() PaymentConfig {
	return PaymentConfig{
		SecretKey:     envutil.String("STRIPE_SECRET_KEY", ""),
		WebhookSecret: envutil.String("STRIPE_WEBHOOK_SECRET", ""),
		FrontendURL:   strings.TrimRight(envutil.String("FRONTEND_URL", "http://localhost:5173"), "/"),
	}
}

type CheckoutResult struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

type TopUp struct {
	EventID     string    `json:"event_id"`
	UserID      uuid.UUID `json:"user_id"`
	AmountCents int64     `json:"amount_cents"`
	Applied     bool      `json:"applied"`
}

type PaymentService interface {
	CreateCheckout(ctx context.Context, userID uuid.UUID, amountDollars float64) (*CheckoutResult, error)
	// HandleWebhook verifies the Stripe signature and credits completed
	// checkouts. A redelivered event credits nothing the second time.
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*TopUp, error)
}

type paymentService struct {
	log    *logger.Logger
	ledger repos.LedgerRepo
	cfg    PaymentConfig
	create func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func NewPaymentService(baseLog *logger.Logger, ledger repos.LedgerRepo, cfg PaymentConfig) PaymentService {
	if cfg.SecretKey != "" {
		stripe.Key = cfg.SecretKey
	}
	return &paymentService{
		log:    baseLog.With("service", "PaymentService"),
		ledger: ledger,
		cfg:    cfg,
		create: session.New,
	}
}

func (s *paymentService) CreateCheckout(ctx context.Context, userID uuid.UUID, amountDollars float64) (*CheckoutResult, error) {
	if s.cfg.SecretKey == "" {
		return nil, apierr.New(http.StatusServiceUnavailable, "billing_unavailable", fmt.Errorf("billing not configured"))
	}
	cents := int64(math.Round(amountDollars * 100))
	if cents < minTopUpCents || cents > maxTopUpCents {
		return nil, apierr.New(http.StatusBadRequest, "invalid_request",
			fmt.Errorf("amount must be between %s and %s", pipeline.FormatDollars(minTopUpCents), pipeline.FormatDollars(maxTopUpCents)))
	}
	label := pipeline.FormatDollars(cents)

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(userID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyUSD)),
					UnitAmount: stripe.Int64(cents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String("Databanana Credits - " + label),
						Description: stripe.String("Add " + label + " to your account balance"),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(s.cfg.FrontendURL + "/account?payment=success"),
		CancelURL:  stripe.String(s.cfg.FrontendURL + "/account?payment=cancelled"),
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID.String())
	params.AddMetadata("amount_cents", strconv.FormatInt(cents, 10))

	sess, err := s.create(params)
	if err != nil {
		s.log.Error("stripe checkout session failed", "user_id", userID, "error", err)
		return nil, apierr.New(http.StatusBadGateway, "checkout_failed", fmt.Errorf("failed to create checkout session"))
	}
	return &CheckoutResult{SessionID: sess.ID, CheckoutURL: sess.URL}, nil
}

func (s *paymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*TopUp, error) {
	if s.cfg.WebhookSecret == "" {
		return nil, apierr.New(http.StatusServiceUnavailable, "billing_unavailable", fmt.Errorf("webhook not configured"))
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, apierr.New(http.StatusBadRequest, "invalid_signature", fmt.Errorf("signature verification failed: %w", err))
	}
	if event.Type != "checkout.session.completed" {
		return nil, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, apierr.New(http.StatusBadRequest, "invalid_request", fmt.Errorf("invalid session payload: %w", err))
	}
	if sess.PaymentStatus != "" && sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		s.log.Info("checkout completed without payment", "event_id", event.ID, "payment_status", sess.PaymentStatus)
		return nil, nil
	}

	ref := sess.ClientReferenceID
	if ref == "" {
		ref = sess.Metadata["user_id"]
	}
	userID, err := uuid.Parse(ref)
	if err != nil {
		return nil, apierr.New(http.StatusBadRequest, "invalid_request", fmt.Errorf("session missing user reference"))
	}
	cents := sess.AmountTotal
	if cents <= 0 {
		cents, _ = strconv.ParseInt(sess.Metadata["amount_cents"], 10, 64)
	}
	if cents <= 0 {
		return nil, apierr.New(http.StatusBadRequest, "invalid_request", fmt.Errorf("session missing amount"))
	}

	applied, err := s.ledger.Apply(dbctx.New(ctx), userID, cents, "stripe:"+event.ID, domain.LedgerReasonTopUp)
	if err != nil {
		s.log.Error("top-up failed", "event_id", event.ID, "user_id", userID, "error", err)
		return nil, mapDomainError(err)
	}
	s.log.Info("credits topped up", "event_id", event.ID, "user_id", userID, "amount_cents", cents, "applied", applied)
	return &TopUp{EventID: event.ID, UserID: userID, AmountCents: cents, Applied: applied}, nil
}
