package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/staybook/hotel-booking-backend/internal/apperror"
	"github.com/staybook/hotel-booking-backend/internal/config"
	"github.com/staybook/hotel-booking-backend/internal/metrics"
	"github.com/staybook/hotel-booking-backend/internal/models"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/balance"
	"github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/price"
	"github.com/stripe/stripe-go/v81/product"
	"github.com/stripe/stripe-go/v81/webhook"
)

// MetadataBookingID is the session metadata key that correlates a checkout
// session with its booking
const MetadataBookingID = "bookingId"

// CheckoutSession is the provider-neutral view of a checkout session
type CheckoutSession struct {
	ID            string
	URL           string
	PaymentStatus string
	Paid          bool
	Metadata      map[string]string
}

// StripeService isolates every call to the Stripe API
type StripeService struct {
	config   config.StripeConfig
	logger   *logrus.Logger
	sessions *session.Client
	products *product.Client
	prices   *price.Client
	balances *balance.Client
}

// NewStripeService creates a Stripe client bounded by the configured timeout
func NewStripeService(cfg config.StripeConfig, logger *logrus.Logger) *StripeService {
	backendConfig := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		LeveledLogger:     logger,
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
	}
	if cfg.APIBaseURL != "" {
		backendConfig.URL = stripe.String(cfg.APIBaseURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig)

	return &StripeService{
		config:   cfg,
		logger:   logger,
		sessions: &session.Client{B: backend, Key: cfg.SecretKey},
		products: &product.Client{B: backend, Key: cfg.SecretKey},
		prices:   &price.Client{B: backend, Key: cfg.SecretKey},
		balances: &balance.Client{B: backend, Key: cfg.SecretKey},
	}
}

// IsConfigured checks if the secret key is present
func (s *StripeService) IsConfigured() bool {
	return s.config.SecretKey != ""
}

// Mode returns "test", "live" or "unset" depending on the secret key
func (s *StripeService) Mode() string {
	switch {
	case strings.HasPrefix(s.config.SecretKey, "sk_live_"), strings.HasPrefix(s.config.SecretKey, "rk_live_"):
		return "live"
	case s.config.SecretKey == "":
		return "unset"
	default:
		return "test"
	}
}

// CreateCheckoutSession opens a one-line-item payment session for booking.
// The booking id is embedded in the session metadata and is the only key
// webhooks use to find the booking again.
func (s *StripeService) CreateCheckoutSession(ctx context.Context, booking *models.Booking, hotel *models.Hotel) (*CheckoutSession, error) {
	if !s.IsConfigured() {
		return nil, ClassifyStripeError(ErrStripeNotConfigured)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	bookingID := booking.ID.String()
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(bookingID),
		SuccessURL:        stripe.String(s.config.FrontendURL + "/booking/complete?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(fmt.Sprintf("%s/hotels/%s", s.config.FrontendURL, hotel.ID)),
		LineItems:         []*stripe.CheckoutSessionLineItemParams{s.lineItem(booking, hotel)},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{MetadataBookingID: bookingID},
		},
	}
	params.Context = ctx
	params.AddMetadata(MetadataBookingID, bookingID)
	params.AddMetadata("userId", booking.UserID.String())
	params.AddMetadata("hotelId", hotel.ID.String())

	start := time.Now()
	sess, err := s.sessions.New(params)
	metrics.StripeRequestLatency.WithLabelValues("checkout_session_create").Observe(time.Since(start).Seconds())
	if err != nil {
		classified := ClassifyStripeError(err)
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": bookingID,
			"category":   classified.Category,
			"code":       classified.Code,
		}).Error("Failed to create checkout session")
		return nil, classified
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"session_id": sess.ID,
		"nights":     booking.Nights(),
	}).Info("Checkout session created")

	return toCheckoutSession(sess), nil
}

// lineItem charges the hotel's provisioned price per night, or an inline
// price when the hotel was never migrated
func (s *StripeService) lineItem(booking *models.Booking, hotel *models.Hotel) *stripe.CheckoutSessionLineItemParams {
	nights := booking.Nights()
	if hotel.HasStripePrice() {
		return &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(*hotel.StripePriceID),
			Quantity: stripe.Int64(nights),
		}
	}

	return &stripe.CheckoutSessionLineItemParams{
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(s.config.Currency),
			UnitAmount: stripe.Int64(hotel.PriceCents()),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name:        stripe.String(hotel.Name),
				Description: stripe.String(fmt.Sprintf("%s, room %d", hotel.Location, booking.RoomNumber)),
			},
		},
		Quantity: stripe.Int64(nights),
	}
}

// RetrieveCheckoutSession fetches a session's current payment state
func (s *StripeService) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	if !s.IsConfigured() {
		return nil, ClassifyStripeError(ErrStripeNotConfigured)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	start := time.Now()
	sess, err := s.sessions.Get(sessionID, params)
	metrics.StripeRequestLatency.WithLabelValues("checkout_session_get").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, ClassifyStripeError(err)
	}
	return toCheckoutSession(sess), nil
}

// VerifyWebhook checks a delivery against the configured signing secret
func (s *StripeService) VerifyWebhook(payload []byte, signatureHeader string) (stripe.Event, error) {
	return VerifyWebhookSignature(payload, signatureHeader, s.config.WebhookSecret)
}

// WebhookConfigured checks if the signing secret is present
func (s *StripeService) WebhookConfigured() bool {
	return s.config.WebhookSecret != ""
}

// VerifyWebhookSignature is the trust boundary for inbound events: nothing
// is acted upon unless the payload carries a valid signature for secret
func VerifyWebhookSignature(payload []byte, signatureHeader, secret string) (stripe.Event, error) {
	if secret == "" {
		return stripe.Event{}, apperror.Internal("webhook signing secret is not configured", nil)
	}
	if signatureHeader == "" {
		return stripe.Event{}, apperror.SignatureInvalid(webhook.ErrNotSigned)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, secret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, apperror.SignatureInvalid(err)
	}
	return event, nil
}

// CreateProductAndPrice provisions a product and a per-night price for hotel
func (s *StripeService) CreateProductAndPrice(ctx context.Context, hotel *models.Hotel) (productID, priceID string, err error) {
	if !s.IsConfigured() {
		return "", "", ClassifyStripeError(ErrStripeNotConfigured)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	productParams := &stripe.ProductParams{
		Name:        stripe.String(hotel.Name),
		Description: stripe.String(messageOr(hotel.Description, hotel.Location)),
	}
	if hotel.Image != "" {
		productParams.Images = stripe.StringSlice([]string{hotel.Image})
	}
	productParams.Context = ctx
	productParams.AddMetadata("hotelId", hotel.ID.String())

	prod, err := s.products.New(productParams)
	if err != nil {
		return "", "", ClassifyStripeError(err)
	}

	priceParams := &stripe.PriceParams{
		Product:    stripe.String(prod.ID),
		UnitAmount: stripe.Int64(hotel.PriceCents()),
		Currency:   stripe.String(s.config.Currency),
	}
	priceParams.Context = ctx
	priceParams.AddMetadata("hotelId", hotel.ID.String())

	pr, err := s.prices.New(priceParams)
	if err != nil {
		return prod.ID, "", ClassifyStripeError(err)
	}

	return prod.ID, pr.ID, nil
}

// CheckConnectivity performs an authenticated read against the account balance
func (s *StripeService) CheckConnectivity(ctx context.Context) error {
	if !s.IsConfigured() {
		return ClassifyStripeError(ErrStripeNotConfigured)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	params := &stripe.BalanceParams{}
	params.Context = ctx
	if _, err := s.balances.Get(params); err != nil {
		return ClassifyStripeError(err)
	}
	return nil
}

// Diagnostics reports configuration and connectivity without exposing secrets
func (s *StripeService) Diagnostics(ctx context.Context) map[string]interface{} {
	result := map[string]interface{}{
		"secret_key_configured":     s.IsConfigured(),
		"mode":                      s.Mode(),
		"webhook_secret_configured": s.WebhookConfigured(),
		"frontend_url":              s.config.FrontendURL,
		"currency":                  s.config.Currency,
		"timeout_seconds":           s.config.Timeout.Seconds(),
	}

	if !s.IsConfigured() {
		result["connectivity"] = "skipped"
		return result
	}

	if err := s.CheckConnectivity(ctx); err != nil {
		classified := ClassifyStripeError(err)
		result["connectivity"] = "failed"
		result["error_category"] = classified.Category
		result["error"] = classified.Message
		return result
	}

	result["connectivity"] = "ok"
	return result
}

func toCheckoutSession(sess *stripe.CheckoutSession) *CheckoutSession {
	return &CheckoutSession{
		ID:            sess.ID,
		URL:           sess.URL,
		PaymentStatus: string(sess.PaymentStatus),
		Paid:          sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Metadata:      sess.Metadata,
	}
}
