package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/staybook/hotel-booking-backend/internal/apperror"
	"github.com/staybook/hotel-booking-backend/internal/config"
	"github.com/staybook/hotel-booking-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestStripeService(t *testing.T, handler http.HandlerFunc) *StripeService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewStripeService(config.StripeConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: testWebhookSecret,
		Currency:      "usd",
		Timeout:       5 * time.Second,
		FrontendURL:   "http://localhost:5173",
		APIBaseURL:    server.URL,
	}, quietLogger())
}

func sampleBookingAndHotel() (*models.Booking, *models.Hotel) {
	checkIn := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	hotel := &models.Hotel{
		ID:       uuid.New(),
		Name:     "Harbour View",
		Location: "Lisbon",
		Price:    120.5,
	}
	booking := &models.Booking{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		HotelID:    hotel.ID,
		CheckIn:    checkIn,
		CheckOut:   checkIn.AddDate(0, 0, 3),
		RoomNumber: 12,
		Status:     models.BookingStatusPending,
	}
	return booking, hotel
}

func TestStripeService_CreateCheckoutSession(t *testing.T) {
	booking, hotel := sampleBookingAndHotel()

	var form map[string][]string
	svc := newTestStripeService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cs_test_123",
			"object": "checkout.session",
			"url": "https://checkout.stripe.com/c/pay/cs_test_123",
			"payment_status": "unpaid",
			"metadata": {"bookingId": "` + booking.ID.String() + `"}
		}`))
	})

	sess, err := svc.CreateCheckoutSession(context.Background(), booking, hotel)
	require.NoError(t, err)

	assert.Equal(t, "cs_test_123", sess.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_123", sess.URL)
	assert.False(t, sess.Paid)
	assert.Equal(t, booking.ID.String(), sess.Metadata[MetadataBookingID])

	assert.Equal(t, "payment", form["mode"][0])
	assert.Equal(t, booking.ID.String(), form["metadata[bookingId]"][0])
	assert.Equal(t, booking.ID.String(), form["client_reference_id"][0])
	assert.Equal(t, "3", form["line_items[0][quantity]"][0])
	assert.Equal(t, "12050", form["line_items[0][price_data][unit_amount]"][0])
	assert.Equal(t, "usd", form["line_items[0][price_data][currency]"][0])
	assert.Equal(t, "http://localhost:5173/booking/complete?session_id={CHECKOUT_SESSION_ID}", form["success_url"][0])
	assert.Equal(t, "http://localhost:5173/hotels/"+hotel.ID.String(), form["cancel_url"][0])
}

func TestStripeService_CreateCheckoutSession_ProvisionedPrice(t *testing.T) {
	booking, hotel := sampleBookingAndHotel()
	priceID := "price_123"
	hotel.StripePriceID = &priceID

	var form map[string][]string
	svc := newTestStripeService(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		_, _ = w.Write([]byte(`{"id": "cs_test_456", "object": "checkout.session", "url": "https://checkout.stripe.com/c/pay/cs_test_456"}`))
	})

	_, err := svc.CreateCheckoutSession(context.Background(), booking, hotel)
	require.NoError(t, err)

	assert.Equal(t, "price_123", form["line_items[0][price]"][0])
	assert.Equal(t, "3", form["line_items[0][quantity]"][0])
	assert.Empty(t, form["line_items[0][price_data][unit_amount]"])
}

func TestStripeService_CreateCheckoutSession_CardError(t *testing.T) {
	booking, hotel := sampleBookingAndHotel()

	svc := newTestStripeService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error": {
			"type": "card_error",
			"code": "card_declined",
			"decline_code": "insufficient_funds",
			"message": "Your card has insufficient funds."
		}}`))
	})

	sess, err := svc.CreateCheckoutSession(context.Background(), booking, hotel)
	require.Error(t, err)
	assert.Nil(t, sess)

	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KindPaymentProvider, appErr.Kind)
	assert.Equal(t, PaymentErrorCard, appErr.Category)
	assert.Equal(t, "insufficient_funds", appErr.Code)
	assert.Equal(t, http.StatusPaymentRequired, appErr.Status)
	assert.Equal(t, "Your card has insufficient funds.", appErr.Message)
}

func TestStripeService_CreateCheckoutSession_InvalidKey(t *testing.T) {
	booking, hotel := sampleBookingAndHotel()

	svc := newTestStripeService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"type": "invalid_request_error", "message": "Invalid API Key provided: sk_test_***123"}}`))
	})

	_, err := svc.CreateCheckoutSession(context.Background(), booking, hotel)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, PaymentErrorAuthentication, appErr.Category)
	assert.Equal(t, http.StatusUnauthorized, appErr.Status)
}

func TestStripeService_NotConfigured(t *testing.T) {
	svc := NewStripeService(config.StripeConfig{Timeout: time.Second}, quietLogger())
	booking, hotel := sampleBookingAndHotel()

	assert.False(t, svc.IsConfigured())
	assert.Equal(t, "unset", svc.Mode())

	_, err := svc.CreateCheckoutSession(context.Background(), booking, hotel)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, PaymentErrorAuthentication, appErr.Category)

	diag := svc.Diagnostics(context.Background())
	assert.Equal(t, "skipped", diag["connectivity"])
	assert.Equal(t, false, diag["webhook_secret_configured"])
}

func TestStripeService_Mode(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"sk_test_abc", "test"},
		{"sk_live_abc", "live"},
		{"rk_live_abc", "live"},
		{"", "unset"},
	}
	for _, tt := range tests {
		svc := NewStripeService(config.StripeConfig{SecretKey: tt.key, Timeout: time.Second}, quietLogger())
		assert.Equal(t, tt.want, svc.Mode(), tt.key)
	}
}

func TestStripeService_RetrieveCheckoutSession(t *testing.T) {
	svc := newTestStripeService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v1/checkout/sessions/cs_test_paid", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": "cs_test_paid", "object": "checkout.session", "payment_status": "paid", "metadata": {"bookingId": "b-1"}}`))
	})

	sess, err := svc.RetrieveCheckoutSession(context.Background(), "cs_test_paid")
	require.NoError(t, err)
	assert.True(t, sess.Paid)
	assert.Equal(t, "paid", sess.PaymentStatus)
	assert.Equal(t, "b-1", sess.Metadata[MetadataBookingID])
}

func TestStripeService_Diagnostics(t *testing.T) {
	svc := newTestStripeService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/balance", r.URL.Path)
		_, _ = w.Write([]byte(`{"object": "balance", "available": [], "pending": []}`))
	})

	diag := svc.Diagnostics(context.Background())
	assert.Equal(t, "ok", diag["connectivity"])
	assert.Equal(t, "test", diag["mode"])
	assert.Equal(t, true, diag["secret_key_configured"])

	raw, err := json.Marshal(diag)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk_test_123")
	assert.NotContains(t, string(raw), testWebhookSecret)
}

func TestStripeService_CreateProductAndPrice(t *testing.T) {
	_, hotel := sampleBookingAndHotel()

	svc := newTestStripeService(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		switch r.URL.Path {
		case "/v1/products":
			assert.Equal(t, "Harbour View", r.PostForm.Get("name"))
			_, _ = w.Write([]byte(`{"id": "prod_1", "object": "product"}`))
		case "/v1/prices":
			assert.Equal(t, "prod_1", r.PostForm.Get("product"))
			assert.Equal(t, "12050", r.PostForm.Get("unit_amount"))
			_, _ = w.Write([]byte(`{"id": "price_1", "object": "price"}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	productID, priceID, err := svc.CreateProductAndPrice(context.Background(), hotel)
	require.NoError(t, err)
	assert.Equal(t, "prod_1", productID)
	assert.Equal(t, "price_1", priceID)
}

func TestStripeService_CreateProductAndPrice_Timeout(t *testing.T) {
	_, hotel := sampleBookingAndHotel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	svc := NewStripeService(config.StripeConfig{
		SecretKey:  "sk_test_123",
		Currency:   "usd",
		Timeout:    100 * time.Millisecond,
		APIBaseURL: server.URL,
	}, quietLogger())

	start := time.Now()
	_, _, err := svc.CreateProductAndPrice(context.Background(), hotel)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KindPaymentProvider, appErr.Kind)
	assert.Equal(t, PaymentErrorConnection, appErr.Category)
}

func signedPayload(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	}).Header
}

func TestVerifyWebhookSignature(t *testing.T) {
	payload := []byte(`{"id": "evt_1", "object": "event", "type": "checkout.session.completed", "data": {"object": {"id": "cs_1"}}}`)

	t.Run("Valid signature", func(t *testing.T) {
		event, err := VerifyWebhookSignature(payload, signedPayload(t, payload, testWebhookSecret), testWebhookSecret)
		require.NoError(t, err)
		assert.Equal(t, "evt_1", event.ID)
		assert.Equal(t, "checkout.session.completed", string(event.Type))
	})

	t.Run("Wrong secret", func(t *testing.T) {
		_, err := VerifyWebhookSignature(payload, signedPayload(t, payload, "whsec_other"), testWebhookSecret)
		assert.True(t, apperror.Is(err, apperror.KindSignatureInvalid))
	})

	t.Run("Tampered payload", func(t *testing.T) {
		header := signedPayload(t, payload, testWebhookSecret)
		tampered := []byte(`{"id": "evt_2", "object": "event", "type": "checkout.session.completed", "data": {"object": {"id": "cs_1"}}}`)
		_, err := VerifyWebhookSignature(tampered, header, testWebhookSecret)
		assert.True(t, apperror.Is(err, apperror.KindSignatureInvalid))
	})

	t.Run("Missing header", func(t *testing.T) {
		_, err := VerifyWebhookSignature(payload, "", testWebhookSecret)
		assert.True(t, apperror.Is(err, apperror.KindSignatureInvalid))
	})

	t.Run("Secret not configured", func(t *testing.T) {
		_, err := VerifyWebhookSignature(payload, signedPayload(t, payload, testWebhookSecret), "")
		assert.True(t, apperror.Is(err, apperror.KindInternal))
		assert.Equal(t, http.StatusInternalServerError, apperror.StatusOf(err))
	})
}
