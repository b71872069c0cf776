package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/staybook/hotel-booking-backend/internal/apperror"
	"github.com/staybook/hotel-booking-backend/internal/models"
	"github.com/staybook/hotel-booking-backend/internal/services"
	"github.com/staybook/hotel-booking-backend/internal/utils"
	"github.com/stripe/stripe-go/v81"
)

// StripeSignatureHeader carries the webhook signature
const StripeSignatureHeader = "Stripe-Signature"

// maxWebhookBytes bounds the webhook body read before verification
const maxWebhookBytes = 64 << 10

// WebhookVerifier authenticates inbound provider deliveries
type WebhookVerifier interface {
	VerifyWebhook(payload []byte, signatureHeader string) (stripe.Event, error)
	WebhookConfigured() bool
}

// EventReconciler applies verified provider events
type EventReconciler interface {
	HandleEvent(ctx context.Context, event stripe.Event, meta services.RequestMeta) (services.WebhookOutcome, error)
}

// PaymentDiagnostics reports the payment provider configuration
type PaymentDiagnostics interface {
	Diagnostics(ctx context.Context) map[string]interface{}
}

// PaymentHandler handles the payment provider webhook and diagnostics
type PaymentHandler struct {
	verifier    WebhookVerifier
	reconciler  EventReconciler
	audits      services.PaymentAuditLogger
	diagnostics PaymentDiagnostics
	logger      *logrus.Logger
	errorResponder
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(
	verifier WebhookVerifier,
	reconciler EventReconciler,
	audits services.PaymentAuditLogger,
	diagnostics PaymentDiagnostics,
	logger *logrus.Logger,
	exposeErrorDetails bool,
) *PaymentHandler {
	return &PaymentHandler{
		verifier:       verifier,
		reconciler:     reconciler,
		audits:         audits,
		diagnostics:    diagnostics,
		logger:         logger,
		errorResponder: errorResponder{logger: logger, exposeDetails: exposeErrorDetails},
	}
}

// HandleWebhook handles POST /api/v1/payments/webhook.
// The body is read raw since the signature covers the exact bytes.
func (h *PaymentHandler) HandleWebhook(c *gin.Context) {
	meta := services.RequestMeta{
		IP:        utils.GetRealIP(c),
		UserAgent: utils.GetUserAgent(c),
	}
	meta.Device = utils.DeviceLabel(meta.UserAgent)
	log := h.logger.WithField("ip", meta.IP)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes)
	payload, err := c.GetRawData()
	if err != nil {
		log.WithError(err).Warn("Failed to read webhook body")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   string(apperror.KindValidation),
			Message: "Unable to read request body",
		})
		return
	}

	signature := c.GetHeader(StripeSignatureHeader)
	if signature == "" {
		log.Warn("Webhook rejected: missing signature header")
		h.auditRejection(c.Request.Context(), "missing signature header", meta)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   string(apperror.KindSignatureInvalid),
			Message: "Missing " + StripeSignatureHeader + " header",
			Code:    "MISSING_SIGNATURE",
		})
		return
	}

	if !h.verifier.WebhookConfigured() {
		log.Error("Webhook received but STRIPE_WEBHOOK_SECRET is not configured")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   string(apperror.KindInternal),
			Message: "Webhook signing secret is not configured",
			Code:    "WEBHOOK_NOT_CONFIGURED",
		})
		return
	}

	event, err := h.verifier.VerifyWebhook(payload, signature)
	if err != nil {
		if apperror.Is(err, apperror.KindSignatureInvalid) {
			log.WithError(err).Warn("Webhook rejected: invalid signature")
			h.auditRejection(c.Request.Context(), err.Error(), meta)
		}
		h.respondError(c, err)
		return
	}

	// Failures past verification are recorded by the reconciler and
	// acknowledged so the provider stops redelivering
	outcome, err := h.reconciler.HandleEvent(c.Request.Context(), event, meta)
	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"event_id":   event.ID,
			"event_type": event.Type,
			"outcome":    outcome,
		}).Error("Webhook acknowledged without reconciliation")
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// GetDiagnostics handles GET /api/v1/payments/diagnostics (admin)
func (h *PaymentHandler) GetDiagnostics(c *gin.Context) {
	c.JSON(http.StatusOK, h.diagnostics.Diagnostics(c.Request.Context()))
}

func (h *PaymentHandler) auditRejection(ctx context.Context, reason string, meta services.RequestMeta) {
	entry := models.NewPaymentAudit(models.PaymentEventSignatureRejected, models.PaymentSourceStripeWebhook).
		SetError(reason, "SIGNATURE_INVALID").
		SetMetadata(meta.IP, meta.UserAgent, meta.Device)
	if err := h.audits.Log(ctx, entry); err != nil {
		h.logger.WithError(err).Error("Failed to record signature rejection")
	}
}
