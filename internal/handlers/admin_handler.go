package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/staybook/hotel-booking-backend/internal/models"
	"github.com/staybook/hotel-booking-backend/internal/services"
)

// PaymentAuditReader lists the audit trail of a booking
type PaymentAuditReader interface {
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*models.PaymentAudit, error)
}

// SweepRunner runs and reports pending-session sweeps
type SweepRunner interface {
	Sweep(ctx context.Context) *services.SweepSummary
	Status() services.SweeperStatus
}

// AdminHandler handles operator reconciliation endpoints
type AdminHandler struct {
	audits  PaymentAuditReader
	sweeper SweepRunner
	logger  *logrus.Logger
	errorResponder
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(audits PaymentAuditReader, sweeper SweepRunner, logger *logrus.Logger, exposeErrorDetails bool) *AdminHandler {
	return &AdminHandler{
		audits:         audits,
		sweeper:        sweeper,
		logger:         logger,
		errorResponder: errorResponder{logger: logger, exposeDetails: exposeErrorDetails},
	}
}

// GetPaymentAudits handles GET /api/v1/admin/bookings/:bookingId/payment-audits
func (h *AdminHandler) GetPaymentAudits(c *gin.Context) {
	bookingID, ok := h.paramUUID(c, "bookingId")
	if !ok {
		return
	}

	audits, err := h.audits.ListByBooking(c.Request.Context(), bookingID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"booking_id": bookingID,
		"audits":     audits,
		"total":      len(audits),
	})
}

// RunReconcile handles POST /api/v1/admin/reconcile/run
func (h *AdminHandler) RunReconcile(c *gin.Context) {
	h.logger.WithField("operator", operatorOf(c)).Info("Manual reconcile sweep requested")

	summary := h.sweeper.Sweep(c.Request.Context())
	if summary.Skipped {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "conflict",
			"message": "A reconcile sweep is already running",
			"summary": summary,
		})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// GetReconcileStatus handles GET /api/v1/admin/reconcile/status
func (h *AdminHandler) GetReconcileStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.sweeper.Status())
}
