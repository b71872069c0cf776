package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/staybook/hotel-booking-backend/internal/middleware"
	"github.com/staybook/hotel-booking-backend/internal/models"
	"github.com/staybook/hotel-booking-backend/internal/services"
)

// IdempotencyKeyHeader lets clients retry booking creation safely
const IdempotencyKeyHeader = "Idempotency-Key"

// BookingManager is the booking lifecycle as seen by HTTP handlers
type BookingManager interface {
	Create(ctx context.Context, userID uuid.UUID, req *models.CreateBookingRequest, idempotencyKey string) (*models.CheckoutResult, error)
	Get(ctx context.Context, bookingID uuid.UUID, requester services.Requester) (*models.Booking, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.Booking, error)
	ListMine(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Booking, error)
	ListAll(ctx context.Context, limit, offset int) ([]*models.Booking, error)
	Cancel(ctx context.Context, bookingID uuid.UUID, requester services.Requester) (*models.Booking, error)
	Update(ctx context.Context, bookingID uuid.UUID, requester services.Requester, req *models.UpdateBookingRequest) (*models.Booking, error)
	RetryCheckout(ctx context.Context, bookingID uuid.UUID, requester services.Requester) (*models.CheckoutResult, error)
	Confirm(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)
	SetStatus(ctx context.Context, bookingID uuid.UUID, status string) (*models.Booking, error)
}

// BookingHandler handles booking HTTP requests
type BookingHandler struct {
	bookings BookingManager
	logger   *logrus.Logger
	errorResponder
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookings BookingManager, logger *logrus.Logger, exposeErrorDetails bool) *BookingHandler {
	return &BookingHandler{
		bookings:       bookings,
		logger:         logger,
		errorResponder: errorResponder{logger: logger, exposeDetails: exposeErrorDetails},
	}
}

// CreateBooking handles POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	user := middleware.MustGetUserContext(c)

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	result, err := h.bookings.Create(c.Request.Context(), user.UserID, &req, key)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// GetMyBookings handles GET /api/v1/bookings/me
func (h *BookingHandler) GetMyBookings(c *gin.Context) {
	user := middleware.MustGetUserContext(c)

	limit, offset, ok := h.pagination(c)
	if !ok {
		return
	}

	bookings, err := h.bookings.ListMine(c.Request.Context(), user.UserID, limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"total":    len(bookings),
	})
}

// ListBookings handles GET /api/v1/bookings
func (h *BookingHandler) ListBookings(c *gin.Context) {
	limit, offset, ok := h.pagination(c)
	if !ok {
		return
	}

	bookings, err := h.bookings.ListAll(c.Request.Context(), limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"total":    len(bookings),
	})
}

// GetBookingBySession handles GET /api/v1/bookings/session/:sessionId
func (h *BookingHandler) GetBookingBySession(c *gin.Context) {
	booking, err := h.bookings.GetBySessionID(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// GetBooking handles GET /api/v1/bookings/:bookingId
func (h *BookingHandler) GetBooking(c *gin.Context) {
	bookingID, ok := h.paramUUID(c, "bookingId")
	if !ok {
		return
	}

	booking, err := h.bookings.Get(c.Request.Context(), bookingID, requesterOf(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// CancelBooking handles PATCH /api/v1/bookings/:bookingId/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	bookingID, ok := h.paramUUID(c, "bookingId")
	if !ok {
		return
	}

	booking, err := h.bookings.Cancel(c.Request.Context(), bookingID, requesterOf(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// UpdateBooking handles PATCH /api/v1/bookings/:bookingId
func (h *BookingHandler) UpdateBooking(c *gin.Context) {
	bookingID, ok := h.paramUUID(c, "bookingId")
	if !ok {
		return
	}

	var req models.UpdateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	booking, err := h.bookings.Update(c.Request.Context(), bookingID, requesterOf(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// RetryCheckout handles POST /api/v1/bookings/:bookingId/checkout
func (h *BookingHandler) RetryCheckout(c *gin.Context) {
	bookingID, ok := h.paramUUID(c, "bookingId")
	if !ok {
		return
	}

	result, err := h.bookings.RetryCheckout(c.Request.Context(), bookingID, requesterOf(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ConfirmBooking handles PATCH /api/v1/bookings/:bookingId/confirm (admin)
func (h *BookingHandler) ConfirmBooking(c *gin.Context) {
	bookingID, ok := h.paramUUID(c, "bookingId")
	if !ok {
		return
	}

	booking, err := h.bookings.Confirm(c.Request.Context(), bookingID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"operator":   operatorOf(c),
	}).Info("Booking force-confirmed by operator")

	c.JSON(http.StatusOK, booking)
}

// SetBookingStatus handles PATCH /api/v1/bookings/:bookingId/status (admin)
func (h *BookingHandler) SetBookingStatus(c *gin.Context) {
	bookingID, ok := h.paramUUID(c, "bookingId")
	if !ok {
		return
	}

	var req models.SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	booking, err := h.bookings.SetStatus(c.Request.Context(), bookingID, req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"status":     booking.Status,
		"operator":   operatorOf(c),
	}).Info("Booking status overridden by operator")

	c.JSON(http.StatusOK, booking)
}

func requesterOf(c *gin.Context) services.Requester {
	user := middleware.MustGetUserContext(c)
	return services.Requester{UserID: user.UserID, IsAdmin: user.IsAdmin()}
}

func operatorOf(c *gin.Context) string {
	user, ok := middleware.GetUserContext(c)
	switch {
	case !ok:
		return "unknown"
	case user.ViaAdminKey:
		return "admin-key"
	default:
		return user.UserID.String()
	}
}
