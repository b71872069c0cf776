package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/staybook/hotel-booking-backend/internal/apperror"
	"github.com/staybook/hotel-booking-backend/internal/cache"
	"github.com/staybook/hotel-booking-backend/internal/metrics"
	"github.com/staybook/hotel-booking-backend/internal/models"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// errNoLongerPending marks a booking that left PENDING while its checkout
// session was being created
var errNoLongerPending = errors.New("booking is no longer pending")

// BookingStore persists bookings. Guarded updates return (nil, nil) when the
// guard matched no row.
type BookingStore interface {
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.Booking, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Booking, error)
	ListAll(ctx context.Context, limit, offset int) ([]*models.Booking, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*models.Booking, error)
	AttachSession(ctx context.Context, id uuid.UUID, sessionID, checkoutURL string) (*models.Booking, error)
	Cancel(ctx context.Context, id, userID uuid.UUID) (*models.Booking, error)
	UpdateDetails(ctx context.Context, id, userID uuid.UUID, checkIn, checkOut time.Time, roomNumber int) (*models.Booking, error)
	MarkPaid(ctx context.Context, id uuid.UUID, sessionID string) (*models.Booking, bool, error)
	MarkPaymentFailed(ctx context.Context, id uuid.UUID) (*models.Booking, bool, error)
	Confirm(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	SetStatus(ctx context.Context, id uuid.UUID, status models.BookingStatus) (*models.Booking, error)
}

// HotelCatalog resolves hotels, nil when absent
type HotelCatalog interface {
	GetHotelByID(ctx context.Context, id uuid.UUID) (*models.Hotel, error)
}

// PaymentGateway creates and inspects checkout sessions
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, booking *models.Booking, hotel *models.Hotel) (*CheckoutSession, error)
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
}

// PaymentAuditLogger records payment audit entries
type PaymentAuditLogger interface {
	Log(ctx context.Context, audit *models.PaymentAudit) error
}

// EventPublisher publishes booking events
type EventPublisher interface {
	PublishBookingEvent(ctx context.Context, event *models.BookingEvent) error
}

// IdempotencyStore remembers which booking an Idempotency-Key produced
type IdempotencyStore interface {
	ClaimIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (uuid.UUID, bool, error)
	CompleteIdempotencyKey(ctx context.Context, userID uuid.UUID, key string, bookingID uuid.UUID) error
	ReleaseIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) error
}

// Requester identifies the caller of a booking operation
type Requester struct {
	UserID  uuid.UUID
	IsAdmin bool
}

// BookingService owns the booking lifecycle
type BookingService struct {
	bookings    BookingStore
	hotels      HotelCatalog
	payments    PaymentGateway
	audits      PaymentAuditLogger
	events      EventPublisher
	idempotency IdempotencyStore
	logger      *logrus.Logger
}

// NewBookingService creates a new BookingService
func NewBookingService(
	bookings BookingStore,
	hotels HotelCatalog,
	payments PaymentGateway,
	audits PaymentAuditLogger,
	events EventPublisher,
	idempotency IdempotencyStore,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		bookings:    bookings,
		hotels:      hotels,
		payments:    payments,
		audits:      audits,
		events:      events,
		idempotency: idempotency,
		logger:      logger,
	}
}

// Create persists a PENDING booking and opens a checkout session for it.
// A provider failure does not fail the request: the booking is returned
// without a session and with a payment error descriptor.
func (s *BookingService) Create(ctx context.Context, userID uuid.UUID, req *models.CreateBookingRequest, idempotencyKey string) (*models.CheckoutResult, error) {
	hotelID, err := uuid.Parse(strings.TrimSpace(req.HotelID))
	if err != nil {
		return nil, apperror.Validation("hotelId must be a valid UUID")
	}
	checkIn, checkOut, err := parseStayDates(req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, err
	}
	if req.RoomNumber < 1 {
		return nil, apperror.Validation("roomNumber must be at least 1")
	}

	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey != "" {
		existingID, claimed, err := s.idempotency.ClaimIdempotencyKey(ctx, userID, idempotencyKey)
		if errors.Is(err, cache.ErrClaimInProgress) {
			return nil, apperror.Conflict("a request with this Idempotency-Key is still in progress")
		}
		if err != nil {
			return nil, apperror.Internal("failed to check idempotency key", err)
		}
		if !claimed {
			return s.replay(ctx, userID, existingID)
		}
	}

	result, err := s.create(ctx, userID, hotelID, checkIn, checkOut, req.RoomNumber)
	if idempotencyKey != "" {
		s.settleIdempotencyKey(ctx, userID, idempotencyKey, result, err)
	}
	return result, err
}

func (s *BookingService) create(ctx context.Context, userID, hotelID uuid.UUID, checkIn, checkOut time.Time, roomNumber int) (*models.CheckoutResult, error) {
	hotel, err := s.hotels.GetHotelByID(ctx, hotelID)
	if err != nil {
		return nil, apperror.Internal("failed to load hotel", err)
	}
	if hotel == nil {
		return nil, apperror.NotFound("hotel not found")
	}

	booking := &models.Booking{
		UserID:        userID,
		HotelID:       hotelID,
		CheckIn:       checkIn,
		CheckOut:      checkOut,
		RoomNumber:    roomNumber,
		Status:        models.BookingStatusPending,
		PaymentStatus: models.PaymentStatusUnset,
	}
	if err := s.bookings.Create(ctx, booking); err != nil {
		return nil, apperror.Internal("failed to create booking", err)
	}

	metrics.BookingsCreatedTotal.Inc()
	s.publish(ctx, models.EventTypeBookingCreated, booking, "api")
	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"user_id":    userID,
		"hotel_id":   hotelID,
		"nights":     booking.Nights(),
	}).Info("Booking created")

	result, err := s.startCheckout(ctx, booking, hotel)
	if errors.Is(err, errNoLongerPending) {
		return s.currentState(ctx, booking), nil
	}
	return result, err
}

// currentState reports a freshly created booking that changed before its
// session could be attached. The row exists, so the create still succeeds.
func (s *BookingService) currentState(ctx context.Context, booking *models.Booking) *models.CheckoutResult {
	current, err := s.bookings.GetByID(ctx, booking.ID)
	if err != nil || current == nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID).Warn("Failed to reload booking after checkout")
		current = booking
	}
	s.logger.WithFields(logrus.Fields{
		"booking_id": current.ID,
		"status":     current.Status,
	}).Info("Booking left PENDING before its checkout session was attached")
	return &models.CheckoutResult{Booking: current}
}

// startCheckout opens a session for a PENDING booking and attaches it,
// replacing any previous session
func (s *BookingService) startCheckout(ctx context.Context, booking *models.Booking, hotel *models.Hotel) (*models.CheckoutResult, error) {
	sess, err := s.payments.CreateCheckoutSession(ctx, booking, hotel)
	if err != nil {
		classified := ClassifyStripeError(err)
		metrics.CheckoutSessionsTotal.WithLabelValues("failed").Inc()
		metrics.PaymentProviderErrorsTotal.WithLabelValues(classified.Category).Inc()
		s.audit(ctx, models.NewPaymentAudit(models.PaymentEventSessionFailed, models.PaymentSourceStripeAPI).
			SetBooking(booking.ID).
			SetError(classified.Message, classified.Category))

		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"category":   classified.Category,
		}).Warn("Booking left without checkout session")

		return &models.CheckoutResult{
			Booking: booking,
			PaymentError: &models.PaymentErrorInfo{
				Category:   classified.Category,
				Code:       classified.Code,
				Message:    classified.Message,
				StatusCode: classified.Status,
			},
		}, nil
	}

	metrics.CheckoutSessionsTotal.WithLabelValues("created").Inc()
	s.audit(ctx, models.NewPaymentAudit(models.PaymentEventSessionCreated, models.PaymentSourceStripeAPI).
		SetBooking(booking.ID).
		SetSession(sess.ID))

	payment := &models.PaymentRedirect{SessionID: sess.ID, RedirectURL: sess.URL}

	attached, err := s.bookings.AttachSession(ctx, booking.ID, sess.ID, sess.URL)
	if err != nil {
		// The session exists at the provider and carries the booking id, so a
		// webhook can still reconcile it.
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"session_id": sess.ID,
		}).Error("Failed to attach checkout session to booking")
		return &models.CheckoutResult{Booking: booking, Payment: payment}, nil
	}
	if attached == nil {
		return nil, errNoLongerPending
	}

	return &models.CheckoutResult{Booking: attached, Payment: payment}, nil
}

func (s *BookingService) replay(ctx context.Context, userID, bookingID uuid.UUID) (*models.CheckoutResult, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, apperror.Internal("failed to load booking", err)
	}
	if booking == nil || !booking.IsOwnedBy(userID) {
		return nil, apperror.NotFound("booking not found")
	}

	metrics.IdempotentReplaysTotal.Inc()
	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"user_id":    userID,
	}).Info("Idempotent booking replay")

	result := &models.CheckoutResult{Booking: booking, Replayed: true}
	if booking.PaymentSessionID != nil && booking.CheckoutURL != nil {
		result.Payment = &models.PaymentRedirect{SessionID: *booking.PaymentSessionID, RedirectURL: *booking.CheckoutURL}
	}
	return result, nil
}

func (s *BookingService) settleIdempotencyKey(ctx context.Context, userID uuid.UUID, key string, result *models.CheckoutResult, createErr error) {
	var err error
	if createErr != nil || result == nil || result.Booking == nil {
		err = s.idempotency.ReleaseIdempotencyKey(ctx, userID, key)
	} else {
		err = s.idempotency.CompleteIdempotencyKey(ctx, userID, key, result.Booking.ID)
	}
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to settle idempotency key")
	}
}

// Get returns a booking visible to requester
func (s *BookingService) Get(ctx context.Context, bookingID uuid.UUID, requester Requester) (*models.Booking, error) {
	booking, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !requester.IsAdmin && !booking.IsOwnedBy(requester.UserID) {
		return nil, apperror.Forbidden("you do not have access to this booking")
	}
	return booking, nil
}

// GetBySessionID returns the booking correlated to a checkout session
func (s *BookingService) GetBySessionID(ctx context.Context, sessionID string) (*models.Booking, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, apperror.Validation("sessionId is required")
	}

	booking, err := s.bookings.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, apperror.Internal("failed to load booking", err)
	}
	if booking == nil {
		return nil, apperror.NotFound("booking not found")
	}
	return booking, nil
}

// ListMine returns the caller's bookings, newest first
func (s *BookingService) ListMine(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Booking, error) {
	limit, offset = normalizePage(limit, offset)
	bookings, err := s.bookings.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperror.Internal("failed to list bookings", err)
	}
	return bookings, nil
}

// ListAll returns every booking, newest first
func (s *BookingService) ListAll(ctx context.Context, limit, offset int) ([]*models.Booking, error) {
	limit, offset = normalizePage(limit, offset)
	bookings, err := s.bookings.ListAll(ctx, limit, offset)
	if err != nil {
		return nil, apperror.Internal("failed to list bookings", err)
	}
	return bookings, nil
}

// Cancel cancels a PENDING or PAID booking owned by requester
func (s *BookingService) Cancel(ctx context.Context, bookingID uuid.UUID, requester Requester) (*models.Booking, error) {
	booking, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.IsOwnedBy(requester.UserID) {
		return nil, apperror.Forbidden("only the booking owner can cancel it")
	}
	if booking.Status == models.BookingStatusCancelled {
		return nil, apperror.Validation("booking is already cancelled")
	}
	if !booking.Status.IsCancellable() {
		return nil, apperror.Validation("booking in status %s cannot be cancelled", booking.Status)
	}

	cancelled, err := s.bookings.Cancel(ctx, bookingID, requester.UserID)
	if err != nil {
		return nil, apperror.Internal("failed to cancel booking", err)
	}
	if cancelled == nil {
		return nil, apperror.Validation("booking can no longer be cancelled")
	}

	s.transitioned(ctx, models.EventTypeBookingCancelled, cancelled, "api")
	return cancelled, nil
}

// Update changes the dates or room of a PENDING booking owned by requester.
// The existing checkout session is kept; the client requests a new one
// through RetryCheckout when the amount changed.
func (s *BookingService) Update(ctx context.Context, bookingID uuid.UUID, requester Requester, req *models.UpdateBookingRequest) (*models.Booking, error) {
	if req.UserID != nil || req.HotelID != nil {
		return nil, apperror.Validation("userId and hotelId cannot be changed")
	}

	booking, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.IsOwnedBy(requester.UserID) {
		return nil, apperror.Forbidden("only the booking owner can update it")
	}
	if booking.Status != models.BookingStatusPending {
		return nil, apperror.Validation("only pending bookings can be updated")
	}

	checkIn, checkOut := booking.CheckIn, booking.CheckOut
	if req.CheckIn != nil {
		if checkIn, err = parseDate(*req.CheckIn); err != nil {
			return nil, apperror.Validation("checkIn must be a date (YYYY-MM-DD)")
		}
	}
	if req.CheckOut != nil {
		if checkOut, err = parseDate(*req.CheckOut); err != nil {
			return nil, apperror.Validation("checkOut must be a date (YYYY-MM-DD)")
		}
	}
	if !checkOut.After(checkIn) {
		return nil, apperror.Validation("checkOut must be after checkIn")
	}

	roomNumber := booking.RoomNumber
	if req.RoomNumber != nil {
		roomNumber = *req.RoomNumber
	}
	if roomNumber < 1 {
		return nil, apperror.Validation("roomNumber must be at least 1")
	}

	updated, err := s.bookings.UpdateDetails(ctx, bookingID, requester.UserID, checkIn, checkOut, roomNumber)
	if err != nil {
		return nil, apperror.Internal("failed to update booking", err)
	}
	if updated == nil {
		return nil, apperror.Validation("only pending bookings can be updated")
	}

	s.publish(ctx, models.EventTypeBookingUpdated, updated, "api")
	return updated, nil
}

// RetryCheckout opens a fresh checkout session for a PENDING booking,
// superseding the previous one
func (s *BookingService) RetryCheckout(ctx context.Context, bookingID uuid.UUID, requester Requester) (*models.CheckoutResult, error) {
	booking, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.IsOwnedBy(requester.UserID) {
		return nil, apperror.Forbidden("only the booking owner can pay for it")
	}
	if booking.Status != models.BookingStatusPending {
		return nil, apperror.Validation("only pending bookings can be paid")
	}

	hotel, err := s.hotels.GetHotelByID(ctx, booking.HotelID)
	if err != nil {
		return nil, apperror.Internal("failed to load hotel", err)
	}
	if hotel == nil {
		return nil, apperror.NotFound("hotel not found")
	}

	if booking.PaymentSessionID != nil {
		s.logger.WithFields(logrus.Fields{
			"booking_id":       booking.ID,
			"previous_session": *booking.PaymentSessionID,
		}).Info("Superseding checkout session")
	}

	result, err := s.startCheckout(ctx, booking, hotel)
	if errors.Is(err, errNoLongerPending) {
		return nil, apperror.Validation("booking is no longer pending")
	}
	return result, err
}

// Confirm marks a booking PAID without touching its payment status
func (s *BookingService) Confirm(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	confirmed, err := s.bookings.Confirm(ctx, bookingID)
	if err != nil {
		return nil, apperror.Internal("failed to confirm booking", err)
	}
	if confirmed == nil {
		if _, err := s.load(ctx, bookingID); err != nil {
			return nil, err
		}
		return nil, apperror.Validation("cancelled bookings cannot be confirmed")
	}

	s.audit(ctx, models.NewPaymentAudit(models.PaymentEventAdminConfirmed, models.PaymentSourceAdmin).
		SetBooking(confirmed.ID).
		SetPaymentStatus(string(confirmed.PaymentStatus)))
	s.transitioned(ctx, models.EventTypeBookingPaid, confirmed, "admin")
	return confirmed, nil
}

// SetStatus overrides a booking's status
func (s *BookingService) SetStatus(ctx context.Context, bookingID uuid.UUID, status string) (*models.Booking, error) {
	newStatus := models.BookingStatus(strings.ToUpper(strings.TrimSpace(status)))
	if !newStatus.IsValid() {
		return nil, apperror.Validation("unknown booking status %q", status)
	}

	updated, err := s.bookings.SetStatus(ctx, bookingID, newStatus)
	if err != nil {
		return nil, apperror.Internal("failed to set booking status", err)
	}
	if updated == nil {
		return nil, apperror.NotFound("booking not found")
	}

	s.transitioned(ctx, models.EventTypeBookingStatusChanged, updated, "admin")
	return updated, nil
}

func (s *BookingService) load(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, apperror.Internal("failed to load booking", err)
	}
	if booking == nil {
		return nil, apperror.NotFound("booking not found")
	}
	return booking, nil
}

func (s *BookingService) transitioned(ctx context.Context, eventType string, booking *models.Booking, source string) {
	metrics.BookingTransitionsTotal.WithLabelValues(string(booking.Status), source).Inc()
	s.publish(ctx, eventType, booking, source)
	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"status":     booking.Status,
		"source":     source,
	}).Info("Booking status changed")
}

func (s *BookingService) publish(ctx context.Context, eventType string, booking *models.Booking, source string) {
	if err := s.events.PublishBookingEvent(ctx, models.NewBookingEvent(eventType, booking, source)); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"event_type": eventType,
		}).Warn("Failed to publish booking event")
	}
}

func (s *BookingService) audit(ctx context.Context, entry *models.PaymentAudit) {
	if err := s.audits.Log(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("event_type", entry.EventType).Warn("Failed to write payment audit")
	}
}

func parseStayDates(checkInRaw, checkOutRaw string) (time.Time, time.Time, error) {
	checkIn, err := parseDate(checkInRaw)
	if err != nil {
		return time.Time{}, time.Time{}, apperror.Validation("checkIn must be a date (YYYY-MM-DD)")
	}
	checkOut, err := parseDate(checkOutRaw)
	if err != nil {
		return time.Time{}, time.Time{}, apperror.Validation("checkOut must be a date (YYYY-MM-DD)")
	}
	if !checkOut.After(checkIn) {
		return time.Time{}, time.Time{}, apperror.Validation("checkOut must be after checkIn")
	}
	return checkIn, checkOut, nil
}

// parseDate accepts a calendar date or an RFC3339 timestamp and keeps only the date
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, raw); err != nil {
			return time.Time{}, err
		}
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
