package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/staybook/hotel-booking-backend/internal/models"
)

const bookingColumns = `id, user_id, hotel_id, check_in, check_out, room_number,
	status, payment_status, payment_session_id, checkout_url, created_at, updated_at`

// BookingRepository handles database operations for the bookings table.
// Every state change is a single conditional UPDATE; a guard that matches no
// row is reported as (nil, nil) so callers can decide how to classify it.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Create inserts a new PENDING booking with no payment session
func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	now := time.Now()
	booking.CreatedAt = now
	booking.UpdatedAt = now
	if booking.Status == "" {
		booking.Status = models.BookingStatusPending
	}
	if booking.PaymentStatus == "" {
		booking.PaymentStatus = models.PaymentStatusUnset
	}

	query := `
		INSERT INTO bookings (
			id, user_id, hotel_id, check_in, check_out, room_number,
			status, payment_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		booking.ID, booking.UserID, booking.HotelID, booking.CheckIn, booking.CheckOut, booking.RoomNumber,
		booking.Status, booking.PaymentStatus, booking.CreatedAt, booking.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// GetByID retrieves a booking by ID, nil if absent
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

// GetBySessionID retrieves the booking correlated to a checkout session, nil if absent
func (r *BookingRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE payment_session_id = $1`, sessionID)
}

// ListByUser returns a user's bookings, newest first
func (r *BookingRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	bookings := []*models.Booking{}
	if err := r.db.SelectContext(ctx, &bookings, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list bookings for user: %w", err)
	}
	return bookings, nil
}

// ListAll returns all bookings, newest first
func (r *BookingRepository) ListAll(ctx context.Context, limit, offset int) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	bookings := []*models.Booking{}
	if err := r.db.SelectContext(ctx, &bookings, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// ListStalePending returns PENDING bookings whose session was attached before cutoff
func (r *BookingRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE status = 'PENDING'
		  AND payment_session_id IS NOT NULL
		  AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2`

	bookings := []*models.Booking{}
	if err := r.db.SelectContext(ctx, &bookings, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to list stale pending bookings: %w", err)
	}
	return bookings, nil
}

// AttachSession sets (or supersedes) the checkout session of a PENDING booking
func (r *BookingRepository) AttachSession(ctx context.Context, id uuid.UUID, sessionID, checkoutURL string) (*models.Booking, error) {
	query := `
		UPDATE bookings
		SET payment_session_id = $2,
		    checkout_url = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING ` + bookingColumns

	return r.getOne(ctx, query, id, sessionID, checkoutURL)
}

// Cancel sets CANCELLED on a PENDING or PAID booking owned by userID
func (r *BookingRepository) Cancel(ctx context.Context, id, userID uuid.UUID) (*models.Booking, error) {
	query := `
		UPDATE bookings
		SET status = 'CANCELLED',
		    updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status IN ('PENDING', 'PAID')
		RETURNING ` + bookingColumns

	return r.getOne(ctx, query, id, userID)
}

// UpdateDetails changes dates and room of a PENDING booking owned by userID
func (r *BookingRepository) UpdateDetails(ctx context.Context, id, userID uuid.UUID, checkIn, checkOut time.Time, roomNumber int) (*models.Booking, error) {
	query := `
		UPDATE bookings
		SET check_in = $3,
		    check_out = $4,
		    room_number = $5,
		    updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status = 'PENDING'
		RETURNING ` + bookingColumns

	return r.getOne(ctx, query, id, userID, checkIn, checkOut, roomNumber)
}

// MarkPaid records a successful payment made through sessionID. A PENDING
// booking becomes PAID; any other status is kept. The booking is correlated to
// the paying session so a superseded session still resolves to it. changed is
// false when the booking already reflected the payment, which makes replays
// no-ops.
func (r *BookingRepository) MarkPaid(ctx context.Context, id uuid.UUID, sessionID string) (booking *models.Booking, changed bool, err error) {
	query := `
		UPDATE bookings
		SET status = CASE WHEN status = 'PENDING' THEN 'PAID' ELSE status END,
		    payment_status = 'PAID',
		    checkout_url = CASE
		        WHEN NULLIF($2::text, '') IS NOT NULL AND payment_session_id IS DISTINCT FROM $2::text THEN NULL
		        ELSE checkout_url
		    END,
		    payment_session_id = COALESCE(NULLIF($2::text, ''), payment_session_id),
		    updated_at = NOW()
		WHERE id = $1 AND (status = 'PENDING' OR payment_status <> 'PAID')
		RETURNING ` + bookingColumns

	return r.applyOrLoad(ctx, id, query, id, sessionID)
}

// MarkPaymentFailed records an asynchronous payment failure. A booking whose
// payment already succeeded is never downgraded, and status is untouched.
func (r *BookingRepository) MarkPaymentFailed(ctx context.Context, id uuid.UUID) (booking *models.Booking, changed bool, err error) {
	query := `
		UPDATE bookings
		SET payment_status = 'FAILED',
		    updated_at = NOW()
		WHERE id = $1 AND payment_status = 'UNSET'
		RETURNING ` + bookingColumns

	return r.applyOrLoad(ctx, id, query, id)
}

// Confirm forces PAID on any booking that is not cancelled
func (r *BookingRepository) Confirm(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	query := `
		UPDATE bookings
		SET status = 'PAID',
		    updated_at = NOW()
		WHERE id = $1 AND status <> 'CANCELLED'
		RETURNING ` + bookingColumns

	return r.getOne(ctx, query, id)
}

// SetStatus overrides the status unconditionally
func (r *BookingRepository) SetStatus(ctx context.Context, id uuid.UUID, status models.BookingStatus) (*models.Booking, error) {
	query := `
		UPDATE bookings
		SET status = $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + bookingColumns

	return r.getOne(ctx, query, id, status)
}

// applyOrLoad runs a guarded update; when the guard matches nothing it loads
// the current row so callers can tell "already applied" from "not found"
func (r *BookingRepository) applyOrLoad(ctx context.Context, id uuid.UUID, query string, args ...interface{}) (*models.Booking, bool, error) {
	updated, err := r.getOne(ctx, query, args...)
	if err != nil {
		return nil, false, err
	}
	if updated != nil {
		return updated, true, nil
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

func (r *BookingRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.GetContext(ctx, &booking, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("booking query failed: %w", err)
	}
	return &booking, nil
}
