package models

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus governs whether a booking is honored
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusPaid      BookingStatus = "PAID"
	BookingStatusCancelled BookingStatus = "CANCELLED"

	// Operator-settable statuses
	BookingStatusCheckedIn BookingStatus = "CHECKED_IN"
	BookingStatusCompleted BookingStatus = "COMPLETED"
)

// IsValid reports whether s is a known booking status
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusPaid, BookingStatusCancelled,
		BookingStatusCheckedIn, BookingStatusCompleted:
		return true
	}
	return false
}

// IsCancellable reports whether a user may cancel a booking in status s
func (s BookingStatus) IsCancellable() bool {
	return s == BookingStatusPending || s == BookingStatusPaid
}

// PaymentStatus is the payment provider's view of a booking. It may lag or
// diverge from BookingStatus.
type PaymentStatus string

const (
	PaymentStatusUnset  PaymentStatus = "UNSET"
	PaymentStatusPaid   PaymentStatus = "PAID"
	PaymentStatusFailed PaymentStatus = "FAILED"
)

// Booking represents a room reservation and its payment correlation
type Booking struct {
	ID               uuid.UUID     `json:"id" db:"id"`
	UserID           uuid.UUID     `json:"userId" db:"user_id"`
	HotelID          uuid.UUID     `json:"hotelId" db:"hotel_id"`
	CheckIn          time.Time     `json:"checkIn" db:"check_in"`
	CheckOut         time.Time     `json:"checkOut" db:"check_out"`
	RoomNumber       int           `json:"roomNumber" db:"room_number"`
	Status           BookingStatus `json:"status" db:"status"`
	PaymentStatus    PaymentStatus `json:"paymentStatus" db:"payment_status"`
	PaymentSessionID *string       `json:"paymentSessionId" db:"payment_session_id"`
	CheckoutURL      *string       `json:"checkoutUrl,omitempty" db:"checkout_url"`
	CreatedAt        time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time     `json:"updatedAt" db:"updated_at"`
}

// Nights returns the number of nights between check-in and check-out
func (b *Booking) Nights() int64 {
	return NightsBetween(b.CheckIn, b.CheckOut)
}

// IsOwnedBy reports whether userID owns the booking
func (b *Booking) IsOwnedBy(userID uuid.UUID) bool {
	return b.UserID == userID
}

// NightsBetween counts calendar nights, never less than one for a valid range
func NightsBetween(checkIn, checkOut time.Time) int64 {
	in := time.Date(checkIn.Year(), checkIn.Month(), checkIn.Day(), 0, 0, 0, 0, time.UTC)
	out := time.Date(checkOut.Year(), checkOut.Month(), checkOut.Day(), 0, 0, 0, 0, time.UTC)
	nights := int64(out.Sub(in).Hours() / 24)
	if nights < 1 {
		return 1
	}
	return nights
}

// CreateBookingRequest is the body of POST /bookings
type CreateBookingRequest struct {
	HotelID    string `json:"hotelId" binding:"required"`
	CheckIn    string `json:"checkIn" binding:"required"`
	CheckOut   string `json:"checkOut" binding:"required"`
	RoomNumber int    `json:"roomNumber"`
}

// UpdateBookingRequest is the body of PATCH /bookings/:bookingId.
// UserID and HotelID are accepted only so they can be rejected explicitly.
type UpdateBookingRequest struct {
	CheckIn    *string `json:"checkIn,omitempty"`
	CheckOut   *string `json:"checkOut,omitempty"`
	RoomNumber *int    `json:"roomNumber,omitempty"`
	UserID     *string `json:"userId,omitempty"`
	HotelID    *string `json:"hotelId,omitempty"`
}

// SetStatusRequest is the body of the operator status override
type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// PaymentRedirect is returned when a checkout session was created
type PaymentRedirect struct {
	SessionID   string `json:"sessionId"`
	RedirectURL string `json:"redirectUrl"`
}

// PaymentErrorInfo describes a provider failure that did not abort the request
type PaymentErrorInfo struct {
	Category   string `json:"category"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

// CheckoutResult is returned by booking creation and checkout retry
type CheckoutResult struct {
	Booking      *Booking          `json:"booking"`
	Payment      *PaymentRedirect  `json:"payment"`
	PaymentError *PaymentErrorInfo `json:"paymentError,omitempty"`
	Replayed     bool              `json:"replayed,omitempty"`
}
