package models

import (
	"time"

	"github.com/google/uuid"
)

// Booking event types published to the event bus
const (
	EventTypeBookingCreated       = "BOOKING_CREATED"
	EventTypeBookingPaid          = "BOOKING_PAID"
	EventTypeBookingCancelled     = "BOOKING_CANCELLED"
	EventTypeBookingUpdated       = "BOOKING_UPDATED"
	EventTypeBookingStatusChanged = "BOOKING_STATUS_CHANGED"
	EventTypePaymentFailed        = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// BookingEvent carries a snapshot of a booking after a transition
type BookingEvent struct {
	BaseEvent
	BookingID        uuid.UUID     `json:"booking_id"`
	UserID           uuid.UUID     `json:"user_id"`
	HotelID          uuid.UUID     `json:"hotel_id"`
	Status           BookingStatus `json:"status"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	PaymentSessionID *string       `json:"payment_session_id,omitempty"`
	Source           string        `json:"source"`
}

// NewBookingEvent snapshots b under the given event type
func NewBookingEvent(eventType string, b *Booking, source string) *BookingEvent {
	return &BookingEvent{
		BaseEvent: BaseEvent{
			EventID:   uuid.NewString(),
			EventType: eventType,
			Timestamp: time.Now().UTC(),
		},
		BookingID:        b.ID,
		UserID:           b.UserID,
		HotelID:          b.HotelID,
		Status:           b.Status,
		PaymentStatus:    b.PaymentStatus,
		PaymentSessionID: b.PaymentSessionID,
		Source:           source,
	}
}
