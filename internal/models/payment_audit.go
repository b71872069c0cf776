package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEventType represents the type of payment event
type PaymentEventType string

const (
	PaymentEventSessionCreated      PaymentEventType = "checkout_session_created"
	PaymentEventSessionFailed       PaymentEventType = "checkout_session_failed"
	PaymentEventWebhookReceived     PaymentEventType = "webhook_received"
	PaymentEventSignatureRejected   PaymentEventType = "signature_rejected"
	PaymentEventBookingPaid         PaymentEventType = "booking_paid"
	PaymentEventPaymentFailed       PaymentEventType = "payment_failed"
	PaymentEventCompletedUnpaid     PaymentEventType = "checkout_completed_unpaid"
	PaymentEventMissingCorrelation  PaymentEventType = "missing_booking_reference"
	PaymentEventReconciliationError PaymentEventType = "reconciliation_error"
	PaymentEventSweeperReconciled   PaymentEventType = "sweeper_reconciled"
	PaymentEventAdminConfirmed      PaymentEventType = "admin_confirmed"
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourceBackend       PaymentEventSource = "backend"
	PaymentSourceStripeWebhook PaymentEventSource = "stripe_webhook"
	PaymentSourceStripeAPI     PaymentEventSource = "stripe_api"
	PaymentSourceSweeper       PaymentEventSource = "sweeper"
	PaymentSourceAdmin         PaymentEventSource = "admin"
)

// PaymentAudit represents an immutable audit log entry for payment events
type PaymentAudit struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	BookingID        *uuid.UUID `json:"booking_id,omitempty" db:"booking_id"`
	PaymentSessionID *string    `json:"payment_session_id,omitempty" db:"payment_session_id"`
	ProviderEventID  *string    `json:"provider_event_id,omitempty" db:"provider_event_id"`

	EventType   PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource PaymentEventSource `json:"event_source" db:"event_source"`

	PaymentStatus *string `json:"payment_status,omitempty" db:"payment_status"`

	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`
	ErrorCode    *string `json:"error_code,omitempty" db:"error_code"`

	// Set when a replayed event changed nothing
	IsDuplicate bool `json:"is_duplicate" db:"is_duplicate"`

	IPAddress    *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent    *string `json:"user_agent,omitempty" db:"user_agent"`
	ClientDevice *string `json:"client_device,omitempty" db:"client_device"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates a new payment audit entry with required fields
func NewPaymentAudit(eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// SetBooking sets the booking the event refers to
func (pa *PaymentAudit) SetBooking(bookingID uuid.UUID) *PaymentAudit {
	pa.BookingID = &bookingID
	return pa
}

// SetSession sets the checkout session id
func (pa *PaymentAudit) SetSession(sessionID string) *PaymentAudit {
	if sessionID != "" {
		pa.PaymentSessionID = &sessionID
	}
	return pa
}

// SetProviderEvent sets the provider's event id
func (pa *PaymentAudit) SetProviderEvent(eventID string) *PaymentAudit {
	if eventID != "" {
		pa.ProviderEventID = &eventID
	}
	return pa
}

// SetPaymentStatus sets the payment status reported by the provider
func (pa *PaymentAudit) SetPaymentStatus(status string) *PaymentAudit {
	pa.PaymentStatus = &status
	return pa
}

// SetError sets error information
func (pa *PaymentAudit) SetError(message string, code string) *PaymentAudit {
	pa.ErrorMessage = &message
	if code != "" {
		pa.ErrorCode = &code
	}
	return pa
}

// SetMetadata sets request metadata
func (pa *PaymentAudit) SetMetadata(ip, userAgent, device string) *PaymentAudit {
	if ip != "" {
		pa.IPAddress = &ip
	}
	if userAgent != "" {
		pa.UserAgent = &userAgent
	}
	if device != "" {
		pa.ClientDevice = &device
	}
	return pa
}

// MarkAsDuplicate marks this event as a replay that changed nothing
func (pa *PaymentAudit) MarkAsDuplicate() *PaymentAudit {
	pa.IsDuplicate = true
	return pa
}
