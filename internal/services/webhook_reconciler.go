package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/staybook/hotel-booking-backend/internal/apperror"
	"github.com/staybook/hotel-booking-backend/internal/metrics"
	"github.com/staybook/hotel-booking-backend/internal/models"
	"github.com/stripe/stripe-go/v81"
)

// WebhookOutcome is what handling one verified event amounted to
type WebhookOutcome string

const (
	OutcomeApplied   WebhookOutcome = "applied"
	OutcomeDuplicate WebhookOutcome = "duplicate"
	OutcomeIgnored   WebhookOutcome = "ignored"
	OutcomeDiscarded WebhookOutcome = "discarded"
	OutcomeNotPaid   WebhookOutcome = "not_paid"
	OutcomeFailed    WebhookOutcome = "failed"
)

// RequestMeta describes the client that delivered a webhook
type RequestMeta struct {
	IP        string
	UserAgent string
	Device    string
}

// WebhookReconciler applies verified provider events to bookings. Every
// update is a guarded assignment, so replays and reordering converge.
type WebhookReconciler struct {
	bookings BookingStore
	audits   PaymentAuditLogger
	events   EventPublisher
	logger   *logrus.Logger
}

// NewWebhookReconciler creates a new WebhookReconciler
func NewWebhookReconciler(bookings BookingStore, audits PaymentAuditLogger, events EventPublisher, logger *logrus.Logger) *WebhookReconciler {
	return &WebhookReconciler{
		bookings: bookings,
		audits:   audits,
		events:   events,
		logger:   logger,
	}
}

// HandleEvent reconciles one verified event. The returned error is for
// logging only; the delivery is acknowledged either way.
func (r *WebhookReconciler) HandleEvent(ctx context.Context, event stripe.Event, meta RequestMeta) (WebhookOutcome, error) {
	log := r.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
	})
	log.Info("Webhook event received")

	var (
		outcome WebhookOutcome
		err     error
	)
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		outcome, err = r.handleSessionCompleted(ctx, event, meta)
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		outcome, err = r.handleAsyncPaymentFailed(ctx, event, meta)
	default:
		outcome = OutcomeIgnored
	}

	metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), string(outcome)).Inc()
	if err != nil {
		log.WithError(err).WithField("outcome", outcome).Error("Webhook event could not be reconciled")
	} else {
		log.WithField("outcome", outcome).Info("Webhook event handled")
	}
	return outcome, err
}

func (r *WebhookReconciler) handleSessionCompleted(ctx context.Context, event stripe.Event, meta RequestMeta) (WebhookOutcome, error) {
	sess, bookingID, outcome, err := r.decodeSession(ctx, event, meta)
	if sess == nil {
		return outcome, err
	}

	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		r.logger.WithFields(logrus.Fields{
			"booking_id":     bookingID,
			"session_id":     sess.ID,
			"payment_status": sess.PaymentStatus,
		}).Info("Checkout completed without payment, waiting for async result")
		r.audit(ctx, models.NewPaymentAudit(models.PaymentEventCompletedUnpaid, models.PaymentSourceStripeWebhook).
			SetBooking(bookingID).
			SetSession(sess.ID).
			SetProviderEvent(event.ID).
			SetPaymentStatus(string(sess.PaymentStatus)).
			SetMetadata(meta.IP, meta.UserAgent, meta.Device))
		return OutcomeNotPaid, nil
	}

	return r.applyPaid(ctx, paidUpdate{
		BookingID: bookingID,
		SessionID: sess.ID,
		EventID:   event.ID,
		Source:    models.PaymentSourceStripeWebhook,
		Meta:      meta,
	})
}

func (r *WebhookReconciler) handleAsyncPaymentFailed(ctx context.Context, event stripe.Event, meta RequestMeta) (WebhookOutcome, error) {
	sess, bookingID, outcome, err := r.decodeSession(ctx, event, meta)
	if sess == nil {
		return outcome, err
	}

	entry := models.NewPaymentAudit(models.PaymentEventPaymentFailed, models.PaymentSourceStripeWebhook).
		SetBooking(bookingID).
		SetSession(sess.ID).
		SetProviderEvent(event.ID).
		SetMetadata(meta.IP, meta.UserAgent, meta.Device)

	booking, changed, err := r.bookings.MarkPaymentFailed(ctx, bookingID)
	if err != nil {
		r.auditFailure(ctx, models.PaymentSourceStripeWebhook, bookingID, sess.ID, event.ID, err, meta)
		return OutcomeFailed, err
	}
	if booking == nil {
		err := apperror.NotFound(fmt.Sprintf("booking %s not found", bookingID))
		r.auditFailure(ctx, models.PaymentSourceStripeWebhook, bookingID, sess.ID, event.ID, err, meta)
		return OutcomeFailed, err
	}

	entry.SetPaymentStatus(string(booking.PaymentStatus))
	if !changed {
		r.audit(ctx, entry.MarkAsDuplicate())
		return OutcomeDuplicate, nil
	}

	r.audit(ctx, entry)
	r.publish(ctx, models.EventTypePaymentFailed, booking, "webhook")
	r.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"session_id": sess.ID,
	}).Warn("Asynchronous payment failed")
	return OutcomeApplied, nil
}

// decodeSession extracts the session and its booking reference. A nil session
// means the event is finished with the returned outcome.
func (r *WebhookReconciler) decodeSession(ctx context.Context, event stripe.Event, meta RequestMeta) (*stripe.CheckoutSession, uuid.UUID, WebhookOutcome, error) {
	if event.Data == nil {
		err := fmt.Errorf("event %s has no data object", event.ID)
		r.auditFailure(ctx, models.PaymentSourceStripeWebhook, uuid.Nil, "", event.ID, err, meta)
		return nil, uuid.Nil, OutcomeFailed, err
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		err = fmt.Errorf("failed to decode checkout session: %w", err)
		r.auditFailure(ctx, models.PaymentSourceStripeWebhook, uuid.Nil, "", event.ID, err, meta)
		return nil, uuid.Nil, OutcomeFailed, err
	}

	bookingID, err := uuid.Parse(sess.Metadata[MetadataBookingID])
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"event_id":   event.ID,
			"session_id": sess.ID,
			"booking_id": sess.Metadata[MetadataBookingID],
		}).Warn("Checkout session carries no usable booking reference, discarding")
		r.audit(ctx, models.NewPaymentAudit(models.PaymentEventMissingCorrelation, models.PaymentSourceStripeWebhook).
			SetSession(sess.ID).
			SetProviderEvent(event.ID).
			SetMetadata(meta.IP, meta.UserAgent, meta.Device))
		return nil, uuid.Nil, OutcomeDiscarded, nil
	}

	return &sess, bookingID, "", nil
}

type paidUpdate struct {
	BookingID uuid.UUID
	SessionID string
	EventID   string
	Source    models.PaymentEventSource
	Meta      RequestMeta
}

// applyPaid records a confirmed payment. Shared by webhooks and the sweeper.
func (r *WebhookReconciler) applyPaid(ctx context.Context, u paidUpdate) (WebhookOutcome, error) {
	booking, changed, err := r.bookings.MarkPaid(ctx, u.BookingID, u.SessionID)
	if err != nil {
		r.auditFailure(ctx, u.Source, u.BookingID, u.SessionID, u.EventID, err, u.Meta)
		return OutcomeFailed, err
	}
	if booking == nil {
		err := apperror.NotFound(fmt.Sprintf("booking %s not found", u.BookingID))
		r.auditFailure(ctx, u.Source, u.BookingID, u.SessionID, u.EventID, err, u.Meta)
		return OutcomeFailed, err
	}

	eventType := models.PaymentEventBookingPaid
	if u.Source == models.PaymentSourceSweeper {
		eventType = models.PaymentEventSweeperReconciled
	}
	entry := models.NewPaymentAudit(eventType, u.Source).
		SetBooking(booking.ID).
		SetSession(u.SessionID).
		SetProviderEvent(u.EventID).
		SetPaymentStatus(string(booking.PaymentStatus)).
		SetMetadata(u.Meta.IP, u.Meta.UserAgent, u.Meta.Device)

	if !changed {
		r.audit(ctx, entry.MarkAsDuplicate())
		r.logger.WithField("booking_id", booking.ID).Debug("Payment already recorded")
		return OutcomeDuplicate, nil
	}

	r.audit(ctx, entry)
	source := publishSource(u.Source)
	metrics.BookingTransitionsTotal.WithLabelValues(string(booking.Status), source).Inc()
	r.publish(ctx, models.EventTypeBookingPaid, booking, source)
	r.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"session_id": u.SessionID,
		"status":     booking.Status,
		"source":     source,
	}).Info("Booking payment recorded")
	return OutcomeApplied, nil
}

func (r *WebhookReconciler) auditFailure(ctx context.Context, source models.PaymentEventSource, bookingID uuid.UUID, sessionID, eventID string, err error, meta RequestMeta) {
	entry := models.NewPaymentAudit(models.PaymentEventReconciliationError, source).
		SetSession(sessionID).
		SetProviderEvent(eventID).
		SetError(err.Error(), string(apperrorKind(err))).
		SetMetadata(meta.IP, meta.UserAgent, meta.Device)
	if bookingID != uuid.Nil {
		entry.SetBooking(bookingID)
	}
	r.audit(ctx, entry)
}

func (r *WebhookReconciler) audit(ctx context.Context, entry *models.PaymentAudit) {
	if err := r.audits.Log(ctx, entry); err != nil {
		r.logger.WithError(err).WithField("event_type", entry.EventType).Warn("Failed to write payment audit")
	}
}

func (r *WebhookReconciler) publish(ctx context.Context, eventType string, booking *models.Booking, source string) {
	if err := r.events.PublishBookingEvent(ctx, models.NewBookingEvent(eventType, booking, source)); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"event_type": eventType,
		}).Warn("Failed to publish booking event")
	}
}

func publishSource(source models.PaymentEventSource) string {
	if source == models.PaymentSourceSweeper {
		return "sweeper"
	}
	return "webhook"
}

func apperrorKind(err error) apperror.Kind {
	if appErr, ok := apperror.As(err); ok {
		return appErr.Kind
	}
	return apperror.KindInternal
}
