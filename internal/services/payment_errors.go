package services

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	"github.com/staybook/hotel-booking-backend/internal/apperror"
	"github.com/stripe/stripe-go/v81"
)

// Payment provider error categories
const (
	PaymentErrorCard           = "card_error"
	PaymentErrorRateLimit      = "rate_limit_error"
	PaymentErrorInvalidRequest = "invalid_request_error"
	PaymentErrorAPI            = "api_error"
	PaymentErrorConnection     = "connection_error"
	PaymentErrorAuthentication = "authentication_error"
	PaymentErrorUnknown        = "unknown_error"
)

// ErrStripeNotConfigured is returned by session creation when no secret key is set
var ErrStripeNotConfigured = errors.New("stripe secret key is not configured")

// ClassifyStripeError maps a provider failure onto the payment error taxonomy
func ClassifyStripeError(err error) *apperror.Error {
	if err == nil {
		return nil
	}
	if appErr, ok := apperror.As(err); ok && appErr.Kind == apperror.KindPaymentProvider {
		return appErr
	}

	if errors.Is(err, ErrStripeNotConfigured) {
		return apperror.PaymentProvider(PaymentErrorAuthentication, "", "Payment provider is not configured.", http.StatusUnauthorized, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.PaymentProvider(PaymentErrorConnection, "timeout", "The payment provider did not respond in time.", http.StatusGatewayTimeout, err)
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return classifyStripeAPIError(stripeErr)
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return apperror.PaymentProvider(PaymentErrorConnection, "", "Some kind of error occurred during the HTTPS communication.", http.StatusInternalServerError, err)
	}

	return apperror.PaymentProvider(PaymentErrorUnknown, "", "An unexpected error occurred.", http.StatusInternalServerError, err)
}

func classifyStripeAPIError(stripeErr *stripe.Error) *apperror.Error {
	code := string(stripeErr.Code)

	switch {
	case stripeErr.Type == stripe.ErrorTypeCard:
		if stripeErr.DeclineCode != "" {
			code = string(stripeErr.DeclineCode)
		}
		return apperror.PaymentProvider(PaymentErrorCard, code, messageOr(stripeErr.Msg, "Your card was declined."), http.StatusPaymentRequired, stripeErr)
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests || code == "rate_limit":
		return apperror.PaymentProvider(PaymentErrorRateLimit, code, "Too many requests made to the API too quickly.", http.StatusTooManyRequests, stripeErr)
	case stripeErr.HTTPStatusCode == http.StatusUnauthorized:
		return apperror.PaymentProvider(PaymentErrorAuthentication, code, "You probably used an incorrect API key.", http.StatusUnauthorized, stripeErr)
	case stripeErr.Type == stripe.ErrorTypeInvalidRequest:
		return apperror.PaymentProvider(PaymentErrorInvalidRequest, code, messageOr(stripeErr.Msg, "Invalid parameters were supplied to Stripe's API."), http.StatusBadRequest, stripeErr)
	case stripeErr.Type == stripe.ErrorTypeAPI:
		return apperror.PaymentProvider(PaymentErrorAPI, code, "An error occurred internally with Stripe's API.", http.StatusInternalServerError, stripeErr)
	default:
		return apperror.PaymentProvider(PaymentErrorUnknown, code, messageOr(stripeErr.Msg, "An unexpected error occurred."), http.StatusInternalServerError, stripeErr)
	}
}

func messageOr(message, fallback string) string {
	if message == "" {
		return fallback
	}
	return message
}
