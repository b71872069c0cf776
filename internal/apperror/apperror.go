// Package apperror defines the error taxonomy shared by services and handlers.
// Every error a service returns to a handler is either an *Error or is treated
// as an internal failure.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error
type Kind string

const (
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindForbidden        Kind = "forbidden"
	KindPaymentProvider  Kind = "payment_provider"
	KindSignatureInvalid Kind = "signature_invalid"
	KindConflict         Kind = "conflict"
	KindInternal         Kind = "internal"
)

// Error is a classified application error carrying its HTTP status
type Error struct {
	Kind    Kind
	Status  int
	Message string
	// Category subdivides payment provider failures
	Category string
	// Code is a machine-readable detail code (e.g. a provider decline code)
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Status: http.StatusForbidden, Message: message}
}

// SignatureInvalid reports a webhook payload that failed verification
func SignatureInvalid(err error) *Error {
	return &Error{Kind: KindSignatureInvalid, Status: http.StatusBadRequest, Message: "webhook signature verification failed", Err: err}
}

// PaymentProvider reports a failed call to the payment provider
func PaymentProvider(category, code, message string, status int, err error) *Error {
	return &Error{
		Kind:     KindPaymentProvider,
		Status:   status,
		Message:  message,
		Category: category,
		Code:     code,
		Err:      err,
	}
}

// Conflict reports a request that collides with one still in progress
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Status: http.StatusConflict, Message: message}
}

// Internal wraps an unclassified failure
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Message: message, Err: err}
}

// As extracts an *Error from err's chain
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == kind
}

// StatusOf returns the HTTP status for err, 500 when unclassified
func StatusOf(err error) int {
	if appErr, ok := As(err); ok && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
