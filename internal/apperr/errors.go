// Package apperr carries the HTTP-facing error taxonomy shared by handlers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"airline-booking/internal/utils"
)

type Category string

const (
	ClientInput             Category = "client_input"
	Configuration           Category = "configuration"
	GatewayTransient        Category = "gateway_transient"
	SignatureMismatch       Category = "signature_mismatch"
	PersistenceAfterCapture Category = "persistence_after_capture"
	DuplicatePayment        Category = "duplicate_payment"
	InProgress              Category = "in_progress"
	CheckIn                 Category = "checkin"
	NotFound                Category = "not_found"
	Unauthorized            Category = "unauthorized"
	Forbidden               Category = "forbidden"
	Internal                Category = "internal"
)

// Error pairs a client-safe message with the detail kept for logs.
type Error struct {
	Category      Category
	StatusCode    int
	PublicError   string
	InternalError string
	Err           error
}

func (e *Error) Error() string {
	return e.InternalError
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may repeat the same request.
func (e *Error) Retryable() bool {
	switch e.Category {
	case GatewayTransient, InProgress, CheckIn:
		return true
	}
	return e.StatusCode >= 500 && e.Category != Configuration && e.Category != PersistenceAfterCapture
}

func New(category Category, status int, public string, err error) *Error {
	internal := public
	if err != nil {
		internal = fmt.Sprintf("%s: %v", public, err)
	}
	return &Error{
		Category:      category,
		StatusCode:    status,
		PublicError:   public,
		InternalError: internal,
		Err:           err,
	}
}

func BadRequest(public string, err error) *Error {
	return New(ClientInput, http.StatusBadRequest, public, err)
}

func Config(public string, err error) *Error {
	return New(Configuration, http.StatusInternalServerError, public, err)
}

func Transient(public string, err error) *Error {
	return New(GatewayTransient, http.StatusServiceUnavailable, public, err)
}

func NotFoundf(format string, args ...interface{}) *Error {
	return New(NotFound, http.StatusNotFound, fmt.Sprintf(format, args...), nil)
}

// As extracts an *Error from err, wrapping unknown errors as internal failures.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return New(Internal, http.StatusInternalServerError, "Internal server error", err)
}

// Write sends e as the standard error envelope.
func Write(w http.ResponseWriter, e *Error) {
	_ = utils.WriteJSON(w, e.StatusCode, utils.ErrorResponse(string(e.Category), e.PublicError))
}
