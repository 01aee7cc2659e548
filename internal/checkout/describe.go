package checkout

import (
	"context"
	"errors"

	"airline-booking/internal/apperr"
)

// UserMessage is the text a checkout screen shows for an error.
type UserMessage struct {
	Title     string
	Text      string
	Retryable bool
}

// IsTransient reports whether err is worth repeating unchanged.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae.Retryable()
	}
	return false
}

func Describe(err error) UserMessage {
	var failure *WidgetFailure
	switch {
	case err == nil:
		return UserMessage{}
	case errors.Is(err, ErrPriceRequired):
		return UserMessage{Title: "Select a fare", Text: "Choose a flight and fare before paying."}
	case errors.Is(err, ErrWidgetTimeout):
		return UserMessage{Title: "Payment timed out", Text: "The payment window expired. Please try again.", Retryable: true}
	case errors.As(err, &failure):
		return UserMessage{Title: "Payment not completed", Text: "Payment was cancelled or declined. Please try again.", Retryable: true}
	case errors.Is(err, ErrStaleReceipt):
		return UserMessage{Title: "Payment mismatch", Text: "This payment belongs to an earlier attempt. Please start again.", Retryable: true}
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrClosed):
		return UserMessage{Title: "Checkout unavailable", Text: "This checkout is no longer active. Please start again."}
	}

	var ae *apperr.Error
	if !errors.As(err, &ae) {
		return UserMessage{Title: "Payment verification failed", Text: "Error verifying payment.", Retryable: true}
	}
	switch ae.Category {
	case apperr.ClientInput:
		return UserMessage{Title: "Check your details", Text: ae.PublicError}
	case apperr.Configuration:
		return UserMessage{Title: "Payments unavailable", Text: "Payments are unavailable right now. Please contact support."}
	case apperr.GatewayTransient, apperr.InProgress:
		return UserMessage{Title: "Please wait", Text: "Payment service is busy. Please try again shortly.", Retryable: true}
	case apperr.SignatureMismatch:
		return UserMessage{Title: "Payment verification failed", Text: "Payment verification failed!"}
	case apperr.PersistenceAfterCapture:
		return UserMessage{Title: "Booking pending", Text: ae.PublicError}
	case apperr.DuplicatePayment:
		return UserMessage{Title: "Already booked", Text: "This payment has already been used for a booking."}
	case apperr.Unauthorized:
		return UserMessage{Title: "Session expired", Text: "Please login again."}
	case apperr.Forbidden:
		return UserMessage{Title: "Not allowed", Text: "This booking belongs to a different account."}
	default:
		return UserMessage{Title: "Payment verification failed", Text: "Error verifying payment.", Retryable: ae.Retryable()}
	}
}
