package booking_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"airline-booking/internal/apperr"
	"airline-booking/internal/auth"
	"airline-booking/internal/booking"
	bookingdb "airline-booking/internal/booking/db"
	"airline-booking/internal/logger"
	"airline-booking/internal/models"
	"airline-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

type BookingConfirmer interface {
	ConfirmBooking(ctx context.Context, req booking.ConfirmRequest) (*models.Booking, error)
	GetBooking(ctx context.Context, bookingID, userID string) (*models.Booking, error)
}

type Handler struct {
	BookingService BookingConfirmer
	Logger         *logger.Logger
}

func NewHandler(bookingService BookingConfirmer, log *logger.Logger) *Handler {
	return &Handler{
		BookingService: bookingService,
		Logger:         log,
	}
}

// VerifyRequest is the checkout widget's receipt plus the draft it paid for.
type VerifyRequest struct {
	models.Receipt
	BookingData models.BookingDraft `json:"bookingData"`
}

// VerifyPayment handles POST /api/payments/verify.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.BadRequest("Invalid request body", err))
		return
	}

	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("VerifyPayment: order=%s payment=%s user=%s", req.OrderID, req.PaymentID, userID))

	b, err := h.BookingService.ConfirmBooking(r.Context(), booking.ConfirmRequest{
		Receipt: req.Receipt,
		Draft:   req.BookingData,
		UserID:  userID,
	})
	if err != nil {
		appErr := ClassifyError(err)
		if appErr.Category != apperr.ClientInput && appErr.Category != apperr.SignatureMismatch {
			h.Logger.Error("API", fmt.Sprintf("VerifyPayment failed: %s", appErr.InternalError))
		}
		apperr.Write(w, appErr)
		return
	}

	if err := utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking confirmed", []*models.Booking{b})); err != nil {
		h.Logger.Error("API", fmt.Sprintf("VerifyPayment: failed to encode response: %v", err))
	}
}

// GetBooking handles GET /api/bookings/{bookingId}.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	if bookingID == "" {
		apperr.Write(w, apperr.BadRequest("Booking ID is required", nil))
		return
	}

	b, err := h.BookingService.GetBooking(r.Context(), bookingID, auth.UserID(r.Context()))
	if err != nil {
		appErr := ClassifyError(err)
		if appErr.Category == apperr.Internal {
			h.Logger.Error("API", fmt.Sprintf("GetBooking %s: %v", bookingID, err))
		}
		apperr.Write(w, appErr)
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("", b))
}

// ClassifyError maps booking pipeline errors onto the public error taxonomy.
func ClassifyError(err error) *apperr.Error {
	var perr *booking.PersistenceError
	switch {
	case errors.As(err, &perr):
		return apperr.New(apperr.PersistenceAfterCapture, http.StatusInternalServerError,
			fmt.Sprintf("Your payment succeeded but we could not save your booking. Please contact support with payment ID %s.", perr.PaymentID), err)
	case errors.Is(err, models.ErrInvalidDraft):
		return apperr.BadRequest(err.Error(), err)
	case errors.Is(err, booking.ErrMissingReceipt):
		return apperr.BadRequest("Missing payment details", err)
	case errors.Is(err, booking.ErrInvalidSignature):
		return apperr.New(apperr.SignatureMismatch, http.StatusBadRequest, "Invalid signature", err)
	case errors.Is(err, booking.ErrMissingSecret):
		return apperr.Config("Payment verification is not configured", err)
	case errors.Is(err, booking.ErrUserMismatch), errors.Is(err, booking.ErrOrderMismatch):
		return apperr.New(apperr.Forbidden, http.StatusForbidden, "This payment does not belong to you", err)
	case errors.Is(err, booking.ErrPaymentInProgress):
		return apperr.New(apperr.InProgress, http.StatusConflict, "Payment is being processed", err)
	case errors.Is(err, bookingdb.ErrPaymentAlreadyProcessed):
		return apperr.New(apperr.DuplicatePayment, http.StatusConflict, "payment already processed", err)
	case errors.Is(err, bookingdb.ErrBookingNotFound):
		return apperr.NotFoundf("Booking not found")
	default:
		return apperr.As(err)
	}
}
