package checkin_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"airline-booking/internal/apperr"
	"airline-booking/internal/auth"
	"airline-booking/internal/boardingpass"
	bookingdb "airline-booking/internal/booking/db"
	"airline-booking/internal/checkin"
	"airline-booking/internal/logger"
	"airline-booking/internal/models"
	"airline-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

type CheckInEngine interface {
	CheckInOne(ctx context.Context, passengerID int64, userID string) (*models.PassengerRecord, error)
	CheckInAll(ctx context.Context, bookingID, userID string) (int, error)
	Summary(ctx context.Context, bookingID, userID string) (models.CheckInSummary, error)
	BoardingPassQR(ctx context.Context, passengerID int64, userID string) ([]byte, error)
	BoardingPassPDF(ctx context.Context, passengerID int64, userID string) ([]byte, boardingpass.Credential, error)
	Scan(ctx context.Context, encoded string) (boardingpass.Credential, error)
}

type Handler struct {
	CheckInService CheckInEngine
	Logger         *logger.Logger
}

func NewHandler(checkInService CheckInEngine, log *logger.Logger) *Handler {
	return &Handler{
		CheckInService: checkInService,
		Logger:         log,
	}
}

func passengerIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "passengerId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("passenger id must be a positive integer")
	}
	return id, nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	appErr := ClassifyError(err)
	if appErr.Category == apperr.Internal || appErr.Category == apperr.CheckIn {
		h.Logger.Error("API", fmt.Sprintf("%s: %s", op, appErr.InternalError))
	}
	apperr.Write(w, appErr)
}

// ListPassengers handles GET /api/bookings/{bookingId}/passengers.
func (h *Handler) ListPassengers(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	summary, err := h.CheckInService.Summary(r.Context(), bookingID, auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, "ListPassengers", err)
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("", summary))
}

// CheckInBooking handles POST /api/bookings/{bookingId}/check-in.
func (h *Handler) CheckInBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	n, err := h.CheckInService.CheckInAll(r.Context(), bookingID, auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, "CheckInBooking", err)
		return
	}
	msg := "All passengers checked in successfully."
	if n == 0 {
		msg = "All passengers were already checked in."
	}
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(msg, map[string]int{"checked_in": n}))
}

// CheckInPassenger handles POST /api/passengers/{passengerId}/check-in.
func (h *Handler) CheckInPassenger(w http.ResponseWriter, r *http.Request) {
	passengerID, err := passengerIDParam(r)
	if err != nil {
		apperr.Write(w, apperr.BadRequest(err.Error(), err))
		return
	}
	p, err := h.CheckInService.CheckInOne(r.Context(), passengerID, auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, "CheckInPassenger", err)
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Passenger checked in", p))
}

// BoardingPassPDF handles GET /api/passengers/{passengerId}/boarding-pass.pdf.
func (h *Handler) BoardingPassPDF(w http.ResponseWriter, r *http.Request) {
	passengerID, err := passengerIDParam(r)
	if err != nil {
		apperr.Write(w, apperr.BadRequest(err.Error(), err))
		return
	}
	pdf, cred, err := h.CheckInService.BoardingPassPDF(r.Context(), passengerID, auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, "BoardingPassPDF", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", cred.FileName()))
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

// BoardingPassQR handles GET /api/passengers/{passengerId}/boarding-pass.png.
func (h *Handler) BoardingPassQR(w http.ResponseWriter, r *http.Request) {
	passengerID, err := passengerIDParam(r)
	if err != nil {
		apperr.Write(w, apperr.BadRequest(err.Error(), err))
		return
	}
	img, err := h.CheckInService.BoardingPassQR(r.Context(), passengerID, auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, "BoardingPassQR", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(img)
}

// ScanBoardingPass handles POST /api/boarding-passes/scan
// Expected body: {"encrypted_qr": "base64url string"}
func (h *Handler) ScanBoardingPass(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EncryptedQR string `json:"encrypted_qr"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apperr.Write(w, apperr.BadRequest("Invalid request body", err))
		return
	}
	if body.EncryptedQR == "" {
		apperr.Write(w, apperr.BadRequest("encrypted_qr is required", nil))
		return
	}

	cred, err := h.CheckInService.Scan(r.Context(), body.EncryptedQR)
	if err != nil {
		h.fail(w, "ScanBoardingPass", err)
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Boarding pass valid", cred))
}

// ClassifyError maps check-in errors onto the public error taxonomy.
func ClassifyError(err error) *apperr.Error {
	switch {
	case errors.Is(err, bookingdb.ErrPassengerNotFound):
		return apperr.NotFoundf("Passenger not found")
	case errors.Is(err, bookingdb.ErrBookingNotFound):
		return apperr.NotFoundf("Booking not found")
	case errors.Is(err, boardingpass.ErrNotCheckedIn):
		return apperr.New(apperr.CheckIn, http.StatusConflict, "Passenger is not checked in", err)
	case errors.Is(err, checkin.ErrCheckInFailed):
		return apperr.New(apperr.CheckIn, http.StatusServiceUnavailable, "Check-in failed. Try again.", err)
	case errors.Is(err, boardingpass.ErrInvalidQR), errors.Is(err, checkin.ErrCredentialMismatch):
		return apperr.BadRequest("Boarding pass is not valid", err)
	default:
		return apperr.As(err)
	}
}
