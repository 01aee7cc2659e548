package checkin_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"airline-booking/internal/auth"
	"airline-booking/internal/logger"
	"airline-booking/internal/models"

	"github.com/go-chi/chi/v5"
)

type UpdateSubscriber interface {
	Subscribe(ctx context.Context, bookingID string) <-chan models.CheckInUpdate
}

type SummaryReader interface {
	Summary(ctx context.Context, bookingID, userID string) (models.CheckInSummary, error)
}

// SSEHandler streams check-in changes of one booking to its owner.
type SSEHandler struct {
	Logger       *logger.Logger
	EventEmitter UpdateSubscriber
	Summaries    SummaryReader
}

func NewSSEHandler(log *logger.Logger, emitter UpdateSubscriber, summaries SummaryReader) *SSEHandler {
	return &SSEHandler{
		Logger:       log,
		EventEmitter: emitter,
		Summaries:    summaries,
	}
}

// HandleBookingEvents handles GET /api/bookings/{bookingId}/events.
func (h *SSEHandler) HandleBookingEvents(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	// also proves ownership before anything is streamed
	summary, err := h.Summaries.Summary(r.Context(), bookingID, auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, "HandleBookingEvents", err)
		return
	}

	setupSSEHeaders(w)
	ctx := r.Context()
	updates := h.EventEmitter.Subscribe(ctx, bookingID)

	snapshot, _ := json.Marshal(summary)
	fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", snapshot)
	flusher.Flush()

	h.Logger.Info("SSE", fmt.Sprintf("Client connected to check-in events for booking %s", bookingID))

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(update)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize check-in update: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: checkin\ndata: %s\n\n", data)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from booking %s", bookingID))
			return
		}
	}
}

func (h *SSEHandler) fail(w http.ResponseWriter, op string, err error) {
	appErr := ClassifyError(err)
	h.Logger.Warn("SSE", fmt.Sprintf("%s: %s", op, appErr.InternalError))
	http.Error(w, appErr.PublicError, appErr.StatusCode)
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
