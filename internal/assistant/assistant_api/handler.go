package assistant_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"airline-booking/internal/apperr"
	"airline-booking/internal/assistant"
	"airline-booking/internal/logger"
	"airline-booking/internal/utils"
)

type Replier interface {
	Reply(ctx context.Context, message string) (string, error)
}

type Handler struct {
	Assistant Replier
	Logger    *logger.Logger
}

func NewHandler(a Replier, log *logger.Logger) *Handler {
	return &Handler{Assistant: a, Logger: log}
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// Chat handles POST /api/assistant/chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.BadRequest("Invalid request body", err))
		return
	}

	reply, err := h.Assistant.Reply(r.Context(), req.Message)
	if err != nil {
		appErr := classify(err)
		if appErr.Category != apperr.ClientInput {
			h.Logger.Error("ASSISTANT", fmt.Sprintf("Chat failed: %s", appErr.InternalError))
		}
		apperr.Write(w, appErr)
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

func classify(err error) *apperr.Error {
	switch {
	case errors.Is(err, assistant.ErrEmptyMessage):
		return apperr.BadRequest("Message is required", err)
	case errors.Is(err, assistant.ErrMissingAPIKey):
		return apperr.Config("Assistant is not configured", err)
	case errors.Is(err, assistant.ErrRateLimited):
		return apperr.Transient("Assistant is busy. Please try again shortly.", err)
	default:
		return apperr.New(apperr.Internal, http.StatusBadGateway, "Assistant is unavailable", err)
	}
}
