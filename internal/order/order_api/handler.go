package order_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"airline-booking/internal/apperr"
	"airline-booking/internal/auth"
	"airline-booking/internal/logger"
	"airline-booking/internal/models"
	"airline-booking/internal/order"
	"airline-booking/internal/payment/razorpay"
	"airline-booking/internal/utils"
)

// OrderCreator is the part of order.OrderService the handler needs.
type OrderCreator interface {
	CreateOrder(ctx context.Context, userID string, amount int64) (*models.Order, error)
}

type Handler struct {
	OrderService OrderCreator
	Logger       *logger.Logger
}

func NewHandler(orderService OrderCreator, log *logger.Logger) *Handler {
	return &Handler{
		OrderService: orderService,
		Logger:       log,
	}
}

type createOrderRequest struct {
	Amount *int64 `json:"amount"`
}

// CreateOrder handles POST /api/payments/orders. Amount is in minor units.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.BadRequest("Invalid request body", err))
		return
	}
	if req.Amount == nil {
		apperr.Write(w, apperr.BadRequest("Amount required", nil))
		return
	}

	userID := auth.UserID(r.Context())
	h.Logger.Debug("API", fmt.Sprintf("CreateOrder: user=%s amount=%d", userID, *req.Amount))

	created, err := h.OrderService.CreateOrder(r.Context(), userID, *req.Amount)
	if err != nil {
		appErr := classify(err)
		if appErr.Category != apperr.ClientInput {
			h.Logger.Error("API", fmt.Sprintf("CreateOrder failed: %s", appErr.InternalError))
		}
		apperr.Write(w, appErr)
		return
	}

	if err := utils.WriteJSON(w, http.StatusOK, created); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateOrder: failed to encode response: %v", err))
	}
}

func classify(err error) *apperr.Error {
	switch {
	case errors.Is(err, order.ErrAmountRequired):
		return apperr.BadRequest("Amount required", err)
	case errors.Is(err, razorpay.ErrMissingCredentials):
		return apperr.Config("Missing Razorpay credentials", err)
	case errors.Is(err, razorpay.ErrGatewayTransient):
		return apperr.Transient("Payment service is busy. Please try again shortly.", err)
	default:
		return apperr.New(apperr.Internal, http.StatusBadGateway, "could not create order", err)
	}
}
