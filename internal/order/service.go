package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"airline-booking/internal/logger"
	"airline-booking/internal/models"
	"airline-booking/internal/payment/razorpay"
	"airline-booking/internal/utils"
)

var (
	ErrAmountRequired      = errors.New("amount required")
	ErrOrderCreationFailed = errors.New("could not create order")
)

type Gateway interface {
	CreateOrder(ctx context.Context, req razorpay.CreateOrderRequest) (*models.Order, error)
}

type OrderStore interface {
	SaveOrder(ctx context.Context, rec models.OrderRecord) error
}

type OrderService struct {
	Gateway  Gateway
	Store    OrderStore
	Currency string
	Logger   *logger.Logger
	now      func() time.Time
}

func NewOrderService(gateway Gateway, store OrderStore, currency string, log *logger.Logger) *OrderService {
	if currency == "" {
		currency = "INR"
	}
	return &OrderService{
		Gateway:  gateway,
		Store:    store,
		Currency: currency,
		Logger:   log,
		now:      time.Now,
	}
}

// CreateOrder opens a gateway order for amount minor units on behalf of userID.
// Order creation is never retried here: a retry after an ambiguous failure
// could leave two live orders for one checkout.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, amount int64) (*models.Order, error) {
	if amount <= 0 {
		return nil, ErrAmountRequired
	}

	receipt := utils.GenerateReceipt(s.now())
	order, err := s.Gateway.CreateOrder(ctx, razorpay.CreateOrderRequest{
		Amount:   amount,
		Currency: s.Currency,
		Receipt:  receipt,
		Notes:    map[string]string{"user_id": userID},
	})
	if err != nil {
		if errors.Is(err, razorpay.ErrMissingCredentials) {
			s.Logger.Error("CONFIG", "Razorpay key id or secret is not configured")
			return nil, err
		}
		s.Logger.Error("ORDER", fmt.Sprintf("Gateway order creation failed (receipt=%s amount=%d): %v", receipt, amount, err))
		return nil, fmt.Errorf("%w: %w", ErrOrderCreationFailed, err)
	}

	s.Logger.LogPayment("ORDER_CREATED", order.ID, fmt.Sprintf("amount=%d %s receipt=%s", order.Amount, order.Currency, order.Receipt))

	if s.Store != nil {
		rec := models.OrderRecord{
			OrderID:   order.ID,
			Amount:    order.Amount,
			Currency:  order.Currency,
			Receipt:   order.Receipt,
			UserID:    userID,
			CreatedAt: s.now(),
		}
		if err := s.Store.SaveOrder(ctx, rec); err != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("Order %s not recorded, verification will use the client amount: %v", order.ID, err))
		}
	}

	return order, nil
}
