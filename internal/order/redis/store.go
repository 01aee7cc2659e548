package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"airline-booking/internal/models"

	"github.com/go-redis/redis/v8"
)

var ErrOrderNotFound = errors.New("order record not found")

const orderKeyPrefix = "razorpay_order:"

// OrderStore remembers issued gateway orders until they expire.
type OrderStore struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewOrderStore(client *redis.Client, ttl time.Duration) *OrderStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &OrderStore{Client: client, TTL: ttl}
}

func orderKey(orderID string) string {
	return orderKeyPrefix + orderID
}

// SaveOrder stores rec once; an existing record for the same order id is kept.
func (s *OrderStore) SaveOrder(ctx context.Context, rec models.OrderRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode order record: %w", err)
	}
	if _, err := s.Client.SetNX(ctx, orderKey(rec.OrderID), data, s.TTL).Result(); err != nil {
		return fmt.Errorf("failed to store order %s: %w", rec.OrderID, err)
	}
	return nil
}

func (s *OrderStore) GetOrder(ctx context.Context, orderID string) (*models.OrderRecord, error) {
	val, err := s.Client.Get(ctx, orderKey(orderID)).Bytes()
	if err == redis.Nil {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}

	var rec models.OrderRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("corrupt order record %s: %w", orderID, err)
	}
	return &rec, nil
}

// ForgetOrder drops the record once its payment has been booked.
func (s *OrderStore) ForgetOrder(ctx context.Context, orderID string) error {
	return s.Client.Del(ctx, orderKey(orderID)).Err()
}
