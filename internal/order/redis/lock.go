package redis

import (
	"context"
	"time"

	"airline-booking/internal/utils"

	"github.com/go-redis/redis/v8"
)

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a SetNX lock with an owner token, used to serialise work on one payment.
type Lock struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewLock(client *redis.Client, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Lock{Client: client, TTL: ttl}
}

func PaymentLockKey(paymentID string) string {
	return "payment_lock:" + paymentID
}

func ReconcileLockKey(paymentID string) string {
	return "reconcile_lock:" + paymentID
}

// Acquire returns the owner token when the lock was taken.
func (l *Lock) Acquire(ctx context.Context, key string) (string, bool, error) {
	token := utils.GenerateLockToken()
	ok, err := l.Client.SetNX(ctx, key, token, l.TTL).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release is a no-op when the lock expired or belongs to someone else.
func (l *Lock) Release(ctx context.Context, key, token string) error {
	err := releaseScript.Run(ctx, l.Client, []string{key}, token).Err()
	if err == redis.Nil {
		return nil
	}
	return err
}

func (l *Lock) LockPayment(ctx context.Context, paymentID string) (string, bool, error) {
	return l.Acquire(ctx, PaymentLockKey(paymentID))
}

func (l *Lock) UnlockPayment(ctx context.Context, paymentID, token string) error {
	return l.Release(ctx, PaymentLockKey(paymentID), token)
}
