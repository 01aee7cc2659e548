// Package ratelimit is a fixed-window request counter kept in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// hitScript counts a hit and starts the window on the first one.
var hitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("PTTL", KEYS[1])}
`)

type Result struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

type Limiter struct {
	Client *redis.Client
	Scope  string
	Window time.Duration
	Max    int64
}

func NewLimiter(client *redis.Client, scope string, window time.Duration, max int) *Limiter {
	if window <= 0 {
		window = 2 * time.Second
	}
	if max <= 0 {
		max = 1
	}
	return &Limiter{Client: client, Scope: scope, Window: window, Max: int64(max)}
}

func (l *Limiter) key(id string) string {
	return fmt.Sprintf("ratelimit:%s:%s", l.Scope, id)
}

// Allow counts one request for id in the current window.
func (l *Limiter) Allow(ctx context.Context, id string) (Result, error) {
	raw, err := hitScript.Run(ctx, l.Client, []string{l.key(id)}, l.Window.Milliseconds()).Slice()
	if err != nil {
		return Result{Allowed: true}, err
	}
	if len(raw) != 2 {
		return Result{Allowed: true}, fmt.Errorf("unexpected limiter reply %v", raw)
	}
	count, _ := raw[0].(int64)
	ttlMs, _ := raw[1].(int64)

	if count <= l.Max {
		return Result{Allowed: true, Count: count}, nil
	}

	retry := time.Duration(ttlMs) * time.Millisecond
	if retry <= 0 {
		retry = l.Window
	}
	return Result{Allowed: false, Count: count, RetryAfter: retry}, nil
}
