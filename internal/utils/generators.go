package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateReceipt returns the gateway receipt tag for an order created at t.
func GenerateReceipt(t time.Time) string {
	return fmt.Sprintf("receipt_%d", t.UnixMilli())
}

func GenerateBookingID() string {
	return uuid.New().String()
}

// GenerateLockToken identifies the holder of a Redis lock.
func GenerateLockToken() string {
	return uuid.NewString()
}
