package utils

import (
	"time"
)

// MinorUnits converts a price in major currency units to gateway minor units (paise).
func MinorUnits(major int64) int64 {
	return major * 100
}

// TravelDate formats the confirmation date shown to passengers.
func TravelDate(t time.Time) string {
	return t.Format("02 Jan 2006")
}
