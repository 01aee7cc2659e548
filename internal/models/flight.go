package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Flight is owned by the flight catalogue; the booking pipeline only reads it.
type Flight struct {
	bun.BaseModel `bun:"table:flights"`

	ID            string    `bun:"id,pk" json:"id"`
	FlightNumber  string    `bun:"flight_number,notnull" json:"flight_number"`
	Origin        string    `bun:"origin,notnull" json:"origin"`
	Destination   string    `bun:"destination,notnull" json:"destination"`
	DepartureTime time.Time `bun:"departure_time,nullzero" json:"departure_time"`
	ArrivalTime   time.Time `bun:"arrival_time,nullzero" json:"arrival_time"`
}
