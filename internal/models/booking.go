package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

var ErrInvalidDraft = errors.New("invalid booking draft")

// Passenger is a traveller as entered before the booking is persisted.
type Passenger struct {
	Name   string `json:"name"`
	Age    int    `json:"age"`
	Gender string `json:"gender"`
}

// BookingDraft is the unconfirmed booking submitted alongside a payment receipt.
type BookingDraft struct {
	UserID        string        `json:"user_id"`
	FlightID      string        `json:"flight_id"`
	SeatNumber    string        `json:"seat_number"`
	PaymentStatus PaymentStatus `json:"payment_status,omitempty"`
	Passengers    []Passenger   `json:"passengers"`
	Amount        int64         `json:"amount,omitempty"`
	Currency      string        `json:"currency,omitempty"`
}

func (d BookingDraft) Validate() error {
	switch {
	case strings.TrimSpace(d.FlightID) == "":
		return fmt.Errorf("%w: flight id is required", ErrInvalidDraft)
	case strings.TrimSpace(d.SeatNumber) == "":
		return fmt.Errorf("%w: seat number is required", ErrInvalidDraft)
	case len(d.Passengers) == 0:
		return fmt.Errorf("%w: at least one passenger is required", ErrInvalidDraft)
	}
	for i, p := range d.Passengers {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("%w: passenger %d has no name", ErrInvalidDraft, i+1)
		}
		if p.Age < 0 || p.Age > 130 {
			return fmt.Errorf("%w: passenger %d has invalid age %d", ErrInvalidDraft, i+1, p.Age)
		}
	}
	return nil
}

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID            string        `bun:"id,pk" json:"id"`
	UserID        string        `bun:"user_id,notnull" json:"user_id"`
	FlightID      string        `bun:"flight_id,notnull" json:"flight_id"`
	SeatNumber    string        `bun:"seat_number,notnull" json:"seat_number"`
	PaymentStatus PaymentStatus `bun:"payment_status,notnull" json:"payment_status"`
	CreatedAt     time.Time     `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`

	Passengers []PassengerRecord `bun:"rel:has-many,join:id=booking_id" json:"passengers,omitempty"`
	Payment    *PaymentRecord    `bun:"rel:has-one,join:id=booking_id" json:"payment,omitempty"`
}

type PassengerRecord struct {
	bun.BaseModel `bun:"table:passengers"`

	ID            int64         `bun:"id,pk,autoincrement" json:"id"`
	BookingID     string        `bun:"booking_id,notnull" json:"booking_id"`
	UserID        string        `bun:"user_id,notnull" json:"user_id"`
	FlightID      string        `bun:"flight_id,notnull" json:"flight_id"`
	SeatNumber    string        `bun:"seat_number,notnull" json:"seat_number"`
	Name          string        `bun:"passenger_name,notnull" json:"name"`
	Age           int           `bun:"passenger_age,notnull" json:"age"`
	Gender        string        `bun:"passenger_gender" json:"gender"`
	CheckedIn     bool          `bun:"checked_in,notnull,default:false" json:"checked_in"`
	CheckedInAt   time.Time     `bun:"checked_in_at,nullzero" json:"checked_in_at,omitempty"`
	PaymentStatus PaymentStatus `bun:"payment_status,notnull" json:"payment_status"`
	CreatedAt     time.Time     `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// CheckInSummary is the passenger list of one booking with check-in counts.
type CheckInSummary struct {
	BookingID  string            `json:"booking_id"`
	Flight     *Flight           `json:"flight,omitempty"`
	Passengers []PassengerRecord `json:"passengers"`
	Total      int               `json:"total"`
	CheckedIn  int               `json:"checked_in"`
	Pending    int               `json:"pending"`
}

func NewCheckInSummary(bookingID string, flight *Flight, passengers []PassengerRecord) CheckInSummary {
	s := CheckInSummary{
		BookingID:  bookingID,
		Flight:     flight,
		Passengers: passengers,
		Total:      len(passengers),
	}
	for _, p := range passengers {
		if p.CheckedIn {
			s.CheckedIn++
		}
	}
	s.Pending = s.Total - s.CheckedIn
	return s
}
