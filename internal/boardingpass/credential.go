// Package boardingpass builds the QR and PDF credentials handed to checked-in passengers.
package boardingpass

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"airline-booking/internal/models"
)

var ErrNotCheckedIn = errors.New("passenger is not checked in")

// Credential is what the QR code carries and the PDF prints.
type Credential struct {
	BookingID     string    `json:"booking_id"`
	PassengerID   int64     `json:"passenger_id"`
	PassengerName string    `json:"passenger_name"`
	Seat          string    `json:"seat"`
	FlightID      string    `json:"flight_id"`
	FlightNumber  string    `json:"flight_number,omitempty"`
	Origin        string    `json:"origin,omitempty"`
	Destination   string    `json:"destination,omitempty"`
	DepartureTime time.Time `json:"departure_time,omitempty"`
	ArrivalTime   time.Time `json:"arrival_time,omitempty"`
	IssuedAt      time.Time `json:"issued_at"`
}

// NewCredential is only defined for checked-in passengers. flight may be nil
// when the catalogue entry is missing; the pass then shows the flight id.
func NewCredential(p models.PassengerRecord, flight *models.Flight, now time.Time) (Credential, error) {
	if !p.CheckedIn {
		return Credential{}, fmt.Errorf("%w: passenger %d", ErrNotCheckedIn, p.ID)
	}
	c := Credential{
		BookingID:     p.BookingID,
		PassengerID:   p.ID,
		PassengerName: strings.ToUpper(p.Name),
		Seat:          p.SeatNumber,
		FlightID:      p.FlightID,
		FlightNumber:  p.FlightID,
		IssuedAt:      now.UTC(),
	}
	if flight != nil {
		c.FlightNumber = flight.FlightNumber
		c.Origin = flight.Origin
		c.Destination = flight.Destination
		c.DepartureTime = flight.DepartureTime
		c.ArrivalTime = flight.ArrivalTime
	}
	return c, nil
}

// FileName is the download name used for the PDF.
func (c Credential) FileName() string {
	name := strings.Map(func(r rune) rune {
		if r == ' ' {
			return '_'
		}
		if r < 32 || r == '"' || r == '/' || r == '\\' {
			return -1
		}
		return r
	}, c.PassengerName)
	if name == "" {
		name = fmt.Sprintf("%d", c.PassengerID)
	}
	return fmt.Sprintf("BoardingPass_%s.pdf", name)
}
