package checkout

import (
	"time"

	"airline-booking/internal/models"
)

type State string

const (
	StateIdle             State = "idle"
	StateOrderCreated     State = "order_created"
	StateWidgetOpen       State = "widget_open"
	StateVerifying        State = "verifying"
	StateBookingConfirmed State = "booking_confirmed"
	StateFailed           State = "failed"
)

// Draft is the booking the traveller is paying for. Price is in major units.
type Draft struct {
	FlightID      string
	SeatNumber    string
	Passengers    []models.Passenger
	Price         int64
	PaymentStatus models.PaymentStatus
	BookingID     string
}

// Session is one traveller's checkout. It is owned by a single Orchestrator.
type Session struct {
	UserID string
	Email  string
	Draft  Draft

	state        State
	order        *models.Order
	confirmation *Confirmation
	lastErr      error
}

func NewSession(userID, email string, draft Draft) *Session {
	if draft.PaymentStatus == "" {
		draft.PaymentStatus = models.StatusPending
	}
	return &Session{
		UserID: userID,
		Email:  email,
		Draft:  draft,
		state:  StateIdle,
	}
}

// Confirmation is what the confirmation screen shows after a booking is stored.
type Confirmation struct {
	BookingID string
	PaymentID string
	Amount    int64
	Currency  string
	Date      string
}

// Transition is delivered to listeners on every state change.
type Transition struct {
	From    State
	To      State
	OrderID string
	Err     error
	At      time.Time
}

func (s *Session) bookingDraft(amount int64, currency string) models.BookingDraft {
	return models.BookingDraft{
		UserID:        s.UserID,
		FlightID:      s.Draft.FlightID,
		SeatNumber:    s.Draft.SeatNumber,
		PaymentStatus: models.StatusSuccess,
		Passengers:    s.Draft.Passengers,
		Amount:        amount,
		Currency:      currency,
	}
}

// clearSensitive drops passenger details once the server holds them.
func (s *Session) clearSensitive() {
	s.Draft.Passengers = nil
	s.Email = ""
}
