package models

import "time"

type BookingConfirmedEvent struct {
	BookingID   string    `json:"booking_id"`
	UserID      string    `json:"user_id"`
	FlightID    string    `json:"flight_id"`
	SeatNumber  string    `json:"seat_number"`
	OrderID     string    `json:"razorpay_order_id"`
	PaymentID   string    `json:"razorpay_payment_id"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Passengers  int       `json:"passengers"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// ReconciliationEvent is published when a verified payment could not be persisted.
type ReconciliationEvent struct {
	Receipt    Receipt      `json:"receipt"`
	UserID     string       `json:"user_id"`
	Draft      BookingDraft `json:"draft"`
	Amount     int64        `json:"amount"`
	Currency   string       `json:"currency"`
	Error      string       `json:"error"`
	OccurredAt time.Time    `json:"occurred_at"`
}

func (e ReconciliationEvent) Entry() ReconciliationEntry {
	return ReconciliationEntry{
		PaymentID: e.Receipt.PaymentID,
		OrderID:   e.Receipt.OrderID,
		Signature: e.Receipt.Signature,
		UserID:    e.UserID,
		Draft:     e.Draft,
		Amount:    e.Amount,
		Currency:  e.Currency,
		LastError: e.Error,
		Status:    ReconcilePending,
		CreatedAt: e.OccurredAt,
	}
}

type PassengerCheckedInEvent struct {
	BookingID     string    `json:"booking_id"`
	PassengerID   int64     `json:"passenger_id"`
	PassengerName string    `json:"passenger_name"`
	FlightID      string    `json:"flight_id"`
	SeatNumber    string    `json:"seat_number"`
	CheckedInAt   time.Time `json:"checked_in_at"`
}

// CheckInUpdate is streamed to clients watching a booking's check-in screen.
type CheckInUpdate struct {
	BookingID    string    `json:"booking_id"`
	PassengerIDs []int64   `json:"passenger_ids"`
	Total        int       `json:"total"`
	CheckedIn    int       `json:"checked_in"`
	Pending      int       `json:"pending"`
	At           time.Time `json:"at"`
}
