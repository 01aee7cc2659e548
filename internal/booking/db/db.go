package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"airline-booking/internal/models"
	"airline-booking/internal/utils"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

var (
	ErrPaymentAlreadyProcessed = errors.New("payment already processed")
	ErrBookingNotFound         = errors.New("booking not found")
	ErrPassengerNotFound       = errors.New("passenger not found")
	ErrFlightNotFound          = errors.New("flight not found")
)

type DB struct {
	Bun *bun.DB
}

// ---------------- PERSIST ----------------

// PersistBooking stores the booking, one row per passenger and the payment
// audit row in a single transaction. Nothing is written if any insert fails.
func (d *DB) PersistBooking(ctx context.Context, receipt models.Receipt, draft models.BookingDraft) (*models.Booking, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	booking := &models.Booking{
		ID:            utils.GenerateBookingID(),
		UserID:        draft.UserID,
		FlightID:      draft.FlightID,
		SeatNumber:    draft.SeatNumber,
		PaymentStatus: models.StatusSuccess,
		CreatedAt:     now,
	}

	passengers := make([]models.PassengerRecord, 0, len(draft.Passengers))
	for _, p := range draft.Passengers {
		passengers = append(passengers, models.PassengerRecord{
			BookingID:     booking.ID,
			UserID:        draft.UserID,
			FlightID:      draft.FlightID,
			SeatNumber:    draft.SeatNumber,
			Name:          p.Name,
			Age:           p.Age,
			Gender:        p.Gender,
			PaymentStatus: models.StatusSuccess,
			CreatedAt:     now,
		})
	}

	payment := &models.PaymentRecord{
		BookingID: booking.ID,
		OrderID:   receipt.OrderID,
		PaymentID: receipt.PaymentID,
		Amount:    draft.Amount,
		Currency:  draft.Currency,
		Status:    models.StatusSuccess,
		CreatedAt: now,
	}

	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(booking).Exec(ctx); err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		if _, err := tx.NewInsert().Model(&passengers).Exec(ctx); err != nil {
			return fmt.Errorf("insert passengers: %w", err)
		}
		if _, err := tx.NewInsert().Model(payment).Exec(ctx); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		return nil
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrPaymentAlreadyProcessed, receipt.PaymentID)
		}
		return nil, err
	}

	booking.Passengers = passengers
	booking.Payment = payment
	return booking, nil
}

// IsUniqueViolation recognises duplicate key errors from lib/pq, pgdriver and SQLite.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.IntegrityViolation() && pgErr.Field('C') == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ---------------- READ ----------------

func withPassengers(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Order("id ASC")
}

// FindBookingByPaymentID returns the booking paid for by paymentID, or
// ErrBookingNotFound.
func (d *DB) FindBookingByPaymentID(ctx context.Context, paymentID string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Relation("Passengers", withPassengers).
		Relation("Payment").
		Where("?TableAlias.id IN (?)", d.Bun.NewSelect().
			Model((*models.PaymentRecord)(nil)).
			Column("booking_id").
			Where("razorpay_payment_id = ?", paymentID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &booking, nil
}

func (d *DB) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Relation("Passengers", withPassengers).
		Relation("Payment").
		Where("?TableAlias.id = ?", bookingID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &booking, nil
}

// ListPassengers returns a booking's passengers in the order they were entered.
func (d *DB) ListPassengers(ctx context.Context, bookingID string) ([]models.PassengerRecord, error) {
	var passengers []models.PassengerRecord
	err := d.Bun.NewSelect().
		Model(&passengers).
		Where("booking_id = ?", bookingID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return passengers, nil
}

func (d *DB) GetPassenger(ctx context.Context, passengerID int64) (*models.PassengerRecord, error) {
	var passenger models.PassengerRecord
	err := d.Bun.NewSelect().
		Model(&passenger).
		Where("id = ?", passengerID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPassengerNotFound
		}
		return nil, err
	}
	return &passenger, nil
}

func (d *DB) GetFlight(ctx context.Context, flightID string) (*models.Flight, error) {
	var flight models.Flight
	err := d.Bun.NewSelect().
		Model(&flight).
		Where("id = ?", flightID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFlightNotFound
		}
		return nil, err
	}
	return &flight, nil
}

// CountPayments reports how many payment rows reference bookingID.
func (d *DB) CountPayments(ctx context.Context, bookingID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.PaymentRecord)(nil)).
		Where("booking_id = ?", bookingID).
		Count(ctx)
}
