// Package reconcile retries bookings whose payment was captured but whose
// rows could not be written.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingdb "airline-booking/internal/booking/db"
	"airline-booking/internal/kafka"
	"airline-booking/internal/logger"
	"airline-booking/internal/models"
	orderredis "airline-booking/internal/order/redis"
	"airline-booking/internal/payment/signature"

	kafkago "github.com/segmentio/kafka-go"
)

type EntryStore interface {
	RecordEntry(ctx context.Context, entry models.ReconciliationEntry) error
	ListPending(ctx context.Context, limit int) ([]models.ReconciliationEntry, error)
	UpdateEntry(ctx context.Context, entry models.ReconciliationEntry) error
}

type BookingStore interface {
	PersistBooking(ctx context.Context, receipt models.Receipt, draft models.BookingDraft) (*models.Booking, error)
	FindBookingByPaymentID(ctx context.Context, paymentID string) (*models.Booking, error)
}

type Locker interface {
	Acquire(ctx context.Context, key string) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type ConfirmedPublisher interface {
	PublishBookingConfirmed(ctx context.Context, event models.BookingConfirmedEvent) error
}

type Stats struct {
	Resolved int
	Retrying int
	Manual   int
	Skipped  int
}

type Service struct {
	Store       EntryStore
	Bookings    BookingStore
	Locker      Locker
	Publisher   ConfirmedPublisher
	Secret      string
	MaxAttempts int
	BatchSize   int
	Logger      *logger.Logger
}

func NewService(store EntryStore, bookings BookingStore, secret string, maxAttempts, batchSize int, log *logger.Logger) *Service {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Service{
		Store:       store,
		Bookings:    bookings,
		Secret:      secret,
		MaxAttempts: maxAttempts,
		BatchSize:   batchSize,
		Logger:      log,
	}
}

// HandleMessage stores a booking.reconciliation event. Undecodable messages
// are logged and dropped so they do not block the partition.
func (s *Service) HandleMessage(ctx context.Context, msg kafkago.Message) error {
	event, err := kafka.DecodeReconciliation(msg)
	if err != nil {
		s.Logger.Error("RECONCILE", fmt.Sprintf("Dropping message at offset %d: %v", msg.Offset, err))
		return nil
	}
	if err := s.Store.RecordEntry(ctx, event.Entry()); err != nil {
		return fmt.Errorf("record entry %s: %w", event.Receipt.PaymentID, err)
	}
	s.Logger.LogPayment("RECONCILE_QUEUED", event.Receipt.PaymentID, fmt.Sprintf("order=%s", event.Receipt.OrderID))
	return nil
}

// Run sweeps every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if stats, err := s.Sweep(ctx); err != nil {
			s.Logger.Error("RECONCILE", fmt.Sprintf("Sweep failed: %v", err))
		} else if stats != (Stats{}) {
			s.Logger.Info("RECONCILE", fmt.Sprintf("Sweep: resolved=%d retrying=%d manual=%d skipped=%d",
				stats.Resolved, stats.Retrying, stats.Manual, stats.Skipped))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep processes one batch of pending entries.
func (s *Service) Sweep(ctx context.Context) (Stats, error) {
	var stats Stats
	entries, err := s.Store.ListPending(ctx, s.BatchSize)
	if err != nil {
		return stats, err
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		switch s.process(ctx, entry) {
		case models.ReconcileResolved:
			stats.Resolved++
		case models.ReconcileManual:
			stats.Manual++
		case models.ReconcilePending:
			stats.Retrying++
		default:
			stats.Skipped++
		}
	}
	return stats, nil
}

// process returns the entry's new status, or "" when another worker holds it.
func (s *Service) process(ctx context.Context, entry models.ReconciliationEntry) models.ReconciliationStatus {
	if s.Locker != nil {
		key := orderredis.ReconcileLockKey(entry.PaymentID)
		token, ok, err := s.Locker.Acquire(ctx, key)
		if err != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("Reconcile lock unavailable for %s: %v", entry.PaymentID, err))
			return ""
		}
		if !ok {
			return ""
		}
		defer func() {
			if err := s.Locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				s.Logger.Warn("REDIS", fmt.Sprintf("Failed to release reconcile lock for %s: %v", entry.PaymentID, err))
			}
		}()
	}

	receipt := entry.Receipt()
	if !signature.Verify(receipt.OrderID, receipt.PaymentID, receipt.Signature, s.Secret) {
		s.Logger.LogSecurity("RECONCILE_SIGNATURE", fmt.Sprintf("payment=%s order=%s", receipt.PaymentID, receipt.OrderID))
		return s.save(ctx, entry, models.ReconcileManual, "", "signature does not verify")
	}

	if existing, err := s.Bookings.FindBookingByPaymentID(ctx, entry.PaymentID); err == nil {
		return s.save(ctx, entry, models.ReconcileResolved, existing.ID, "")
	}

	draft := entry.Draft
	draft.UserID = entry.UserID
	draft.Amount = entry.Amount
	draft.Currency = entry.Currency
	draft.PaymentStatus = models.StatusSuccess

	b, err := s.Bookings.PersistBooking(ctx, receipt, draft)
	switch {
	case err == nil:
		s.Logger.LogBooking("RECONCILED", b.ID, fmt.Sprintf("payment %s after %d attempts", entry.PaymentID, entry.Attempts+1))
		s.publish(ctx, b, entry)
		return s.save(ctx, entry, models.ReconcileResolved, b.ID, "")
	case errors.Is(err, bookingdb.ErrPaymentAlreadyProcessed):
		if existing, ferr := s.Bookings.FindBookingByPaymentID(ctx, entry.PaymentID); ferr == nil {
			return s.save(ctx, entry, models.ReconcileResolved, existing.ID, "")
		}
	}

	entry.Attempts++
	if entry.Attempts >= s.MaxAttempts {
		s.Logger.LogReconciliation(entry.PaymentID, fmt.Sprintf("giving up after %d attempts, manual action required: %v", entry.Attempts, err))
		return s.save(ctx, entry, models.ReconcileManual, "", err.Error())
	}
	s.Logger.Warn("RECONCILE", fmt.Sprintf("Attempt %d for %s failed: %v", entry.Attempts, entry.PaymentID, err))
	return s.save(ctx, entry, models.ReconcilePending, "", err.Error())
}

func (s *Service) save(ctx context.Context, entry models.ReconciliationEntry, status models.ReconciliationStatus, bookingID, lastErr string) models.ReconciliationStatus {
	entry.Status = status
	if bookingID != "" {
		entry.BookingID = bookingID
	}
	if lastErr != "" {
		entry.LastError = lastErr
	}
	if err := s.Store.UpdateEntry(ctx, entry); err != nil {
		s.Logger.Error("RECONCILE", fmt.Sprintf("Could not save entry %s as %s: %v", entry.PaymentID, status, err))
	}
	return status
}

func (s *Service) publish(ctx context.Context, b *models.Booking, entry models.ReconciliationEntry) {
	if s.Publisher == nil {
		return
	}
	event := models.BookingConfirmedEvent{
		BookingID:   b.ID,
		UserID:      b.UserID,
		FlightID:    b.FlightID,
		SeatNumber:  b.SeatNumber,
		OrderID:     entry.OrderID,
		PaymentID:   entry.PaymentID,
		Amount:      entry.Amount,
		Currency:    entry.Currency,
		Passengers:  len(b.Passengers),
		ConfirmedAt: b.CreatedAt,
	}
	if err := s.Publisher.PublishBookingConfirmed(ctx, event); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("booking.confirmed not published for %s: %v", b.ID, err))
	}
}
