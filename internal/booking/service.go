package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingdb "airline-booking/internal/booking/db"
	"airline-booking/internal/logger"
	"airline-booking/internal/models"
	orderredis "airline-booking/internal/order/redis"
	"airline-booking/internal/payment/signature"
)

var (
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrMissingSecret     = errors.New("payment verification secret is not configured")
	ErrMissingReceipt    = errors.New("payment receipt is incomplete")
	ErrPaymentInProgress = errors.New("payment is already being processed")
	ErrUserMismatch      = errors.New("booking user does not match the authenticated user")
	ErrOrderMismatch     = errors.New("order was issued to a different user")
)

// PersistenceError means the gateway captured the payment but the booking
// could not be stored. The payment id is what support needs to reconcile it.
type PersistenceError struct {
	PaymentID string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("payment %s captured but booking not stored: %v", e.PaymentID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

type Persister interface {
	PersistBooking(ctx context.Context, receipt models.Receipt, draft models.BookingDraft) (*models.Booking, error)
	FindBookingByPaymentID(ctx context.Context, paymentID string) (*models.Booking, error)
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
}

type OrderLookup interface {
	GetOrder(ctx context.Context, orderID string) (*models.OrderRecord, error)
	ForgetOrder(ctx context.Context, orderID string) error
}

type PaymentLocker interface {
	LockPayment(ctx context.Context, paymentID string) (string, bool, error)
	UnlockPayment(ctx context.Context, paymentID, token string) error
}

type EventPublisher interface {
	PublishBookingConfirmed(ctx context.Context, event models.BookingConfirmedEvent) error
	PublishReconciliation(ctx context.Context, event models.ReconciliationEvent) error
}

// ReconciliationRecorder keeps captured-but-unbooked payments for the reconciler.
type ReconciliationRecorder interface {
	RecordEntry(ctx context.Context, entry models.ReconciliationEntry) error
}

type ConfirmRequest struct {
	Receipt models.Receipt
	Draft   models.BookingDraft
	UserID  string
}

type BookingService struct {
	Persister Persister
	Orders    OrderLookup
	Locker    PaymentLocker
	Publisher EventPublisher
	Recorder  ReconciliationRecorder
	Secret    string
	Currency  string
	Logger    *logger.Logger
}

func NewBookingService(persister Persister, secret, currency string, log *logger.Logger) *BookingService {
	return &BookingService{
		Persister: persister,
		Secret:    secret,
		Currency:  currency,
		Logger:    log,
	}
}

// VerifyReceipt checks the gateway signature over the receipt.
func (s *BookingService) VerifyReceipt(receipt models.Receipt) error {
	if s.Secret == "" {
		s.Logger.Error("CONFIG", "RAZORPAY_KEY_SECRET is not configured, cannot verify payments")
		return ErrMissingSecret
	}
	if receipt.OrderID == "" || receipt.PaymentID == "" || receipt.Signature == "" {
		return ErrMissingReceipt
	}
	if !signature.Verify(receipt.OrderID, receipt.PaymentID, receipt.Signature, s.Secret) {
		expected := signature.Sign(receipt.OrderID, receipt.PaymentID, s.Secret)
		s.Logger.LogSecurity("SIGNATURE_MISMATCH", fmt.Sprintf("order=%s payment=%s expected=%s received=%s",
			receipt.OrderID, receipt.PaymentID, expected, receipt.Signature))
		return ErrInvalidSignature
	}
	return nil
}

// ConfirmBooking verifies the receipt and stores the booking it paid for.
// Submitting the same receipt again returns the booking already stored.
func (s *BookingService) ConfirmBooking(ctx context.Context, req ConfirmRequest) (*models.Booking, error) {
	if err := req.Draft.Validate(); err != nil {
		s.flagUnbookablePayment(ctx, req, err)
		return nil, err
	}
	if req.Draft.UserID != "" && req.UserID != "" && req.Draft.UserID != req.UserID {
		s.Logger.LogSecurity("USER_MISMATCH", fmt.Sprintf("token=%s draft=%s payment=%s", req.UserID, req.Draft.UserID, req.Receipt.PaymentID))
		return nil, ErrUserMismatch
	}
	if req.UserID != "" {
		req.Draft.UserID = req.UserID
	}

	if err := s.VerifyReceipt(req.Receipt); err != nil {
		return nil, err
	}
	paymentID := req.Receipt.PaymentID
	s.Logger.LogPayment("VERIFIED", paymentID, fmt.Sprintf("order=%s", req.Receipt.OrderID))

	if s.Locker != nil {
		token, ok, err := s.Locker.LockPayment(ctx, paymentID)
		switch {
		case err != nil:
			// the unique payment id still guards against double booking
			s.Logger.Warn("REDIS", fmt.Sprintf("Payment lock unavailable for %s: %v", paymentID, err))
		case !ok:
			return nil, ErrPaymentInProgress
		default:
			defer func() {
				if err := s.Locker.UnlockPayment(context.WithoutCancel(ctx), paymentID, token); err != nil {
					s.Logger.Warn("REDIS", fmt.Sprintf("Failed to release payment lock for %s: %v", paymentID, err))
				}
			}()
		}
	}

	existing, err := s.Persister.FindBookingByPaymentID(ctx, paymentID)
	switch {
	case err == nil:
		s.Logger.LogBooking("ALREADY_CONFIRMED", existing.ID, fmt.Sprintf("payment %s", paymentID))
		return existing, nil
	case !errors.Is(err, bookingdb.ErrBookingNotFound):
		s.Logger.Warn("DATABASE", fmt.Sprintf("Existing booking lookup failed for %s: %v", paymentID, err))
	}

	draft, err := s.resolveAmount(ctx, req)
	if err != nil {
		return nil, err
	}

	booking, err := s.Persister.PersistBooking(ctx, req.Receipt, draft)
	if err != nil {
		if errors.Is(err, bookingdb.ErrPaymentAlreadyProcessed) {
			s.Logger.Warn("BOOKING", fmt.Sprintf("Payment %s already has a booking", paymentID))
			return nil, err
		}
		return nil, s.queueReconciliation(ctx, req.Receipt, draft, err)
	}

	s.Logger.LogBooking("CONFIRMED", booking.ID, fmt.Sprintf("payment=%s passengers=%d amount=%d %s",
		paymentID, len(booking.Passengers), draft.Amount, draft.Currency))
	s.publishConfirmed(ctx, booking, req.Receipt, draft)

	if s.Orders != nil {
		if err := s.Orders.ForgetOrder(ctx, req.Receipt.OrderID); err != nil {
			s.Logger.Debug("REDIS", fmt.Sprintf("Order record %s not removed: %v", req.Receipt.OrderID, err))
		}
	}

	return booking, nil
}

// resolveAmount prefers the amount recorded when the order was issued over
// the one the client sent.
func (s *BookingService) resolveAmount(ctx context.Context, req ConfirmRequest) (models.BookingDraft, error) {
	draft := req.Draft
	if draft.Currency == "" {
		draft.Currency = s.Currency
	}
	draft.PaymentStatus = models.StatusSuccess

	if s.Orders == nil {
		return draft, nil
	}

	rec, err := s.Orders.GetOrder(ctx, req.Receipt.OrderID)
	if err != nil {
		if !errors.Is(err, orderredis.ErrOrderNotFound) {
			s.Logger.Warn("REDIS", fmt.Sprintf("Order record lookup failed for %s: %v", req.Receipt.OrderID, err))
		}
		return draft, nil
	}

	if rec.UserID != "" && draft.UserID != "" && rec.UserID != draft.UserID {
		s.Logger.LogSecurity("ORDER_OWNER_MISMATCH", fmt.Sprintf("order=%s issued_to=%s submitted_by=%s", rec.OrderID, rec.UserID, draft.UserID))
		return draft, ErrOrderMismatch
	}
	if draft.Amount != 0 && draft.Amount != rec.Amount {
		s.Logger.Warn("PAYMENT", fmt.Sprintf("Client amount %d differs from order %s amount %d, using order amount",
			draft.Amount, rec.OrderID, rec.Amount))
	}
	draft.Amount = rec.Amount
	if rec.Currency != "" {
		draft.Currency = rec.Currency
	}
	return draft, nil
}

// flagUnbookablePayment records a genuine receipt whose draft cannot be
// booked as a manual reconciliation entry. The reconciler never retries it.
func (s *BookingService) flagUnbookablePayment(ctx context.Context, req ConfirmRequest, cause error) {
	r := req.Receipt
	if s.Recorder == nil || s.Secret == "" || !signature.Verify(r.OrderID, r.PaymentID, r.Signature, s.Secret) {
		return
	}
	s.Logger.LogReconciliation(r.PaymentID, fmt.Sprintf("order=%s user=%s: payment captured for an unbookable draft: %v", r.OrderID, req.UserID, cause))

	draft := req.Draft
	if req.UserID != "" {
		draft.UserID = req.UserID
	}
	entry := models.ReconciliationEvent{
		Receipt:    r,
		UserID:     draft.UserID,
		Draft:      draft,
		Amount:     draft.Amount,
		Currency:   draft.Currency,
		Error:      cause.Error(),
		OccurredAt: time.Now().UTC(),
	}.Entry()
	entry.Status = models.ReconcileManual
	if entry.Currency == "" {
		entry.Currency = s.Currency
	}
	if err := s.Recorder.RecordEntry(context.WithoutCancel(ctx), entry); err != nil {
		s.Logger.Error("RECONCILE", fmt.Sprintf("Could not record entry for %s: %v", r.PaymentID, err))
	}
}

func (s *BookingService) queueReconciliation(ctx context.Context, receipt models.Receipt, draft models.BookingDraft, cause error) error {
	s.Logger.LogReconciliation(receipt.PaymentID, fmt.Sprintf("order=%s user=%s: %v", receipt.OrderID, draft.UserID, cause))

	event := models.ReconciliationEvent{
		Receipt:    receipt,
		UserID:     draft.UserID,
		Draft:      draft,
		Amount:     draft.Amount,
		Currency:   draft.Currency,
		Error:      cause.Error(),
		OccurredAt: time.Now().UTC(),
	}

	// detached so a cancelled request still leaves a trace for the reconciler
	bg := context.WithoutCancel(ctx)
	recorded := false
	if s.Recorder != nil {
		if err := s.Recorder.RecordEntry(bg, event.Entry()); err != nil {
			s.Logger.Error("RECONCILE", fmt.Sprintf("Could not record entry for %s: %v", receipt.PaymentID, err))
		} else {
			recorded = true
		}
	}
	if s.Publisher != nil {
		if err := s.Publisher.PublishReconciliation(bg, event); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Could not publish reconciliation for %s: %v", receipt.PaymentID, err))
		} else {
			recorded = true
		}
	}
	if !recorded {
		s.Logger.LogReconciliation(receipt.PaymentID, "no reconciliation record could be written, manual follow-up required")
	}

	return &PersistenceError{PaymentID: receipt.PaymentID, Err: cause}
}

func (s *BookingService) publishConfirmed(ctx context.Context, booking *models.Booking, receipt models.Receipt, draft models.BookingDraft) {
	if s.Publisher == nil {
		return
	}
	event := models.BookingConfirmedEvent{
		BookingID:   booking.ID,
		UserID:      booking.UserID,
		FlightID:    booking.FlightID,
		SeatNumber:  booking.SeatNumber,
		OrderID:     receipt.OrderID,
		PaymentID:   receipt.PaymentID,
		Amount:      draft.Amount,
		Currency:    draft.Currency,
		Passengers:  len(booking.Passengers),
		ConfirmedAt: booking.CreatedAt,
	}
	if err := s.Publisher.PublishBookingConfirmed(ctx, event); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("booking.confirmed not published for %s: %v", booking.ID, err))
	}
}

// GetBooking returns a booking only to the user who made it.
func (s *BookingService) GetBooking(ctx context.Context, bookingID, userID string) (*models.Booking, error) {
	b, err := s.Persister.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if userID != "" && b.UserID != userID {
		return nil, bookingdb.ErrBookingNotFound
	}
	return b, nil
}
