package booking_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"airline-booking/internal/booking"
	bookingdb "airline-booking/internal/booking/db"
	"airline-booking/internal/logger"
	"airline-booking/internal/models"
	orderredis "airline-booking/internal/order/redis"
	"airline-booking/internal/payment/signature"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "rzp_test_secret"

type MockPersister struct {
	mock.Mock
}

func (m *MockPersister) PersistBooking(ctx context.Context, receipt models.Receipt, draft models.BookingDraft) (*models.Booking, error) {
	args := m.Called(ctx, receipt, draft)
	if b := args.Get(0); b != nil {
		return b.(*models.Booking), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPersister) FindBookingByPaymentID(ctx context.Context, paymentID string) (*models.Booking, error) {
	args := m.Called(ctx, paymentID)
	if b := args.Get(0); b != nil {
		return b.(*models.Booking), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPersister) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	args := m.Called(ctx, bookingID)
	if b := args.Get(0); b != nil {
		return b.(*models.Booking), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockOrders struct {
	mock.Mock
}

func (m *MockOrders) GetOrder(ctx context.Context, orderID string) (*models.OrderRecord, error) {
	args := m.Called(ctx, orderID)
	if r := args.Get(0); r != nil {
		return r.(*models.OrderRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOrders) ForgetOrder(ctx context.Context, orderID string) error {
	return m.Called(ctx, orderID).Error(0)
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) LockPayment(ctx context.Context, paymentID string) (string, bool, error) {
	args := m.Called(ctx, paymentID)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockLocker) UnlockPayment(ctx context.Context, paymentID, token string) error {
	return m.Called(ctx, paymentID, token).Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishBookingConfirmed(ctx context.Context, event models.BookingConfirmedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockPublisher) PublishReconciliation(ctx context.Context, event models.ReconciliationEvent) error {
	return m.Called(ctx, event).Error(0)
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) RecordEntry(ctx context.Context, entry models.ReconciliationEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func signedReceipt(orderID, paymentID string) models.Receipt {
	return models.Receipt{
		OrderID:   orderID,
		PaymentID: paymentID,
		Signature: signature.Sign(orderID, paymentID, testSecret),
	}
}

func validDraft() models.BookingDraft {
	return models.BookingDraft{
		UserID:     "user-1",
		FlightID:   "FL-101",
		SeatNumber: "12A",
		Amount:     500000,
		Passengers: []models.Passenger{{Name: "Asha", Age: 31, Gender: "F"}, {Name: "Ravi", Age: 33, Gender: "M"}},
	}
}

func newService(t *testing.T, p *MockPersister) (*booking.BookingService, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	svc := booking.NewBookingService(p, testSecret, "INR", logger.NewTestLogger(&buf))
	return svc, &buf
}

func TestConfirmBooking_HappyPath(t *testing.T) {
	p := new(MockPersister)
	pub := new(MockPublisher)
	svc, _ := newService(t, p)
	svc.Publisher = pub

	receipt := signedReceipt("order_1", "pay_1")
	stored := &models.Booking{ID: "b-1", UserID: "user-1", Passengers: make([]models.PassengerRecord, 2)}

	p.On("FindBookingByPaymentID", mock.Anything, "pay_1").Return(nil, bookingdb.ErrBookingNotFound)
	p.On("PersistBooking", mock.Anything, receipt, mock.MatchedBy(func(d models.BookingDraft) bool {
		return d.Currency == "INR" && d.Amount == 500000 && d.PaymentStatus == models.StatusSuccess
	})).Return(stored, nil).Once()
	pub.On("PublishBookingConfirmed", mock.Anything, mock.MatchedBy(func(e models.BookingConfirmedEvent) bool {
		return e.BookingID == "b-1" && e.PaymentID == "pay_1" && e.Passengers == 2
	})).Return(nil)

	got, err := svc.ConfirmBooking(context.Background(), booking.ConfirmRequest{Receipt: receipt, Draft: validDraft(), UserID: "user-1"})

	require.NoError(t, err)
	assert.Equal(t, "b-1", got.ID)
	p.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestConfirmBooking_TamperedSignatureNeverPersists(t *testing.T) {
	p := new(MockPersister)
	svc, logs := newService(t, p)

	receipt := signedReceipt("order_1", "pay_1")
	receipt.Signature = "00" + receipt.Signature[2:]

	_, err := svc.ConfirmBooking(context.Background(), booking.ConfirmRequest{Receipt: receipt, Draft: validDraft()})

	assert.True(t, errors.Is(err, booking.ErrInvalidSignature))
	p.AssertNotCalled(t, "PersistBooking", mock.Anything, mock.Anything, mock.Anything)
	p.AssertNotCalled(t, "FindBookingByPaymentID", mock.Anything, mock.Anything)
	assert.Contains(t, logs.String(), "SIGNATURE_MISMATCH")
	assert.Contains(t, logs.String(), "received="+receipt.Signature)
}

func TestConfirmBooking_MissingSecret(t *testing.T) {
	p := new(MockPersister)
	svc, _ := newService(t, p)
	svc.Secret = ""

	_, err := svc.ConfirmBooking(context.Background(), booking.ConfirmRequest{Receipt: signedReceipt("o", "p"), Draft: validDraft()})

	assert.True(t, errors.Is(err, booking.ErrMissingSecret))
	p.AssertNotCalled(t, "PersistBooking", mock.Anything, mock.Anything, mock.Anything)
}

func TestConfirmBooking_InvalidDraftRejectedFirst(t *testing.T) {
	p := new(MockPersister)
	svc, _ := newService(t, p)
	draft := validDraft()
	draft.Passengers = nil

	_, err := svc.ConfirmBooking(context.Background(), booking.ConfirmRequest{Receipt: models.Receipt{}, Draft: draft})

	assert.True(t, errors.Is(err, models.ErrInvalidDraft))
	p.AssertExpectations(t)
}

func TestConfirmBooking_PaidInvalidDraftFlaggedForManualFollowUp(t *testing.T) {
	p := new(MockPersister)
	rec := new(MockRecorder)
	svc, logs := newService(t, p)
	svc.Recorder = rec
	draft := validDraft()
	draft.SeatNumber = ""
	receipt := signedReceipt("order_1", "pay_1")

	rec.On("RecordEntry", mock.Anything, mock.MatchedBy(func(e models.ReconciliationEntry) bool {
		return e.PaymentID == "pay_1" && e.Status == models.ReconcileManual && e.Currency == "INR"
	})).Return(nil).Once()

	_, err := svc.ConfirmBooking(context.Background(), booking.ConfirmRequest{Receipt: receipt, Draft: draft, UserID: "user-1"})

	assert.True(t, errors.Is(err, models.ErrInvalidDraft))
	rec.AssertExpectations(t)
	p.AssertNotCalled(t, "PersistBooking", mock.Anything, mock.Anything, mock.Anything)
	assert.Contains(t, logs.String(), "unbookable draft")
}

func TestConfirmBooking_InvalidDraftWithForgedReceiptRecordsNothing(t *testing.T) {
	p := new(MockPersister)
	rec := new(MockRecorder)
	svc, _ := newService(t, p)
	svc.Recorder = rec
	draft := validDraft()
	draft.Passengers = nil
	receipt := signedReceipt("order_1", "pay_1")
	receipt.PaymentID = "pay_2"

	_, err := svc.ConfirmBooking(context.Background(), booking.ConfirmRequest{Receipt: receipt, Draft: draft})

	assert.True(t, errors.Is(err, models.ErrInvalidDraft))
	rec.AssertNotCalled(t, "RecordEntry", mock.Anything, mock.Anything)
}

func TestConfirmBooking_UserMismatch(t *testing.T) {
	p := new(MockPersister)
	svc, _ := newService(t, p)

	_, err := svc.ConfirmBooking(context.Background(), booking.ConfirmRequest{
		Receipt: signedReceipt("o", "p"),
		Draft:   validDraft(),
		UserID:  "someone-else",
	})

	assert.True(t, errors.Is(err, booking.ErrUserMismatch))
	p.AssertNotCalled(t, "PersistBooking", mock.Anything, mock.Anything, mock.Anything)
}

func TestConfirmBooking_ReturnsExistingBookingForSamePayment(t *testing.T) {
	p := new(MockPersister)
	svc, _ := newService(t, p)
	existing := &models.Booking{ID: "b-existing"}

	p.On("FindBookingByPaymentID", mock.Anything, "pay_1").Return(existing, nil)

	got, err := svc.ConfirmBooking(context.Background(), booking.ConfirmRequest{Receipt: signedReceipt("order_1", "pay_1"), Draft: validDraft()})

	require.NoError(t, err)
	assert.Equal(t, "b-existing", got.ID)
	p.AssertNotCalled(t, "PersistBooking", mock.Anything, mock.Anything, mock.Anything)
}

func TestConfirmBooking_LockHeldMeansInProgress(t *testing.T) {
	p := new(MockPersister)
	locker := new(MockLocker)
	svc, _ := newService(t, p)
	svc.Locker = locker

	locker.On("LockPayment", mock.Anything, "pay_1").Return("", false, nil)

	_, err := svc.ConfirmBooking(context.Background(), booking.ConfirmRequest{Receipt: signedReceipt("order_1", "pay_1"), Draft: validDraft()})

	assert.True(t, errors.Is(err, booking.ErrPaymentInProgress))
	p.AssertNotCalled(t, "FindBookingByPaymentID", mock.Anything, mock.Anything)
}

func TestConfirmBooking_ReleasesLock(t *testing.T) {
	p := new(MockPersister)
	locker := new(MockLocker)
	svc, _ := newService(t, p)
	svc.Locker = locker

	locker.On("LockPayment", mock.Anything, "pay_1").Return("tok", true, nil)
	locker.On("UnlockPayment", mock.Anything, "pay_1", "tok").Return(nil).Once()
	p.On("FindBookingByPaymentID", mock.Anything, "pay_1").Return(&models.Booking{ID: "b-1"}, nil)

	_, err := svc.ConfirmBooking(context.Background(), booking.ConfirmRequest{Receipt: signedReceipt("order_1", "pay_1"), Draft: validDraft()})

	require.NoError(t, err)
	locker.AssertExpectations(t)
}

func TestConfirmBooking_UsesOrderRecordAmount(t *testing.T) {
	p := new(MockPersister)
	orders := new(MockOrders)
	svc, _ := newService(t, p)
	svc.Orders = orders

	orders.On("GetOrder", mock.Anything, "order_1").
		Return(&models.OrderRecord{OrderID: "order_1", Amount: 750000, Currency: "INR", UserID: "user-1"}, nil)
	orders.On("ForgetOrder", mock.Anything, "order_1").Return(nil).Once()
	p.On("FindBookingByPaymentID", mock.Anything, "pay_1").Return(nil, bookingdb.ErrBookingNotFound)
	p.On("PersistBooking", mock.Anything, mock.Anything, mock.MatchedBy(func(d models.BookingDraft) bool {
		return d.Amount == 750000
	})).Return(&models.Booking{ID: "b-1"}, nil)

	_, err := svc.ConfirmBooking(context.Background(), booking.ConfirmRequest{Receipt: signedReceipt("order_1", "pay_1"), Draft: validDraft()})

	require.NoError(t, err)
	p.AssertExpectations(t)
	orders.AssertExpectations(t)
}

func TestConfirmBooking_MissingOrderRecordFallsBackToRequest(t *testing.T) {
	p := new(MockPersister)
	orders := new(MockOrders)
	svc, _ := newService(t, p)
	svc.Orders = orders

	orders.On("GetOrder", mock.Anything, "order_1").Return(nil, orderredis.ErrOrderNotFound)
	orders.On("ForgetOrder", mock.Anything, "order_1").Return(nil)
	p.On("FindBookingByPaymentID", mock.Anything, "pay_1").Return(nil, bookingdb.ErrBookingNotFound)
	p.On("PersistBooking", mock.Anything, mock.Anything, mock.MatchedBy(func(d models.BookingDraft) bool {
		return d.Amount == 500000
	})).Return(&models.Booking{ID: "b-1"}, nil)

	_, err := svc.ConfirmBooking(context.Background(), booking.ConfirmRequest{Receipt: signedReceipt("order_1", "pay_1"), Draft: validDraft()})
	require.NoError(t, err)
}

func TestConfirmBooking_OrderIssuedToAnotherUser(t *testing.T) {
	p := new(MockPersister)
	orders := new(MockOrders)
	svc, _ := newService(t, p)
	svc.Orders = orders

	orders.On("GetOrder", mock.Anything, "order_1").
		Return(&models.OrderRecord{OrderID: "order_1", Amount: 500000, UserID: "user-2"}, nil)
	p.On("FindBookingByPaymentID", mock.Anything, "pay_1").Return(nil, bookingdb.ErrBookingNotFound)

	_, err := svc.ConfirmBooking(context.Background(), booking.ConfirmRequest{Receipt: signedReceipt("order_1", "pay_1"), Draft: validDraft()})

	assert.True(t, errors.Is(err, booking.ErrOrderMismatch))
	p.AssertNotCalled(t, "PersistBooking", mock.Anything, mock.Anything, mock.Anything)
}

func TestConfirmBooking_DuplicatePaymentIsNotReconciled(t *testing.T) {
	p := new(MockPersister)
	rec := new(MockRecorder)
	svc, _ := newService(t, p)
	svc.Recorder = rec

	p.On("FindBookingByPaymentID", mock.Anything, "pay_1").Return(nil, bookingdb.ErrBookingNotFound)
	p.On("PersistBooking", mock.Anything, mock.Anything, mock.Anything).Return(nil, bookingdb.ErrPaymentAlreadyProcessed)

	_, err := svc.ConfirmBooking(context.Background(), booking.ConfirmRequest{Receipt: signedReceipt("order_1", "pay_1"), Draft: validDraft()})

	assert.True(t, errors.Is(err, bookingdb.ErrPaymentAlreadyProcessed))
	rec.AssertNotCalled(t, "RecordEntry", mock.Anything, mock.Anything)
}

func TestConfirmBooking_PersistenceFailureQueuesReconciliation(t *testing.T) {
	p := new(MockPersister)
	rec := new(MockRecorder)
	pub := new(MockPublisher)
	svc, logs := newService(t, p)
	svc.Recorder = rec
	svc.Publisher = pub

	receipt := signedReceipt("order_1", "pay_1")
	p.On("FindBookingByPaymentID", mock.Anything, "pay_1").Return(nil, bookingdb.ErrBookingNotFound)
	p.On("PersistBooking", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))
	rec.On("RecordEntry", mock.Anything, mock.MatchedBy(func(e models.ReconciliationEntry) bool {
		return e.PaymentID == "pay_1" && e.Signature == receipt.Signature && e.Status == models.ReconcilePending && len(e.Draft.Passengers) == 2
	})).Return(nil)
	pub.On("PublishReconciliation", mock.Anything, mock.MatchedBy(func(e models.ReconciliationEvent) bool {
		return e.Receipt == receipt && e.Error == "connection reset"
	})).Return(nil)

	_, err := svc.ConfirmBooking(context.Background(), booking.ConfirmRequest{Receipt: receipt, Draft: validDraft()})

	var perr *booking.PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "pay_1", perr.PaymentID)
	rec.AssertExpectations(t)
	pub.AssertExpectations(t)
	pub.AssertNotCalled(t, "PublishBookingConfirmed", mock.Anything, mock.Anything)
	assert.Contains(t, logs.String(), "RECONCILE")
}

func TestGetBooking_HidesOtherUsersBookings(t *testing.T) {
	p := new(MockPersister)
	svc, _ := newService(t, p)
	p.On("GetBooking", mock.Anything, "b-1").Return(&models.Booking{ID: "b-1", UserID: "user-1"}, nil)

	got, err := svc.GetBooking(context.Background(), "b-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "b-1", got.ID)

	_, err = svc.GetBooking(context.Background(), "b-1", "user-2")
	assert.True(t, errors.Is(err, bookingdb.ErrBookingNotFound))
}
