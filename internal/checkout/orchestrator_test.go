package checkout

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"airline-booking/internal/apperr"
	"airline-booking/internal/logger"
	"airline-booking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOrderClient struct {
	mock.Mock
}

func (m *MockOrderClient) CreateOrder(ctx context.Context, amount int64) (*models.Order, error) {
	args := m.Called(ctx, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Confirm(ctx context.Context, receipt models.Receipt, draft models.BookingDraft) (*models.Booking, error) {
	args := m.Called(ctx, receipt, draft)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

type fakeWidget struct {
	mu     sync.Mutex
	opened []WidgetOptions
	err    error
}

func (w *fakeWidget) Open(ctx context.Context, opts WidgetOptions) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.opened = append(w.opened, opts)
	return w.err
}

func testDraft() Draft {
	return Draft{
		FlightID:   "AI-202",
		SeatNumber: "12A",
		Price:      4500,
		Passengers: []models.Passenger{
			{Name: "Asha Rao", Age: 34, Gender: "F"},
			{Name: "Vikram Rao", Age: 36, Gender: "M"},
		},
	}
}

func newTestOrchestrator(t *testing.T, draft Draft) (*Orchestrator, *MockOrderClient, *MockVerifier, *fakeWidget, *bytes.Buffer) {
	t.Helper()
	orders := new(MockOrderClient)
	verifier := new(MockVerifier)
	widget := &fakeWidget{}
	var buf bytes.Buffer
	o := NewOrchestrator(NewSession("user-1", "asha@example.com", draft), orders, verifier, widget, Options{
		Key:           "rzp_test_key",
		WidgetTimeout: time.Minute,
		BaseDelay:     time.Millisecond,
	}, logger.NewTestLogger(&buf))
	t.Cleanup(o.Close)
	return o, orders, verifier, widget, &buf
}

func order(id string) *models.Order {
	return &models.Order{ID: id, Amount: 450000, Currency: "INR", Receipt: "receipt_1"}
}

func recordStates(o *Orchestrator) func() []State {
	var mu sync.Mutex
	var states []State
	o.Subscribe(func(t Transition) {
		mu.Lock()
		states = append(states, t.To)
		mu.Unlock()
	})
	return func() []State {
		mu.Lock()
		defer mu.Unlock()
		return append([]State(nil), states...)
	}
}

func TestPayRequiresPrice(t *testing.T) {
	draft := testDraft()
	draft.Price = 0
	o, orders, _, widget, _ := newTestOrchestrator(t, draft)

	err := o.Pay(context.Background())

	assert.ErrorIs(t, err, ErrPriceRequired)
	assert.Equal(t, StateIdle, o.State())
	orders.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
	assert.Empty(t, widget.opened)
}

func TestPayRejectsIncompleteDraftWithoutOrder(t *testing.T) {
	draft := testDraft()
	draft.Passengers = nil
	draft.SeatNumber = ""
	o, orders, _, widget, _ := newTestOrchestrator(t, draft)

	err := o.Pay(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidDraft)
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.ClientInput, ae.Category)
	assert.Equal(t, "seat number is required", ae.PublicError)
	assert.Equal(t, StateIdle, o.State())
	orders.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
	assert.Empty(t, widget.opened)
	assert.Equal(t, "Check your details", Describe(err).Title)
}

func TestHappyPathConfirmsBooking(t *testing.T) {
	o, orders, verifier, widget, _ := newTestOrchestrator(t, testDraft())
	states := recordStates(o)
	ctx := context.Background()

	orders.On("CreateOrder", mock.Anything, int64(450000)).Return(order("order_1"), nil).Once()
	require.NoError(t, o.Pay(ctx))
	assert.Equal(t, StateWidgetOpen, o.State())

	require.Len(t, widget.opened, 1)
	opts := widget.opened[0]
	assert.Equal(t, "order_1", opts.OrderID)
	assert.Equal(t, int64(450000), opts.Amount)
	assert.Equal(t, "rzp_test_key", opts.Key)
	assert.Equal(t, "Flight Booking - AI-202", opts.Description)
	assert.Equal(t, "asha@example.com", opts.Prefill["email"])

	receipt := models.Receipt{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig"}
	verifier.On("Confirm", mock.Anything, receipt, mock.MatchedBy(func(d models.BookingDraft) bool {
		return d.UserID == "user-1" && d.Amount == 450000 && len(d.Passengers) == 2 && d.PaymentStatus == models.StatusSuccess
	})).Return(&models.Booking{ID: "booking-1"}, nil).Once()

	conf, err := o.HandleReceipt(ctx, receipt)
	require.NoError(t, err)
	assert.Equal(t, "booking-1", conf.BookingID)
	assert.Equal(t, int64(4500), conf.Amount)
	assert.NotEmpty(t, conf.Date)

	assert.Equal(t, StateBookingConfirmed, o.State())
	assert.Equal(t, []State{StateOrderCreated, StateWidgetOpen, StateVerifying, StateBookingConfirmed}, states())
	assert.Nil(t, o.session.Draft.Passengers)
	assert.Equal(t, "booking-1", o.session.Draft.BookingID)
	assert.Equal(t, models.StatusSuccess, o.session.Draft.PaymentStatus)
	orders.AssertExpectations(t)
	verifier.AssertExpectations(t)
}

func TestPayRetriesTransientOrderFailures(t *testing.T) {
	o, orders, _, _, buf := newTestOrchestrator(t, testDraft())
	busy := apperr.New(apperr.GatewayTransient, http.StatusTooManyRequests, "busy", nil)

	orders.On("CreateOrder", mock.Anything, int64(450000)).Return(nil, busy).Twice()
	orders.On("CreateOrder", mock.Anything, int64(450000)).Return(order("order_2"), nil).Once()

	require.NoError(t, o.Pay(context.Background()))
	assert.Equal(t, StateWidgetOpen, o.State())
	orders.AssertNumberOfCalls(t, "CreateOrder", 3)
	assert.Contains(t, buf.String(), "retrying")
}

func TestPayGivesUpAfterThreeAttempts(t *testing.T) {
	o, orders, _, widget, _ := newTestOrchestrator(t, testDraft())
	busy := apperr.New(apperr.GatewayTransient, http.StatusServiceUnavailable, "busy", nil)
	orders.On("CreateOrder", mock.Anything, mock.Anything).Return(nil, busy)

	err := o.Pay(context.Background())

	assert.ErrorIs(t, err, busy)
	assert.Equal(t, StateIdle, o.State())
	assert.Nil(t, o.Order())
	orders.AssertNumberOfCalls(t, "CreateOrder", 3)
	assert.Empty(t, widget.opened)
}

func TestPayDoesNotRetryClientErrors(t *testing.T) {
	o, orders, _, _, _ := newTestOrchestrator(t, testDraft())
	bad := apperr.BadRequest("Amount required", nil)
	orders.On("CreateOrder", mock.Anything, mock.Anything).Return(nil, bad)

	err := o.Pay(context.Background())

	assert.ErrorIs(t, err, bad)
	orders.AssertNumberOfCalls(t, "CreateOrder", 1)
	assert.Equal(t, "Amount required", Describe(err).Text)
}

func TestWidgetOpenFailureInvalidatesOrder(t *testing.T) {
	o, orders, _, widget, _ := newTestOrchestrator(t, testDraft())
	widget.err = errors.New("script blocked")
	orders.On("CreateOrder", mock.Anything, mock.Anything).Return(order("order_3"), nil)

	err := o.Pay(context.Background())

	require.Error(t, err)
	assert.Equal(t, StateIdle, o.State())
	assert.Nil(t, o.Order())
}

func TestStaleReceiptIsRejected(t *testing.T) {
	o, orders, verifier, _, _ := newTestOrchestrator(t, testDraft())
	orders.On("CreateOrder", mock.Anything, mock.Anything).Return(order("order_4"), nil)
	require.NoError(t, o.Pay(context.Background()))

	_, err := o.HandleReceipt(context.Background(), models.Receipt{OrderID: "order_old", PaymentID: "pay_x", Signature: "s"})

	assert.ErrorIs(t, err, ErrStaleReceipt)
	assert.Equal(t, StateWidgetOpen, o.State())
	verifier.AssertNotCalled(t, "Confirm", mock.Anything, mock.Anything, mock.Anything)
}

func TestReceiptOutsideWidgetIsRejected(t *testing.T) {
	o, _, verifier, _, _ := newTestOrchestrator(t, testDraft())

	_, err := o.HandleReceipt(context.Background(), models.Receipt{OrderID: "order_1"})

	assert.ErrorIs(t, err, ErrInvalidState)
	verifier.AssertNotCalled(t, "Confirm", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerificationFailureMovesToFailed(t *testing.T) {
	o, orders, verifier, _, _ := newTestOrchestrator(t, testDraft())
	orders.On("CreateOrder", mock.Anything, mock.Anything).Return(order("order_5"), nil)
	require.NoError(t, o.Pay(context.Background()))

	invalid := apperr.New(apperr.SignatureMismatch, http.StatusBadRequest, "Invalid signature", nil)
	verifier.On("Confirm", mock.Anything, mock.Anything, mock.Anything).Return(nil, invalid)

	_, err := o.HandleReceipt(context.Background(), models.Receipt{OrderID: "order_5", PaymentID: "pay_5", Signature: "bad"})

	assert.ErrorIs(t, err, invalid)
	assert.Equal(t, StateFailed, o.State())
	assert.Equal(t, models.StatusFailed, o.session.Draft.PaymentStatus)
	verifier.AssertNumberOfCalls(t, "Confirm", 1)
	assert.Equal(t, "Payment verification failed!", Describe(o.Err()).Text)
}

func TestVerificationRetriesWhilePaymentInProgress(t *testing.T) {
	o, orders, verifier, _, _ := newTestOrchestrator(t, testDraft())
	orders.On("CreateOrder", mock.Anything, mock.Anything).Return(order("order_6"), nil)
	require.NoError(t, o.Pay(context.Background()))

	inProgress := apperr.New(apperr.InProgress, http.StatusConflict, "Payment is being processed", nil)
	verifier.On("Confirm", mock.Anything, mock.Anything, mock.Anything).Return(nil, inProgress).Once()
	verifier.On("Confirm", mock.Anything, mock.Anything, mock.Anything).Return(&models.Booking{ID: "booking-6"}, nil).Once()

	conf, err := o.HandleReceipt(context.Background(), models.Receipt{OrderID: "order_6", PaymentID: "pay_6", Signature: "s"})

	require.NoError(t, err)
	assert.Equal(t, "booking-6", conf.BookingID)
	verifier.AssertNumberOfCalls(t, "Confirm", 2)
}

func TestPersistenceAfterCaptureIsNotRetried(t *testing.T) {
	o, orders, verifier, _, _ := newTestOrchestrator(t, testDraft())
	orders.On("CreateOrder", mock.Anything, mock.Anything).Return(order("order_7"), nil)
	require.NoError(t, o.Pay(context.Background()))

	lost := apperr.New(apperr.PersistenceAfterCapture, http.StatusInternalServerError,
		"Your payment succeeded but we could not save your booking. Please contact support with payment ID pay_7.", nil)
	verifier.On("Confirm", mock.Anything, mock.Anything, mock.Anything).Return(nil, lost)

	_, err := o.HandleReceipt(context.Background(), models.Receipt{OrderID: "order_7", PaymentID: "pay_7", Signature: "s"})

	require.Error(t, err)
	verifier.AssertNumberOfCalls(t, "Confirm", 1)
	assert.Contains(t, Describe(err).Text, "pay_7")
}

func TestWidgetFailureThenRetryNeedsFreshOrder(t *testing.T) {
	o, orders, _, widget, _ := newTestOrchestrator(t, testDraft())
	orders.On("CreateOrder", mock.Anything, mock.Anything).Return(order("order_8"), nil).Once()
	orders.On("CreateOrder", mock.Anything, mock.Anything).Return(order("order_9"), nil).Once()
	require.NoError(t, o.Pay(context.Background()))

	require.NoError(t, o.HandleFailure("card declined"))
	assert.Equal(t, StateFailed, o.State())
	assert.Equal(t, models.StatusFailed, o.session.Draft.PaymentStatus)
	assert.Nil(t, o.Order())

	assert.ErrorIs(t, o.Pay(context.Background()), ErrInvalidState)

	require.NoError(t, o.Retry())
	assert.Equal(t, StateIdle, o.State())
	assert.Equal(t, models.StatusPending, o.session.Draft.PaymentStatus)

	require.NoError(t, o.Pay(context.Background()))
	assert.Equal(t, "order_9", o.Order().ID)
	require.Len(t, widget.opened, 2)

	// the first order can no longer complete the booking
	_, err := o.HandleReceipt(context.Background(), models.Receipt{OrderID: "order_8", PaymentID: "pay_8", Signature: "s"})
	assert.ErrorIs(t, err, ErrStaleReceipt)
}

func TestRetryOnlyFromFailed(t *testing.T) {
	o, _, _, _, _ := newTestOrchestrator(t, testDraft())
	assert.ErrorIs(t, o.Retry(), ErrInvalidState)
	assert.ErrorIs(t, o.HandleFailure("closed"), ErrInvalidState)
}

func TestWidgetTimeoutRevertsToIdle(t *testing.T) {
	orders := new(MockOrderClient)
	o := NewOrchestrator(NewSession("user-1", "", testDraft()), orders, new(MockVerifier), &fakeWidget{}, Options{
		WidgetTimeout: 20 * time.Millisecond,
		BaseDelay:     time.Millisecond,
	}, logger.NewTestLogger(&bytes.Buffer{}))
	defer o.Close()

	timedOut := make(chan Transition, 1)
	o.Subscribe(func(tr Transition) {
		if tr.Err != nil {
			timedOut <- tr
		}
	})

	orders.On("CreateOrder", mock.Anything, mock.Anything).Return(order("order_10"), nil)
	require.NoError(t, o.Pay(context.Background()))

	select {
	case tr := <-timedOut:
		assert.ErrorIs(t, tr.Err, ErrWidgetTimeout)
		assert.Equal(t, "order_10", tr.OrderID)
	case <-time.After(time.Second):
		t.Fatal("widget did not time out")
	}
	assert.Equal(t, StateIdle, o.State())
	assert.Nil(t, o.Order())

	_, err := o.HandleReceipt(context.Background(), models.Receipt{OrderID: "order_10"})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	o, orders, _, _, _ := newTestOrchestrator(t, testDraft())
	calls := 0
	unsubscribe := o.Subscribe(func(Transition) { calls++ })
	unsubscribe()
	unsubscribe()

	orders.On("CreateOrder", mock.Anything, mock.Anything).Return(order("order_11"), nil)
	require.NoError(t, o.Pay(context.Background()))
	assert.Zero(t, calls)
}

func TestCloseDropsListeners(t *testing.T) {
	o, _, _, _, _ := newTestOrchestrator(t, testDraft())
	calls := 0
	o.Subscribe(func(Transition) { calls++ })

	o.Close()

	assert.ErrorIs(t, o.Pay(context.Background()), ErrClosed)
	assert.Zero(t, calls)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, UserMessage{}, Describe(nil))
	assert.True(t, Describe(ErrWidgetTimeout).Retryable)
	assert.Equal(t, "Please login again.", Describe(apperr.New(apperr.Unauthorized, http.StatusUnauthorized, "unauthorized", nil)).Text)
	assert.Equal(t, "Payment service is busy. Please try again shortly.", Describe(apperr.Transient("busy", nil)).Text)
	assert.False(t, Describe(apperr.Config("Missing Razorpay credentials", nil)).Retryable)
	assert.Equal(t, "Error verifying payment.", Describe(errors.New("boom")).Text)
}
