// Package checkout drives a traveller's payment from order creation to a
// confirmed booking.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"airline-booking/internal/apperr"
	"airline-booking/internal/logger"
	"airline-booking/internal/models"
	"airline-booking/internal/utils"

	"github.com/cenkalti/backoff/v4"
)

var (
	ErrPriceRequired = errors.New("price is required before payment")
	ErrStaleReceipt  = errors.New("receipt does not belong to the current order")
	ErrInvalidState  = errors.New("operation not allowed in current checkout state")
	ErrWidgetTimeout = errors.New("payment widget timed out")
	ErrClosed        = errors.New("checkout closed")
)

// WidgetFailure is reported by the widget when the payment is declined or dismissed.
type WidgetFailure struct {
	Reason string
}

func (e *WidgetFailure) Error() string {
	return "payment failed: " + e.Reason
}

type OrderClient interface {
	CreateOrder(ctx context.Context, amount int64) (*models.Order, error)
}

type Verifier interface {
	Confirm(ctx context.Context, receipt models.Receipt, draft models.BookingDraft) (*models.Booking, error)
}

type WidgetOptions struct {
	Key         string
	Amount      int64
	Currency    string
	OrderID     string
	Name        string
	Description string
	Prefill     map[string]string
}

// Widget opens the gateway's checkout UI. Its outcome comes back through
// Orchestrator.HandleReceipt or Orchestrator.HandleFailure.
type Widget interface {
	Open(ctx context.Context, opts WidgetOptions) error
}

type Options struct {
	Key           string
	Currency      string
	Name          string
	WidgetTimeout time.Duration
	MaxAttempts   int
	BaseDelay     time.Duration
}

type Orchestrator struct {
	Orders   OrderClient
	Verifier Verifier
	Widget   Widget
	Options  Options
	Logger   *logger.Logger

	mu        sync.Mutex
	session   *Session
	timer     *time.Timer
	listeners map[int]func(Transition)
	nextID    int
	closed    bool
	now       func() time.Time
}

func NewOrchestrator(session *Session, orders OrderClient, verifier Verifier, widget Widget, opts Options, log *logger.Logger) *Orchestrator {
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	if opts.Name == "" {
		opts.Name = "Air India Booking"
	}
	if opts.WidgetTimeout <= 0 {
		opts.WidgetTimeout = 10 * time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 2 * time.Second
	}
	return &Orchestrator{
		Orders:    orders,
		Verifier:  verifier,
		Widget:    widget,
		Options:   opts,
		Logger:    log,
		session:   session,
		listeners: make(map[int]func(Transition)),
		now:       time.Now,
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.state
}

// Order returns the in-flight gateway order, if any.
func (o *Orchestrator) Order() *models.Order {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session.order == nil {
		return nil
	}
	order := *o.session.order
	return &order
}

func (o *Orchestrator) Confirmation() *Confirmation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.confirmation
}

func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.lastErr
}

// Pay creates a gateway order for the draft price and opens the widget.
// On any failure the session stays idle and no order is kept.
func (o *Orchestrator) Pay(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.session.state != StateIdle {
		o.mu.Unlock()
		return fmt.Errorf("%w: pay from %s", ErrInvalidState, o.session.state)
	}
	if o.session.Draft.Price <= 0 {
		o.mu.Unlock()
		return ErrPriceRequired
	}
	// the server refuses an incomplete draft, so it must never reach the gateway
	if err := o.session.bookingDraft(0, "").Validate(); err != nil {
		appErr := apperr.BadRequest(strings.TrimPrefix(err.Error(), models.ErrInvalidDraft.Error()+": "), err)
		o.session.lastErr = appErr
		o.mu.Unlock()
		return appErr
	}
	amount := utils.MinorUnits(o.session.Draft.Price)
	flightID := o.session.Draft.FlightID
	email := o.session.Email
	o.mu.Unlock()

	var order *models.Order
	err := o.retry(ctx, "create order", func() error {
		var err error
		order, err = o.Orders.CreateOrder(ctx, amount)
		return err
	})
	if err != nil {
		o.mu.Lock()
		o.session.lastErr = err
		o.mu.Unlock()
		return err
	}

	o.mu.Lock()
	if o.closed || o.session.state != StateIdle {
		state := o.session.state
		o.mu.Unlock()
		return fmt.Errorf("%w: order created while %s", ErrInvalidState, state)
	}
	o.session.order = order
	o.session.lastErr = nil
	t1 := o.setState(StateOrderCreated, nil)
	o.mu.Unlock()
	o.notify(t1)

	currency := order.Currency
	if currency == "" {
		currency = o.Options.Currency
	}
	opts := WidgetOptions{
		Key:         o.Options.Key,
		Amount:      order.Amount,
		Currency:    currency,
		OrderID:     order.ID,
		Name:        o.Options.Name,
		Description: "Flight Booking - " + flightID,
		Prefill:     map[string]string{"name": email, "email": email},
	}
	if err := o.Widget.Open(ctx, opts); err != nil {
		o.mu.Lock()
		o.session.order = nil
		o.session.lastErr = err
		t := o.setState(StateIdle, err)
		o.mu.Unlock()
		o.notify(t)
		return fmt.Errorf("open payment widget: %w", err)
	}

	o.mu.Lock()
	if o.session.state != StateOrderCreated || o.session.order == nil || o.session.order.ID != order.ID {
		// the widget already reported back synchronously
		o.mu.Unlock()
		return nil
	}
	t2 := o.setState(StateWidgetOpen, nil)
	orderID := order.ID
	o.timer = time.AfterFunc(o.Options.WidgetTimeout, func() { o.expire(orderID) })
	o.mu.Unlock()
	o.notify(t2)
	return nil
}

// expire reverts an unanswered widget to idle and invalidates its order.
func (o *Orchestrator) expire(orderID string) {
	o.mu.Lock()
	if o.session.state != StateWidgetOpen || o.session.order == nil || o.session.order.ID != orderID {
		o.mu.Unlock()
		return
	}
	o.timer = nil
	o.session.order = nil
	o.session.lastErr = ErrWidgetTimeout
	t := o.setState(StateIdle, ErrWidgetTimeout)
	t.OrderID = orderID
	o.mu.Unlock()

	if o.Logger != nil {
		o.Logger.Warn("CHECKOUT", fmt.Sprintf("Widget for order %s timed out", orderID))
	}
	o.notify(t)
}

// HandleReceipt verifies the widget's receipt and stores the booking.
func (o *Orchestrator) HandleReceipt(ctx context.Context, receipt models.Receipt) (*Confirmation, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	if o.session.state != StateWidgetOpen && o.session.state != StateOrderCreated {
		state := o.session.state
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: receipt while %s", ErrInvalidState, state)
	}
	if o.session.order == nil || receipt.OrderID != o.session.order.ID {
		o.mu.Unlock()
		return nil, ErrStaleReceipt
	}
	o.stopTimer()
	order := *o.session.order
	draft := o.session.bookingDraft(order.Amount, order.Currency)
	t := o.setState(StateVerifying, nil)
	o.mu.Unlock()
	o.notify(t)

	var b *models.Booking
	err := o.retry(ctx, "verify payment", func() error {
		var err error
		b, err = o.Verifier.Confirm(ctx, receipt, draft)
		return err
	})

	o.mu.Lock()
	if err != nil {
		o.session.Draft.PaymentStatus = models.StatusFailed
		o.session.order = nil
		o.session.lastErr = err
		t = o.setState(StateFailed, err)
		o.mu.Unlock()
		if o.Logger != nil {
			o.Logger.LogPayment("VERIFY_FAILED", receipt.PaymentID, err.Error())
		}
		o.notify(t)
		return nil, err
	}

	conf := &Confirmation{
		BookingID: b.ID,
		PaymentID: receipt.PaymentID,
		Amount:    o.session.Draft.Price,
		Currency:  order.Currency,
		Date:      utils.TravelDate(o.now()),
	}
	o.session.Draft.PaymentStatus = models.StatusSuccess
	o.session.Draft.BookingID = b.ID
	o.session.clearSensitive()
	o.session.confirmation = conf
	o.session.order = nil
	o.session.lastErr = nil
	t = o.setState(StateBookingConfirmed, nil)
	t.OrderID = order.ID
	o.mu.Unlock()

	if o.Logger != nil {
		o.Logger.LogBooking("CONFIRMED", b.ID, fmt.Sprintf("payment %s", receipt.PaymentID))
	}
	o.notify(t)
	return conf, nil
}

// HandleFailure records a declined or dismissed payment.
func (o *Orchestrator) HandleFailure(reason string) error {
	o.mu.Lock()
	if o.session.state != StateWidgetOpen && o.session.state != StateOrderCreated {
		state := o.session.state
		o.mu.Unlock()
		return fmt.Errorf("%w: failure while %s", ErrInvalidState, state)
	}
	o.stopTimer()
	failure := &WidgetFailure{Reason: reason}
	orderID := o.session.order.ID
	o.session.Draft.PaymentStatus = models.StatusFailed
	o.session.order = nil
	o.session.lastErr = failure
	t := o.setState(StateFailed, failure)
	t.OrderID = orderID
	o.mu.Unlock()

	o.notify(t)
	return nil
}

// Retry returns a failed checkout to idle. The next Pay creates a new order.
func (o *Orchestrator) Retry() error {
	o.mu.Lock()
	if o.session.state != StateFailed {
		state := o.session.state
		o.mu.Unlock()
		return fmt.Errorf("%w: retry while %s", ErrInvalidState, state)
	}
	o.session.Draft.PaymentStatus = models.StatusPending
	o.session.lastErr = nil
	t := o.setState(StateIdle, nil)
	o.mu.Unlock()

	o.notify(t)
	return nil
}

// Subscribe registers fn for every transition. The returned func removes it
// and may be called more than once.
func (o *Orchestrator) Subscribe(fn func(Transition)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return func() {}
	}
	id := o.nextID
	o.nextID++
	o.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.listeners, id)
			o.mu.Unlock()
		})
	}
}

// Close stops the widget timer and drops all listeners.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopTimer()
	o.listeners = make(map[int]func(Transition))
	o.closed = true
}

// setState must be called with o.mu held.
func (o *Orchestrator) setState(to State, err error) Transition {
	t := Transition{From: o.session.state, To: to, Err: err, At: o.now()}
	if o.session.order != nil {
		t.OrderID = o.session.order.ID
	}
	o.session.state = to
	return t
}

func (o *Orchestrator) stopTimer() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

func (o *Orchestrator) notify(t Transition) {
	o.mu.Lock()
	fns := make([]func(Transition), 0, len(o.listeners))
	for _, fn := range o.listeners {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(t)
	}
}

// retry runs op up to MaxAttempts times with exponential backoff while it
// keeps failing with a transient error.
func (o *Orchestrator) retry(ctx context.Context, what string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.Options.BaseDelay
	b.MaxElapsedTime = 0

	attempt := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(o.Options.MaxAttempts-1)), ctx)
	return backoff.RetryNotify(func() error {
		attempt++
		err := op()
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		if o.Logger != nil {
			o.Logger.Warn("CHECKOUT", fmt.Sprintf("%s attempt %d failed, retrying in %s: %v", what, attempt, wait, err))
		}
	})
}
