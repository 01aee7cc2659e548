package checkin

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"airline-booking/internal/boardingpass"
	bookingdb "airline-booking/internal/booking/db"
	"airline-booking/internal/logger"
	"airline-booking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.PassengerCheckedInEvent
}

func (p *recordingPublisher) PublishPassengerCheckedIn(_ context.Context, e models.PassengerCheckedInEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type recordingEmitter struct {
	mu      sync.Mutex
	updates []models.CheckInUpdate
}

func (e *recordingEmitter) Emit(u models.CheckInUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updates = append(e.updates, u)
}

type fixture struct {
	svc       *CheckInService
	bookings  *bookingdb.DB
	bun       *bun.DB
	publisher *recordingPublisher
	emitter   *recordingEmitter
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	for _, model := range []interface{}{
		(*models.Booking)(nil),
		(*models.PassengerRecord)(nil),
		(*models.PaymentRecord)(nil),
		(*models.Flight)(nil),
	} {
		_, err := bunDB.NewCreateTable().Model(model).Exec(context.Background())
		require.NoError(t, err)
	}
	t.Cleanup(func() { bunDB.Close() })

	bookings := &bookingdb.DB{Bun: bunDB}
	svc := NewCheckInService(bookings, &DB{Bun: bunDB},
		boardingpass.NewQRGenerator("qr-secret"),
		boardingpass.NewPDFGenerator("", ""),
		logger.NewTestLogger(io.Discard))
	f := &fixture{svc: svc, bookings: bookings, bun: bunDB, publisher: &recordingPublisher{}, emitter: &recordingEmitter{}}
	svc.Publisher = f.publisher
	svc.Emitter = f.emitter
	return f
}

func (f *fixture) book(t *testing.T, names ...string) *models.Booking {
	t.Helper()
	draft := models.BookingDraft{UserID: "user-1", FlightID: "FL-101", SeatNumber: "12A", Amount: 100, Currency: "INR"}
	for _, n := range names {
		draft.Passengers = append(draft.Passengers, models.Passenger{Name: n, Age: 30})
	}
	b, err := f.bookings.PersistBooking(context.Background(), models.Receipt{OrderID: "o-" + names[0], PaymentID: "p-" + names[0]}, draft)
	require.NoError(t, err)
	return b
}

func TestCheckInOne_IsIdempotent(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	b := f.book(t, "Asha", "Ravi")
	pid := b.Passengers[0].ID

	first, err := f.svc.CheckInOne(ctx, pid, "user-1")
	require.NoError(t, err)
	assert.True(t, first.CheckedIn)
	stamped := first.CheckedInAt

	second, err := f.svc.CheckInOne(ctx, pid, "user-1")
	require.NoError(t, err)
	assert.True(t, second.CheckedIn)
	assert.WithinDuration(t, stamped, second.CheckedInAt, time.Second)

	summary, err := f.svc.Summary(ctx, b.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.CheckedIn)
	assert.Equal(t, 1, summary.Pending)

	assert.Len(t, f.publisher.events, 1)
	require.Len(t, f.emitter.updates, 1)
	assert.Equal(t, []int64{pid}, f.emitter.updates[0].PassengerIDs)
	assert.Equal(t, 1, f.emitter.updates[0].Pending)
}

func TestCheckInOne_OtherUsersPassengerIsNotFound(t *testing.T) {
	f := setupFixture(t)
	b := f.book(t, "Asha")

	_, err := f.svc.CheckInOne(context.Background(), b.Passengers[0].ID, "user-2")
	assert.True(t, errors.Is(err, bookingdb.ErrPassengerNotFound))

	_, err = f.svc.CheckInOne(context.Background(), 424242, "user-1")
	assert.True(t, errors.Is(err, bookingdb.ErrPassengerNotFound))
}

func TestCheckInAll_ThenNoop(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	b := f.book(t, "Asha", "Ravi", "Meera")

	n, err := f.svc.CheckInAll(ctx, b.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	passengers, err := f.bookings.ListPassengers(ctx, b.ID)
	require.NoError(t, err)
	for _, p := range passengers {
		assert.True(t, p.CheckedIn, p.Name)
		assert.False(t, p.CheckedInAt.IsZero(), p.Name)
	}

	n, err = f.svc.CheckInAll(ctx, b.ID, "user-1")
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Len(t, f.publisher.events, 3)
	require.Len(t, f.emitter.updates, 1)
	assert.Equal(t, 0, f.emitter.updates[0].Pending)
}

func TestCheckInAll_SkipsAlreadyCheckedIn(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	b := f.book(t, "Asha", "Ravi", "Meera")

	_, err := f.svc.CheckInOne(ctx, b.Passengers[1].ID, "user-1")
	require.NoError(t, err)

	n, err := f.svc.CheckInAll(ctx, b.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMarkAllCheckedIn_ReportsOnlyRowsItChanged(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	b := f.book(t, "Asha", "Ravi", "Meera")
	writer := &DB{Bun: f.bun}
	at := time.Now().UTC()

	changed, err := writer.MarkCheckedIn(ctx, b.Passengers[0].ID, at)
	require.NoError(t, err)
	require.True(t, changed)

	ids, err := writer.MarkAllCheckedIn(ctx, b.ID, at)
	require.NoError(t, err)
	assert.Equal(t, []int64{b.Passengers[1].ID, b.Passengers[2].ID}, ids)

	ids, err = writer.MarkAllCheckedIn(ctx, b.ID, at)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCheckInAll_ConcurrentCallsAnnounceEachPassengerOnce(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	b := f.book(t, "Asha", "Ravi", "Meera", "Kiran")

	var wg sync.WaitGroup
	counts := make([]int, 4)
	for i := range counts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := f.svc.CheckInAll(ctx, b.ID, "user-1")
			if err == nil {
				counts[i] = n
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for _, n := range counts {
		total += n
	}
	assert.Equal(t, 4, total)

	seen := map[int64]int{}
	for _, e := range f.publisher.events {
		seen[e.PassengerID]++
	}
	assert.Len(t, seen, 4)
	for id, n := range seen {
		assert.Equal(t, 1, n, "passenger %d announced more than once", id)
	}
}

type failingWriter struct{}

func (failingWriter) MarkCheckedIn(context.Context, int64, time.Time) (bool, error) {
	return false, errors.New("database is locked")
}

func (failingWriter) MarkAllCheckedIn(context.Context, string, time.Time) ([]int64, error) {
	return nil, errors.New("database is locked")
}

func TestCheckIn_FailureLeavesStateAndIsReported(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	b := f.book(t, "Asha", "Ravi")
	f.svc.Writer = failingWriter{}

	_, err := f.svc.CheckInOne(ctx, b.Passengers[0].ID, "user-1")
	assert.True(t, errors.Is(err, ErrCheckInFailed))

	_, err = f.svc.CheckInAll(ctx, b.ID, "user-1")
	assert.True(t, errors.Is(err, ErrCheckInFailed))

	summary, err := f.svc.Summary(ctx, b.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.CheckedIn)
	assert.Empty(t, f.emitter.updates)
}

func TestBoardingPass_RequiresCheckIn(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	b := f.book(t, "Asha")
	pid := b.Passengers[0].ID

	_, _, err := f.svc.BoardingPassPDF(ctx, pid, "user-1")
	assert.True(t, errors.Is(err, boardingpass.ErrNotCheckedIn))

	_, err = f.svc.CheckInOne(ctx, pid, "user-1")
	require.NoError(t, err)

	pdf, cred, err := f.svc.BoardingPassPDF(ctx, pid, "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, pdf)
	assert.Equal(t, "ASHA", cred.PassengerName)

	png, err := f.svc.BoardingPassQR(ctx, pid, "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, png)
}

func TestScan(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	b := f.book(t, "Asha", "Ravi")
	pid := b.Passengers[0].ID

	_, err := f.svc.CheckInOne(ctx, pid, "user-1")
	require.NoError(t, err)
	cred, err := f.svc.Credential(ctx, pid, "user-1")
	require.NoError(t, err)
	code, err := f.svc.QR.Encrypt(cred)
	require.NoError(t, err)

	got, err := f.svc.Scan(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, pid, got.PassengerID)

	forged := cred
	forged.Seat = "1A"
	forgedCode, err := f.svc.QR.Encrypt(forged)
	require.NoError(t, err)
	_, err = f.svc.Scan(ctx, forgedCode)
	assert.True(t, errors.Is(err, ErrCredentialMismatch))

	_, err = f.svc.Scan(ctx, "garbage")
	assert.True(t, errors.Is(err, boardingpass.ErrInvalidQR))
}
