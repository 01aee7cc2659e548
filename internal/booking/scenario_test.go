package booking_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"

	"airline-booking/internal/booking"
	bookingdb "airline-booking/internal/booking/db"
	"airline-booking/internal/logger"
	"airline-booking/internal/models"
	orderredis "airline-booking/internal/order/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

func setupScenario(t *testing.T) (*booking.BookingService, *bun.DB) {
	t.Helper()

	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	for _, model := range []interface{}{
		(*models.Booking)(nil),
		(*models.PassengerRecord)(nil),
		(*models.PaymentRecord)(nil),
	} {
		_, err := bunDB.NewCreateTable().Model(model).Exec(context.Background())
		require.NoError(t, err)
	}
	t.Cleanup(func() { bunDB.Close() })

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	svc := booking.NewBookingService(&bookingdb.DB{Bun: bunDB}, testSecret, "INR", logger.NewTestLogger(io.Discard))
	svc.Locker = orderredis.NewLock(rdb, 0)
	svc.Orders = orderredis.NewOrderStore(rdb, 0)
	return svc, bunDB
}

func TestScenario_PaidBookingIsStoredOnce(t *testing.T) {
	svc, bunDB := setupScenario(t)
	ctx := context.Background()
	receipt := signedReceipt("order_A", "pay_A")

	first, err := svc.ConfirmBooking(ctx, booking.ConfirmRequest{Receipt: receipt, Draft: validDraft(), UserID: "user-1"})
	require.NoError(t, err)
	assert.Len(t, first.Passengers, 2)

	// a retried verification returns the same booking
	second, err := svc.ConfirmBooking(ctx, booking.ConfirmRequest{Receipt: receipt, Draft: validDraft(), UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	bookings, err := bunDB.NewSelect().Model((*models.Booking)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, bookings)
	passengers, err := bunDB.NewSelect().Model((*models.PassengerRecord)(nil)).Where("booking_id = ?", first.ID).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, passengers)
	payments, err := bunDB.NewSelect().Model((*models.PaymentRecord)(nil)).Where("booking_id = ?", first.ID).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, payments)
}

func TestScenario_TamperedReceiptStoresNothing(t *testing.T) {
	svc, bunDB := setupScenario(t)
	ctx := context.Background()
	receipt := signedReceipt("order_B", "pay_B")
	receipt.PaymentID = "pay_C"

	_, err := svc.ConfirmBooking(ctx, booking.ConfirmRequest{Receipt: receipt, Draft: validDraft()})
	require.True(t, errors.Is(err, booking.ErrInvalidSignature))
	assert.Equal(t, "invalid signature", err.Error())

	for _, model := range []interface{}{(*models.Booking)(nil), (*models.PassengerRecord)(nil), (*models.PaymentRecord)(nil)} {
		n, err := bunDB.NewSelect().Model(model).Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	}
}
