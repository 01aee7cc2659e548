package checkin

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"airline-booking/internal/models"

	"github.com/uptrace/bun"
)

// DB holds the only writes to passengers after a booking is persisted.
type DB struct {
	Bun *bun.DB
}

// MarkCheckedIn flags one passenger. changed is false when the passenger was
// already checked in, so repeating the call leaves checked_in_at alone.
func (d *DB) MarkCheckedIn(ctx context.Context, passengerID int64, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.PassengerRecord)(nil)).
		Set("checked_in = ?", true).
		Set("checked_in_at = ?", at).
		Where("id = ?", passengerID).
		Where("checked_in = ?", false).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkAllCheckedIn flags every pending passenger of bookingID with one
// batch update and returns only the ids this call changed. A concurrent
// bulk check-in of the same booking sees the rows already flagged, so no id
// is reported twice.
func (d *DB) MarkAllCheckedIn(ctx context.Context, bookingID string, at time.Time) ([]int64, error) {
	var ids []int64
	err := d.Bun.NewUpdate().
		Model((*models.PassengerRecord)(nil)).
		Set("checked_in = ?", true).
		Set("checked_in_at = ?", at).
		Where("booking_id = ?", bookingID).
		Where("checked_in = ?", false).
		Returning("id").
		Scan(ctx, &ids)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
