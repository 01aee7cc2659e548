package reconcile

import (
	"context"
	"time"

	"airline-booking/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// RecordEntry stores entry once per payment id; later copies are ignored.
func (d *DB) RecordEntry(ctx context.Context, entry models.ReconciliationEntry) error {
	if entry.Status == "" {
		entry.Status = models.ReconcilePending
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := d.Bun.NewInsert().
		Model(&entry).
		On("CONFLICT (razorpay_payment_id) DO NOTHING").
		Exec(ctx)
	return err
}

// ListPending returns up to limit pending entries, oldest first.
func (d *DB) ListPending(ctx context.Context, limit int) ([]models.ReconciliationEntry, error) {
	var entries []models.ReconciliationEntry
	err := d.Bun.NewSelect().
		Model(&entries).
		Where("status = ?", models.ReconcilePending).
		Order("created_at ASC", "id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (d *DB) GetEntry(ctx context.Context, paymentID string) (*models.ReconciliationEntry, error) {
	var entry models.ReconciliationEntry
	err := d.Bun.NewSelect().
		Model(&entry).
		Where("razorpay_payment_id = ?", paymentID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpdateEntry saves the outcome of one reconciliation attempt.
func (d *DB) UpdateEntry(ctx context.Context, entry models.ReconciliationEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	_, err := d.Bun.NewUpdate().
		Model(&entry).
		Column("attempts", "last_error", "status", "booking_id", "updated_at").
		WherePK().
		Exec(ctx)
	return err
}

type StatusCount struct {
	Status models.ReconciliationStatus `bun:"status"`
	Count  int                         `bun:"count"`
}

func (d *DB) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	var counts []StatusCount
	err := d.Bun.NewSelect().
		Model((*models.ReconciliationEntry)(nil)).
		Column("status").
		ColumnExpr("COUNT(*) AS count").
		Group("status").
		Order("status ASC").
		Scan(ctx, &counts)
	if err != nil {
		return nil, err
	}
	return counts, nil
}
