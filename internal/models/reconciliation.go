package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ReconciliationStatus string

const (
	ReconcilePending  ReconciliationStatus = "pending"
	ReconcileResolved ReconciliationStatus = "resolved"
	ReconcileManual   ReconciliationStatus = "manual"
)

// ReconciliationEntry tracks a captured payment whose booking could not be stored.
type ReconciliationEntry struct {
	bun.BaseModel `bun:"table:reconciliation_entries"`

	ID        int64                `bun:"id,pk,autoincrement" json:"id"`
	PaymentID string               `bun:"razorpay_payment_id,notnull,unique" json:"razorpay_payment_id"`
	OrderID   string               `bun:"razorpay_order_id,notnull" json:"razorpay_order_id"`
	Signature string               `bun:"razorpay_signature,notnull" json:"razorpay_signature"`
	UserID    string               `bun:"user_id,notnull" json:"user_id"`
	Draft     BookingDraft         `bun:"draft,type:jsonb" json:"draft"`
	Amount    int64                `bun:"amount,notnull" json:"amount"`
	Currency  string               `bun:"currency,notnull" json:"currency"`
	LastError string               `bun:"last_error,nullzero" json:"last_error,omitempty"`
	Attempts  int                  `bun:"attempts,notnull,default:0" json:"attempts"`
	Status    ReconciliationStatus `bun:"status,notnull" json:"status"`
	BookingID string               `bun:"booking_id,nullzero" json:"booking_id,omitempty"`
	CreatedAt time.Time            `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time            `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

func (e ReconciliationEntry) Receipt() Receipt {
	return Receipt{OrderID: e.OrderID, PaymentID: e.PaymentID, Signature: e.Signature}
}
