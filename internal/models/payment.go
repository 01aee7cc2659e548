package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	StatusPending PaymentStatus = "pending"
	StatusSuccess PaymentStatus = "success"
	StatusFailed  PaymentStatus = "failed"
)

// Order is a gateway-side intent to collect Amount (minor units).
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status,omitempty"`
}

// OrderRecord is what the service remembers about an order it issued.
type OrderRecord struct {
	OrderID   string    `json:"order_id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Receipt   string    `json:"receipt"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Receipt is the signed proof of payment handed back by the checkout widget.
type Receipt struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

type PaymentRecord struct {
	bun.BaseModel `bun:"table:payments"`

	ID        int64         `bun:"id,pk,autoincrement" json:"id"`
	BookingID string        `bun:"booking_id,notnull" json:"booking_id"`
	OrderID   string        `bun:"razorpay_order_id,notnull" json:"razorpay_order_id"`
	PaymentID string        `bun:"razorpay_payment_id,notnull,unique" json:"razorpay_payment_id"`
	Amount    int64         `bun:"amount,notnull" json:"amount"`
	Currency  string        `bun:"currency,notnull" json:"currency"`
	Status    PaymentStatus `bun:"status,notnull" json:"status"`
	CreatedAt time.Time     `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}
