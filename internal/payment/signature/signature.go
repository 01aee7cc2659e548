// Package signature checks Razorpay payment receipts.
//
// A receipt is authentic when its signature equals the lowercase hex
// HMAC-SHA256 of "orderId|paymentId" keyed with the account's key secret.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the signature Razorpay attaches to a captured payment.
func Sign(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature authenticates the order/payment pair.
// The comparison is byte for byte, so upper-case hex is rejected. Any empty
// input fails verification.
func Verify(orderID, paymentID, signature, secret string) bool {
	if orderID == "" || paymentID == "" || signature == "" || secret == "" {
		return false
	}
	expected := Sign(orderID, paymentID, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
