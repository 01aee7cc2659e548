package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"airline-booking/internal/apperr"
	"airline-booking/internal/models"
	"airline-booking/internal/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte("client-side-unknown"))
	require.NoError(t, err)
	return s
}

func TestAPIClientCreateOrder(t *testing.T) {
	token := signedToken(t, "user-1")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/payments/orders", r.URL.Path)
		assert.Equal(t, "Bearer "+token, r.Header.Get("Authorization"))

		var body map[string]int64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(150000), body["amount"])

		_ = utils.WriteJSON(w, http.StatusOK, models.Order{ID: "order_1", Amount: 150000, Currency: "INR", Receipt: "receipt_1"})
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL+"/", token)
	order, err := c.CreateOrder(context.Background(), 150000)

	require.NoError(t, err)
	assert.Equal(t, "order_1", order.ID)
	assert.Equal(t, int64(150000), order.Amount)

	uid, err := c.UserID()
	require.NoError(t, err)
	assert.Equal(t, "user-1", uid)
}

func TestAPIClientConfirm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/payments/verify", r.URL.Path)

		var req verifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "pay_1", req.PaymentID)
		assert.Equal(t, "AI-202", req.BookingData.FlightID)

		_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking confirmed", []models.Booking{{ID: "booking-1", FlightID: "AI-202"}}))
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "token")
	b, err := c.Confirm(context.Background(),
		models.Receipt{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig"},
		models.BookingDraft{FlightID: "AI-202", SeatNumber: "12A"})

	require.NoError(t, err)
	assert.Equal(t, "booking-1", b.ID)
}

func TestAPIClientMapsErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse(string(apperr.SignatureMismatch), "Invalid signature"))
	}))
	defer srv.Close()

	_, err := NewAPIClient(srv.URL, "token").Confirm(context.Background(), models.Receipt{}, models.BookingDraft{})

	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.SignatureMismatch, ae.Category)
	assert.Equal(t, "Invalid signature", ae.PublicError)
	assert.False(t, IsTransient(err))
}

func TestDecodeErrorFallsBackToStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		category apperr.Category
	}{
		{"rate limited", http.StatusTooManyRequests, `{"success":false,"message":"rate_limited","error":"Rate limit exceeded. Please wait a few seconds."}`, apperr.GatewayTransient},
		{"plain unauthorized", http.StatusUnauthorized, "Unauthorized\n", apperr.Unauthorized},
		{"gateway busy", http.StatusServiceUnavailable, "", apperr.GatewayTransient},
		{"unknown client error", http.StatusUnprocessableEntity, "nope", apperr.ClientInput},
		{"server error", http.StatusInternalServerError, "", apperr.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ae *apperr.Error
			require.True(t, errors.As(decodeError(tt.status, []byte(tt.body)), &ae))
			assert.Equal(t, tt.category, ae.Category)
			assert.NotEmpty(t, ae.PublicError)
		})
	}
}

func TestAPIClientNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewAPIClient(url, "token").CreateOrder(context.Background(), 100)

	require.Error(t, err)
	assert.True(t, IsTransient(err))
}
