package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReceipt(t *testing.T) {
	ts := time.UnixMilli(1700000000123)
	assert.Equal(t, "receipt_1700000000123", GenerateReceipt(ts))
}

func TestGenerateBookingIDIsUnique(t *testing.T) {
	a, b := GenerateBookingID(), GenerateBookingID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(500000), MinorUnits(5000))
}

func TestWriteJSONEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusBadRequest, ErrorResponse("Invalid request", "Amount required")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "Amount required", body.Error)
}
