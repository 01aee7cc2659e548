package utils

import (
	"encoding/json"
	"net/http"
	"time"
)

// APIResponse is the envelope of every JSON reply. Booking verification
// returns its booking as a one-element Data list.
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// ErrorResponse puts the machine-readable category in Message and the text
// shown to the traveller in Error.
func ErrorResponse(category, public string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   category,
		Error:     public,
		Timestamp: time.Now().UTC(),
	}
}

// WriteJSON encodes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
