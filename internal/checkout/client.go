package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"airline-booking/internal/apperr"
	"airline-booking/internal/auth"
	"airline-booking/internal/models"
	"airline-booking/internal/utils"
)

// APIClient talks to the booking service on behalf of a signed-in traveller.
type APIClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// UserID is the subject of the client's own token.
func (c *APIClient) UserID() (string, error) {
	return auth.ExtractUserIDFromJWT(c.Token)
}

func (c *APIClient) CreateOrder(ctx context.Context, amount int64) (*models.Order, error) {
	var order models.Order
	if err := c.post(ctx, "/api/payments/orders", map[string]int64{"amount": amount}, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

type verifyRequest struct {
	models.Receipt
	BookingData models.BookingDraft `json:"bookingData"`
}

func (c *APIClient) Confirm(ctx context.Context, receipt models.Receipt, draft models.BookingDraft) (*models.Booking, error) {
	var env struct {
		utils.APIResponse
		Data []models.Booking `json:"data"`
	}
	if err := c.post(ctx, "/api/payments/verify", verifyRequest{Receipt: receipt, BookingData: draft}, &env); err != nil {
		return nil, err
	}
	if !env.Success || len(env.Data) == 0 {
		return nil, apperr.New(apperr.Internal, http.StatusBadGateway, "Error verifying payment.", fmt.Errorf("verify returned no booking"))
	}
	return &env.Data[0], nil
}

func (c *APIClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperr.Transient("Network error. Please try again shortly.", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Transient("Network error. Please try again shortly.", err)
	}
	if resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperr.New(apperr.Internal, http.StatusBadGateway, "Unexpected response from booking service", err)
	}
	return nil
}

var knownCategories = map[apperr.Category]bool{
	apperr.ClientInput:             true,
	apperr.Configuration:           true,
	apperr.GatewayTransient:        true,
	apperr.SignatureMismatch:       true,
	apperr.PersistenceAfterCapture: true,
	apperr.DuplicatePayment:        true,
	apperr.InProgress:              true,
	apperr.CheckIn:                 true,
	apperr.NotFound:                true,
	apperr.Unauthorized:            true,
	apperr.Forbidden:               true,
	apperr.Internal:                true,
}

// decodeError rebuilds the server's error from its envelope, falling back
// to the status code for plain-text answers.
func decodeError(status int, body []byte) error {
	var env utils.APIResponse
	public := strings.TrimSpace(string(body))
	category := apperr.Category("")
	if json.Unmarshal(body, &env) == nil && env.Error != "" {
		public = env.Error
		category = apperr.Category(env.Message)
	}

	switch {
	case status == http.StatusTooManyRequests:
		category = apperr.GatewayTransient
	case knownCategories[category]:
	case status == http.StatusUnauthorized:
		category = apperr.Unauthorized
	case status == http.StatusForbidden:
		category = apperr.Forbidden
	case status == http.StatusNotFound:
		category = apperr.NotFound
	case status == http.StatusServiceUnavailable, status == http.StatusBadGateway, status == http.StatusGatewayTimeout:
		category = apperr.GatewayTransient
	case status < 500:
		category = apperr.ClientInput
	default:
		category = apperr.Internal
	}
	if public == "" {
		public = http.StatusText(status)
	}
	return apperr.New(category, status, public, nil)
}
