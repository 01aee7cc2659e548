package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"airline-booking/internal/config"
	"airline-booking/internal/models"

	"golang.org/x/time/rate"
)

var (
	ErrMissingCredentials = errors.New("missing razorpay credentials")
	ErrGatewayTransient   = errors.New("payment gateway temporarily unavailable")
	ErrGatewayRejected    = errors.New("payment gateway rejected request")
)

// GatewayError is a non-2xx answer from the Razorpay API.
type GatewayError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("razorpay %d %s: %s", e.StatusCode, e.Code, e.Description)
}

// Temporary reports rate limiting and server-side failures.
func (e *GatewayError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func (e *GatewayError) Unwrap() error {
	if e.Temporary() {
		return ErrGatewayTransient
	}
	return ErrGatewayRejected
}

type CreateOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type orderResponse struct {
	ID        string `json:"id"`
	Entity    string `json:"entity"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Receipt   string `json:"receipt"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

type errorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// Client talks to the Razorpay Orders API with basic auth.
type Client struct {
	keyID     string
	keySecret string
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
}

func NewClient(cfg config.RazorpayConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if httpClient.Timeout == 0 {
		httpClient.Timeout = 10 * time.Second
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
		if b := int(cfg.RequestsPerSec); b > 1 {
			burst = b
		}
	}

	return &Client{
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		http:      httpClient,
		limiter:   rate.NewLimiter(limit, burst),
	}
}

func (c *Client) HasCredentials() bool {
	return c.keyID != "" && c.keySecret != ""
}

// CreateOrder opens an order for req.Amount minor units.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingCredentials
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayTransient, err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build order request: %w", err)
	}
	httpReq.SetBasicAuth(c.keyID, c.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayTransient, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrGatewayTransient, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gwErr := &GatewayError{StatusCode: resp.StatusCode}
		var er errorResponse
		if json.Unmarshal(payload, &er) == nil {
			gwErr.Code = er.Error.Code
			gwErr.Description = er.Error.Description
		}
		if gwErr.Description == "" {
			gwErr.Description = http.StatusText(resp.StatusCode)
		}
		return nil, gwErr
	}

	var or orderResponse
	if err := json.Unmarshal(payload, &or); err != nil {
		return nil, fmt.Errorf("failed to decode order response: %w", err)
	}
	if or.ID == "" {
		return nil, fmt.Errorf("%w: order response without id", ErrGatewayRejected)
	}

	return &models.Order{
		ID:       or.ID,
		Amount:   or.Amount,
		Currency: or.Currency,
		Receipt:  or.Receipt,
		Status:   or.Status,
	}, nil
}
