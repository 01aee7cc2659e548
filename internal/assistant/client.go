// Package assistant answers travellers' free-text questions through an
// OpenAI compatible chat completions API.
package assistant

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
	"airline-booking/internal/logger"

	"github.com/cenkalti/backoff/v4"
)

const (
	systemPrompt  = "You are an AI assistant for Air India flight booking and travel help. Be polite and informative."
	fallbackReply = "Sorry, I couldn't generate a valid reply."
)

var (
	ErrMissingAPIKey = errors.New("missing assistant API key")
	ErrEmptyMessage  = errors.New("message is required")
	ErrRateLimited   = errors.New("assistant upstream rate limited")
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

type Client struct {
	APIKey      string
	Model       string
	BaseURL     string
	HTTPClient  *http.Client
	MaxAttempts int
	BaseDelay   time.Duration
	Logger      *logger.Logger
}

func NewClient(cfg config.AssistantConfig, retry config.RetryConfig, log *logger.Logger) *Client {
	c := &Client{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		BaseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		MaxAttempts: retry.MaxAttempts,
		BaseDelay:   retry.BaseDelay,
		Logger:      log,
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 2 * time.Second
	}
	return c
}

// Reply sends message with the airline system prompt. Upstream 429s are
// retried with exponential backoff; other failures return at once.
func (c *Client) Reply(ctx context.Context, message string) (string, error) {
	if c.APIKey == "" {
		return "", ErrMissingAPIKey
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return "", ErrEmptyMessage
	}

	body, err := json.Marshal(chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: message},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.BaseDelay
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.MaxAttempts-1)), ctx)

	var reply string
	attempt := 0
	err = backoff.RetryNotify(func() error {
		attempt++
		var err error
		reply, err = c.send(ctx, body)
		if err != nil && !errors.Is(err, ErrRateLimited) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		c.Logger.Warn("ASSISTANT", fmt.Sprintf("Rate limited (attempt %d), retrying in %s", attempt, wait))
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (c *Client) send(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("assistant API error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return "", fmt.Errorf("assistant API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return fallbackReply, nil
	}
	return out.Choices[0].Message.Content, nil
}
