// Package newsletter integrates with the Buttondown mailing-list API.
//
// The integration is strictly best-effort: when the API key is missing or
// the provider fails, signups are accepted and logged for later instead
// of surfacing an error to the visitor.
package newsletter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/eduvox/eduvox/internal/config"
)

// Outcome describes how a signup was handled.
type Outcome string

const (
	// OutcomeSubscribed means the provider accepted the subscriber.
	OutcomeSubscribed Outcome = "subscribed"
	// OutcomeAlreadySubscribed means the address was already on the list.
	OutcomeAlreadySubscribed Outcome = "already_subscribed"
	// OutcomeDeferred means the signup was recorded locally because the
	// provider is unconfigured or unavailable.
	OutcomeDeferred Outcome = "deferred"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IsValidEmail reports whether the address looks like an email.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// Client talks to the Buttondown subscribers endpoint.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewClient creates a newsletter client from configuration. An empty API
// key yields a client that defers every signup.
func NewClient(cfg config.NewsletterConfig) *Client {
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type subscribeRequest struct {
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata"`
}

// Subscribe adds the address to the mailing list. Provider failures
// degrade to OutcomeDeferred; only the outcome is surfaced to callers.
func (c *Client) Subscribe(ctx context.Context, email string) Outcome {
	if c.apiKey == "" {
		slog.Info("Newsletter signup received with provider unconfigured", "email", email)
		return OutcomeDeferred
	}

	body, err := json.Marshal(subscribeRequest{
		Email: email,
		Metadata: map[string]string{
			"source":        "website-footer",
			"subscribed_at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		slog.Error("Failed to encode newsletter request", "error", err)
		return OutcomeDeferred
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/subscribers", bytes.NewReader(body))
	if err != nil {
		slog.Error("Failed to build newsletter request", "error", err)
		return OutcomeDeferred
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Error("Newsletter provider request failed", "error", err)
		return OutcomeDeferred
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close newsletter response body", "error", closeErr)
		}
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return OutcomeSubscribed
	case resp.StatusCode == http.StatusBadRequest:
		detail, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr == nil && strings.Contains(string(detail), "already exists") {
			return OutcomeAlreadySubscribed
		}
		slog.Error("Newsletter provider rejected signup", "status", resp.StatusCode, "detail", string(detail))
		return OutcomeDeferred
	default:
		slog.Error("Newsletter provider error", "error", fmt.Errorf("unexpected status %d", resp.StatusCode))
		return OutcomeDeferred
	}
}
