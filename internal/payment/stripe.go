// Package payment talks to the external payment collaborator. The
// service's only responsibility is creating payment intents; the actual
// card capture runs on the buyer's device against the returned client
// secret.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.stripe.com"

// ErrNotConfigured is returned when no secret key is set. Deployments
// that only handle donations and deposit-free rentals never hit the
// payment path and can run without one.
var ErrNotConfigured = errors.New("payment provider not configured")

// Client creates payment intents against the Stripe REST API.
type Client struct {
	secretKey string
	currency  string
	baseURL   string
	http      *http.Client
}

// NewClient builds a payment client. currency is the ISO code charged
// for every intent.
func NewClient(secretKey, currency string) *Client {
	return &Client{
		secretKey: secretKey,
		currency:  currency,
		baseURL:   defaultBaseURL,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

// NewClientWithBaseURL is used by tests to point the client at a stub
// server.
func NewClientWithBaseURL(secretKey, currency, baseURL string) *Client {
	c := NewClient(secretKey, currency)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type intentResponse struct {
	ClientSecret string `json:"client_secret"`
	Error        *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// CreateIntent creates a payment intent for the given amount and
// returns its client secret.
func (c *Client) CreateIntent(ctx context.Context, amountCents int64) (string, error) {
	if c.secretKey == "" {
		return "", ErrNotConfigured
	}
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	form.Set("currency", c.currency)
	form.Set("automatic_payment_methods[enabled]", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body intentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode payment intent response: %w", err)
	}
	if body.Error != nil {
		return "", fmt.Errorf("payment intent rejected: %s", body.Error.Message)
	}
	if resp.StatusCode != http.StatusOK || body.ClientSecret == "" {
		return "", fmt.Errorf("payment intent failed with status %d", resp.StatusCode)
	}
	return body.ClientSecret, nil
}
