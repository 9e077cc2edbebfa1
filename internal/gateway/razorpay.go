// Package gateway provides the client for the Razorpay payment gateway.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultBaseURL = "https://api.razorpay.com"

// Order is the payment intent created on the provider side. Its ID is
// distinct from the internal order id.
type Order struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Status   string            `json:"status"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type orderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// Client encapsulates HTTP interaction with the Razorpay REST API.
type Client struct {
	keyID     string
	keySecret string
	currency  string
	http      *resty.Client
}

// NewClient creates a gateway client authenticating with the given key pair.
func NewClient(keyID, keySecret, currency string) *Client {
	return &Client{
		keyID:     keyID,
		keySecret: keySecret,
		currency:  currency,
		http: resty.New().
			SetBaseURL(defaultBaseURL).
			SetTimeout(10 * time.Second).
			SetBasicAuth(keyID, keySecret),
	}
}

// SetBaseURL points the client at a different API host. Used in tests.
func (c *Client) SetBaseURL(baseURL string) {
	c.http.SetBaseURL(strings.TrimRight(baseURL, "/"))
}

// KeyID returns the public key id handed to the browser widget.
func (c *Client) KeyID() string { return c.keyID }

// Currency returns the currency code orders are created in.
func (c *Client) Currency() string { return c.currency }

// CreateOrder creates a provider-side payment intent for the given amount in
// minor currency units.
func (c *Client) CreateOrder(ctx context.Context, amountPaise int64, receipt string, notes map[string]string) (*Order, error) {
	var order Order

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(orderRequest{
			Amount:   amountPaise,
			Currency: c.currency,
			Receipt:  receipt,
			Notes:    notes,
		}).
		SetResult(&order).
		Post("/v1/orders")
	if err != nil {
		return nil, fmt.Errorf("create gateway order: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("gateway order request failed with status %d: %s", resp.StatusCode(), resp.String())
	}

	if order.ID == "" {
		return nil, fmt.Errorf("gateway order response missing id")
	}

	return &order, nil
}

// VerifySignature checks a client-submitted payment confirmation against the
// HMAC-SHA256 signature Razorpay computes over "<order_id>|<payment_id>".
// The comparison is constant time.
func (c *Client) VerifySignature(providerOrderID, providerPaymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.keySecret))
	mac.Write([]byte(providerOrderID + "|" + providerPaymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
