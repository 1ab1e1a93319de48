/**
 * @description
 * This package provides a client for the Stripe Checkout API. It encapsulates
 * authenticated request construction (Stripe speaks form encoding, not JSON),
 * idempotent session creation, and response parsing.
 *
 * @dependencies
 * - context, fmt, io, net/http, net/url, strconv, strings, time: Standard Go libraries.
 *
 * @notes
 * - Session metadata is written verbatim from the caller. The checkout
 *   orchestrator only ever passes record identifiers, never personal data,
 *   so a provider-side exposure leaks nothing useful.
 */
package stripeclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a client for the Stripe API.
type Client struct {
	BaseURL    string
	SecretKey  string
	HTTPClient *http.Client
}

// NewClient creates a new Stripe API client.
func NewClient(baseURL, secretKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	return &Client{
		BaseURL:   baseURL,
		SecretKey: secretKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateCheckoutSessionParams is the input for CreateCheckoutSession.
type CreateCheckoutSessionParams struct {
	Amount            int64 // in cents
	Currency          string
	ProductName       string
	SuccessURL        string
	CancelURL         string
	ClientReferenceID string
	Metadata          map[string]string
	IdempotencyKey    string
}

// CheckoutSession is the subset of Stripe's checkout session object the
// service consumes.
type CheckoutSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	PaymentIntent string            `json:"payment_intent"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

// ErrorResponse represents an error envelope from the Stripe API.
type ErrorResponse struct {
	StatusCode int `json:"-"`
	Err        struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *ErrorResponse) Error() string {
	if e.Err.Message != "" {
		return fmt.Sprintf("stripe api error: %s (%s)", e.Err.Message, e.Err.Type)
	}
	return fmt.Sprintf("stripe api error: status %d", e.StatusCode)
}

// Temporary reports whether the failure is worth retrying.
func (e *ErrorResponse) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// CreateCheckoutSession creates a hosted checkout session. The idempotency
// key makes the provider side safe against our own retries: resubmitting
// with the same key returns the original session instead of a second charge.
func (c *Client) CreateCheckoutSession(ctx context.Context, params CreateCheckoutSessionParams) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	if params.ClientReferenceID != "" {
		form.Set("client_reference_id", params.ClientReferenceID)
	}
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", params.Currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(params.Amount, 10))
	form.Set("line_items[0][price_data][product_data][name]", params.ProductName)
	for k, v := range params.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	if params.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", params.IdempotencyKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute checkout session request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkout session response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errResp := &ErrorResponse{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, errResp); err != nil {
			log.Printf("level=warn component=stripe_client op=create_session status=%d msg=\"non-2xx response (unparsable error body)\"", resp.StatusCode)
			return nil, fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=stripe_client op=create_session status=%d type=%q msg=%q", resp.StatusCode, errResp.Err.Type, errResp.Err.Message)
		return nil, errResp
	}

	var session CheckoutSession
	if err := json.Unmarshal(bodyBytes, &session); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session response: %w", err)
	}
	if session.ID == "" || session.URL == "" {
		return nil, fmt.Errorf("checkout session response missing id or url")
	}
	return &session, nil
}
