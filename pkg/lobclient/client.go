/**
 * @description
 * This package provides a client for the Lob print-and-mail API. It covers
 * the two endpoints the service depends on: US address verification and
 * letter submission. Letters are uploaded as PDF bytes via multipart form
 * data; verification is a plain JSON call.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, io, mime/multipart, net/http,
 *   strconv, time: Standard Go libraries.
 *
 * @notes
 * - Lob authenticates with HTTP basic auth, API key as the username.
 * - Letter submission carries an Idempotency-Key header so a network retry
 *   of the same dispatch can never print twice on the carrier side.
 */
package lobclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client is a client for the Lob API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new Lob API client.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.lob.com"
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Deliverability values returned by Lob's US verification endpoint.
const (
	DeliverabilityDeliverable     = "deliverable"
	DeliverabilityMissingUnit     = "deliverable_missing_unit"
	DeliverabilityIncorrectUnit   = "deliverable_incorrect_unit"
	DeliverabilityUnnecessaryUnit = "deliverable_unnecessary_unit"
	DeliverabilityUndeliverable   = "undeliverable"
	DeliverabilityNoMatch         = "no_match"
)

// AddressInput is a structured US address as submitted to Lob.
type AddressInput struct {
	Name       string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
}

// USVerification is the subset of Lob's verification object the service uses.
type USVerification struct {
	ID             string `json:"id"`
	Deliverability string `json:"deliverability"`
	PrimaryLine    string `json:"primary_line"`
	SecondaryLine  string `json:"secondary_line"`
	Components     struct {
		City    string `json:"city"`
		State   string `json:"state"`
		ZipCode string `json:"zip_code"`
	} `json:"components"`
}

// LetterParams is the input for CreateLetter.
type LetterParams struct {
	Description      string
	To               AddressInput
	From             AddressInput
	PDF              []byte
	DoubleSided      bool
	ReturnEnvelope   bool
	AddressPlacement string
	ExtraService     string // "certified" or empty
	IdempotencyKey   string
}

// Letter is the subset of Lob's letter object the service uses.
type Letter struct {
	ID                   string  `json:"id"`
	TrackingNumber       *string `json:"tracking_number"`
	ExpectedDeliveryDate string  `json:"expected_delivery_date"` // YYYY-MM-DD
	Carrier              string  `json:"carrier"`
	URL                  string  `json:"url"`
}

// ExpectedDelivery parses the expected delivery date, or returns nil when
// the carrier didn't supply one.
func (l *Letter) ExpectedDelivery() *time.Time {
	if l.ExpectedDeliveryDate == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", l.ExpectedDeliveryDate)
	if err != nil {
		return nil
	}
	return &t
}

// ErrorResponse represents an error envelope from the Lob API.
type ErrorResponse struct {
	StatusCode int `json:"-"`
	Err        struct {
		Message    string `json:"message"`
		Code       string `json:"code"`
		StatusCode int    `json:"status_code"`
	} `json:"error"`
}

func (e *ErrorResponse) Error() string {
	if e.Err.Message != "" {
		return fmt.Sprintf("lob api error: %s (%s)", e.Err.Message, e.Err.Code)
	}
	return fmt.Sprintf("lob api error: status %d", e.StatusCode)
}

// Temporary reports whether the failure is worth retrying.
func (e *ErrorResponse) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// VerifyUSAddress runs the address through Lob's US verification endpoint.
func (c *Client) VerifyUSAddress(ctx context.Context, addr AddressInput) (*USVerification, error) {
	payload := map[string]string{
		"primary_line":   addr.Line1,
		"secondary_line": addr.Line2,
		"city":           addr.City,
		"state":          addr.State,
		"zip_code":       addr.PostalCode,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal verification request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/v1/us_verifications", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.APIKey, "")

	respBody, err := c.do(req, "verify_address")
	if err != nil {
		return nil, err
	}

	var verification USVerification
	if err := json.Unmarshal(respBody, &verification); err != nil {
		return nil, fmt.Errorf("failed to decode verification response: %w", err)
	}
	return &verification, nil
}

// CreateLetter submits a composed PDF for printing and mailing.
func (c *Client) CreateLetter(ctx context.Context, params LetterParams) (*Letter, error) {
	if len(params.PDF) == 0 {
		return nil, fmt.Errorf("letter pdf is empty")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"description":       params.Description,
		"color":             "false",
		"double_sided":      strconv.FormatBool(params.DoubleSided),
		"address_placement": params.AddressPlacement,
		"mail_type":         "usps_first_class",
	}
	writeAddressFields(fields, "to", params.To)
	writeAddressFields(fields, "from", params.From)
	if params.ExtraService != "" {
		fields["extra_service"] = params.ExtraService
	}
	if params.ReturnEnvelope {
		fields["return_envelope"] = "true"
		// Lob requires a perforated page whenever a return envelope is included.
		fields["perforated_page"] = "1"
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", k, err)
		}
	}

	part, err := w.CreateFormFile("file", "letter.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to create pdf form part: %w", err)
	}
	if _, err := part.Write(params.PDF); err != nil {
		return nil, fmt.Errorf("failed to write pdf bytes: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/v1/letters", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create letter request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.SetBasicAuth(c.APIKey, "")
	if params.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", params.IdempotencyKey)
	}

	respBody, err := c.do(req, "create_letter")
	if err != nil {
		return nil, err
	}

	var letter Letter
	if err := json.Unmarshal(respBody, &letter); err != nil {
		return nil, fmt.Errorf("failed to decode letter response: %w", err)
	}
	if letter.ID == "" {
		return nil, fmt.Errorf("letter response missing id")
	}
	return &letter, nil
}

// do executes the request and returns the body, mapping non-2xx statuses to
// *ErrorResponse.
func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s request: %w", op, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errResp := &ErrorResponse{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, errResp); err != nil {
			log.Printf("level=warn component=lob_client op=%s status=%d msg=\"non-2xx response (unparsable error body)\"", op, resp.StatusCode)
			return nil, fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=lob_client op=%s status=%d code=%q msg=%q", op, resp.StatusCode, errResp.Err.Code, errResp.Err.Message)
		return nil, errResp
	}
	return bodyBytes, nil
}

func writeAddressFields(fields map[string]string, prefix string, addr AddressInput) {
	fields[prefix+"[name]"] = addr.Name
	fields[prefix+"[address_line1]"] = addr.Line1
	if addr.Line2 != "" {
		fields[prefix+"[address_line2]"] = addr.Line2
	}
	fields[prefix+"[address_city]"] = addr.City
	fields[prefix+"[address_state]"] = addr.State
	fields[prefix+"[address_zip]"] = addr.PostalCode
}
