/**
 * @description
 * Webhook signature verification for Stripe event deliveries. Stripe signs
 * each payload with HMAC-SHA256 over "<timestamp>.<body>" and ships the
 * result in the Stripe-Signature header as "t=<ts>,v1=<hex>[,v1=<hex>...]".
 *
 * @notes
 * - Comparison is constant-time (hmac.Equal) over the decoded digests.
 * - The timestamp tolerance bounds replay of captured deliveries; a stale
 *   but otherwise valid signature is rejected the same way a forged one is.
 */
package stripeclient

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSignature is returned for any authenticity failure: malformed
// header, digest mismatch, or timestamp outside tolerance.
var ErrInvalidSignature = errors.New("webhook signature verification failed")

// DefaultTolerance is how far a delivery timestamp may drift from now.
const DefaultTolerance = 5 * time.Minute

// Event is the envelope of a Stripe webhook delivery. For
// checkout.session.completed events the object is a checkout session.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object CheckoutSession `json:"object"`
	} `json:"data"`
}

// VerifySignature checks the Stripe-Signature header against the raw payload.
func VerifySignature(payload []byte, sigHeader, secret string, tolerance time.Duration) error {
	return verifySignatureAt(payload, sigHeader, secret, tolerance, time.Now())
}

func verifySignatureAt(payload []byte, sigHeader, secret string, tolerance time.Duration, now time.Time) error {
	ts, candidates, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return err
	}

	if tolerance > 0 {
		drift := now.Sub(time.Unix(ts, 0))
		if drift < 0 {
			drift = -drift
		}
		if drift > tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
		}
	}

	expected := computeSignature(ts, payload, secret)
	for _, candidate := range candidates {
		decoded, decodeErr := hex.DecodeString(candidate)
		if decodeErr != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching v1 signature", ErrInvalidSignature)
}

// ConstructEvent verifies the payload signature and, only then, decodes it.
func ConstructEvent(payload []byte, sigHeader, secret string) (*Event, error) {
	if err := VerifySignature(payload, sigHeader, secret, DefaultTolerance); err != nil {
		return nil, err
	}
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}
	if event.ID == "" || event.Type == "" {
		return nil, fmt.Errorf("webhook payload missing event id or type")
	}
	return &event, nil
}

// SignPayload produces a valid Stripe-Signature header for the payload. Used
// by tests to craft deliveries the verifier accepts.
func SignPayload(t time.Time, payload []byte, secret string) string {
	ts := t.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(computeSignature(ts, payload, secret)))
}

func computeSignature(ts int64, payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return mac.Sum(nil)
}

func parseSignatureHeader(header string) (int64, []string, error) {
	if strings.TrimSpace(header) == "" {
		return 0, nil, fmt.Errorf("%w: missing signature header", ErrInvalidSignature)
	}
	var (
		ts         int64
		tsSeen     bool
		candidates []string
	)
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			parsed, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			ts = parsed
			tsSeen = true
		case "v1":
			candidates = append(candidates, kv[1])
		}
	}
	if !tsSeen || len(candidates) == 0 {
		return 0, nil, fmt.Errorf("%w: malformed signature header", ErrInvalidSignature)
	}
	return ts, candidates, nil
}
