package stripeclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateCheckoutSession(t *testing.T) {
	var gotAuth, gotIdempotency, gotContentType string
	var gotForm map[string][]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotIdempotency = r.Header.Get("Idempotency-Key")
		gotContentType = r.Header.Get("Content-Type")
		if err := r.ParseForm(); err != nil {
			t.Errorf("bad form body: %v", err)
		}
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"cs_test_123","url":"https://checkout.example.com/pay/cs_test_123","payment_intent":"","status":"open","payment_status":"unpaid"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_key")
	session, err := c.CreateCheckoutSession(context.Background(), CreateCheckoutSessionParams{
		Amount:            1900,
		Currency:          "usd",
		ProductName:       "Parking Appeal Mailing",
		SuccessURL:        "https://app.example.com/done",
		CancelURL:         "https://app.example.com/cancel",
		ClientReferenceID: "corr-1",
		Metadata:          map[string]string{"intake_id": "i-1", "draft_id": "d-1"},
		IdempotencyKey:    "idem-1",
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession failed: %v", err)
	}
	if session.ID != "cs_test_123" || session.URL == "" {
		t.Fatalf("unexpected session: %+v", session)
	}

	if gotAuth != "Bearer sk_test_key" {
		t.Errorf("unexpected auth header: %q", gotAuth)
	}
	if gotIdempotency != "idem-1" {
		t.Errorf("unexpected idempotency key: %q", gotIdempotency)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Errorf("unexpected content type: %q", gotContentType)
	}
	for key, want := range map[string]string{
		"mode":                                 "payment",
		"line_items[0][price_data][unit_amount]": "1900",
		"line_items[0][price_data][currency]":    "usd",
		"metadata[intake_id]":                    "i-1",
		"metadata[draft_id]":                     "d-1",
		"client_reference_id":                    "corr-1",
	} {
		if got := gotForm[key]; len(got) != 1 || got[0] != want {
			t.Errorf("form field %q: got %v, want %q", key, got, want)
		}
	}
}

func TestCreateCheckoutSession_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Missing required param: success_url."}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_key")
	_, err := c.CreateCheckoutSession(context.Background(), CreateCheckoutSessionParams{})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *ErrorResponse
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *ErrorResponse, got: %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Temporary() {
		t.Fatalf("unexpected error classification: %+v", apiErr)
	}
}

func TestCreateCheckoutSession_ServerErrorIsTemporary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":{"type":"api_error","message":"upstream unavailable"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_key")
	_, err := c.CreateCheckoutSession(context.Background(), CreateCheckoutSessionParams{})
	var apiErr *ErrorResponse
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *ErrorResponse, got: %v", err)
	}
	if !apiErr.Temporary() {
		t.Fatal("5xx must classify as temporary")
	}
}
