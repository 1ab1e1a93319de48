package stripeclient

import (
	"errors"
	"testing"
	"time"
)

const testSecret = "whsec_test_secret"

func TestVerifySignature_Valid(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	now := time.Unix(1700000000, 0)
	header := SignPayload(now, payload, testSecret)

	if err := verifySignatureAt(payload, header, testSecret, DefaultTolerance, now); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}
}

func TestVerifySignature_TamperedPayload(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Unix(1700000000, 0)
	header := SignPayload(now, payload, testSecret)

	err := verifySignatureAt([]byte(`{"id":"evt_2"}`), header, testSecret, DefaultTolerance, now)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got: %v", err)
	}
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Unix(1700000000, 0)
	header := SignPayload(now, payload, "whsec_other")

	err := verifySignatureAt(payload, header, testSecret, DefaultTolerance, now)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got: %v", err)
	}
}

func TestVerifySignature_StaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	signedAt := time.Unix(1700000000, 0)
	header := SignPayload(signedAt, payload, testSecret)

	err := verifySignatureAt(payload, header, testSecret, DefaultTolerance, signedAt.Add(10*time.Minute))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for stale delivery, got: %v", err)
	}
}

func TestVerifySignature_MultipleCandidates(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Unix(1700000000, 0)
	valid := SignPayload(now, payload, testSecret)
	// A header carrying a bogus v1 before the valid one must still verify.
	header := "t=1700000000,v1=deadbeef," + valid[len("t=1700000000,"):]

	if err := verifySignatureAt(payload, header, testSecret, DefaultTolerance, now); err != nil {
		t.Fatalf("expected valid signature with extra candidate, got: %v", err)
	}
}

func TestVerifySignature_MalformedHeaders(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Unix(1700000000, 0)

	for _, header := range []string{"", "t=abc,v1=00", "v1=00", "t=1700000000"} {
		if err := verifySignatureAt(payload, header, testSecret, DefaultTolerance, now); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("header %q: expected ErrInvalidSignature, got: %v", header, err)
		}
	}
}

func TestConstructEvent(t *testing.T) {
	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"created": 1700000000,
		"data": {"object": {
			"id": "cs_test_123",
			"payment_intent": "pi_test_456",
			"payment_status": "paid",
			"metadata": {"intake_id": "a", "draft_id": "b", "correlation_id": "c"}
		}}
	}`)
	header := SignPayload(time.Now(), payload, testSecret)

	event, err := ConstructEvent(payload, header, testSecret)
	if err != nil {
		t.Fatalf("ConstructEvent failed: %v", err)
	}
	if event.ID != "evt_1" || event.Type != "checkout.session.completed" {
		t.Fatalf("unexpected event envelope: %+v", event)
	}
	if event.Data.Object.ID != "cs_test_123" || event.Data.Object.PaymentIntent != "pi_test_456" {
		t.Fatalf("unexpected session object: %+v", event.Data.Object)
	}
	if event.Data.Object.Metadata["intake_id"] != "a" {
		t.Fatalf("metadata not decoded: %+v", event.Data.Object.Metadata)
	}
}

func TestConstructEvent_RejectsUnsigned(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	if _, err := ConstructEvent(payload, "t=1,v1=00", testSecret); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got: %v", err)
	}
}
