package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func protectedRouter(secret string, captured *uuid.UUID) http.Handler {
	r := chi.NewRouter()
	r.Route("/intakes/{intakeID}", func(r chi.Router) {
		r.Use(IntakeAuthMiddleware(secret))
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			id, ok := GetIntakeID(req.Context())
			if !ok {
				http.Error(w, "intake id missing from context", http.StatusInternalServerError)
				return
			}
			*captured = id
			w.WriteHeader(http.StatusOK)
		})
	})
	return r
}

func TestIntakeAuthMiddleware_AcceptsIssuedToken(t *testing.T) {
	intakeID := uuid.New()
	token, err := IssueIntakeToken("test-secret", intakeID, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	var captured uuid.UUID
	router := protectedRouter("test-secret", &captured)

	req := httptest.NewRequest(http.MethodGet, "/intakes/"+intakeID.String(), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured != intakeID {
		t.Fatalf("expected intake id %s bound into context, got %s", intakeID, captured)
	}
}

func TestIntakeAuthMiddleware_RejectsTokenForOtherIntake(t *testing.T) {
	token, err := IssueIntakeToken("test-secret", uuid.New(), time.Hour)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	var captured uuid.UUID
	router := protectedRouter("test-secret", &captured)

	req := httptest.NewRequest(http.MethodGet, "/intakes/"+uuid.NewString(), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a token issued to another intake, got %d", rec.Code)
	}
}

func TestIntakeAuthMiddleware_RejectsMissingHeader(t *testing.T) {
	var captured uuid.UUID
	router := protectedRouter("test-secret", &captured)

	req := httptest.NewRequest(http.MethodGet, "/intakes/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without an Authorization header, got %d", rec.Code)
	}
}

func TestIntakeAuthMiddleware_RejectsExpiredToken(t *testing.T) {
	intakeID := uuid.New()
	token, err := IssueIntakeToken("test-secret", intakeID, -time.Minute)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	var captured uuid.UUID
	router := protectedRouter("test-secret", &captured)

	req := httptest.NewRequest(http.MethodGet, "/intakes/"+intakeID.String(), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for an expired token, got %d", rec.Code)
	}
}

func TestIntakeAuthMiddleware_RejectsForeignSignature(t *testing.T) {
	intakeID := uuid.New()
	token, err := IssueIntakeToken("other-secret", intakeID, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	var captured uuid.UUID
	router := protectedRouter("test-secret", &captured)

	req := httptest.NewRequest(http.MethodGet, "/intakes/"+intakeID.String(), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a token signed with the wrong secret, got %d", rec.Code)
	}
}

func internalRouter(key string) http.Handler {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(InternalKeyMiddleware(key))
		r.Get("/review", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})
	return r
}

func TestInternalKeyMiddleware_AllowsMatchingKey(t *testing.T) {
	router := internalRouter("operator-key")

	req := httptest.NewRequest(http.MethodGet, "/review", nil)
	req.Header.Set("X-Internal-API-Key", "operator-key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with the configured key, got %d", rec.Code)
	}
}

func TestInternalKeyMiddleware_RejectsWrongKey(t *testing.T) {
	router := internalRouter("operator-key")

	req := httptest.NewRequest(http.MethodGet, "/review", nil)
	req.Header.Set("X-Internal-API-Key", "guessed-key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a wrong key, got %d", rec.Code)
	}
}

func TestInternalKeyMiddleware_UnconfiguredKeyIsUnavailable(t *testing.T) {
	router := internalRouter("")

	req := httptest.NewRequest(http.MethodGet, "/review", nil)
	req.Header.Set("X-Internal-API-Key", "anything")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when no internal key is configured, got %d", rec.Code)
	}
}
