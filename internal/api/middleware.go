/**
 * @description
 * This file contains custom middleware for the HTTP router. The intake flow is
 * anonymous: there are no user accounts, so authorization rides on a signed
 * intake token issued when the intake is opened. The token's subject is the
 * intake ID, and intake-scoped routes demand that the subject match the ID in
 * the URL.
 *
 * @dependencies
 * - context, crypto/hmac, net/http, strings: Standard Go libraries.
 * - github.com/golang-jwt/jwt/v5: For signing and verifying intake tokens.
 */

package api

import (
	"context"
	"crypto/hmac"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// IntakeIDContextKey is a custom type for the context key to avoid collisions.
type IntakeIDContextKey string

const intakeIDKey IntakeIDContextKey = "intakeID"

const intakeTokenIssuer = "appeal-service"

// IssueIntakeToken mints the HS256 token a client presents on every
// intake-scoped call. The subject is the intake ID.
func IssueIntakeToken(secret string, intakeID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    intakeTokenIssuer,
		Subject:   intakeID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// IntakeAuthMiddleware creates a middleware that validates intake tokens and
// binds the authorized intake ID into the request context. Routes using it
// must carry an {intakeID} URL parameter; a valid token for a different
// intake is rejected.
func IntakeAuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Get the Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			// Extract the token from "Bearer <token>"
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			}, jwt.WithIssuer(intakeTokenIssuer), jwt.WithExpirationRequired())
			if err != nil || !token.Valid {
				http.Error(w, "Invalid intake token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(*jwt.RegisteredClaims)
			if !ok || claims.Subject == "" {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}
			intakeID, err := uuid.Parse(claims.Subject)
			if err != nil {
				http.Error(w, "Invalid token subject", http.StatusUnauthorized)
				return
			}

			// The token only grants access to the intake it was issued for.
			if pathID := chi.URLParam(r, "intakeID"); pathID != "" && pathID != intakeID.String() {
				http.Error(w, "Token does not match this intake", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), intakeIDKey, intakeID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InternalKeyMiddleware guards operator endpoints with the shared internal
// API key carried in the X-Internal-API-Key header.
func InternalKeyMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				http.Error(w, "Internal API is not configured", http.StatusServiceUnavailable)
				return
			}
			provided := r.Header.Get("X-Internal-API-Key")
			if provided == "" || !hmac.Equal([]byte(provided), []byte(key)) {
				http.Error(w, "Invalid internal API key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetIntakeID retrieves the authorized intake ID from the request context.
// Handlers on intake-scoped routes should use this instead of re-parsing the
// URL parameter.
func GetIntakeID(ctx context.Context) (uuid.UUID, bool) {
	intakeID, ok := ctx.Value(intakeIDKey).(uuid.UUID)
	return intakeID, ok
}
