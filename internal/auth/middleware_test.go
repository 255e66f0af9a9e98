package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/anysoft/askql/internal/users"
)

func newTestJWT(t *testing.T) *JWT {
	t.Helper()
	issuer, err := NewJWT(JWTConfig{Secret: "test-secret", TTL: 8 * time.Hour, Issuer: "askql"})
	if err != nil {
		t.Fatalf("NewJWT() error = %v", err)
	}
	return issuer
}

func TestJWTIssueAndValidate(t *testing.T) {
	issuer := newTestJWT(t)
	token, err := issuer.Issue(users.User{ID: 42, Username: "ada"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if token.TokenType != "bearer" || token.AccessToken == "" {
		t.Fatalf("token = %+v", token)
	}

	identity, err := issuer.Validate(context.Background(), token.AccessToken)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if identity.UserID != 42 || identity.Username != "ada" || identity.Anonymous {
		t.Fatalf("identity = %+v", identity)
	}
}

func TestJWTRejectsExpiredAndForeignTokens(t *testing.T) {
	issuer := newTestJWT(t)
	issuer.now = func() time.Time { return time.Now().Add(-9 * time.Hour) }
	expired, err := issuer.Issue(users.User{ID: 1, Username: "ada"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	issuer.now = time.Now
	if _, err := issuer.Validate(context.Background(), expired.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Validate(expired) error = %v", err)
	}

	other, err := NewJWT(JWTConfig{Secret: "other-secret", TTL: time.Hour, Issuer: "askql"})
	if err != nil {
		t.Fatalf("NewJWT() error = %v", err)
	}
	foreign, err := other.Issue(users.User{ID: 1, Username: "ada"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := issuer.Validate(context.Background(), foreign.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Validate(foreign) error = %v", err)
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "1",
		Issuer:    "askql",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}
	if _, err := issuer.Validate(context.Background(), unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Validate(none) error = %v", err)
	}
}

func TestNewJWTRequiresSecret(t *testing.T) {
	if _, err := NewJWT(JWTConfig{TTL: time.Hour}); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestMiddlewareRequiresTokenWhenRequired(t *testing.T) {
	mw := Middleware(slog.New(slog.NewJSONHandler(io.Discard, nil)), newTestJWT(t), true)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if !strings.Contains(rr.Body.String(), `"error_code":"UNAUTHORIZED"`) {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestMiddlewareInjectsIdentityFromToken(t *testing.T) {
	issuer := newTestJWT(t)
	token, err := issuer.Issue(users.User{ID: 5, Username: "grace"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	mw := Middleware(nil, issuer, true)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("expected identity in context")
		}
		if identity.UserID != 5 {
			t.Fatalf("UserID = %d", identity.UserID)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/query", nil)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestMiddlewareFallsBackToUserHeaderWhenOptional(t *testing.T) {
	var seen Identity
	mw := Middleware(nil, newTestJWT(t), false)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/history", nil)
	req.Header.Set(UserIDHeader, "12")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent || seen.UserID != 12 || seen.Anonymous {
		t.Fatalf("status = %d identity = %+v", rr.Code, seen)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/history", nil))
	if rr.Code != http.StatusNoContent || seen.UserID != AnonymousUserID || !seen.Anonymous {
		t.Fatalf("status = %d identity = %+v", rr.Code, seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/history", nil)
	req.Header.Set(UserIDHeader, "abc")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestMiddlewareRejectsBadTokenEvenWhenOptional(t *testing.T) {
	mw := Middleware(nil, newTestJWT(t), false)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/history", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}
