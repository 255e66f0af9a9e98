package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/anysoft/askql/internal/observability"
)

type contextKey string

const identityKey contextKey = "auth_identity"

// UserIDHeader names the caller when authentication is not required.
const UserIDHeader = "X-User-ID"

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// Middleware resolves the caller identity. A bearer token is always validated
// when present. Without one, required mode rejects the request; otherwise the
// X-User-ID header or the anonymous user is used.
func Middleware(logger *slog.Logger, validator TokenValidator, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, hasToken := extractBearerToken(r)
			if hasToken {
				identity, err := validator.Validate(r.Context(), token)
				if err != nil {
					if logger != nil {
						logger.WarnContext(r.Context(), "authentication failed",
							slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
							slog.String("path", r.URL.Path),
							slog.Any("error", err),
						)
					}
					writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
					return
				}
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
				return
			}

			if required {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
				return
			}

			identity := Identity{UserID: AnonymousUserID, Anonymous: true}
			if raw := strings.TrimSpace(r.Header.Get(UserIDHeader)); raw != "" {
				userID, err := strconv.ParseInt(raw, 10, 64)
				if err != nil || userID < 0 {
					writeError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", UserIDHeader+" must be a non-negative integer")
					return
				}
				identity = Identity{UserID: userID, Anonymous: userID == AnonymousUserID}
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func extractBearerToken(r *http.Request) (string, bool) {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if authorization == "" {
		return "", false
	}
	const bearerPrefix = "Bearer "
	if len(authorization) < len(bearerPrefix) || !strings.EqualFold(authorization[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(authorization[len(bearerPrefix):])
	return token, token != ""
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  false,
		"trace_id":   observability.TraceIDFromContext(r.Context()),
	})
}
