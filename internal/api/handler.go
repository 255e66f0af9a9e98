package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anysoft/askql/internal/auth"
	"github.com/anysoft/askql/internal/config"
	"github.com/anysoft/askql/internal/history"
	"github.com/anysoft/askql/internal/nl2sql"
	"github.com/anysoft/askql/internal/observability"
	"github.com/anysoft/askql/internal/pipeline"
	"github.com/anysoft/askql/internal/schema"
	"github.com/anysoft/askql/internal/storage"
	"github.com/anysoft/askql/internal/users"
)

const maxBodyBytes = 1 << 20

type ReadinessCheck func(ctx context.Context) error

type QueryPipeline interface {
	TranslateAndRun(ctx context.Context, question string, userID int64) (pipeline.Answer, error)
	Translate(ctx context.Context, question string) (nl2sql.Outcome, error)
	RecentHistory(ctx context.Context, userID int64, limit int) ([]history.Record, error)
	Schema(ctx context.Context) schema.Snapshot
}

type ResultArchive interface {
	OpenArchive(ctx context.Context, userID, id int64) (storage.Object, error)
}

type Accounts interface {
	Register(ctx context.Context, username, password string) (users.User, error)
	Authenticate(ctx context.Context, username, password string) (users.User, error)
}

type TokenIssuer interface {
	Issue(user users.User) (auth.Token, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Pipeline          QueryPipeline
	Archive           ResultArchive
	Accounts          Accounts
	Tokens            TokenIssuer
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"message": "Anysoft SQL Demo API"})
	})

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/auth/register", func(w http.ResponseWriter, r *http.Request) {
		handleRegister(deps, w, r)
	})
	mux.HandleFunc("POST /v1/auth/token", func(w http.ResponseWriter, r *http.Request) {
		handleToken(deps, w, r)
	})

	protected := map[string]http.HandlerFunc{
		"POST /v1/query": func(w http.ResponseWriter, r *http.Request) {
			handleQuery(deps, w, r)
		},
		"POST /v1/query/translate": func(w http.ResponseWriter, r *http.Request) {
			handleTranslate(deps, w, r)
		},
		"GET /v1/schema": func(w http.ResponseWriter, r *http.Request) {
			handleSchema(deps, w, r)
		},
		"GET /v1/history": func(w http.ResponseWriter, r *http.Request) {
			handleHistory(deps, cfg.History.PageSize, w, r)
		},
		"GET /v1/history/{id}/result.parquet": func(w http.ResponseWriter, r *http.Request) {
			handleHistoryArchive(deps, w, r)
		},
	}
	for pattern, handler := range protected {
		mux.Handle(pattern, protect(cfg, deps, handler))
	}

	middlewares := []func(http.Handler) http.Handler{
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", auth.UserIDHeader, observability.TraceHeader},
			ExposedHeaders:   []string{observability.TraceHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}),
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// protect resolves the caller identity before handler runs. Without an auth
// middleware the caller is anonymous, which prod configuration never allows.
func protect(cfg config.Config, deps Dependencies, handler http.Handler) http.Handler {
	if deps.AuthMiddleware != nil {
		return deps.AuthMiddleware(handler)
	}
	if cfg.Auth.Required {
		if deps.Logger != nil {
			deps.Logger.Error("auth required but auth middleware missing")
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
		})
	}
	return handler
}

func CheckStore(ping func(ctx context.Context) error) ReadinessCheck {
	if ping == nil {
		return nil
	}
	return func(ctx context.Context) error {
		if err := ping(ctx); err != nil {
			return errors.New("store is unreachable")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func identityFromRequest(r *http.Request) auth.Identity {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		return identity
	}
	return auth.Identity{UserID: auth.AnonymousUserID, Anonymous: true}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
