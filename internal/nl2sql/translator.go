package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/anysoft/askql/internal/observability"
)

type FailurePolicy string

const (
	// PolicyStrict surfaces provider failures to the caller.
	PolicyStrict FailurePolicy = "strict"
	// PolicyLenient turns provider failures into a fallback outcome.
	PolicyLenient FailurePolicy = "lenient"
)

const (
	DefaultModel          = "gpt-4.1-mini"
	DefaultMaxTokens      = 256
	DefaultMaxAttempts    = 3
	DefaultRetryBaseDelay = 250 * time.Millisecond
	DefaultAttemptTimeout = 20 * time.Second
)

type Config struct {
	Model          string
	Dialect        string
	MaxTokens      int
	FailurePolicy  FailurePolicy
	MaxAttempts    int
	RetryBaseDelay time.Duration
	AttemptTimeout time.Duration
}

type Translator struct {
	provider Provider
	cfg      Config
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewTranslator(provider Provider, cfg Config, logger *slog.Logger) (*Translator, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	switch cfg.FailurePolicy {
	case "":
		cfg.FailurePolicy = PolicyStrict
	case PolicyStrict, PolicyLenient:
	default:
		return nil, fmt.Errorf("unknown failure policy %q", cfg.FailurePolicy)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryBaseDelay < 0 {
		cfg.RetryBaseDelay = 0
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Translator{provider: provider, cfg: cfg, logger: logger, sleep: sleepContext}, nil
}

// Translate turns req.Question into SQL. An empty question never reaches the
// provider. Provider failures follow the configured failure policy; a
// cancelled caller context is returned as is.
func (t *Translator) Translate(ctx context.Context, req Request) (Outcome, error) {
	start := time.Now()
	question := strings.TrimSpace(req.Question)
	if question == "" {
		t.logger.WarnContext(ctx, "empty question, asking for clarification")
		observability.ObserveTranslation(observability.TranslationFallback, time.Since(start))
		return Fallback(ReasonEmptyPrompt), nil
	}

	text, err := t.complete(ctx, Completion{
		Model:       t.cfg.Model,
		Messages:    ComposeMessages(req.Schema, question, t.cfg.Dialect),
		MaxTokens:   t.cfg.MaxTokens,
		Temperature: 0,
	})
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		if t.cfg.FailurePolicy == PolicyLenient {
			t.logger.WarnContext(ctx, "provider failed, falling back to clarification", slog.Any("error", err))
			observability.ObserveTranslation(observability.TranslationFallback, time.Since(start))
			return Fallback(ReasonProviderError), nil
		}
		observability.ObserveTranslation(observability.TranslationProviderError, time.Since(start))
		return Outcome{}, err
	}

	sqlText := ExtractSQL(text)
	if sqlText == "" {
		t.logger.WarnContext(ctx, "provider returned an empty completion")
		observability.ObserveTranslation(observability.TranslationFallback, time.Since(start))
		return Fallback(ReasonEmptyCompletion), nil
	}
	t.logger.DebugContext(ctx, "generated sql", slog.String("sql", sqlText))
	observability.ObserveTranslation(observability.TranslationSQL, time.Since(start))
	return SQL(sqlText), nil
}

func (t *Translator) complete(ctx context.Context, completion Completion) (string, error) {
	name := t.provider.Name()
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, t.cfg.AttemptTimeout)
		text, err := t.provider.Complete(attemptCtx, completion)
		cancel()
		if err == nil {
			observability.ObserveProviderAttempt(name, "ok")
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		providerErr := asProviderError(name, err)
		if !providerErr.Retryable || attempt >= t.cfg.MaxAttempts {
			observability.ObserveProviderAttempt(name, "fatal")
			return "", providerErr
		}
		observability.ObserveProviderAttempt(name, "retryable")

		delay := t.backoff(attempt)
		t.logger.WarnContext(ctx, "provider call failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
		if err := t.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
}

// backoff draws a full-jitter delay from [0, base*2^(attempt-1)].
func (t *Translator) backoff(attempt int) time.Duration {
	ceiling := t.cfg.RetryBaseDelay << (attempt - 1)
	if ceiling <= 0 {
		return 0
	}
	return rand.N(ceiling + 1)
}

func asProviderError(provider string, err error) *ProviderError {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr
	}
	var netErr net.Error
	timedOut := errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
	return &ProviderError{Provider: provider, Retryable: timedOut, Err: err}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
