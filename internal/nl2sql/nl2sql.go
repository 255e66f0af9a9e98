package nl2sql

import (
	"context"
	"fmt"
)

type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Completion is one chat-completion call as a provider sees it.
type Completion struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Provider returns the raw text of the first choice.
type Provider interface {
	Name() string
	Complete(ctx context.Context, completion Completion) (string, error)
}

type Request struct {
	Question string
	// Schema is the rendered schema snapshot; it may be empty.
	Schema string
}

type OutcomeKind string

const (
	KindSQL      OutcomeKind = "sql"
	KindFallback OutcomeKind = "fallback"
)

const (
	ReasonEmptyPrompt     = "empty_prompt"
	ReasonProviderError   = "provider_error"
	ReasonEmptyCompletion = "empty_completion"
)

// Outcome is either generated SQL or a fallback with the reason translation
// did not produce any.
type Outcome struct {
	Kind   OutcomeKind
	SQL    string
	Reason string
}

func SQL(text string) Outcome {
	return Outcome{Kind: KindSQL, SQL: text}
}

func Fallback(reason string) Outcome {
	return Outcome{Kind: KindFallback, Reason: reason}
}

func (o Outcome) IsFallback() bool {
	return o.Kind == KindFallback
}

// ProviderError is a failed call to the language model provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s failed status=%d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func retryableStatus(status int) bool {
	return status == 429 || status >= 500
}
