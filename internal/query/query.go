package query

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultRowLimit = 1000
	DefaultTimeout  = 15 * time.Second
)

const (
	CodeStatementNotAllowed = "statement_not_allowed"
	CodeExecutionFailed     = "execution_failed"
	CodeTimeout             = "timeout"
)

type Request struct {
	SQL      string
	RowLimit int
	Timeout  time.Duration
}

// Row maps a column name to its value. Column order lives in Result.Columns.
type Row map[string]Value

type Result struct {
	Columns   []string
	Rows      []Row
	Truncated bool
	Duration  time.Duration
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

// Limits are the ceilings an engine applies when a request does not set its own.
type Limits struct {
	RowLimit int
	Timeout  time.Duration
}

// Resolve returns the effective row limit and timeout for request.
func (l Limits) Resolve(request Request) (int, time.Duration) {
	rowLimit := request.RowLimit
	if rowLimit <= 0 {
		rowLimit = l.RowLimit
	}
	if rowLimit <= 0 {
		rowLimit = DefaultRowLimit
	}
	timeout := request.Timeout
	if timeout <= 0 {
		timeout = l.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return rowLimit, timeout
}

// ExecutionError reports that the store refused or failed a generated
// statement. It is a client-input failure: rephrasing the question can fix it.
type ExecutionError struct {
	Code   string
	Detail string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func notAllowed(format string, args ...any) *ExecutionError {
	return &ExecutionError{Code: CodeStatementNotAllowed, Detail: fmt.Sprintf(format, args...)}
}

// ExecutionFailure classifies an error returned by the store while running a
// statement under ctx. Cancellation by the caller is passed through untouched.
func ExecutionFailure(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && errors.Is(ctx.Err(), context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ExecutionError{Code: CodeTimeout, Detail: "statement exceeded the time limit", Err: err}
	}
	return &ExecutionError{Code: CodeExecutionFailed, Detail: "statement failed", Err: err}
}
