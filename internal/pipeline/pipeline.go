package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anysoft/askql/internal/history"
	"github.com/anysoft/askql/internal/nl2sql"
	"github.com/anysoft/askql/internal/observability"
	"github.com/anysoft/askql/internal/query"
	"github.com/anysoft/askql/internal/schema"
)

// ClarificationMessage is shown when no SQL could be produced for a question.
const ClarificationMessage = "Please clarify your question."

type AnswerKind string

const (
	KindAnswer        AnswerKind = "answer"
	KindClarification AnswerKind = "clarification"
)

type Answer struct {
	Kind      AnswerKind
	Reason    string
	SQL       string
	Columns   []string
	Rows      []query.Row
	Truncated bool
}

type SchemaSource interface {
	Build(ctx context.Context) schema.Snapshot
}

type Translator interface {
	Translate(ctx context.Context, req nl2sql.Request) (nl2sql.Outcome, error)
}

type Recorder interface {
	Record(ctx context.Context, entry history.Entry) error
	Recent(ctx context.Context, userID int64, limit int) ([]history.Record, error)
}

type Service struct {
	schema     SchemaSource
	translator Translator
	engine     query.Engine
	recorder   Recorder
	logger     *slog.Logger
}

func NewService(schemaSource SchemaSource, translator Translator, engine query.Engine, recorder Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		schema:     schemaSource,
		translator: translator,
		engine:     engine,
		recorder:   recorder,
		logger:     logger,
	}
}

// TranslateAndRun answers question for userID. Fallback translations become a
// clarification and are neither executed nor recorded. Execution failures are
// *query.ExecutionError; provider failures under the strict policy are
// *nl2sql.ProviderError. History is written only after a successful execution.
func (s *Service) TranslateAndRun(ctx context.Context, question string, userID int64) (Answer, error) {
	outcome, err := s.Translate(ctx, question)
	if err != nil {
		return Answer{}, err
	}
	if outcome.IsFallback() {
		return clarification(outcome.Reason), nil
	}

	result, err := s.engine.Execute(ctx, query.Request{SQL: outcome.SQL})
	if err != nil {
		s.observeExecutionFailure(ctx, outcome.SQL, err)
		return Answer{}, err
	}
	observability.ObserveExecution(observability.ExecutionOK, len(result.Rows), result.Duration)

	if s.recorder != nil {
		// History is best-effort; the recorder logs and counts its own failures.
		_ = s.recorder.Record(ctx, history.Entry{
			UserID:   userID,
			Question: question,
			SQL:      outcome.SQL,
			Result:   result,
		})
	}

	return Answer{
		Kind:      KindAnswer,
		SQL:       outcome.SQL,
		Columns:   result.Columns,
		Rows:      result.Rows,
		Truncated: result.Truncated,
	}, nil
}

// Translate runs the translation half of the pipeline without executing.
func (s *Service) Translate(ctx context.Context, question string) (nl2sql.Outcome, error) {
	snapshot := s.schema.Build(ctx)
	outcome, err := s.translator.Translate(ctx, nl2sql.Request{Question: question, Schema: snapshot.Render()})
	if err != nil {
		return nl2sql.Outcome{}, fmt.Errorf("translate question: %w", err)
	}
	return outcome, nil
}

func (s *Service) RecentHistory(ctx context.Context, userID int64, limit int) ([]history.Record, error) {
	if s.recorder == nil {
		return []history.Record{}, nil
	}
	return s.recorder.Recent(ctx, userID, limit)
}

func (s *Service) Schema(ctx context.Context) schema.Snapshot {
	return s.schema.Build(ctx)
}

func (s *Service) observeExecutionFailure(ctx context.Context, sqlText string, err error) {
	var execErr *query.ExecutionError
	switch {
	case errors.As(err, &execErr) && execErr.Code == query.CodeStatementNotAllowed:
		observability.ObserveExecution(observability.ExecutionRejected, 0, 0)
		s.logger.WarnContext(ctx, "generated statement rejected", slog.String("sql", sqlText), slog.String("detail", execErr.Detail))
	case errors.Is(err, context.Canceled):
		s.logger.DebugContext(ctx, "execution cancelled by caller")
	default:
		observability.ObserveExecution(observability.ExecutionFailed, 0, 0)
		s.logger.WarnContext(ctx, "generated statement failed", slog.String("sql", sqlText), slog.Any("error", err))
	}
}

func clarification(reason string) Answer {
	return Answer{
		Kind:    KindClarification,
		Reason:  reason,
		Columns: []string{"message"},
		Rows:    []query.Row{{"message": query.Text(ClarificationMessage)}},
	}
}
