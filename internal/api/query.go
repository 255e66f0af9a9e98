package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/anysoft/askql/internal/nl2sql"
	"github.com/anysoft/askql/internal/pipeline"
	"github.com/anysoft/askql/internal/query"
)

type queryRequest struct {
	Prompt string `json:"prompt"`
}

type queryResponse struct {
	Kind      pipeline.AnswerKind `json:"kind"`
	Reason    string              `json:"reason,omitempty"`
	SQL       string              `json:"sql,omitempty"`
	Columns   []string            `json:"columns"`
	Table     []query.Row         `json:"table"`
	Chart     []any               `json:"chart"`
	Truncated bool                `json:"truncated"`
}

type translateResponse struct {
	Kind   nl2sql.OutcomeKind `json:"kind"`
	SQL    string             `json:"sql,omitempty"`
	Reason string             `json:"reason,omitempty"`
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "PIPELINE_UNAVAILABLE", "query pipeline is not configured", true, nil)
		return
	}
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request", false, map[string]any{"details": err.Error()})
		return
	}

	identity := identityFromRequest(r)
	answer, err := deps.Pipeline.TranslateAndRun(r.Context(), strings.TrimSpace(req.Prompt), identity.UserID)
	if err != nil {
		writePipelineError(w, r, err)
		return
	}

	columns := answer.Columns
	if columns == nil {
		columns = []string{}
	}
	rows := answer.Rows
	if rows == nil {
		rows = []query.Row{}
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Kind:      answer.Kind,
		Reason:    answer.Reason,
		SQL:       answer.SQL,
		Columns:   columns,
		Table:     rows,
		Chart:     []any{},
		Truncated: answer.Truncated,
	})
}

func handleTranslate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "PIPELINE_UNAVAILABLE", "query pipeline is not configured", true, nil)
		return
	}
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid translate request", false, map[string]any{"details": err.Error()})
		return
	}

	outcome, err := deps.Pipeline.Translate(r.Context(), strings.TrimSpace(req.Prompt))
	if err != nil {
		writePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, translateResponse{Kind: outcome.Kind, SQL: outcome.SQL, Reason: outcome.Reason})
}

func writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	var providerErr *nl2sql.ProviderError
	var execErr *query.ExecutionError
	switch {
	case errors.As(err, &providerErr):
		extra := map[string]any{"provider": providerErr.Provider}
		if providerErr.StatusCode != 0 {
			extra["status_code"] = providerErr.StatusCode
		}
		writeError(r.Context(), w, http.StatusBadGateway, "PROVIDER_ERROR", "language model request failed", providerErr.Retryable, extra)
	case errors.As(err, &execErr) && execErr.Code == query.CodeStatementNotAllowed:
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", execErr.Error(), false, nil)
	case errors.As(err, &execErr) && execErr.Code == query.CodeTimeout:
		writeError(r.Context(), w, http.StatusGatewayTimeout, "QUERY_TIMEOUT", execErr.Error(), true, nil)
	case errors.As(err, &execErr):
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", execErr.Error(), false, nil)
	default:
		writeError(r.Context(), w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", err.Error(), true, nil)
	}
}
