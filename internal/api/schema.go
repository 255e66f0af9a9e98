package api

import (
	"net/http"

	"github.com/anysoft/askql/internal/schema"
)

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "PIPELINE_UNAVAILABLE", "query pipeline is not configured", true, nil)
		return
	}
	snapshot := deps.Pipeline.Schema(r.Context())
	tables := snapshot.Tables
	if tables == nil {
		tables = []schema.Table{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tables":   tables,
		"rendered": snapshot.Render(),
	})
}
