package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/anysoft/askql/internal/history"
)

func handleHistory(deps Dependencies, pageSize int, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "PIPELINE_UNAVAILABLE", "query pipeline is not configured", true, nil)
		return
	}
	limit := pageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARGUMENT", "limit must be an integer", false, nil)
			return
		}
		limit = parsed
	}

	identity := identityFromRequest(r)
	records, err := deps.Pipeline.RecentHistory(r.Context(), identity.UserID, limit)
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", err.Error(), true, nil)
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": records})
}

func handleHistoryArchive(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Archive == nil {
		writeError(r.Context(), w, http.StatusNotFound, "NOT_FOUND", "result archiving is disabled", false, nil)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARGUMENT", "id must be a positive integer", false, nil)
		return
	}

	identity := identityFromRequest(r)
	object, err := deps.Archive.OpenArchive(r.Context(), identity.UserID, id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "NOT_FOUND", "no archived result for this history record", false, map[string]any{"id": id})
			return
		}
		writeError(r.Context(), w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", err.Error(), true, nil)
		return
	}
	defer func() { _ = object.Body.Close() }()

	contentType := object.ContentType
	if contentType == "" {
		contentType = history.ParquetContentType
	}
	w.Header().Set("Content-Type", contentType)
	if object.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(object.Size, 10))
	}
	w.Header().Set("Content-Disposition", "attachment; filename=\"result-"+strconv.FormatInt(id, 10)+".parquet\"")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, object.Body)
}
