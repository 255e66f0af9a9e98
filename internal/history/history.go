package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anysoft/askql/internal/observability"
	"github.com/anysoft/askql/internal/query"
	"github.com/anysoft/askql/internal/storage"
)

const (
	DefaultRecentLimit = 10
	MaxRecentLimit     = 10
)

var ErrNotFound = errors.New("history record not found")

// Entry is one answered question as the pipeline hands it over.
type Entry struct {
	UserID   int64
	Question string
	SQL      string
	Result   query.Result
}

// Record is a persisted history row. Result holds the stored JSON document.
type Record struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	Question        string          `json:"question"`
	SQL             string          `json:"sql"`
	Result          json.RawMessage `json:"result"`
	ResultObjectKey string          `json:"result_object_key,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

type NewRecord struct {
	UserID          int64
	Question        string
	SQL             string
	Result          json.RawMessage
	ResultObjectKey string
	CreatedAt       time.Time
}

type Store interface {
	Insert(ctx context.Context, record NewRecord) (Record, error)
	ListRecent(ctx context.Context, userID int64, limit int) ([]Record, error)
	Get(ctx context.Context, userID, id int64) (Record, error)
}

// PersistenceError reports that an answered question could not be recorded.
// It never fails the request that produced it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist history (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

type storedResult struct {
	Columns   []string    `json:"columns"`
	Rows      []query.Row `json:"rows"`
	Truncated bool        `json:"truncated"`
}

func EncodeResult(result query.Result) (json.RawMessage, error) {
	rows := result.Rows
	if rows == nil {
		rows = []query.Row{}
	}
	columns := result.Columns
	if columns == nil {
		columns = []string{}
	}
	payload, err := json.Marshal(storedResult{Columns: columns, Rows: rows, Truncated: result.Truncated})
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return payload, nil
}

type Recorder struct {
	store   Store
	archive *Archive
	logger  *slog.Logger
	now     func() time.Time
}

// NewRecorder builds a recorder; archive may be nil to skip result archiving.
func NewRecorder(store Store, archive *Archive, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Recorder{store: store, archive: archive, logger: logger, now: time.Now}
}

// Record persists entry. Failures are logged, counted and returned as
// *PersistenceError; callers are expected to carry on regardless.
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	createdAt := r.now().UTC()
	payload, err := EncodeResult(entry.Result)
	if err != nil {
		return r.fail(ctx, entry, &PersistenceError{Op: "encode", Err: err})
	}

	var objectKey string
	if r.archive != nil {
		objectKey, err = r.archive.Put(ctx, entry.UserID, createdAt, entry.Result)
		if err != nil {
			_ = r.fail(ctx, entry, &PersistenceError{Op: "archive", Err: err})
			objectKey = ""
		}
	}

	_, err = r.store.Insert(ctx, NewRecord{
		UserID:          entry.UserID,
		Question:        entry.Question,
		SQL:             entry.SQL,
		Result:          payload,
		ResultObjectKey: objectKey,
		CreatedAt:       createdAt,
	})
	if err != nil {
		if objectKey != "" {
			if deleteErr := r.archive.Delete(ctx, objectKey); deleteErr != nil {
				r.logger.WarnContext(ctx, "discard orphaned result archive failed", slog.String("key", objectKey), slog.Any("error", deleteErr))
			}
		}
		return r.fail(ctx, entry, &PersistenceError{Op: "insert", Err: err})
	}
	return nil
}

// Recent returns the user's newest records first. limit is clamped to [1, 10];
// zero selects the default.
func (r *Recorder) Recent(ctx context.Context, userID int64, limit int) ([]Record, error) {
	records, err := r.store.ListRecent(ctx, userID, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list recent history: %w", err)
	}
	return records, nil
}

// OpenArchive opens the archived Parquet result of one of the user's records.
func (r *Recorder) OpenArchive(ctx context.Context, userID, id int64) (storage.Object, error) {
	record, err := r.store.Get(ctx, userID, id)
	if err != nil {
		return storage.Object{}, err
	}
	if record.ResultObjectKey == "" || r.archive == nil {
		return storage.Object{}, ErrNotFound
	}
	return r.archive.Open(ctx, userID, record.ResultObjectKey)
}

func ClampLimit(limit int) int {
	if limit == 0 {
		return DefaultRecentLimit
	}
	if limit < 1 {
		return 1
	}
	if limit > MaxRecentLimit {
		return MaxRecentLimit
	}
	return limit
}

func (r *Recorder) fail(ctx context.Context, entry Entry, err *PersistenceError) error {
	observability.IncrementHistoryWriteFailure()
	r.logger.ErrorContext(ctx, "history write failed",
		slog.Int64("user_id", entry.UserID),
		slog.String("op", err.Op),
		slog.Any("error", err.Err),
	)
	return err
}
