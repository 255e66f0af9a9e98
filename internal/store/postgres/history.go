package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/anysoft/askql/internal/history"
)

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping history db: %w", err)
	}
	return nil
}

func (r *HistoryRepository) Insert(ctx context.Context, in history.NewRecord) (history.Record, error) {
	query := `
INSERT INTO askql.query_history (user_id, prompt_text, sql_text, result, result_object_key, created_at)
VALUES ($1, $2, $3, $4::jsonb, NULLIF($5, ''), $6)
RETURNING id`
	var id int64
	if err := r.db.QueryRowContext(ctx, query,
		in.UserID,
		in.Question,
		in.SQL,
		string(in.Result),
		in.ResultObjectKey,
		in.CreatedAt,
	).Scan(&id); err != nil {
		return history.Record{}, fmt.Errorf("insert query history: %w", err)
	}
	return history.Record{
		ID:              id,
		UserID:          in.UserID,
		Question:        in.Question,
		SQL:             in.SQL,
		Result:          in.Result,
		ResultObjectKey: in.ResultObjectKey,
		CreatedAt:       in.CreatedAt,
	}, nil
}

func (r *HistoryRepository) ListRecent(ctx context.Context, userID int64, limit int) ([]history.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, prompt_text, sql_text, result::text, COALESCE(result_object_key, ''), created_at
FROM askql.query_history
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]history.Record, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query history: %w", err)
	}
	return records, nil
}

func (r *HistoryRepository) Get(ctx context.Context, userID, id int64) (history.Record, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, user_id, prompt_text, sql_text, result::text, COALESCE(result_object_key, ''), created_at
FROM askql.query_history
WHERE user_id = $1 AND id = $2`, userID, id)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return history.Record{}, history.ErrNotFound
		}
		return history.Record{}, err
	}
	return record, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (history.Record, error) {
	var record history.Record
	var result string
	if err := row.Scan(
		&record.ID,
		&record.UserID,
		&record.Question,
		&record.SQL,
		&result,
		&record.ResultObjectKey,
		&record.CreatedAt,
	); err != nil {
		return history.Record{}, fmt.Errorf("scan query history: %w", err)
	}
	record.Result = []byte(result)
	return record, nil
}
