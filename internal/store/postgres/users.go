package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/anysoft/askql/internal/users"
)

const uniqueViolationCode = "23505"

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(ctx context.Context, username, passwordHash string) (users.User, error) {
	query := `
INSERT INTO askql.users (username, password_hash)
VALUES ($1, $2)
RETURNING id, created_at`
	user := users.User{Username: username}
	if err := r.db.QueryRowContext(ctx, query, username, passwordHash).Scan(&user.ID, &user.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return users.User{}, users.ErrUsernameTaken
		}
		return users.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (r *UserRepository) GetCredentials(ctx context.Context, username string) (users.Credentials, error) {
	query := `
SELECT id, username, password_hash, created_at
FROM askql.users
WHERE username = $1`
	var credentials users.Credentials
	if err := r.db.QueryRowContext(ctx, query, username).Scan(
		&credentials.User.ID,
		&credentials.User.Username,
		&credentials.PasswordHash,
		&credentials.User.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return users.Credentials{}, users.ErrNotFound
		}
		return users.Credentials{}, fmt.Errorf("get user: %w", err)
	}
	return credentials, nil
}
