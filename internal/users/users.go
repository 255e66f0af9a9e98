package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const minPasswordLength = 8

var (
	ErrNotFound           = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{2,63}$`)

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Credentials is a user together with its stored password hash.
type Credentials struct {
	User         User
	PasswordHash string
}

type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) (User, error)
	GetCredentials(ctx context.Context, username string) (Credentials, error)
}

// ValidationError is an input problem the caller can fix.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) Register(ctx context.Context, username, password string) (User, error) {
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return User{}, &ValidationError{Field: "username", Message: "must be 3-64 characters of letters, digits, '.', '_' or '-'"}
	}
	if len(password) < minPasswordLength {
		return User{}, &ValidationError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", minPasswordLength)}
	}
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.store.CreateUser(ctx, username, hash)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// Authenticate returns ErrInvalidCredentials for unknown users and wrong
// passwords alike.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	credentials, err := s.store.GetCredentials(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if err := VerifyPassword(credentials.PasswordHash, password); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return credentials.User, nil
}
