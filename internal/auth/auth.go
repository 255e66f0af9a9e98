package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/anysoft/askql/internal/users"
)

// AnonymousUserID owns history recorded without an authenticated user.
const AnonymousUserID int64 = 0

var ErrInvalidToken = errors.New("invalid token")

type Identity struct {
	UserID    int64
	Username  string
	Anonymous bool
}

type TokenValidator interface {
	Validate(ctx context.Context, token string) (Identity, error)
}

// Claims carries the user id in "sub" and the username in "name".
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

// JWT issues and validates HS256 access tokens.
type JWT struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewJWT(cfg JWTConfig) (*JWT, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("token ttl must be > 0")
	}
	return &JWT{secret: []byte(cfg.Secret), ttl: cfg.TTL, issuer: cfg.Issuer, now: time.Now}, nil
}

func (j *JWT) Issue(user users.User) (Token, error) {
	now := j.now()
	expiresAt := now.Add(j.ttl)
	claims := &Claims{
		Name: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    j.issuer,
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{AccessToken: signed, TokenType: "bearer", ExpiresAt: expiresAt.UTC()}, nil
}

func (j *JWT) Validate(_ context.Context, tokenString string) (Identity, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	}
	if j.issuer != "" {
		options = append(options, jwt.WithIssuer(j.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return j.secret, nil
	}, options...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Identity{}, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, claims.Subject)
	}
	return Identity{UserID: userID, Username: claims.Name}, nil
}
