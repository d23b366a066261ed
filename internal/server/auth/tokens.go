// Package auth implements password hashing and the signed session tokens
// issued to logged-in accounts.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/accounts"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is how long an issued session token stays valid.
const DefaultTokenTTL = 10 * time.Minute

// TokenStatus is the outcome of checking a session token.
type TokenStatus int

const (
	TokenInvalid TokenStatus = iota
	TokenValid
	TokenExpired
)

func (s TokenStatus) String() string {
	switch s {
	case TokenValid:
		return "valid"
	case TokenExpired:
		return "expired"
	default:
		return "invalid"
	}
}

// TokenCheck carries the status and, for valid or expired tokens, the email
// the token was issued to.
type TokenCheck struct {
	Status TokenStatus
	Email  string
}

// Err maps a failed check to common.ErrInvalidToken or common.ErrTokenExpired.
func (c TokenCheck) Err() error {
	switch c.Status {
	case TokenValid:
		return nil
	case TokenExpired:
		return common.ErrTokenExpired
	default:
		return common.ErrInvalidToken
	}
}

// TokenService issues HS256 JWTs and checks them against the account store:
// a token is only valid while it is the account's active token.
type TokenService struct {
	key  *memguard.Enclave
	ttl  time.Duration
	repo accounts.Repository
	now  func() time.Time
}

type TokenOption func(*TokenService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService seals secret in a memguard enclave. The secret slice is
// wiped by this call.
func NewTokenService(secret []byte, ttl time.Duration, repo accounts.Repository, opts ...TokenOption) (*TokenService, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	s := &TokenService{
		key:  memguard.NewEnclave(secret),
		ttl:  ttl,
		repo: repo,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the configured token lifetime.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue signs a new token for email. It does not store it.
func (s *TokenService) Issue(email string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		ID:        uuid.NewString(),
	})

	key, err := s.key.Open()
	if err != nil {
		return "", fmt.Errorf("open signing key: %w", err)
	}
	defer key.Destroy()

	signed, err := token.SignedString(key.Bytes())
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse checks signature and expiry only.
func (s *TokenService) Parse(token string) TokenCheck {
	if token == "" {
		return TokenCheck{Status: TokenInvalid}
	}

	key, err := s.key.Open()
	if err != nil {
		return TokenCheck{Status: TokenInvalid}
	}
	defer key.Destroy()

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return key.Bytes(), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	switch {
	case err == nil && claims.Subject != "":
		return TokenCheck{Status: TokenValid, Email: claims.Subject}
	case errors.Is(err, jwt.ErrTokenExpired) && claims.Subject != "":
		return TokenCheck{Status: TokenExpired, Email: claims.Subject}
	default:
		return TokenCheck{Status: TokenInvalid}
	}
}

// Validate parses token and cross-checks it with the stored active token.
// An expired token that is still stored is cleared.
func (s *TokenService) Validate(ctx context.Context, token string) (TokenCheck, error) {
	check := s.Parse(token)

	switch check.Status {
	case TokenValid:
		account, err := s.repo.FindByEmail(ctx, check.Email)
		if err != nil {
			return TokenCheck{}, err
		}
		if account == nil || subtle.ConstantTimeCompare([]byte(account.ActiveToken), []byte(token)) != 1 {
			return TokenCheck{Status: TokenInvalid}, nil
		}
		return check, nil

	case TokenExpired:
		if _, err := s.repo.SwapToken(ctx, check.Email, token, ""); err != nil {
			return TokenCheck{}, err
		}
		return check, nil

	default:
		return check, nil
	}
}

// Revoke clears whatever token is active for email.
func (s *TokenService) Revoke(ctx context.Context, email string) error {
	return s.repo.SetToken(ctx, email, "")
}

// RevokeByToken clears token wherever it is active and reports whether it
// was found.
func (s *TokenService) RevokeByToken(ctx context.Context, token string) (bool, error) {
	return s.repo.RevokeToken(ctx, token)
}
