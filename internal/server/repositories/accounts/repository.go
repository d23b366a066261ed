// Package accounts persists AuthKeeper accounts. Every backend implements
// Repository with the same semantics: lookups return (nil, nil) for absent
// rows, Create reports common.ErrDuplicateEmail, and token changes are
// applied atomically so concurrent logins cannot both win.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

type Repository interface {
	// FindByEmail returns the account or nil when the email is unknown.
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	// FindByToken returns the account whose active token equals token, or nil.
	FindByToken(ctx context.Context, token string) (*models.Account, error)
	// Create inserts a new account without an active token.
	Create(ctx context.Context, email string, passwordHash []byte) error
	// SetToken unconditionally stores token ("" clears it). Unknown emails
	// are ignored.
	SetToken(ctx context.Context, email, token string) error
	// SwapToken stores token only if the current active token equals
	// expected ("" meaning none) and reports whether it did.
	SwapToken(ctx context.Context, email, expected, token string) (bool, error)
	// RevokeToken clears the active token of whichever account holds token.
	RevokeToken(ctx context.Context, token string) (bool, error)
	// DeleteByToken removes the account holding token.
	DeleteByToken(ctx context.Context, token string) (bool, error)
	// UpdatePasswordHash replaces the stored hash.
	UpdatePasswordHash(ctx context.Context, email string, passwordHash []byte) error
}
