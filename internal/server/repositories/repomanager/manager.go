// Package repomanager opens the configured storage backend and hands out
// account repositories bound to it.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/accounts"
)

type RepositoryManager interface {
	// RunMigrations brings the schema up to date. Backends without a schema
	// treat it as a no-op.
	RunMigrations(ctx context.Context) error
	// Accounts returns a repository bound to the manager's connection.
	Accounts() accounts.Repository
	// WithinTx runs fn with a repository whose operations share one
	// transaction where the backend supports it.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repo accounts.Repository) error) error
	Ping(ctx context.Context) error
	Close() error
}
