package repomanager

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/accounts"
)

// InMemoryRepositoryManager serves a single process-local repository. It has
// no schema and no transactions; WithinTx simply calls fn.
type InMemoryRepositoryManager struct {
	accounts *accounts.MemoryRepository
}

var _ RepositoryManager = (*InMemoryRepositoryManager)(nil)

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{accounts: accounts.NewMemoryRepository()}
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context) error { return nil }

func (m *InMemoryRepositoryManager) Accounts() accounts.Repository { return m.accounts }

func (m *InMemoryRepositoryManager) WithinTx(ctx context.Context, fn func(ctx context.Context, repo accounts.Repository) error) error {
	return fn(ctx, m.accounts)
}

func (m *InMemoryRepositoryManager) Ping(ctx context.Context) error { return nil }

func (m *InMemoryRepositoryManager) Close() error { return nil }
