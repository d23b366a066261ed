package repomanager

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/accounts"
	"go.etcd.io/bbolt"
)

// BoltRepositoryManager keeps accounts in a single bbolt file.
type BoltRepositoryManager struct {
	db   *bbolt.DB
	repo *accounts.BoltRepository
}

var _ RepositoryManager = (*BoltRepositoryManager)(nil)

// NewBoltRepositoryManager opens (or creates) the bbolt file at path.
func NewBoltRepositoryManager(path string) (*BoltRepositoryManager, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}

	repo, err := accounts.NewBoltRepository(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltRepositoryManager{db: db, repo: repo}, nil
}

// RunMigrations is a no-op; buckets are created when the file is opened.
func (m *BoltRepositoryManager) RunMigrations(ctx context.Context) error { return nil }

func (m *BoltRepositoryManager) Accounts() accounts.Repository { return m.repo }

// WithinTx calls fn directly. Each repository call is already its own bbolt
// transaction.
func (m *BoltRepositoryManager) WithinTx(ctx context.Context, fn func(ctx context.Context, repo accounts.Repository) error) error {
	return fn(ctx, m.repo)
}

func (m *BoltRepositoryManager) Ping(ctx context.Context) error {
	return m.db.View(func(tx *bbolt.Tx) error { return nil })
}

func (m *BoltRepositoryManager) Close() error {
	return m.db.Close()
}
