//go:build integration

package repomanager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgresContainer starts a PostgreSQL container for testing.
func startPostgresContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("auth"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

func TestPostgres_OpenMigrateAndUse(t *testing.T) {
	dsn := startPostgresContainer(t)
	ctx := context.Background()

	m, err := Open(ctx, Options{Type: "postgres", DSN: dsn, ConnectRetries: 5, ConnectBackoff: 200 * time.Millisecond}, logging.Nop())
	require.NoError(t, err)
	defer m.Close()

	// migrations are idempotent
	require.NoError(t, m.RunMigrations(ctx))

	repo := m.Accounts()
	require.NoError(t, repo.Create(ctx, "a@x.com", []byte("hash")))
	require.ErrorIs(t, repo.Create(ctx, "a@x.com", []byte("hash")), common.ErrDuplicateEmail)

	ok, err := repo.SwapToken(ctx, "a@x.com", "", "t1")
	require.NoError(t, err)
	require.True(t, ok)

	a, err := repo.FindByToken(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "a@x.com", a.Email)

	deleted, err := repo.DeleteByToken(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, deleted)

	a, err = repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestPostgres_ConcurrentSwapHasOneWinner(t *testing.T) {
	dsn := startPostgresContainer(t)
	ctx := context.Background()

	m, err := Open(ctx, Options{Type: "postgres", DSN: dsn, ConnectRetries: 5}, logging.Nop())
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Accounts().Create(ctx, "a@x.com", []byte("hash")))

	const n = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := m.Accounts().SwapToken(ctx, "a@x.com", "", string(rune('a'+i)))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestPostgres_WithinTxRollsBack(t *testing.T) {
	dsn := startPostgresContainer(t)
	ctx := context.Background()

	m, err := Open(ctx, Options{Type: "postgres", DSN: dsn}, logging.Nop())
	require.NoError(t, err)
	defer m.Close()

	err = m.WithinTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		if err := repo.Create(ctx, "a@x.com", []byte("hash")); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	a, err := m.Accounts().FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Nil(t, a)
}
