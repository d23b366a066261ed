package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_Memory(t *testing.T) {
	m, err := Open(context.Background(), Options{Type: "memory"}, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	_, ok := m.(*InMemoryRepositoryManager)
	assert.True(t, ok)
	require.NoError(t, m.Accounts().Create(context.Background(), "a@x.com", []byte("h")))
}

func TestOpen_Bolt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "auth.bolt")

	m, err := Open(context.Background(), Options{Type: "bolt", DSN: path}, logging.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, m.Accounts().Create(ctx, "a@x.com", []byte("h")))
	require.NoError(t, m.Close())

	reopened, err := Open(ctx, Options{Type: "bolt", DSN: path}, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	a, err := reopened.Accounts().FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, a, "bolt data must survive reopen")
}

func TestOpen_SQLiteRunsMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "auth_system.db")
	ctx := context.Background()

	m, err := Open(ctx, Options{Type: "sqlite", DSN: path}, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	repo := m.Accounts()
	require.NoError(t, repo.Create(ctx, "a@x.com", []byte("h")))

	err = m.WithinTx(ctx, func(ctx context.Context, tx accountsRepo) error {
		return tx.SetToken(ctx, "a@x.com", "tok")
	})
	require.NoError(t, err)

	a, err := repo.FindByToken(ctx, "tok")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "a@x.com", a.Email)
}

func TestOpen_UnknownType(t *testing.T) {
	_, err := Open(context.Background(), Options{Type: "oracle"}, logging.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")
}

func TestOpen_RetriesPingThenFails(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectClose()

	orig := sqlOpen
	sqlOpen = func(driverName, dsn string) (*sql.DB, error) {
		if driverName != "pgx" {
			return nil, errors.New("unexpected driver " + driverName)
		}
		return db, nil
	}
	defer func() { sqlOpen = orig }()

	_, err = Open(context.Background(), Options{
		Type:           "postgres",
		DSN:            "postgres://u:p@localhost/db",
		ConnectRetries: 2,
		ConnectBackoff: time.Millisecond,
	}, logging.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db ping error")
	assert.Contains(t, err.Error(), "connection refused")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_RetriesPingThenSucceeds(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectPing().WillReturnError(errors.New("starting up"))
	mock.ExpectPing()

	origOpen, origGoose := sqlOpen, gooseUpContext
	sqlOpen = func(driverName, dsn string) (*sql.DB, error) { return db, nil }
	gooseUpContext = noopGoose
	defer func() { sqlOpen, gooseUpContext = origOpen, origGoose }()

	m, err := Open(context.Background(), Options{
		Type:           "postgres",
		DSN:            "postgres://u:p@localhost/db",
		ConnectRetries: 3,
		ConnectBackoff: time.Millisecond,
	}, logging.Nop())
	require.NoError(t, err)
	assert.IsType(t, &SQLRepositoryManager{}, m)
}

func TestDriverDSN(t *testing.T) {
	dir := t.TempDir()

	got, err := driverDSN(dbx.SQLite, filepath.Join(dir, "a.db"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "file://"+filepath.ToSlash(filepath.Join(dir, "a.db"))+"?"))
	assert.Contains(t, got, "busy_timeout(5000)")
	assert.Contains(t, got, "_txlock=immediate")

	got, err = driverDSN(dbx.SQLite, filepath.Join(dir, "odd?name#1.db"))
	require.NoError(t, err)
	assert.Contains(t, got, "odd%3Fname%231.db?")
	assert.Equal(t, 1, strings.Count(got, "?"))

	got, err = driverDSN(dbx.SQLite, "file:custom.db?mode=ro")
	require.NoError(t, err)
	assert.Equal(t, "file:custom.db?mode=ro", got)

	got, err = driverDSN(dbx.MySQL, "user:pass@tcp(db:3306)/auth")
	require.NoError(t, err)
	assert.Contains(t, got, "parseTime=true")
	assert.Contains(t, got, "tcp(db:3306)/auth")

	_, err = driverDSN(dbx.MySQL, "user:pass@tcp(db:3306")
	require.Error(t, err)

	got, err = driverDSN(dbx.Postgres, "postgres://u:p@h/db")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@h/db", got)
}

func TestOpen_SQLitePathWithURIMetacharacters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "odd?name#1.db")
	ctx := context.Background()

	m, err := Open(ctx, Options{Type: "sqlite", DSN: path}, logging.Nop())
	require.NoError(t, err)
	require.NoError(t, m.Accounts().Create(ctx, "a@x.com", []byte("h")))
	require.NoError(t, m.Close())

	_, err = os.Stat(path)
	require.NoError(t, err, "database must be created at the literal path")

	reopened, err := Open(ctx, Options{Type: "sqlite", DSN: path}, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	a, err := reopened.Accounts().FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.NotNil(t, a)
}

func TestOpen_SQLiteSerializesReadThenWriteTx(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth_system.db")
	ctx := context.Background()

	m, err := Open(ctx, Options{Type: "sqlite", DSN: path}, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			email := fmt.Sprintf("u%d@x.com", i)
			errs <- m.WithinTx(ctx, func(ctx context.Context, repo accountsRepo) error {
				existing, err := repo.FindByEmail(ctx, email)
				if err != nil {
					return err
				}
				if existing != nil {
					return errors.New("unexpected account")
				}
				return repo.Create(ctx, email, []byte("h"))
			})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	for i := 0; i < n; i++ {
		a, err := m.Accounts().FindByEmail(ctx, fmt.Sprintf("u%d@x.com", i))
		require.NoError(t, err)
		require.NotNil(t, a)
	}
}
