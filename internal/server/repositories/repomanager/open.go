package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/filex"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/go-sql-driver/mysql"
	"github.com/sethvargo/go-retry"
)

const (
	TypeMemory = "memory"
	TypeBolt   = "bolt"
)

// Options selects and tunes the storage backend.
type Options struct {
	// Type is memory, bolt, sqlite, postgres or mysql.
	Type string
	// DSN is a connection string for client-server databases or a file path
	// for sqlite and bolt.
	DSN string
	// ConnectRetries bounds how many times the first ping is retried.
	ConnectRetries uint64
	// ConnectBackoff is the initial delay between pings; it doubles each try.
	ConnectBackoff time.Duration
}

// sqliteParams apply to every sqlite connection. Transactions take the
// write lock up front, so a read-then-write transaction waits on
// busy_timeout instead of failing with SQLITE_BUSY when it upgrades.
const sqliteParams = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"

// sqlOpen is a seam for tests.
var sqlOpen = sql.Open

// Open builds the RepositoryManager for opts, waits for the backend to
// answer and runs migrations.
func Open(ctx context.Context, opts Options, logger logging.Logger) (RepositoryManager, error) {
	log := logger.With("module", "repomanager", "backend", opts.Type)

	var (
		m   RepositoryManager
		err error
	)

	switch strings.ToLower(strings.TrimSpace(opts.Type)) {
	case TypeMemory:
		m = NewInMemoryRepositoryManager()
	case TypeBolt:
		m, err = openBolt(opts.DSN)
	default:
		m, err = openSQL(opts)
	}
	if err != nil {
		return nil, err
	}

	if err := waitForBackend(ctx, m, opts, log); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	if err := m.RunMigrations(ctx); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	log.Info(ctx, "storage ready")
	return m, nil
}

func openBolt(path string) (RepositoryManager, error) {
	abs, err := filex.EnsureParentDir(path)
	if err != nil {
		return nil, err
	}
	return NewBoltRepositoryManager(abs)
}

func openSQL(opts Options) (RepositoryManager, error) {
	dialect, err := dbx.DialectFor(opts.Type)
	if err != nil {
		return nil, err
	}

	dsn, err := driverDSN(dialect, opts.DSN)
	if err != nil {
		return nil, err
	}

	db, err := sqlOpen(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	return NewSQLRepositoryManager(db, dialect), nil
}

// driverDSN turns the configured DSN into what the driver expects.
func driverDSN(dialect dbx.Dialect, dsn string) (string, error) {
	switch dialect {
	case dbx.SQLite:
		path := strings.TrimPrefix(dsn, "sqlite://")
		if strings.HasPrefix(path, "file:") {
			return path, nil
		}
		abs, err := filex.EnsureParentDir(path)
		if err != nil {
			return "", err
		}
		u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: sqliteParams}
		return u.String(), nil
	case dbx.MySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	default:
		return dsn, nil
	}
}

func waitForBackend(ctx context.Context, m RepositoryManager, opts Options, log logging.Logger) error {
	backoff := opts.ConnectBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	b := retry.WithMaxRetries(opts.ConnectRetries, retry.NewExponential(backoff))

	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := m.Ping(ctx); err != nil {
			log.Warn(ctx, "storage not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}
