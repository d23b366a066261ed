package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// SQLRepository stores accounts in the accounts table of a PostgreSQL, MySQL
// or SQLite database.
type SQLRepository struct {
	db      dbx.DBTX
	dialect dbx.Dialect
}

func NewSQLRepository(db dbx.DBTX, dialect dbx.Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect}
}

var _ Repository = (*SQLRepository)(nil)

func (r *SQLRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	query :=
		`SELECT email, password_hash, active_token FROM accounts
		 WHERE email = ?
		 `
	return r.findOne(ctx, query, email)
}

func (r *SQLRepository) FindByToken(ctx context.Context, token string) (*models.Account, error) {
	if token == "" {
		return nil, nil
	}
	query :=
		`SELECT email, password_hash, active_token FROM accounts
		 WHERE active_token = ?
		 `
	return r.findOne(ctx, query, token)
}

func (r *SQLRepository) findOne(ctx context.Context, query string, arg string) (*models.Account, error) {
	var (
		email, hash string
		token       sql.NullString
	)

	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), arg).Scan(&email, &hash, &token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return &models.Account{Email: email, PasswordHash: []byte(hash), ActiveToken: token.String}, nil
}

func (r *SQLRepository) Create(ctx context.Context, email string, passwordHash []byte) error {
	query :=
		`INSERT INTO accounts (email, password_hash)
		 VALUES (?, ?)
		 `

	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), email, string(passwordHash))
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrDuplicateEmail
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *SQLRepository) SetToken(ctx context.Context, email, token string) error {
	query :=
		`UPDATE accounts SET active_token = ?
		 WHERE email = ?
		 `

	if _, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), nullable(token), email); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *SQLRepository) SwapToken(ctx context.Context, email, expected, token string) (bool, error) {
	query :=
		`UPDATE accounts SET active_token = ?
		 WHERE email = ? AND active_token IS NULL
		 `
	args := []any{nullable(token), email}

	if expected != "" {
		query =
			`UPDATE accounts SET active_token = ?
			 WHERE email = ? AND active_token = ?
			 `
		args = append(args, expected)
	}

	return r.exec(ctx, query, args...)
}

func (r *SQLRepository) RevokeToken(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	query :=
		`UPDATE accounts SET active_token = NULL
		 WHERE active_token = ?
		 `
	return r.exec(ctx, query, token)
}

func (r *SQLRepository) DeleteByToken(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	query :=
		`DELETE FROM accounts
		 WHERE active_token = ?
		 `
	return r.exec(ctx, query, token)
}

func (r *SQLRepository) UpdatePasswordHash(ctx context.Context, email string, passwordHash []byte) error {
	query :=
		`UPDATE accounts SET password_hash = ?
		 WHERE email = ?
		 `

	if _, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), string(passwordHash), email); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

// exec runs a single-row mutation and reports whether a row was changed.
func (r *SQLRepository) exec(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return n > 0, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
