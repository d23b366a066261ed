package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/accounts"
	"github.com/pressly/goose/v3"
)

type accountsRepo = accounts.Repository

func noopGoose(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return nil
}
