// Package migrations embeds the goose SQL migrations for the accounts schema.
// The statements are kept portable across PostgreSQL, MySQL and SQLite.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
