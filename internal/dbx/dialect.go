package dbx

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect describes how to talk to one SQL engine through database/sql.
type Dialect struct {
	// Name is the value accepted in configuration (DATABASE_TYPE).
	Name string
	// Driver is the database/sql driver name.
	Driver string
	// Goose is the dialect name understood by goose.SetDialect.
	Goose string
	// Numbered is true for engines that use $1, $2 placeholders.
	Numbered bool
}

var (
	Postgres = Dialect{Name: "postgres", Driver: "pgx", Goose: "postgres", Numbered: true}
	SQLite   = Dialect{Name: "sqlite", Driver: "sqlite", Goose: "sqlite3"}
	MySQL    = Dialect{Name: "mysql", Driver: "mysql", Goose: "mysql"}
)

// DialectFor resolves a configured database type. "postgresql" and "sqlite3"
// are accepted as aliases.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "mysql", "mariadb":
		return MySQL, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database type %q", name)
	}
}

// Rebind rewrites '?' placeholders into the dialect's native form. Queries
// are written with '?' everywhere; question marks inside quoted literals are
// left untouched.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
