package dialects

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// pgUndefinedTable is SQLSTATE undefined_table.
const pgUndefinedTable = "42P01"

// PostgresDialect implements PostgreSQL-specific SQL dialect. It serves the
// lib/pq ("postgres") and pgx stdlib ("pgx") drivers.
type PostgresDialect struct{}

// Name returns "postgres".
func (d *PostgresDialect) Name() string { return "postgres" }

// QuoteIdentifier quotes a PostgreSQL identifier using double quotes.
func (d *PostgresDialect) QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Placeholder returns PostgreSQL placeholder format ($1, $2, etc.).
func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

// Comparison maps REGEXP to ~ and MATCH to a tsvector query.
func (d *PostgresDialect) Comparison(column, operator, placeholder string) string {
	switch operator {
	case "REGEXP":
		return binaryComparison(column, "~", placeholder)
	case "MATCH":
		return fmt.Sprintf("to_tsvector(%s) @@ plainto_tsquery(%s)", column, placeholder)
	}
	return binaryComparison(column, operator, placeholder)
}

func (d *PostgresDialect) Limit(n int) string  { return limitClause(n) }
func (d *PostgresDialect) Offset(n int) string { return offsetClause(n) }

// Returning returns a RETURNING clause; lib/pq does not support LastInsertId.
func (d *PostgresDialect) Returning(column string) string {
	if column == "" {
		return ""
	}
	return " RETURNING " + Quote(d, column)
}

// UpsertSQL generates PostgreSQL UPSERT syntax using ON CONFLICT.
func (d *PostgresDialect) UpsertSQL(_ string, conflict, update []string) string {
	return onConflict(d, conflict, update, "EXCLUDED")
}

// IsUndefinedTable recognizes SQLSTATE 42P01 from lib/pq and pgx.
func (d *PostgresDialect) IsUndefinedTable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUndefinedTable
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUndefinedTable
	}
	return false
}

// onConflict is shared by PostgreSQL and SQLite, which differ only in the
// spelling of the excluded pseudo-table.
func onConflict(d Dialect, conflict, update []string, excluded string) string {
	target := ""
	if len(conflict) > 0 {
		target = " (" + strings.Join(quoteAll(d, conflict), ", ") + ")"
	}
	if len(update) == 0 {
		return " ON CONFLICT" + target + " DO NOTHING"
	}

	cols := quoteAll(d, update)
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = fmt.Sprintf("%s = %s.%s", col, excluded, col)
	}
	return " ON CONFLICT" + target + " DO UPDATE SET " + strings.Join(parts, ", ")
}
