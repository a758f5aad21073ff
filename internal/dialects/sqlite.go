package dialects

import (
	"strings"
)

// SQLiteDialect implements SQLite-specific SQL dialect. It serves both the
// modernc.org/sqlite ("sqlite") and mattn/go-sqlite3 ("sqlite3") drivers.
type SQLiteDialect struct{}

// Name returns "sqlite".
func (d *SQLiteDialect) Name() string { return "sqlite" }

// QuoteIdentifier quotes a SQLite identifier using double quotes.
func (d *SQLiteDialect) QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Placeholder returns SQLite placeholder format (always "?").
func (d *SQLiteDialect) Placeholder(_ int) string {
	return "?"
}

// Comparison renders REGEXP and MATCH natively; MATCH requires an FTS table.
func (d *SQLiteDialect) Comparison(column, operator, placeholder string) string {
	return binaryComparison(column, operator, placeholder)
}

func (d *SQLiteDialect) Limit(n int) string  { return limitClause(n) }
func (d *SQLiteDialect) Offset(n int) string { return offsetClause(n) }

// Returning is empty: both SQLite drivers implement LastInsertId.
func (d *SQLiteDialect) Returning(_ string) string { return "" }

// UpsertSQL generates SQLite UPSERT syntax using ON CONFLICT.
func (d *SQLiteDialect) UpsertSQL(_ string, conflict, update []string) string {
	return onConflict(d, conflict, update, "excluded")
}

// IsUndefinedTable matches the "no such table" message. Neither driver
// exposes a dedicated result code for it.
func (d *SQLiteDialect) IsUndefinedTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
