package dialects

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// mysqlNoSuchTable is ER_NO_SUCH_TABLE.
const mysqlNoSuchTable = 1146

// MySQLDialect implements MySQL-specific SQL dialect.
type MySQLDialect struct{}

// Name returns "mysql".
func (d *MySQLDialect) Name() string { return "mysql" }

// QuoteIdentifier quotes a MySQL identifier using backticks.
func (d *MySQLDialect) QuoteIdentifier(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// Placeholder returns MySQL placeholder format (always "?").
func (d *MySQLDialect) Placeholder(_ int) string {
	return "?"
}

// Comparison renders MATCH as MATCH ... AGAINST and everything else as a
// binary operator.
func (d *MySQLDialect) Comparison(column, operator, placeholder string) string {
	if operator == "MATCH" {
		return fmt.Sprintf("MATCH(%s) AGAINST(%s)", column, placeholder)
	}
	return binaryComparison(column, operator, placeholder)
}

func (d *MySQLDialect) Limit(n int) string  { return limitClause(n) }
func (d *MySQLDialect) Offset(n int) string { return offsetClause(n) }

// Returning is empty: MySQL reports generated keys through LastInsertId.
func (d *MySQLDialect) Returning(_ string) string { return "" }

// UpsertSQL generates MySQL UPSERT syntax using ON DUPLICATE KEY UPDATE.
// MySQL has no DO NOTHING, so a no-op update of the first conflict column is
// used when there is nothing to update.
func (d *MySQLDialect) UpsertSQL(_ string, conflict, update []string) string {
	if len(update) == 0 {
		if len(conflict) == 0 {
			return ""
		}
		c := Quote(d, conflict[0])
		return fmt.Sprintf(" ON DUPLICATE KEY UPDATE %s = %s", c, c)
	}

	cols := quoteAll(d, update)
	updates := make([]string, len(cols))
	for i, col := range cols {
		updates[i] = fmt.Sprintf("%s = VALUES(%s)", col, col)
	}
	return " ON DUPLICATE KEY UPDATE " + strings.Join(updates, ", ")
}

// IsUndefinedTable reports ER_NO_SUCH_TABLE.
func (d *MySQLDialect) IsUndefinedTable(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlNoSuchTable
	}
	return false
}
