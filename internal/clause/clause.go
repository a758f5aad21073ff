// Package clause renders SQL statements from a query description.
//
// The clause functions each take the SQL built so far and return it with one
// clause appended; an empty argument leaves the SQL unchanged. Assembler
// composes them in the canonical order SELECT, FROM, JOIN, WHERE, GROUP BY,
// HAVING, ORDER BY, LIMIT, OFFSET.
package clause

import (
	"strings"

	"github.com/coregx/relmap/internal/dialects"
)

// NoLimit marks an unset limit or offset.
const NoLimit = -1

// Join is one JOIN clause. Kind defaults to INNER.
type Join struct {
	Table string
	On    string
	Kind  string
}

// Order is one ORDER BY term.
type Order struct {
	Column    string
	Direction string
}

func appendPart(sql, part string) string {
	if part == "" {
		return sql
	}
	if sql == "" {
		return part
	}
	return sql + " " + part
}

// Select appends the SELECT list. Fields are emitted verbatim; none means *.
func Select(sql string, fields []string) string {
	if len(fields) == 0 {
		return appendPart(sql, "SELECT *")
	}
	return appendPart(sql, "SELECT "+strings.Join(fields, ", "))
}

// From appends FROM with the table quoted by d.
func From(sql string, d dialects.Dialect, table string) string {
	if table == "" {
		return sql
	}
	return appendPart(sql, "FROM "+dialects.Quote(d, table))
}

// Joins appends every join as "KIND JOIN table ON (on)".
func Joins(sql string, d dialects.Dialect, joins []Join) string {
	for _, j := range joins {
		kind := strings.ToUpper(strings.TrimSpace(j.Kind))
		if kind == "" {
			kind = "INNER"
		}
		part := kind + " JOIN " + dialects.Quote(d, j.Table)
		if j.On != "" {
			part += " ON (" + j.On + ")"
		}
		sql = appendPart(sql, part)
	}
	return sql
}

// Where appends WHERE with an already compiled condition.
func Where(sql, cond string) string {
	if cond == "" {
		return sql
	}
	return appendPart(sql, "WHERE "+cond)
}

// GroupBy appends GROUP BY. Columns are emitted verbatim.
func GroupBy(sql string, columns []string) string {
	if len(columns) == 0 {
		return sql
	}
	return appendPart(sql, "GROUP BY "+strings.Join(columns, ", "))
}

// Having appends HAVING with an already compiled condition.
func Having(sql, cond string) string {
	if cond == "" {
		return sql
	}
	return appendPart(sql, "HAVING "+cond)
}

// OrderBy appends ORDER BY. Known directions are upper-cased, anything else
// passes through unchanged.
func OrderBy(sql string, orders []Order) string {
	if len(orders) == 0 {
		return sql
	}
	terms := make([]string, 0, len(orders))
	for _, o := range orders {
		term := o.Column
		if dir := direction(o.Direction); dir != "" {
			term += " " + dir
		}
		terms = append(terms, term)
	}
	return appendPart(sql, "ORDER BY "+strings.Join(terms, ", "))
}

func direction(dir string) string {
	dir = strings.TrimSpace(dir)
	switch up := strings.ToUpper(dir); up {
	case "ASC", "DESC":
		return up
	}
	return dir
}

// Limit appends LIMIT when n is not negative.
func Limit(sql string, d dialects.Dialect, n int) string {
	return appendPart(sql, d.Limit(n))
}

// Offset appends OFFSET when both limit and offset are set.
func Offset(sql string, d dialects.Dialect, limit, offset int) string {
	if limit < 0 {
		return sql
	}
	return appendPart(sql, d.Offset(offset))
}
