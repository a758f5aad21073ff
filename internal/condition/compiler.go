package condition

import (
	"errors"
	"strconv"
	"strings"

	"github.com/coregx/relmap/internal/dialects"
)

// Compiled is the result of compiling a list of groups.
type Compiled struct {
	// SQL is the boolean expression without a WHERE keyword, or "" when no
	// condition was given.
	SQL   string
	Binds *Binds
	// Next is the column index following the last compiled leaf.
	Next int
}

// Compiler compiles condition groups for one dialect.
type Compiler struct {
	Dialect dialects.Dialect
	Coercer Coercer
}

// NewCompiler returns a compiler for d using the default coercion formats.
func NewCompiler(d dialects.Dialect) *Compiler {
	return &Compiler{Dialect: d}
}

// Compile compiles groups into a fresh bind map, numbering columns from start.
func (c *Compiler) Compile(groups []Group, start int) (Compiled, error) {
	b := NewBinds()
	sql, next, err := c.Append(b, groups, start)
	if err != nil {
		return Compiled{}, err
	}
	return Compiled{SQL: sql, Binds: b, Next: next}, nil
}

// Append compiles groups adding binds to b. It returns the SQL expression and
// the next free column index.
//
// Each top-level group is parenthesized and joined to the previous group with
// its SetType. With more than one group the whole expression is wrapped in one
// more pair of parentheses.
func (c *Compiler) Append(b *Binds, groups []Group, start int) (string, int, error) {
	idx := start
	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		if g.Empty() {
			continue
		}
		sql, err := c.group(b, g, &idx)
		if err != nil {
			return "", start, err
		}
		if len(parts) > 0 {
			sql = g.SetType.sql() + " " + sql
		}
		parts = append(parts, sql)
	}

	switch len(parts) {
	case 0:
		return "", idx, nil
	case 1:
		return parts[0], idx, nil
	}
	return "(" + strings.Join(parts, " ") + ")", idx, nil
}

func (c *Compiler) group(b *Binds, g Group, idx *int) (string, error) {
	var sb strings.Builder
	sb.WriteByte('(')
	n := 0
	for _, cond := range g.Conditions {
		var (
			sql  string
			join Combinator
			err  error
		)
		switch v := cond.(type) {
		case Leaf:
			sql, err = c.leaf(b, v, *idx)
			*idx++
			join = g.Type
		case Group:
			if v.Empty() {
				continue
			}
			sql, err = c.group(b, v, idx)
			join = v.SetType
		default:
			continue
		}
		if err != nil {
			return "", err
		}
		if n > 0 {
			sb.WriteString(" " + join.sql() + " ")
		}
		sb.WriteString(sql)
		n++
	}
	sb.WriteByte(')')
	return sb.String(), nil
}

func (c *Compiler) leaf(b *Binds, l Leaf, idx int) (string, error) {
	column, token := SplitColumn(l.Column)
	if column == "" {
		return "", invalid(l.Column, token, "empty column")
	}

	value, err := c.Coercer.Coerce(l.Value)
	if err != nil {
		return "", &ValidationError{Column: column, Operator: token, Err: err}
	}
	op, err := Resolve(token, value)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			ve.Column = column
		}
		return "", err
	}

	col := dialects.Quote(c.Dialect, column)
	stem := Sanitize(column) + strconv.Itoa(idx)

	switch op {
	case OpIsNull, OpIsNotNull:
		return col + " " + string(op), nil

	case OpIn, OpNotIn:
		list := asList(value)
		if len(list) == 0 {
			if op == OpIn {
				return "0=1", nil
			}
			return "1=1", nil
		}
		return col + " " + string(op) + " (" + strings.Join(c.bindList(b, stem, list), ", ") + ")", nil

	case OpBetween:
		list := asList(value)
		if len(list) != 2 {
			return "", invalid(column, string(op), "BETWEEN requires exactly two values, got "+strconv.Itoa(len(list)))
		}
		names := c.bindList(b, stem, list)
		return col + " BETWEEN " + names[0] + " AND " + names[1], nil
	}

	name := b.Add(stem, value)
	return c.Dialect.Comparison(col, string(op), ":"+name), nil
}

func (c *Compiler) bindList(b *Binds, stem string, list []any) []string {
	out := make([]string, len(list))
	for i, v := range list {
		out[i] = ":" + b.Add(stem+"_"+strconv.Itoa(i), v)
	}
	return out
}

// SplitColumn separates a condition key into column and operator token.
// "status" yields ("status", ""), "status <" yields ("status", "<") and
// "status not in" yields ("status", "not in"). The trailing token is only
// taken as an operator when it could be one; "COALESCE(a, b)" stays whole.
func SplitColumn(key string) (column, token string) {
	fields := strings.Fields(key)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	}

	n := len(fields)
	if n > 2 && strings.EqualFold(fields[n-2], "not") && strings.EqualFold(fields[n-1], "in") {
		return strings.Join(fields[:n-2], " "), "not in"
	}
	last := fields[n-1]
	if strings.ContainsAny(last, "(),'\"") {
		return strings.Join(fields, " "), ""
	}
	return strings.Join(fields[:n-1], " "), last
}
