package clause

import (
	"errors"
	"fmt"
	"strings"

	"github.com/coregx/relmap/internal/condition"
	"github.com/coregx/relmap/internal/dialects"
)

// ErrNoColumns is returned when a write statement has nothing to write.
var ErrNoColumns = errors.New("relmap: no columns to write")

// Parts describes a SELECT. Limit and Offset use NoLimit when unset.
type Parts struct {
	Table   string
	Fields  []string
	Joins   []Join
	Where   []condition.Group
	GroupBy []string
	Having  []condition.Group
	Order   []Order
	Limit   int
	Offset  int
}

// NewParts returns Parts for table with limit and offset unset.
func NewParts(table string) Parts {
	return Parts{Table: table, Limit: NoLimit, Offset: NoLimit}
}

// Assembler builds complete statements for one dialect.
type Assembler struct {
	Dialect  dialects.Dialect
	Compiler *condition.Compiler
}

// NewAssembler returns an assembler for d.
func NewAssembler(d dialects.Dialect, coercer condition.Coercer) *Assembler {
	return &Assembler{
		Dialect:  d,
		Compiler: &condition.Compiler{Dialect: d, Coercer: coercer},
	}
}

// Select assembles a SELECT. HAVING binds continue the WHERE column index so
// that names never collide.
func (a *Assembler) Select(p Parts) (Statement, error) {
	b := condition.NewBinds()
	sql, err := a.selectSQL(b, p, p.Fields, true)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: sql, Binds: b}, nil
}

func (a *Assembler) selectSQL(b *condition.Binds, p Parts, fields []string, paging bool) (string, error) {
	where, next, err := a.Compiler.Append(b, p.Where, 0)
	if err != nil {
		return "", err
	}
	having, _, err := a.Compiler.Append(b, p.Having, next)
	if err != nil {
		return "", err
	}

	sql := Select("", fields)
	sql = From(sql, a.Dialect, p.Table)
	sql = Joins(sql, a.Dialect, p.Joins)
	sql = Where(sql, where)
	sql = GroupBy(sql, p.GroupBy)
	sql = Having(sql, having)
	if paging {
		sql = OrderBy(sql, p.Order)
		sql = Limit(sql, a.Dialect, p.Limit)
		sql = Offset(sql, a.Dialect, p.Limit, p.Offset)
	}
	return sql, nil
}

// Count assembles a SELECT COUNT(*) over the same rows. Order, limit and
// offset are dropped. A grouped query, or one with HAVING, is wrapped so the
// result is the number of rows the query itself returns.
func (a *Assembler) Count(p Parts) (Statement, error) {
	b := condition.NewBinds()
	if len(p.GroupBy) == 0 && len(p.Having) == 0 {
		sql, err := a.selectSQL(b, p, []string{"COUNT(*)"}, false)
		if err != nil {
			return Statement{}, err
		}
		return Statement{SQL: sql, Binds: b}, nil
	}

	fields := p.Fields
	if len(fields) == 0 {
		fields = p.GroupBy
	}
	inner, err := a.selectSQL(b, p, fields, false)
	if err != nil {
		return Statement{}, err
	}
	sql := fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS %s", inner, a.Dialect.QuoteIdentifier("relmap_count"))
	return Statement{SQL: sql, Binds: b}, nil
}

// Insert assembles an INSERT of columns/values. returning names the generated
// key column for dialects that report it through RETURNING.
func (a *Assembler) Insert(table string, columns []string, values []any, returning string) (Statement, error) {
	if len(columns) != len(values) {
		return Statement{}, fmt.Errorf("relmap: insert into %s: %d columns, %d values", table, len(columns), len(values))
	}

	b := condition.NewBinds()
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(dialects.Quote(a.Dialect, table))

	if len(columns) == 0 {
		if a.Dialect.Name() == "mysql" {
			sb.WriteString(" () VALUES ()")
		} else {
			sb.WriteString(" DEFAULT VALUES")
		}
	} else {
		cols, params := a.dataBinds(b, columns, values)
		sb.WriteString(" (" + strings.Join(cols, ", ") + ")")
		sb.WriteString(" VALUES (" + strings.Join(params, ", ") + ")")
	}
	sb.WriteString(a.Dialect.Returning(returning))
	return Statement{SQL: sb.String(), Binds: b}, nil
}

// Upsert assembles an INSERT that updates the non-conflict columns when a row
// with the same conflict columns exists. returning is used as in Insert.
func (a *Assembler) Upsert(table string, columns []string, values []any, conflict []string, returning string) (Statement, error) {
	if len(columns) == 0 {
		return Statement{}, fmt.Errorf("upsert into %s: %w", table, ErrNoColumns)
	}
	st, err := a.Insert(table, columns, values, "")
	if err != nil {
		return Statement{}, err
	}

	skip := make(map[string]bool, len(conflict))
	for _, c := range conflict {
		skip[c] = true
	}
	update := make([]string, 0, len(columns))
	for _, c := range columns {
		if !skip[c] {
			update = append(update, c)
		}
	}
	st.SQL += a.Dialect.UpsertSQL(table, conflict, update) + a.Dialect.Returning(returning)
	return st, nil
}

// Update assembles an UPDATE. Condition binds are numbered after the data
// binds.
func (a *Assembler) Update(table string, columns []string, values []any, where []condition.Group) (Statement, error) {
	if len(columns) == 0 {
		return Statement{}, fmt.Errorf("update %s: %w", table, ErrNoColumns)
	}
	if len(columns) != len(values) {
		return Statement{}, fmt.Errorf("relmap: update %s: %d columns, %d values", table, len(columns), len(values))
	}

	b := condition.NewBinds()
	cols, params := a.dataBinds(b, columns, values)
	sets := make([]string, len(cols))
	for i := range cols {
		sets[i] = cols[i] + " = " + params[i]
	}
	cond, _, err := a.Compiler.Append(b, where, len(columns))
	if err != nil {
		return Statement{}, err
	}

	sql := "UPDATE " + dialects.Quote(a.Dialect, table) + " SET " + strings.Join(sets, ", ")
	return Statement{SQL: Where(sql, cond), Binds: b}, nil
}

// Delete assembles a DELETE. No conditions deletes every row.
func (a *Assembler) Delete(table string, where []condition.Group) (Statement, error) {
	b := condition.NewBinds()
	cond, _, err := a.Compiler.Append(b, where, 0)
	if err != nil {
		return Statement{}, err
	}
	sql := "DELETE FROM " + dialects.Quote(a.Dialect, table)
	return Statement{SQL: Where(sql, cond), Binds: b}, nil
}

func (a *Assembler) dataBinds(b *condition.Binds, columns []string, values []any) (cols, params []string) {
	cols = make([]string, len(columns))
	params = make([]string, len(columns))
	for i, c := range columns {
		cols[i] = dialects.Quote(a.Dialect, c)
		params[i] = ":" + b.Add(condition.Sanitize(c), values[i])
	}
	return cols, params
}
