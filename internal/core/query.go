package core

import (
	"context"
	"slices"
	"sync"

	"github.com/coregx/relmap/internal/clause"
	"github.com/coregx/relmap/internal/condition"
	"github.com/coregx/relmap/internal/entity"
)

// descriptor is the state of a query. Its slices are never modified in
// place, so descriptors may share backing arrays.
type descriptor struct {
	fields []string
	where  []condition.Group
	joins  []clause.Join
	group  []string
	having []condition.Group
	order  []clause.Order
	limit  int
	offset int
}

func emptyDescriptor() descriptor {
	return descriptor{limit: clause.NoLimit, offset: clause.NoLimit}
}

func (d descriptor) parts(table string) clause.Parts {
	return clause.Parts{
		Table:   table,
		Fields:  d.fields,
		Joins:   d.joins,
		Where:   d.where,
		GroupBy: d.group,
		Having:  d.having,
		Order:   d.order,
		Limit:   d.limit,
		Offset:  d.offset,
	}
}

// add appends to a copy of s.
func add[E any](s []E, v ...E) []E {
	return append(slices.Clip(s), v...)
}

type memo[T any] struct {
	mu      sync.Mutex
	result  *Collection[T]
	count   int64
	counted bool
}

// Query selects entities of type T. It is an immutable value: every
// refinement returns a new Query and leaves the receiver unchanged, so a
// query can be shared and refined from several places.
//
// Execute and Count are memoized per value. Calling them again on the same
// value returns the cached result without touching the database.
type Query[T any] struct {
	mapper *Mapper
	meta   *entity.Meta
	err    error

	state descriptor
	base  descriptor
	memo  *memo[T]
}

func newQuery[T any](m *Mapper) Query[T] {
	q := Query[T]{mapper: m, state: emptyDescriptor(), base: emptyDescriptor(), memo: &memo[T]{}}
	var zero T
	q.meta, q.err = m.db.entities.Meta(&zero)
	return q
}

// derive applies fn to a copy of q with an empty memo.
func (q Query[T]) derive(fn func(d *descriptor)) Query[T] {
	fn(&q.state)
	q.memo = &memo[T]{}
	return q
}

// Datasource returns the table the query reads.
func (q Query[T]) Datasource() string {
	if q.meta == nil {
		return ""
	}
	return q.meta.Datasource
}

// Select replaces the selected fields. No fields selects *.
func (q Query[T]) Select(fields ...string) Query[T] {
	return q.derive(func(d *descriptor) { d.fields = slices.Clone(fields) })
}

// Where adds a condition group AND-ed onto the previous groups.
func (q Query[T]) Where(set condition.Set) Query[T] {
	return q.derive(func(d *descriptor) { d.where = add(d.where, toGroup(set, condition.And)) })
}

// OrWhere adds a condition group OR-ed onto the previous groups.
func (q Query[T]) OrWhere(set condition.Set) Query[T] {
	return q.derive(func(d *descriptor) { d.where = add(d.where, toGroup(set, condition.Or)) })
}

// Having adds a HAVING group, AND-ed onto earlier ones. Having binds are
// numbered after the WHERE binds.
func (q Query[T]) Having(set condition.Set) Query[T] {
	return q.derive(func(d *descriptor) { d.having = add(d.having, toGroup(set, condition.And)) })
}

func toGroup(set condition.Set, setType condition.Combinator) condition.Group {
	g := set.ToGroup().Clone()
	g.SetType = setType
	if g.Type == "" {
		g.Type = condition.And
	}
	return g
}

// Join adds a join of the given kind (INNER, LEFT, RIGHT, ...). on is raw SQL.
func (q Query[T]) Join(table, on, kind string) Query[T] {
	return q.derive(func(d *descriptor) {
		d.joins = add(d.joins, clause.Join{Table: table, On: on, Kind: kind})
	})
}

// InnerJoin adds an INNER JOIN.
func (q Query[T]) InnerJoin(table, on string) Query[T] { return q.Join(table, on, "INNER") }

// LeftJoin adds a LEFT JOIN.
func (q Query[T]) LeftJoin(table, on string) Query[T] { return q.Join(table, on, "LEFT") }

// Group replaces the GROUP BY columns.
func (q Query[T]) Group(columns ...string) Query[T] {
	return q.derive(func(d *descriptor) { d.group = slices.Clone(columns) })
}

// Order adds an ORDER BY term. direction is ASC, DESC or empty.
func (q Query[T]) Order(column, direction string) Query[T] {
	return q.derive(func(d *descriptor) {
		d.order = add(d.order, clause.Order{Column: column, Direction: direction})
	})
}

// Limit sets the row limit. A negative n removes it.
func (q Query[T]) Limit(n int) Query[T] {
	return q.derive(func(d *descriptor) { d.limit = max(n, clause.NoLimit) })
}

// Offset sets the row offset. It only applies together with a limit. A
// negative n removes it.
func (q Query[T]) Offset(n int) Query[T] {
	return q.derive(func(d *descriptor) { d.offset = max(n, clause.NoLimit) })
}

// Snapshot returns a query whose Reset returns to the current state.
func (q Query[T]) Snapshot() Query[T] {
	q.base = q.state
	return q
}

// Reset returns to the last snapshot, or to the state the query was created
// with when no snapshot was taken.
func (q Query[T]) Reset() Query[T] {
	q.state = q.base
	q.memo = &memo[T]{}
	return q
}

// ResetHard clears conditions, joins, grouping, having, ordering and paging
// along with the snapshot. The selected fields are kept.
func (q Query[T]) ResetHard() Query[T] {
	d := emptyDescriptor()
	d.fields = q.state.fields
	q.state, q.base = d, d
	q.memo = &memo[T]{}
	return q
}

// Statement compiles the SELECT without executing it.
func (q Query[T]) Statement() (clause.Statement, error) {
	if q.err != nil {
		return clause.Statement{}, q.err
	}
	return q.mapper.db.assembler.Select(q.state.parts(q.meta.Datasource))
}

// CountStatement compiles the COUNT variant without executing it.
func (q Query[T]) CountStatement() (clause.Statement, error) {
	if q.err != nil {
		return clause.Statement{}, q.err
	}
	return q.mapper.db.assembler.Count(q.state.parts(q.meta.Datasource))
}

// Execute runs the query and returns the hydrated collection.
func (q Query[T]) Execute(ctx context.Context) (*Collection[T], error) {
	m := q.memo
	if m == nil {
		m = &memo[T]{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.result != nil {
		return m.result, nil
	}

	st, err := q.Statement()
	if err != nil {
		return nil, err
	}
	rs, err := q.mapper.session().query(ctx, st, q.meta.Datasource, q.state.limit == 1)
	if err != nil {
		return nil, err
	}
	coll, err := hydrate[T](q.meta, rs)
	if err != nil {
		return nil, err
	}
	m.result = coll
	return coll, nil
}

// Count runs SELECT COUNT(*) over the query's rows. Ordering and paging
// are ignored; a grouped query counts its groups.
func (q Query[T]) Count(ctx context.Context) (int64, error) {
	m := q.memo
	if m == nil {
		m = &memo[T]{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counted {
		return m.count, nil
	}

	st, err := q.CountStatement()
	if err != nil {
		return 0, err
	}
	rs, err := q.mapper.session().query(ctx, st, q.meta.Datasource, false)
	if err != nil {
		return 0, err
	}
	var n int64
	if len(rs.rows) > 0 && len(rs.rows[0]) > 0 {
		if n, err = entity.ToInt64(rs.rows[0][0]); err != nil {
			return 0, &AdapterError{Op: "scan", SQL: st.SQL, Err: err}
		}
	}
	m.count, m.counted = n, true
	return n, nil
}

// First returns the first entity, or ErrNotFound.
func (q Query[T]) First(ctx context.Context) (*T, error) {
	coll, err := q.Execute(ctx)
	if err != nil {
		return nil, err
	}
	if v := coll.First(); v != nil {
		return v, nil
	}
	return nil, ErrNotFound
}

// ToSlice returns the executed entities.
func (q Query[T]) ToSlice(ctx context.Context) ([]*T, error) {
	coll, err := q.Execute(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Items(), nil
}

// Map applies fn to every executed entity.
func (q Query[T]) Map(ctx context.Context, fn func(*T) any) ([]any, error) {
	coll, err := q.Execute(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Map(fn), nil
}

// Filter returns the executed entities for which keep is true.
func (q Query[T]) Filter(ctx context.Context, keep func(*T) bool) (*Collection[T], error) {
	coll, err := q.Execute(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Filter(keep), nil
}
