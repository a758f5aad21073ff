package core

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	"github.com/coregx/relmap/internal/clause"
	"github.com/coregx/relmap/internal/condition"
	"github.com/coregx/relmap/internal/entity"
)

// Mapper reads and writes entities. A Mapper from DB.Mapper runs on the
// pool; one passed to a Transaction callback runs inside the transaction.
type Mapper struct {
	db *DB
	tx *sql.Tx
}

// NewMapper returns a mapper on db's pool.
func NewMapper(db *DB) *Mapper { return db.Mapper() }

func (m *Mapper) session() session { return session{db: m.db, tx: m.tx} }

// DB returns the underlying DB.
func (m *Mapper) DB() *DB { return m.db }

// InTx reports whether the mapper runs inside a transaction.
func (m *Mapper) InTx() bool { return m.tx != nil }

// Select starts a query for T selecting fields, or * when none are given.
func Select[T any](m *Mapper, fields ...string) Query[T] {
	q := newQuery[T](m)
	if len(fields) > 0 {
		q = q.Select(fields...)
	}
	return q.Snapshot()
}

// All starts a query for T matching every set.
func All[T any](m *Mapper, sets ...condition.Set) Query[T] {
	q := newQuery[T](m)
	for _, s := range sets {
		q = q.Where(s)
	}
	return q.Snapshot()
}

// First returns the first T matching sets, or ErrNotFound.
func First[T any](ctx context.Context, m *Mapper, sets ...condition.Set) (*T, error) {
	return All[T](m, sets...).Limit(1).First(ctx)
}

// Get returns the T whose primary key is id, or ErrNotFound.
func Get[T any](ctx context.Context, m *Mapper, id any) (*T, error) {
	q := newQuery[T](m)
	if q.err != nil {
		return nil, q.err
	}
	pk := q.meta.PrimaryKey()
	if pk == nil {
		return nil, fmt.Errorf("get %s: %w", q.meta.Datasource, entity.ErrMissingPrimaryKey)
	}
	return q.Where(condition.Map{pk.Column: id}).Limit(1).First(ctx)
}

// Create builds a T from column values and inserts it.
func Create[T any](ctx context.Context, m *Mapper, data map[string]any) (*T, error) {
	v := new(T)
	meta, err := m.db.entities.Meta(v)
	if err != nil {
		return nil, err
	}
	if err := meta.Assign(reflect.ValueOf(v), data); err != nil {
		return nil, err
	}
	if err := m.Insert(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// entityOf resolves the metadata of v, which must be a non-nil pointer to a
// struct.
func (m *Mapper) entityOf(v any) (*entity.Meta, reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, reflect.Value{}, fmt.Errorf("%w: want non-nil pointer to struct, got %T", entity.ErrInvalidEntity, v)
	}
	meta, err := m.db.entities.Meta(rv.Type())
	if err != nil {
		return nil, reflect.Value{}, err
	}
	return meta, rv, nil
}

// pkWhere returns the condition selecting v by primary key.
func pkWhere(meta *entity.Meta, rv reflect.Value) ([]condition.Group, error) {
	pk := meta.PrimaryKey()
	if pk == nil {
		return nil, fmt.Errorf("%s: %w", meta.Datasource, entity.ErrMissingPrimaryKey)
	}
	id, ok, err := meta.PrimaryValue(rv)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: primary key %s not set: %w", meta.Datasource, pk.Column, entity.ErrMissingPrimaryKey)
	}
	return []condition.Group{condition.Map{pk.Column: id}.ToGroup()}, nil
}

// Insert writes v, a pointer to an entity. A serial primary key left zero is
// generated by the database and stored back into v.
func (m *Mapper) Insert(ctx context.Context, v any) error {
	meta, rv, err := m.entityOf(v)
	if err != nil {
		return err
	}
	cols, vals, err := meta.Values(rv)
	if err != nil {
		return err
	}

	generated := generatedKey(meta, rv)
	st, err := m.db.assembler.Insert(meta.Datasource, cols, vals, generated)
	if err != nil {
		return err
	}
	return m.write(ctx, st, meta, rv, generated)
}

// generatedKey names the primary key column the database must generate for
// rv, or "" when the key is set or not serial.
func generatedKey(meta *entity.Meta, rv reflect.Value) string {
	pk := meta.PrimaryKey()
	if pk == nil || !pk.Serial {
		return ""
	}
	if _, set, _ := meta.PrimaryValue(rv); set {
		return ""
	}
	return pk.Column
}

// write runs an insert-like statement and stores the generated key, read
// through RETURNING or LastInsertId, back into rv.
func (m *Mapper) write(ctx context.Context, st clause.Statement, meta *entity.Meta, rv reflect.Value, generated string) error {
	if generated != "" && m.db.dialect.Returning(generated) != "" {
		rs, err := m.session().query(ctx, st, meta.Datasource, false)
		if err != nil {
			return err
		}
		if len(rs.rows) > 0 && len(rs.rows[0]) > 0 {
			return meta.SetPrimary(rv, rs.rows[0][0])
		}
		return nil
	}

	res, err := m.session().exec(ctx, st, meta.Datasource)
	if err != nil {
		return err
	}
	if generated != "" {
		if id, err := res.LastInsertId(); err == nil && id > 0 {
			return meta.SetPrimary(rv, id)
		}
	}
	return nil
}

// Update writes every non-key field of v, selected by primary key.
func (m *Mapper) Update(ctx context.Context, v any) error {
	meta, rv, err := m.entityOf(v)
	if err != nil {
		return err
	}
	cols := make([]string, 0, len(meta.Fields))
	for _, f := range meta.Fields {
		if !f.PrimaryKey {
			cols = append(cols, f.Column)
		}
	}
	return m.update(ctx, meta, rv, cols)
}

// UpdateFields writes only the given columns of v. No columns is a no-op.
func (m *Mapper) UpdateFields(ctx context.Context, v any, columns ...string) error {
	meta, rv, err := m.entityOf(v)
	if err != nil {
		return err
	}
	return m.update(ctx, meta, rv, columns)
}

func (m *Mapper) update(ctx context.Context, meta *entity.Meta, rv reflect.Value, columns []string) error {
	where, err := pkWhere(meta, rv)
	if err != nil {
		return err
	}

	cols := make([]string, 0, len(columns))
	vals := make([]any, 0, len(columns))
	for _, c := range columns {
		f, ok := meta.Field(c)
		if !ok {
			return fmt.Errorf("relmap: %s has no column %q", meta.Datasource, c)
		}
		if f.PrimaryKey {
			continue
		}
		dv, err := meta.ColumnValue(rv, f.Column)
		if err != nil {
			return err
		}
		cols = append(cols, f.Column)
		vals = append(vals, dv)
	}
	if len(cols) == 0 {
		return nil
	}

	st, err := m.db.assembler.Update(meta.Datasource, cols, vals, where)
	if err != nil {
		return err
	}
	_, err = m.session().exec(ctx, st, meta.Datasource)
	return err
}

// Save inserts v when its serial primary key is zero and updates it
// otherwise.
func (m *Mapper) Save(ctx context.Context, v any) error {
	meta, rv, err := m.entityOf(v)
	if err != nil {
		return err
	}
	pk := meta.PrimaryKey()
	if pk == nil {
		return m.Insert(ctx, v)
	}
	if _, set, _ := meta.PrimaryValue(rv); !set && pk.Serial {
		return m.Insert(ctx, v)
	}
	return m.Update(ctx, v)
}

// Upsert inserts v or, when a row with the same primary key exists, updates
// its other columns. A generated serial key is stored back into v as in Insert.
func (m *Mapper) Upsert(ctx context.Context, v any) error {
	meta, rv, err := m.entityOf(v)
	if err != nil {
		return err
	}
	pk := meta.PrimaryKey()
	if pk == nil {
		return fmt.Errorf("upsert %s: %w", meta.Datasource, entity.ErrMissingPrimaryKey)
	}
	cols, vals, err := meta.Values(rv)
	if err != nil {
		return err
	}
	generated := generatedKey(meta, rv)
	st, err := m.db.assembler.Upsert(meta.Datasource, cols, vals, []string{pk.Column}, generated)
	if err != nil {
		return err
	}
	return m.write(ctx, st, meta, rv, generated)
}

// Delete removes the row of v by primary key. ErrNotFound is returned when no
// row matched.
func (m *Mapper) Delete(ctx context.Context, v any) error {
	meta, rv, err := m.entityOf(v)
	if err != nil {
		return err
	}
	where, err := pkWhere(meta, rv)
	if err != nil {
		return err
	}
	n, err := m.deleteWhere(ctx, meta, where)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWhere removes the rows of the entity type of proto matching every
// set and returns how many were removed. No sets removes every row.
func (m *Mapper) DeleteWhere(ctx context.Context, proto any, sets ...condition.Set) (int64, error) {
	meta, err := m.db.entities.Meta(proto)
	if err != nil {
		return 0, err
	}
	where := make([]condition.Group, 0, len(sets))
	for _, s := range sets {
		where = append(where, toGroup(s, condition.And))
	}
	return m.deleteWhere(ctx, meta, where)
}

func (m *Mapper) deleteWhere(ctx context.Context, meta *entity.Meta, where []condition.Group) (int64, error) {
	st, err := m.db.assembler.Delete(meta.Datasource, where)
	if err != nil {
		return 0, err
	}
	res, err := m.session().exec(ctx, st, meta.Datasource)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &AdapterError{Op: "exec", SQL: st.SQL, Err: err}
	}
	return n, nil
}
