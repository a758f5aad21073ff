package core

import (
	"context"
	"database/sql"

	"github.com/coregx/relmap/internal/clause"
)

// Raw runs hand written SQL with :name placeholders and hydrates the rows
// into T. {{table}} and [[column]] markers are quoted for the dialect.
func Raw[T any](ctx context.Context, m *Mapper, sqlText string, params map[string]any) (*Collection[T], error) {
	var zero T
	meta, err := m.db.entities.Meta(&zero)
	if err != nil {
		return nil, err
	}
	st, err := m.guard(ctx, clause.Raw(sqlText, params))
	if err != nil {
		return nil, err
	}
	rs, err := m.session().query(ctx, st, meta.Datasource, false)
	if err != nil {
		return nil, err
	}
	return hydrate[T](meta, rs)
}

// Exec runs a hand written statement with :name placeholders.
func (m *Mapper) Exec(ctx context.Context, sqlText string, params map[string]any) (sql.Result, error) {
	st, err := m.guard(ctx, clause.Raw(sqlText, params))
	if err != nil {
		return nil, err
	}
	return m.session().exec(ctx, st, "")
}

// guard screens raw statements when a validator is configured.
func (m *Mapper) guard(ctx context.Context, st clause.Statement) (clause.Statement, error) {
	if m.db.validator == nil {
		return st, nil
	}
	if err := m.db.validator.Check(st.SQL, st.Binds); err != nil {
		m.db.auditor.Rejected(ctx, st.SQL, err)
		m.db.logger.Warn("statement rejected", "sql", st.SQL, "error", err)
		return clause.Statement{}, err
	}
	return st, nil
}
