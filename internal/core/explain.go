package core

import (
	"context"

	"github.com/coregx/relmap/internal/analyzer"
)

// Explain asks the backend for the plan of the query without running it.
func (q Query[T]) Explain(ctx context.Context) (*analyzer.Plan, error) {
	st, err := q.Statement()
	if err != nil {
		return nil, err
	}
	db := q.mapper.db
	e, err := analyzer.For(db.dialect.Name())
	if err != nil {
		return nil, &ConfigurationError{Setting: "dialect", Err: err}
	}
	sqlText, args, err := st.Positional(db.dialect)
	if err != nil {
		return nil, err
	}

	var src analyzer.Querier = db.sqlDB
	if q.mapper.tx != nil {
		src = q.mapper.tx
	}
	plan, err := e.Explain(ctx, src, sqlText, args)
	if err != nil {
		if db.dialect.IsUndefinedTable(err) {
			return nil, &DatasourceMissingError{Datasource: q.meta.Datasource, Err: err}
		}
		return nil, &AdapterError{Op: "explain", SQL: sqlText, Err: err}
	}
	db.logger.Debug("query explained",
		"sql", sqlText,
		"full_scan", plan.FullScan,
		"index", plan.IndexName,
		"datasource", q.meta.Datasource,
	)
	return plan, nil
}
