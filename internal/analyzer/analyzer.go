// Package analyzer runs EXPLAIN for compiled queries and summarizes the plan
// the backend reports: index use, full scans, cost and row estimates.
package analyzer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrUnsupported is returned for dialects without an explainer.
var ErrUnsupported = errors.New("relmap: explain not supported")

// Plan is a backend-neutral summary of a query plan.
type Plan struct {
	Database string
	// Cost is in backend units; SQLite reports none.
	Cost          float64
	EstimatedRows int64

	UsesIndex bool
	// IndexName is the first index seen in the plan.
	IndexName string
	FullScan  bool

	// Raw is the plan exactly as the backend returned it.
	Raw string
}

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Explainer explains positional SQL for one backend.
type Explainer interface {
	Explain(ctx context.Context, q Querier, query string, args []any) (*Plan, error)
}

var explainers = map[string]Explainer{
	"postgres": postgresExplainer{},
	"mysql":    mysqlExplainer{},
	"sqlite":   sqliteExplainer{},
}

// For returns the explainer for a dialect name.
func For(dialect string) (Explainer, error) {
	e, ok := explainers[dialect]
	if !ok {
		return nil, fmt.Errorf("%w for %q", ErrUnsupported, dialect)
	}
	return e, nil
}

// scanSingle reads the one text column EXPLAIN returns on PostgreSQL and
// MySQL.
func scanSingle(ctx context.Context, q Querier, query string, args []any) (string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var raw string
	if rows.Next() {
		if err := rows.Scan(&raw); err != nil {
			return "", err
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if raw == "" {
		return "", errors.New("relmap: empty explain output")
	}
	return raw, nil
}

func (p *Plan) noteIndex(name string) {
	p.UsesIndex = true
	if p.IndexName == "" {
		p.IndexName = name
	}
}
