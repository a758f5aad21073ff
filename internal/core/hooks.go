package core

import (
	"context"
	"time"
)

// QueryEvent describes one executed statement.
type QueryEvent struct {
	// SQL is the statement as sent to the driver, with positional placeholders.
	SQL  string
	Args []any
	// Operation is SELECT, INSERT, UPDATE, DELETE or the leading keyword.
	Operation  string
	Datasource string
	Duration   time.Duration
	// RowsAffected is set for writes, Rows for reads.
	RowsAffected int64
	Rows         int
	InTx         bool
	Error        error
}

// QueryHook is called after every statement, including failed ones.
//
//	db, _ := relmap.Open("sqlite", ":memory:",
//	    relmap.WithQueryHook(func(ctx context.Context, e relmap.QueryEvent) {
//	        slog.Info("query", "sql", e.SQL, "duration", e.Duration, "err", e.Error)
//	    }))
type QueryHook func(ctx context.Context, event QueryEvent)

func (db *DB) invokeHook(ctx context.Context, event QueryEvent) {
	if db.queryHook != nil {
		db.queryHook(ctx, event)
	}
}
