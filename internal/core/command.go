package core

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coregx/relmap/internal/clause"
	"github.com/coregx/relmap/internal/metrics"
	"github.com/coregx/relmap/internal/security"
	"github.com/coregx/relmap/internal/tracer"
)

// session runs statements on the pool, or inside tx when it is set.
type session struct {
	db *DB
	tx *sql.Tx
}

// rowSet is a fully read result: column names and one value slice per row.
type rowSet struct {
	columns []string
	rows    [][]any
}

// command is one statement being executed.
type command struct {
	session
	stmt       clause.Statement
	datasource string
	// single marks reads expected to return one row; an empty result is
	// logged at debug level and counted as not found.
	single bool
}

// query runs a read and buffers every row.
func (s session) query(ctx context.Context, st clause.Statement, datasource string, single bool) (*rowSet, error) {
	c := command{session: s, stmt: st, datasource: datasource, single: single}
	var rs *rowSet
	err := c.run(ctx, func(ctx context.Context, stmt *sql.Stmt, args []any) (int64, error) {
		rows, err := stmt.QueryContext(ctx, args...)
		if err != nil {
			return 0, err
		}
		defer rows.Close()

		rs, err = scanAll(rows)
		if err != nil {
			return 0, err
		}
		return int64(len(rs.rows)), nil
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// exec runs a write.
func (s session) exec(ctx context.Context, st clause.Statement, datasource string) (sql.Result, error) {
	c := command{session: s, stmt: st, datasource: datasource}
	var res sql.Result
	err := c.run(ctx, func(ctx context.Context, stmt *sql.Stmt, args []any) (int64, error) {
		var err error
		res, err = stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, err
		}
		n, _ := res.RowsAffected()
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func scanAll(rows *sql.Rows) (*rowSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	rs := &rowSet{columns: cols}
	for rows.Next() {
		row := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range row {
			dest[i] = &row[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		rs.rows = append(rs.rows, row)
	}
	return rs, rows.Err()
}

// prepare returns the statement for sqlText and the func that hands it back.
// Statements inside a transaction are prepared on it and closed by done.
func (c *command) prepare(ctx context.Context, sqlText string) (stmt *sql.Stmt, done func(), err error) {
	if c.tx != nil {
		stmt, err = c.tx.PrepareContext(ctx, sqlText)
		if err != nil {
			return nil, nil, err
		}
		return stmt, func() { _ = stmt.Close() }, nil
	}
	return c.db.stmtCache.Prepare(ctx, c.db.sqlDB, sqlText)
}

// run converts the statement to positional form, executes it through fn and
// records the outcome in the log, the span, the metrics, the audit trail and
// the query hook.
func (c *command) run(ctx context.Context, fn func(context.Context, *sql.Stmt, []any) (int64, error)) error {
	sqlText, args, err := c.stmt.Positional(c.db.dialect)
	if err != nil {
		return err
	}
	operation := tracer.DetectOperation(sqlText)

	ctx, span := c.db.tracer.StartSpan(ctx, tracer.SpanName(operation, c.datasource))
	defer span.End()

	start := time.Now()
	stmt, done, err := c.prepare(ctx, sqlText)
	var n int64
	if err == nil {
		func() {
			defer done()
			n, err = fn(ctx, stmt, args)
		}()
	}
	elapsed := time.Since(start)
	err = c.classify(operation, sqlText, stmt != nil, err)

	c.report(ctx, span, operation, sqlText, args, n, elapsed, err)
	return err
}

// classify maps driver errors to DatasourceMissingError or AdapterError.
func (c *command) classify(operation, sqlText string, prepared bool, err error) error {
	if err == nil {
		return nil
	}
	if c.db.dialect.IsUndefinedTable(err) {
		if c.tx == nil {
			c.db.stmtCache.Forget(sqlText)
		}
		return &DatasourceMissingError{Datasource: c.datasource, Err: err}
	}
	op := "prepare"
	if prepared {
		op = "exec"
		if operation == "SELECT" || c.single {
			op = "query"
		}
	}
	return &AdapterError{Op: op, SQL: sqlText, Err: err}
}

func (c *command) report(ctx context.Context, span tracer.Span, operation, sqlText string, args []any, n int64, elapsed time.Duration, err error) {
	read := operation == "SELECT"

	outcome := metrics.OutcomeOK
	switch {
	case errors.Is(err, ErrDatasourceMissing):
		outcome = metrics.OutcomeDatasourceMissing
	case err != nil:
		outcome = metrics.OutcomeError
	case c.single && n == 0:
		outcome = metrics.OutcomeNotFound
	}
	c.db.metrics.ObserveStatement(operation, c.datasource, outcome, elapsed)

	meta := &tracer.QueryMetadata{
		SQL:        sqlText,
		BindCount:  len(args),
		Duration:   elapsed,
		Err:        err,
		Database:   c.db.dialect.Name(),
		Operation:  operation,
		Datasource: c.datasource,
		InTx:       c.tx != nil,
	}
	if !read {
		meta.RowsAffected = n
	}
	tracer.AddQueryAttributes(span, meta)

	binds := c.db.sanitizer.FormatBinds(c.stmt.Binds)
	fields := []any{
		"sql", sqlText,
		"binds", binds,
		"duration_ms", elapsed.Milliseconds(),
		"datasource", c.datasource,
		"database", c.db.dialect.Name(),
	}
	switch outcome {
	case metrics.OutcomeOK:
		c.db.logger.Info("statement executed", append(fields, "rows", n)...)
	case metrics.OutcomeNotFound:
		c.db.logger.Debug("statement returned no rows", fields...)
	default:
		c.db.logger.Error("statement failed", append(fields, "error", err)...)
	}

	c.db.auditor.Record(ctx, security.Event{
		Operation:    operation,
		Datasource:   c.datasource,
		SQL:          sqlText,
		Binds:        c.stmt.Binds,
		RowsAffected: meta.RowsAffected,
		Duration:     elapsed,
		Err:          err,
	})

	event := QueryEvent{
		SQL:        sqlText,
		Args:       args,
		Operation:  operation,
		Datasource: c.datasource,
		Duration:   elapsed,
		InTx:       c.tx != nil,
		Error:      err,
	}
	if read {
		event.Rows = int(n)
	} else {
		event.RowsAffected = n
	}
	c.db.invokeHook(ctx, event)
}
