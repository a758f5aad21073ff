// Package core executes mapped queries: it owns the connection pool, the
// prepared statement cache and the instrumentation around every statement,
// and provides the Query, Collection and Mapper types built on them.
package core

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/coregx/relmap/internal/cache"
	"github.com/coregx/relmap/internal/clause"
	"github.com/coregx/relmap/internal/condition"
	"github.com/coregx/relmap/internal/dialects"
	"github.com/coregx/relmap/internal/entity"
	"github.com/coregx/relmap/internal/logger"
	"github.com/coregx/relmap/internal/metrics"
	"github.com/coregx/relmap/internal/security"
	"github.com/coregx/relmap/internal/tracer"
)

// DB is a connection pool bound to one dialect.
type DB struct {
	sqlDB      *sql.DB
	driverName string
	dialect    dialects.Dialect
	stmtCache  *cache.StmtCache
	assembler  *clause.Assembler
	entities   *entity.Registry

	logger    logger.Logger
	sanitizer *logger.Sanitizer
	tracer    tracer.Tracer
	metrics   metrics.Recorder
	queryHook QueryHook
	validator *security.Validator
	auditor   *security.Auditor

	// Settings consumed once options have been applied.
	dialectRegistry *dialects.Registry
	cacheCapacity   int
	formats         entity.Formats
	typeHandlers    map[string]entity.TypeHandler
	sensitive       []string
	slog            *slog.Logger
	auditLevel      security.AuditLevel
}

// Tx is a transaction started with Begin.
type Tx struct {
	tx     *sql.Tx
	mapper *Mapper
}

// TxOptions sets the isolation level and read-only mode of a transaction.
type TxOptions struct {
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

// Open opens a pool for driverName. The dialect is looked up by the same
// name, so "sqlite", "sqlite3", "postgres", "pgx" and "mysql" work out of the
// box.
func Open(driverName, dsn string, opts ...Option) (*DB, error) {
	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, &ConfigurationError{Setting: "driver", Err: err}
	}
	db, err := WrapDB(sqlDB, driverName, opts...)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// WrapDB wraps an existing pool. Close closes sqlDB.
func WrapDB(sqlDB *sql.DB, driverName string, opts ...Option) (*DB, error) {
	db := &DB{
		sqlDB:         sqlDB,
		driverName:    driverName,
		logger:        &logger.NoopLogger{},
		tracer:        &tracer.NoopTracer{},
		metrics:       metrics.Noop{},
		cacheCapacity: cache.DefaultCapacity,
	}
	for _, opt := range opts {
		opt(db)
	}

	if db.dialectRegistry == nil {
		db.dialectRegistry = dialects.NewRegistry()
	}
	d, err := db.dialectRegistry.Lookup(driverName)
	if err != nil {
		return nil, &ConfigurationError{Setting: "dialect", Err: err}
	}
	db.dialect = d

	types := entity.NewTypeRegistry(db.formats)
	for name, h := range db.typeHandlers {
		types.Register(name, h)
	}
	db.entities = entity.NewRegistry(types)
	db.assembler = clause.NewAssembler(d, condition.Coercer{DateTimeFormat: types.Formats().DateTime})

	db.stmtCache = cache.New(db.cacheCapacity)
	db.stmtCache.OnLookup = db.metrics.ObserveCacheLookup
	db.sanitizer = logger.NewSanitizer(db.sensitive)
	if db.auditor == nil && db.auditLevel != security.AuditNone {
		l := db.slog
		if l == nil {
			l = slog.Default()
		}
		db.auditor = security.NewAuditor(l, db.auditLevel)
	}
	return db, nil
}

// Close closes every cached statement and the pool.
func (db *DB) Close() error {
	db.stmtCache.Clear()
	return db.sqlDB.Close()
}

// Ping verifies the connection.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.sqlDB.PingContext(ctx); err != nil {
		return &AdapterError{Op: "ping", Err: err}
	}
	return nil
}

// SQLDB returns the wrapped pool.
func (db *DB) SQLDB() *sql.DB { return db.sqlDB }

// DriverName returns the name the pool was opened with.
func (db *DB) DriverName() string { return db.driverName }

// Dialect returns the dialect statements are rendered for.
func (db *DB) Dialect() dialects.Dialect { return db.dialect }

// Entities returns the entity metadata registry.
func (db *DB) Entities() *entity.Registry { return db.entities }

// CacheStats reports prepared statement cache usage.
func (db *DB) CacheStats() cache.Stats { return db.stmtCache.Stats() }

// Mapper returns a mapper running statements on the pool.
func (db *DB) Mapper() *Mapper {
	return &Mapper{db: db}
}

// Begin starts a transaction. Statements run through Tx.Mapper bypass the
// statement cache.
func (db *DB) Begin(ctx context.Context, opts *TxOptions) (*Tx, error) {
	var sqlOpts *sql.TxOptions
	if opts != nil {
		sqlOpts = &sql.TxOptions{Isolation: opts.Isolation, ReadOnly: opts.ReadOnly}
	}
	tx, err := db.sqlDB.BeginTx(ctx, sqlOpts)
	if err != nil {
		return nil, &AdapterError{Op: "begin", Err: err}
	}
	return &Tx{tx: tx, mapper: &Mapper{db: db, tx: tx}}, nil
}

// Mapper returns a mapper running statements inside the transaction.
func (tx *Tx) Mapper() *Mapper { return tx.mapper }

// Commit commits the transaction.
func (tx *Tx) Commit() error {
	if err := tx.tx.Commit(); err != nil {
		return &AdapterError{Op: "commit", Err: err}
	}
	return nil
}

// Rollback rolls the transaction back.
func (tx *Tx) Rollback() error {
	if err := tx.tx.Rollback(); err != nil {
		return &AdapterError{Op: "rollback", Err: err}
	}
	return nil
}
