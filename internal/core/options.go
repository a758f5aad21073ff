package core

import (
	"log/slog"
	"time"

	"github.com/coregx/relmap/internal/dialects"
	"github.com/coregx/relmap/internal/entity"
	"github.com/coregx/relmap/internal/logger"
	"github.com/coregx/relmap/internal/metrics"
	"github.com/coregx/relmap/internal/security"
	"github.com/coregx/relmap/internal/tracer"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a DB.
type Option func(*DB)

// WithMaxOpenConns sets the maximum number of open connections.
func WithMaxOpenConns(n int) Option {
	return func(db *DB) {
		db.sqlDB.SetMaxOpenConns(n)
	}
}

// WithMaxIdleConns sets the maximum number of idle connections.
func WithMaxIdleConns(n int) Option {
	return func(db *DB) {
		db.sqlDB.SetMaxIdleConns(n)
	}
}

// WithConnMaxLifetime sets how long a connection may be reused.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(db *DB) {
		db.sqlDB.SetConnMaxLifetime(d)
	}
}

// WithStmtCacheCapacity sets the prepared statement cache capacity.
func WithStmtCacheCapacity(capacity int) Option {
	return func(db *DB) {
		db.cacheCapacity = capacity
	}
}

// WithLogger logs every statement to l. Bind values of sensitive columns are
// masked.
func WithLogger(l *slog.Logger) Option {
	return func(db *DB) {
		db.logger = logger.FromSlog(l)
		db.slog = l
	}
}

// WithSensitiveFields replaces the column names whose bind values are masked
// in logs.
func WithSensitiveFields(fields ...string) Option {
	return func(db *DB) {
		db.sensitive = fields
	}
}

// WithTracer records a span per statement on t.
func WithTracer(t trace.Tracer) Option {
	return func(db *DB) {
		if t != nil {
			db.tracer = tracer.NewOtelTracer(t)
		}
	}
}

// WithMetrics reports statement counts, latencies and cache lookups to r.
func WithMetrics(r metrics.Recorder) Option {
	return func(db *DB) {
		if r != nil {
			db.metrics = r
		}
	}
}

// WithQueryHook calls hook after every statement.
func WithQueryHook(hook QueryHook) Option {
	return func(db *DB) {
		db.queryHook = hook
	}
}

// WithDialects looks the dialect up in r instead of the built-in registry.
func WithDialects(r *dialects.Registry) Option {
	return func(db *DB) {
		db.dialectRegistry = r
	}
}

// WithFormats sets the date, time and datetime layouts used by the type
// handlers and for binding time.Time condition values.
func WithFormats(f entity.Formats) Option {
	return func(db *DB) {
		db.formats = f
	}
}

// WithTypeHandler registers h under name, replacing a built-in handler of the
// same name.
func WithTypeHandler(name string, h entity.TypeHandler) Option {
	return func(db *DB) {
		if db.typeHandlers == nil {
			db.typeHandlers = make(map[string]entity.TypeHandler)
		}
		db.typeHandlers[name] = h
	}
}

// WithValidator screens raw statements and their binds with v.
func WithValidator(v *security.Validator) Option {
	return func(db *DB) {
		db.validator = v
	}
}

// WithAuditor records executed statements with a.
func WithAuditor(a *security.Auditor) Option {
	return func(db *DB) {
		db.auditor = a
	}
}

// WithAuditLevel records statements at level with an auditor writing to the
// logger given to WithLogger, or slog.Default. WithAuditor takes precedence.
func WithAuditLevel(level security.AuditLevel) Option {
	return func(db *DB) {
		db.auditLevel = level
	}
}
