// Package relmap is a data mapper for Go structs over PostgreSQL, MySQL and
// SQLite. Queries are immutable values compiled to parameterized SQL with
// named binds; conditions are maps of "column operator" keys to values.
//
//	db, err := relmap.Open("sqlite", "file:blog.db")
//	m := db.Mapper()
//	posts, err := relmap.Select[Post](m).
//	    Where(relmap.Where{"status >=": 2, "author_id": []int{1, 2}}).
//	    Order("created_at", "DESC").
//	    Limit(10).
//	    ToSlice(ctx)
package relmap

import (
	"context"
	"fmt"
	"strings"

	"github.com/coregx/relmap/internal/analyzer"
	"github.com/coregx/relmap/internal/condition"
	"github.com/coregx/relmap/internal/config"
	"github.com/coregx/relmap/internal/core"
	"github.com/coregx/relmap/internal/entity"
	"github.com/coregx/relmap/internal/security"
)

type (
	DB         = core.DB
	Mapper     = core.Mapper
	Option     = core.Option
	Tx         = core.Tx
	TxOptions  = core.TxOptions
	QueryEvent = core.QueryEvent
	QueryHook  = core.QueryHook

	Query[T any]      = core.Query[T]
	Collection[T any] = core.Collection[T]

	// Where is an AND-ed set of conditions keyed by "column" or
	// "column operator".
	Where     = condition.Map
	Condition = condition.Condition
	Group     = condition.Group
	Set       = condition.Set

	Relation    = entity.Relation
	TypeHandler = entity.TypeHandler
	Formats     = entity.Formats
	Config      = config.Config
	AuditLevel  = security.AuditLevel
	QueryPlan   = analyzer.Plan

	DatasourceMissingError = core.DatasourceMissingError
	AdapterError           = core.AdapterError
	ConfigurationError     = core.ConfigurationError
	ValidationError        = condition.ValidationError
)

var (
	ErrNotFound          = core.ErrNotFound
	ErrRollback          = core.ErrRollback
	ErrDatasourceMissing = core.ErrDatasourceMissing
	ErrAdapter           = core.ErrAdapter
	ErrConfiguration     = core.ErrConfiguration
	ErrUnknownRelation   = core.ErrUnknownRelation
	ErrValidation        = condition.ErrValidation
	ErrInvalidEntity     = entity.ErrInvalidEntity
	ErrMissingPrimaryKey = entity.ErrMissingPrimaryKey
)

var (
	Open   = core.Open
	WrapDB = core.WrapDB

	WithMaxOpenConns      = core.WithMaxOpenConns
	WithMaxIdleConns      = core.WithMaxIdleConns
	WithConnMaxLifetime   = core.WithConnMaxLifetime
	WithStmtCacheCapacity = core.WithStmtCacheCapacity
	WithLogger            = core.WithLogger
	WithSensitiveFields   = core.WithSensitiveFields
	WithTracer            = core.WithTracer
	WithMetrics           = core.WithMetrics
	WithQueryHook         = core.WithQueryHook
	WithDialects          = core.WithDialects
	WithFormats           = core.WithFormats
	WithTypeHandler       = core.WithTypeHandler
	WithValidator         = core.WithValidator
	WithAuditor           = core.WithAuditor
	WithAuditLevel        = core.WithAuditLevel

	C      = condition.C
	All    = condition.All
	Any    = condition.Any
	OrElse = condition.OrGroup

	HasOne         = entity.HasOne
	HasMany        = entity.HasMany
	HasManyThrough = entity.HasManyThrough

	LoadConfig   = config.Load
	NewValidator = security.NewValidator
	WithActor    = security.WithActor
)

const (
	AuditNone   = security.AuditNone
	AuditWrites = security.AuditWrites
	AuditAll    = security.AuditAll
)

// Select starts a query for T.
func Select[T any](m *Mapper, fields ...string) Query[T] { return core.Select[T](m, fields...) }

// Find starts a query for T matching every set.
func Find[T any](m *Mapper, sets ...Set) Query[T] { return core.All[T](m, sets...) }

// First returns the first T matching sets, or ErrNotFound.
func First[T any](ctx context.Context, m *Mapper, sets ...Set) (*T, error) {
	return core.First[T](ctx, m, sets...)
}

// Get returns the T with primary key id, or ErrNotFound.
func Get[T any](ctx context.Context, m *Mapper, id any) (*T, error) {
	return core.Get[T](ctx, m, id)
}

// Create builds a T from column values and inserts it.
func Create[T any](ctx context.Context, m *Mapper, data map[string]any) (*T, error) {
	return core.Create[T](ctx, m, data)
}

// Raw runs hand written SQL with :name placeholders and hydrates T.
func Raw[T any](ctx context.Context, m *Mapper, sql string, params map[string]any) (*Collection[T], error) {
	return core.Raw[T](ctx, m, sql, params)
}

// Related builds the query for a relation declared by owner.
func Related[T any](m *Mapper, owner any, name string) (Query[T], error) {
	return core.Related[T](m, owner, name)
}

// OpenConfig opens a DB from a loaded Config. opts are applied after the
// settings from cfg.
func OpenConfig(cfg *Config, opts ...Option) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigurationError{Setting: "config", Err: err}
	}
	base := []Option{
		WithMaxOpenConns(cfg.MaxOpenConns),
		WithMaxIdleConns(cfg.MaxIdleConns),
		WithConnMaxLifetime(cfg.ConnMaxLifetime),
		WithStmtCacheCapacity(cfg.StmtCacheCapacity),
		WithFormats(Formats{Date: cfg.DateFormat, Time: cfg.TimeFormat, DateTime: cfg.DateTimeFormat}),
	}
	if len(cfg.SensitiveFields) > 0 {
		base = append(base, WithSensitiveFields(cfg.SensitiveFields...))
	}
	level, err := auditLevel(cfg.AuditLevel)
	if err != nil {
		return nil, &ConfigurationError{Setting: "audit_level", Err: err}
	}
	if level != security.AuditNone {
		base = append(base, WithAuditLevel(level))
	}
	return Open(cfg.Driver, cfg.DSN, append(base, opts...)...)
}

func auditLevel(s string) (security.AuditLevel, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return security.AuditNone, nil
	case "writes":
		return security.AuditWrites, nil
	case "all":
		return security.AuditAll, nil
	}
	return security.AuditNone, fmt.Errorf("unknown audit level %q", s)
}
