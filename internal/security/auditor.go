package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"
)

// AuditLevel selects which statements are audited.
type AuditLevel int

const (
	AuditNone AuditLevel = iota
	// AuditWrites records INSERT, UPDATE and DELETE.
	AuditWrites
	// AuditAll records every statement.
	AuditAll
)

// Event describes one executed statement.
type Event struct {
	Operation    string
	Datasource   string
	SQL          string
	Binds        Values
	RowsAffected int64
	Duration     time.Duration
	Err          error
}

// Auditor writes events to a structured logger. Bind values are never logged;
// only a digest of them is.
type Auditor struct {
	logger *slog.Logger
	level  AuditLevel
}

// NewAuditor returns an auditor writing to logger at level.
func NewAuditor(logger *slog.Logger, level AuditLevel) *Auditor {
	return &Auditor{logger: logger, level: level}
}

// Enabled reports whether operation would be recorded.
func (a *Auditor) Enabled(operation string) bool {
	if a == nil || a.logger == nil {
		return false
	}
	switch a.level {
	case AuditAll:
		return true
	case AuditWrites:
		switch operation {
		case "INSERT", "UPDATE", "DELETE", "REPLACE":
			return true
		}
	}
	return false
}

// Record logs ev when its operation is enabled.
func (a *Auditor) Record(ctx context.Context, ev Event) {
	if !a.Enabled(ev.Operation) {
		return
	}
	attrs := []slog.Attr{
		slog.String("operation", ev.Operation),
		slog.String("datasource", ev.Datasource),
		slog.String("sql", ev.SQL),
		slog.Int64("rows_affected", ev.RowsAffected),
		slog.Int64("duration_ms", ev.Duration.Milliseconds()),
	}
	if digest := Digest(ev.Binds); digest != "" {
		attrs = append(attrs, slog.String("binds_digest", digest))
	}
	if actor := Actor(ctx); actor != "" {
		attrs = append(attrs, slog.String("actor", actor))
	}
	if id := RequestID(ctx); id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}

	level := slog.LevelInfo
	if ev.Err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", ev.Err.Error()))
	}
	a.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// Rejected logs a statement refused by a Validator.
func (a *Auditor) Rejected(ctx context.Context, sql string, err error) {
	if a == nil || a.logger == nil {
		return
	}
	a.logger.LogAttrs(ctx, slog.LevelWarn, "statement rejected",
		slog.String("sql", sql),
		slog.String("actor", Actor(ctx)),
		slog.String("error", err.Error()),
	)
}

// Digest returns the hex SHA-256 of the bind names and values in order, or ""
// when there are none.
func Digest(values Values) string {
	if values == nil {
		return ""
	}
	names := values.Names()
	if len(names) == 0 {
		return ""
	}
	h := sha256.New()
	for _, n := range names {
		v, _ := values.Value(n)
		_, _ = fmt.Fprintf(h, "%s=%v;", n, v)
	}
	return hex.EncodeToString(h.Sum(nil))
}

type ctxKey int

const (
	actorKey ctxKey = iota
	requestIDKey
)

// WithActor tags ctx with the identity recorded in audit entries.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// WithRequestID tags ctx with a request correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// Actor returns the identity set by WithActor.
func Actor(ctx context.Context) string {
	s, _ := ctx.Value(actorKey).(string)
	return s
}

// RequestID returns the id set by WithRequestID.
func RequestID(ctx context.Context) string {
	s, _ := ctx.Value(requestIDKey).(string)
	return s
}
