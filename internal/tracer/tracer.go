// Package tracer wraps OpenTelemetry spans around statement execution.
package tracer

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer starts spans.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Span is the subset of trace.Span the mapper uses.
type Span interface {
	SetAttributes(attrs ...attribute.KeyValue)
	RecordError(err error)
	SetStatus(code codes.Code, description string)
	End()
}

// NoopTracer returns spans that record nothing. It is the default.
type NoopTracer struct{}

func (n *NoopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, &NoopSpan{}
}

// NoopSpan records nothing.
type NoopSpan struct{}

func (n *NoopSpan) SetAttributes(_ ...attribute.KeyValue) {}
func (n *NoopSpan) RecordError(_ error)                   {}
func (n *NoopSpan) SetStatus(_ codes.Code, _ string)      {}
func (n *NoopSpan) End()                                  {}

// OtelTracer adapts a trace.Tracer.
type OtelTracer struct {
	tracer trace.Tracer
}

// NewOtelTracer adapts t, which must not be nil.
func NewOtelTracer(t trace.Tracer) *OtelTracer {
	return &OtelTracer{tracer: t}
}

func (t *OtelTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	return ctx, &OtelSpan{span: span}
}

// OtelSpan adapts a trace.Span, whose methods take extra options.
type OtelSpan struct {
	span trace.Span
}

func (s *OtelSpan) SetAttributes(attrs ...attribute.KeyValue) { s.span.SetAttributes(attrs...) }
func (s *OtelSpan) RecordError(err error)                     { s.span.RecordError(err) }
func (s *OtelSpan) SetStatus(code codes.Code, desc string)    { s.span.SetStatus(code, desc) }
func (s *OtelSpan) End()                                      { s.span.End() }

// QueryMetadata describes one executed statement.
type QueryMetadata struct {
	SQL          string
	BindCount    int
	Duration     time.Duration
	RowsAffected int64
	Err          error
	// Database is the dialect name (postgres, mysql, sqlite).
	Database string
	// Operation is SELECT, INSERT, UPDATE, DELETE or the first SQL keyword.
	Operation string
	// Datasource is the table the statement targets, when known.
	Datasource string
	// InTx is set for statements executed inside a transaction.
	InTx bool
}

// SpanName returns "relmap.<operation>" with the datasource appended when
// known, e.g. "relmap.select posts".
func SpanName(operation, datasource string) string {
	name := "relmap." + strings.ToLower(operation)
	if datasource != "" {
		name += " " + datasource
	}
	return name
}

// AddQueryAttributes records the OpenTelemetry database attributes of meta on
// span and sets its status.
func AddQueryAttributes(span Span, meta *QueryMetadata) {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", meta.Database),
		attribute.String("db.statement", meta.SQL),
		attribute.String("db.operation", meta.Operation),
		attribute.Int("db.relmap.binds", meta.BindCount),
		attribute.Float64("db.duration_ms", float64(meta.Duration.Microseconds())/1000.0),
	}
	if meta.Datasource != "" {
		attrs = append(attrs, attribute.String("db.sql.table", meta.Datasource))
	}
	if meta.RowsAffected > 0 {
		attrs = append(attrs, attribute.Int64("db.rows_affected", meta.RowsAffected))
	}
	if meta.InTx {
		attrs = append(attrs, attribute.Bool("db.relmap.in_tx", true))
	}
	span.SetAttributes(attrs...)

	if meta.Err != nil {
		span.RecordError(meta.Err)
		span.SetStatus(codes.Error, meta.Err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// DetectOperation returns the statement kind from the leading keyword.
func DetectOperation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	kw := strings.ToUpper(fields[0])
	if kw == "WITH" {
		return "SELECT"
	}
	return kw
}
