package core

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/coregx/relmap/internal/condition"
	"github.com/coregx/relmap/internal/metrics"
	"github.com/coregx/relmap/internal/security"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal(line, &rec))
		out = append(out, rec)
	}
	return out
}

func TestLogging_MasksSensitiveBinds(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	db := openTestDB(t, WithLogger(l))
	m := db.Mapper()
	ctx := context.Background()

	require.NoError(t, m.Insert(ctx, &Author{Name: "ann", Password: "hunter2"}))
	_, err := First[Author](ctx, m, condition.Map{"name": "bob"})
	require.ErrorIs(t, err, ErrNotFound)
	_, err = Select[Ghost](m).Execute(ctx)
	require.Error(t, err)

	assert.NotContains(t, buf.String(), "hunter2")
	lines := logLines(t, &buf)
	require.Len(t, lines, 3)

	insert := lines[0]
	assert.Equal(t, "statement executed", insert["msg"])
	assert.Equal(t, "INFO", insert["level"])
	assert.Equal(t, "authors", insert["datasource"])
	assert.Equal(t, "sqlite", insert["database"])
	assert.Contains(t, insert["binds"], "password=***REDACTED***")
	assert.Contains(t, insert["binds"], "name=ann")
	assert.EqualValues(t, 1, insert["rows"])

	miss := lines[1]
	assert.Equal(t, "statement returned no rows", miss["msg"])
	assert.Equal(t, "DEBUG", miss["level"])

	failed := lines[2]
	assert.Equal(t, "statement failed", failed["msg"])
	assert.Equal(t, "ERROR", failed["level"])
	assert.Contains(t, failed["error"], "no such table")
}

func TestLogging_CustomSensitiveFields(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))
	db := openTestDB(t, WithLogger(l), WithSensitiveFields("name"))
	ctx := context.Background()

	require.NoError(t, db.Mapper().Insert(ctx, &Author{Name: "ann", Password: "visible"}))
	assert.NotContains(t, buf.String(), "ann")
	assert.Contains(t, buf.String(), "password=visible")
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	db := openTestDB(t, WithMetrics(metrics.NewPrometheus(reg)))
	m := db.Mapper()
	seedPosts(t, m)
	ctx := context.Background()

	_, err := Get[Post](ctx, m, 1)
	require.NoError(t, err)
	_, err = Get[Post](ctx, m, 2)
	require.NoError(t, err)
	_, err = Get[Post](ctx, m, 404)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = Select[Ghost](m).Execute(ctx)
	require.Error(t, err)

	count := func(labels ...string) float64 {
		mfs, err := reg.Gather()
		require.NoError(t, err)
		for _, mf := range mfs {
			if mf.GetName() != "relmap_statements_total" {
				continue
			}
			for _, mt := range mf.GetMetric() {
				got := map[string]string{}
				for _, lp := range mt.GetLabel() {
					got[lp.GetName()] = lp.GetValue()
				}
				if got["operation"] == labels[0] && got["datasource"] == labels[1] && got["outcome"] == labels[2] {
					return mt.GetCounter().GetValue()
				}
			}
		}
		return 0
	}
	assert.Equal(t, 10.0, count("INSERT", "posts", metrics.OutcomeOK))
	assert.Equal(t, 2.0, count("SELECT", "posts", metrics.OutcomeOK))
	assert.Equal(t, 1.0, count("SELECT", "posts", metrics.OutcomeNotFound))
	assert.Equal(t, 1.0, count("SELECT", "ghosts", metrics.OutcomeDatasourceMissing))

	// One hit series, one miss series.
	assert.Equal(t, 2, testutil.CollectAndCount(reg, "relmap_stmt_cache_lookups_total"))
}

func TestStatementCache(t *testing.T) {
	db := openTestDB(t)
	m := db.Mapper()
	seedPosts(t, m)
	ctx := context.Background()

	stats := db.CacheStats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(9), stats.Hits)

	err := m.Transaction(ctx, func(tx *Mapper) error {
		return tx.Insert(ctx, &Post{Title: "in tx"})
	})
	require.NoError(t, err)
	assert.Equal(t, stats, db.CacheStats())

	// A failed prepare is not cached.
	_, err = Select[Ghost](m).Execute(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, db.CacheStats().Size)
}

func TestTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	db := openTestDB(t, WithTracer(tp.Tracer("relmap-test")))
	m := db.Mapper()
	ctx := context.Background()

	require.NoError(t, m.Insert(ctx, &Post{Title: "traced"}))
	_, err := Select[Ghost](m).Execute(ctx)
	require.Error(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "relmap.insert posts", spans[0].Name)
	assert.Equal(t, "relmap.select ghosts", spans[1].Name)
	assert.Equal(t, "Error", spans[1].Status.Code.String())
}

func TestQueryHook(t *testing.T) {
	rec := &hookRecorder{}
	db := openTestDB(t, WithQueryHook(rec.hook))
	m := db.Mapper()
	seedPosts(t, m)
	ctx := context.Background()

	_, err := Select[Post](m).Where(condition.Map{"status <=": 3}).Execute(ctx)
	require.NoError(t, err)
	e := rec.last()
	assert.Equal(t, "SELECT", e.Operation)
	assert.Equal(t, "posts", e.Datasource)
	assert.Equal(t, `SELECT * FROM "posts" WHERE ("status" <= ?)`, e.SQL)
	assert.Equal(t, []any{int64(3)}, e.Args)
	assert.Equal(t, 3, e.Rows)
	assert.NoError(t, e.Error)

	_, err = m.DeleteWhere(ctx, Post{}, condition.Map{"status": 1})
	require.NoError(t, err)
	e = rec.last()
	assert.Equal(t, "DELETE", e.Operation)
	assert.Equal(t, int64(1), e.RowsAffected)
}

func TestAuditLevel(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))
	db := openTestDB(t, WithLogger(l), WithAuditLevel(security.AuditWrites))
	m := db.Mapper()
	ctx := security.WithActor(context.Background(), "ops@example.com")

	require.NoError(t, m.Insert(ctx, &Author{Name: "ann", Password: "hunter2"}))
	_, err := Get[Author](ctx, m, 1)
	require.NoError(t, err)

	var audits []map[string]any
	for _, rec := range logLines(t, &buf) {
		if rec["msg"] == "audit" {
			audits = append(audits, rec)
		}
	}
	require.Len(t, audits, 1)
	assert.Equal(t, "INSERT", audits[0]["operation"])
	assert.Equal(t, "ops@example.com", audits[0]["actor"])
	assert.NotEmpty(t, audits[0]["binds_digest"])
	assert.NotContains(t, buf.String(), "hunter2")
}
