// Package metrics records statement counts and latencies with Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeOK                = "ok"
	OutcomeNotFound          = "not_found"
	OutcomeDatasourceMissing = "datasource_missing"
	OutcomeError             = "error"
)

// Recorder receives one observation per executed statement.
type Recorder interface {
	ObserveStatement(operation, datasource, outcome string, d time.Duration)
	ObserveCacheLookup(hit bool)
}

// Noop discards observations. It is the default.
type Noop struct{}

func (Noop) ObserveStatement(_, _, _ string, _ time.Duration) {}
func (Noop) ObserveCacheLookup(_ bool)                        {}

// Prometheus exports relmap_statements_total, relmap_statement_duration_seconds
// and relmap_stmt_cache_lookups_total.
type Prometheus struct {
	statements *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	cache      *prometheus.CounterVec
}

// NewPrometheus registers the collectors on reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Prometheus{
		statements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relmap_statements_total",
				Help: "Total number of executed statements",
			},
			[]string{"operation", "datasource", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relmap_statement_duration_seconds",
				Help:    "Statement latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "datasource"},
		),
		cache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relmap_stmt_cache_lookups_total",
				Help: "Prepared statement cache lookups",
			},
			[]string{"result"},
		),
	}
}

// ObserveStatement counts the statement and records its latency.
func (p *Prometheus) ObserveStatement(operation, datasource, outcome string, d time.Duration) {
	if datasource == "" {
		datasource = "unknown"
	}
	p.statements.WithLabelValues(operation, datasource, outcome).Inc()
	p.duration.WithLabelValues(operation, datasource).Observe(d.Seconds())
}

// ObserveCacheLookup counts a statement cache hit or miss.
func (p *Prometheus) ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.cache.WithLabelValues(result).Inc()
}
