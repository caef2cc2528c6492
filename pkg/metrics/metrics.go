// Package metrics holds the Prometheus collectors for the indexer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "erc20idx"

// Query outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeInvalid = "invalid"
)

// Metadata lookup sources.
const (
	SourceAPI   = "api"
	SourceCache = "cache"
)

// Metrics is a set of collectors registered on its own registry, so tests and
// multiple instances never collide on the global one.
type Metrics struct {
	Registry *prometheus.Registry

	Queries         *prometheus.CounterVec
	MetadataLookups *prometheus.CounterVec
	Tokens          *prometheus.CounterVec
	QueryDuration   prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Balance queries by outcome.",
		}, []string{"outcome"}),
		MetadataLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_lookups_total",
			Help:      "Token metadata lookups by source.",
		}, []string{"source"}),
		Tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens seen in balance listings, retained or discarded by the metadata filter.",
		}, []string{"result"}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Wall time of a full balance query.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
	}
	m.Registry.MustRegister(
		m.Queries,
		m.MetadataLookups,
		m.Tokens,
		m.QueryDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveQuery records a finished query.
func (m *Metrics) ObserveQuery(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(outcome).Inc()
	if outcome != OutcomeInvalid {
		m.QueryDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) ObserveLookup(source string) {
	if m == nil {
		return
	}
	m.MetadataLookups.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveFilter(retained, discarded int) {
	if m == nil {
		return
	}
	m.Tokens.WithLabelValues("retained").Add(float64(retained))
	m.Tokens.WithLabelValues("discarded").Add(float64(discarded))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
