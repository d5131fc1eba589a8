// Package metrics exposes provider, job and session metrics for
// Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/justyntemme/biblio/internal/jobs"
	"github.com/justyntemme/biblio/internal/providers"
	"github.com/justyntemme/biblio/internal/session"
)

const namespace = "biblio"

// Metrics records provider fetches and job lifecycles. It satisfies
// providers.Observer and jobs.Observer.
type Metrics struct {
	registry *prometheus.Registry

	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	fetchItems    *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobsFinished  *prometheus.CounterVec
}

var (
	_ providers.Observer = (*Metrics)(nil)
	_ jobs.Observer      = (*Metrics)(nil)
)

// New creates the metrics on a private registry with the Go and process
// collectors attached.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_fetches_total",
			Help:      "Provider page fetches by outcome and error code.",
		}, []string{"provider", "outcome", "code"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_fetch_duration_seconds",
			Help:      "Latency of provider page fetches.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider", "outcome"}),
		fetchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_items_total",
			Help:      "Items returned by providers.",
		}, []string{"provider"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "search_jobs_running",
			Help:      "Search jobs currently running.",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_jobs_finished_total",
			Help:      "Search jobs that left the running state, by final state.",
		}, []string{"state"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.fetches,
		m.fetchDuration,
		m.fetchItems,
		m.jobsRunning,
		m.jobsFinished,
	)
	return m
}

func (m *Metrics) ObserveFetch(provider, outcome, code string, items int, elapsed time.Duration) {
	m.fetches.WithLabelValues(provider, outcome, code).Inc()
	m.fetchDuration.WithLabelValues(provider, outcome).Observe(elapsed.Seconds())
	if items > 0 {
		m.fetchItems.WithLabelValues(provider).Add(float64(items))
	}
}

func (m *Metrics) JobStarted() {
	m.jobsRunning.Inc()
}

func (m *Metrics) JobFinished(state jobs.State) {
	m.jobsRunning.Dec()
	m.jobsFinished.WithLabelValues(string(state)).Inc()
}

// TrackSessions exports the live session count of store
func (m *Metrics) TrackSessions(store session.Store) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "search_sessions",
		Help:      "Search sessions held in memory, including not yet evicted expired ones.",
	}, func() float64 {
		return float64(store.Len())
	}))
}

// Registry returns the registry the metrics live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
