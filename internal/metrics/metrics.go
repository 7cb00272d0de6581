// Package metrics exposes Prometheus metrics for poll cycles and notifications.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/williampepple1/listing-notifier/pkg/models"
)

const namespace = "listing_notifier"

// Metrics holds the notifier's collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	// Cycle metrics
	Cycles        *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	LastSuccess   prometheus.Gauge

	// Posting metrics
	ParseErrors prometheus.Counter
	Matched     prometheus.Counter
	Duplicates  prometheus.Counter
	Notified    prometheus.Counter
	NotifyFails prometheus.Counter
}

// New registers every collector on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}
	initCycleMetrics(m, promauto.With(reg))
	initPostingMetrics(m, promauto.With(reg))
	return m
}

func initCycleMetrics(m *Metrics, f promauto.Factory) {
	m.Cycles = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cycles_total",
		Help:      "Total poll cycles by result",
	}, []string{"result"})

	m.CycleDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of one fetch-extract-notify cycle",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	m.LastSuccess = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last cycle that fetched the listing page",
	})
}

func initPostingMetrics(m *Metrics, f promauto.Factory) {
	m.ParseErrors = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "parse_errors_total",
		Help:      "Listing blocks that could not be turned into a posting",
	})

	m.Matched = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "postings_matched_total",
		Help:      "Postings that matched a keyword",
	})

	m.Duplicates = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "postings_duplicate_total",
		Help:      "Matched postings skipped because they were already notified",
	})

	m.Notified = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_sent_total",
		Help:      "Notifications delivered",
	})

	m.NotifyFails = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_failed_total",
		Help:      "Notifications that could not be delivered",
	})
}

// ObserveCycle records the counters of a finished cycle
func (m *Metrics) ObserveCycle(r models.CycleReport) {
	if m == nil {
		return
	}

	result := "ok"
	switch {
	case !r.Fetched:
		result = "fetch_error"
	case r.NotifyErrors > 0:
		result = "notify_error"
	}
	m.Cycles.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(r.Duration.Seconds())

	if r.Fetched {
		m.LastSuccess.Set(float64(r.StartedAt.Add(r.Duration).Unix()))
	}

	m.ParseErrors.Add(float64(r.ParseErrors))
	m.Matched.Add(float64(r.Matched))
	m.Duplicates.Add(float64(r.Duplicates))
	m.Notified.Add(float64(r.Notified))
	m.NotifyFails.Add(float64(r.NotifyErrors))
}

// Registry returns the registry backing these metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Timeout: 10 * time.Second})
}
