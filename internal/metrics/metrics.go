package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vjranagit/sleepfilter/pkg/crossfilter"
)

// Metrics holds the collectors for filter activity
type Metrics struct {
	// FilterChanges counts applied filter changes by dimension and action
	FilterChanges *prometheus.CounterVec

	// FilterErrors counts rejected filter requests by kind
	FilterErrors *prometheus.CounterVec

	// FilterDuration tracks how long a filter change takes, listeners included
	FilterDuration *prometheus.HistogramVec

	// Selected is the number of records passing every filter
	Selected prometheus.Gauge

	// Records is the number of records loaded
	Records prometheus.Gauge

	factory promauto.Factory
}

// New registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FilterChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sleepfilter_filter_changes_total",
			Help: "Applied filter changes by dimension and action",
		}, []string{"dimension", "action"}),
		FilterErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sleepfilter_filter_errors_total",
			Help: "Rejected filter requests by kind",
		}, []string{"kind"}),
		FilterDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sleepfilter_filter_duration_seconds",
			Help:    "Filter change duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs to ~2.6s
		}, []string{"dimension"}),
		Selected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sleepfilter_selected_records",
			Help: "Records passing every active filter",
		}),
		Records: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sleepfilter_records",
			Help: "Records loaded",
		}),
		factory: factory,
	}
}

// CacheCounts is a point-in-time reading of a cache
type CacheCounts struct {
	Hits   uint64
	Misses uint64
	Size   int
}

// WatchCache exports a cache's counts, read through stats on every scrape.
func (m *Metrics) WatchCache(name string, stats func() CacheCounts) {
	labels := prometheus.Labels{"cache": name}
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Name:        "sleepfilter_cache_hits_total",
		Help:        "Cache lookups that found an entry",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().Hits) })
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Name:        "sleepfilter_cache_misses_total",
		Help:        "Cache lookups that found nothing",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().Misses) })
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "sleepfilter_cache_entries",
		Help:        "Entries held in the cache",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().Size) })
}

// Observe is a change listener that keeps the counters current
func (m *Metrics) Observe(ev crossfilter.Event) {
	action := "set"
	if ev.Filter == nil {
		action = "clear"
	}
	m.FilterChanges.WithLabelValues(ev.Dimension, action).Inc()
	m.Selected.Set(float64(ev.Selected))
}

// ObserveDuration records a filter change that started at start
func (m *Metrics) ObserveDuration(dimension string, start time.Time) {
	m.FilterDuration.WithLabelValues(dimension).Observe(time.Since(start).Seconds())
}
