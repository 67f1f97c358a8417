// Package metrics provides internal Prometheus metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Collector records memory-subsystem metrics. A nil *Collector is valid
// and records nothing, so observability stays optional for callers.
type Collector struct {
	savesTotal       *prometheus.CounterVec
	saveFailures     *prometheus.CounterVec
	itemsTotal       *prometheus.GaugeVec
	searchHits       prometheus.Counter
	contextBuildSecs prometheus.Histogram
	sessionsActive   prometheus.Gauge
	interceptsTotal  *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a collector registered on reg. Pass
// prometheus.DefaultRegisterer for the process-wide registry, or a
// fresh registry in tests.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := func(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
		v := prometheus.NewCounterVec(opts, labels)
		reg.MustRegister(v)
		return v
	}

	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	c.savesTotal = factory(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "memory_saves_total",
		Help:      "Total long-term memory persistence attempts",
	}, []string{"scope"})

	c.saveFailures = factory(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "memory_save_failures_total",
		Help:      "Long-term memory persistence failures",
	}, []string{"scope"})

	c.itemsTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "memory_items",
		Help:      "Current item count per long-term memory scope",
	}, []string{"scope"})
	reg.MustRegister(c.itemsTotal)

	c.searchHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "memory_search_hits_total",
		Help:      "Total long-term memory search matches",
	})
	reg.MustRegister(c.searchHits)

	c.contextBuildSecs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "memory_context_build_seconds",
		Help:      "Time spent assembling the injected memory context",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	})
	reg.MustRegister(c.contextBuildSecs)

	c.sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "memory_sessions_active",
		Help:      "Number of session trackers currently held",
	})
	reg.MustRegister(c.sessionsActive)

	c.interceptsTotal = factory(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "memory_intercepts_total",
		Help:      "Model invocations intercepted by the memory middleware",
	}, []string{"outcome"})

	return c
}

// RecordSave counts a persistence attempt for scope and its outcome.
func (c *Collector) RecordSave(scope string, success bool) {
	if c == nil {
		return
	}
	c.savesTotal.WithLabelValues(scope).Inc()
	if !success {
		c.saveFailures.WithLabelValues(scope).Inc()
	}
}

// SetItemCount reports the current size of a long-term scope.
func (c *Collector) SetItemCount(scope string, n int) {
	if c == nil {
		return
	}
	c.itemsTotal.WithLabelValues(scope).Set(float64(n))
}

// RecordSearchHits counts matched items in a search call.
func (c *Collector) RecordSearchHits(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.searchHits.Add(float64(n))
}

// ObserveContextBuild records the duration of one context assembly.
func (c *Collector) ObserveContextBuild(d time.Duration) {
	if c == nil {
		return
	}
	c.contextBuildSecs.Observe(d.Seconds())
}

// SetActiveSessions reports the current session tracker count.
func (c *Collector) SetActiveSessions(n int) {
	if c == nil {
		return
	}
	c.sessionsActive.Set(float64(n))
}

// RecordIntercept counts one wrapped model call by outcome
// ("ok" or "error").
func (c *Collector) RecordIntercept(outcome string) {
	if c == nil {
		return
	}
	c.interceptsTotal.WithLabelValues(outcome).Inc()
}
