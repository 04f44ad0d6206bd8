package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry          *prometheus.Registry
	updateAttempts    *prometheus.CounterVec // update attempts by outcome
	updateDuration    prometheus.Histogram   // time for one update attempt
	resolverRequests  *prometheus.CounterVec // echo endpoint requests
	resolverCacheHits *prometheus.CounterVec // resolver cache hits
	providerRequests  *prometheus.CounterVec // provider HTTP requests
	storeRequests     *prometheus.CounterVec // state store requests
	recordsSuspended  prometheus.Gauge       // records in suspended state
}

// Public interface for metrics operations
func (m *Metrics) IncUpdateAttempt(provider, outcome string) {
	if provider == "" || outcome == "" {
		return
	}
	m.updateAttempts.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) SetUpdateDuration(duration time.Duration) {
	m.updateDuration.Observe(duration.Seconds())
}

func (m *Metrics) IncResolverRequest(family string, success bool) {
	m.resolverRequests.WithLabelValues(family, boolToResult(success)).Inc()
}

func (m *Metrics) IncResolverCacheHit(family string) {
	m.resolverCacheHits.WithLabelValues(family).Inc()
}

func (m *Metrics) IncProviderRequest(provider string, success bool) {
	if provider == "" {
		return
	}
	m.providerRequests.WithLabelValues(provider, boolToResult(success)).Inc()
}

func (m *Metrics) IncStoreRequest(operation string, success bool) {
	if !isValidOperation(operation) {
		return
	}
	m.storeRequests.WithLabelValues(operation, boolToResult(success)).Inc()
}

func (m *Metrics) SetRecordsSuspended(count int) {
	m.recordsSuspended.Set(float64(count))
}

// Validation helpers
func boolToResult(b bool) string {
	if b {
		return "success"
	}
	return "failure"
}

func isValidOperation(op string) bool {
	switch op {
	case "read", "update":
		return true
	}
	return false
}

func New(register bool) *Metrics {
	registry := prometheus.NewRegistry()
	namespace := "ddns_sync"

	m := &Metrics{
		registry: registry,

		updateAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_attempts_total",
			Help:      "Total record update attempts by outcome",
		}, []string{"provider", "outcome"}),

		updateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "update_duration_seconds",
			Help:      "Duration of one record update attempt in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		resolverRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolver_requests_total",
			Help:      "Total public IP echo endpoint requests",
		}, []string{"family", "status"}),

		resolverCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolver_cache_hits_total",
			Help:      "Total public IP lookups served from cache",
		}, []string{"family"}),

		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total DNS provider HTTP requests",
		}, []string{"provider", "status"}),

		storeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_requests_total",
			Help:      "Total state store requests",
		}, []string{"operation", "status"}),

		recordsSuspended: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records_suspended_current",
			Help:      "Current number of suspended records",
		}),
	}

	if register {
		registry.MustRegister(
			m.updateAttempts,
			m.updateDuration,
			m.resolverRequests,
			m.resolverCacheHits,
			m.providerRequests,
			m.storeRequests,
			m.recordsSuspended,
		)
	}
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
