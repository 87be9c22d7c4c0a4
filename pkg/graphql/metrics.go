package graphql

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics 请求编排指标
type RequestMetrics struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	rateLimited   prometheus.Counter
	authRefreshes *prometheus.CounterVec
	invalidations prometheus.Counter
}

// NewRequestMetrics registerer 为 nil 时不注册
func NewRequestMetrics(registerer prometheus.Registerer) *RequestMetrics {
	m := &RequestMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livesync",
			Subsystem: "graphql",
			Name:      "requests_total",
			Help:      "Logical requests by operation type and outcome",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "livesync",
			Subsystem: "graphql",
			Name:      "request_duration_seconds",
			Help:      "Logical request latency including auth retry",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livesync",
			Subsystem: "graphql",
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by result",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "livesync",
			Subsystem: "graphql",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the local rate limiter",
		}),
		authRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livesync",
			Subsystem: "graphql",
			Name:      "auth_refreshes_total",
			Help:      "Token refreshes triggered by requests",
		}, []string{"result"}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "livesync",
			Subsystem: "graphql",
			Name:      "cache_invalidations_total",
			Help:      "Full cache invalidations after mutations",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.requests,
			m.duration,
			m.cacheLookups,
			m.rateLimited,
			m.authRefreshes,
			m.invalidations,
		)
	}
	return m
}

func (m *RequestMetrics) observe(operation, outcome string, d time.Duration) {
	m.requests.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *RequestMetrics) onCache(hit bool) {
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
	} else {
		m.cacheLookups.WithLabelValues("miss").Inc()
	}
}

func (m *RequestMetrics) onRateLimited() {
	m.rateLimited.Inc()
}

func (m *RequestMetrics) onRefresh(ok bool) {
	if ok {
		m.authRefreshes.WithLabelValues("success").Inc()
	} else {
		m.authRefreshes.WithLabelValues("failure").Inc()
	}
}

func (m *RequestMetrics) onInvalidate() {
	m.invalidations.Inc()
}
