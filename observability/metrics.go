package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics tracks the key-log cache's hit rate and repopulation cost.
type CacheMetrics struct {
	lookups      *prometheus.CounterVec
	repopulation prometheus.Histogram
}

// VerifyMetrics tracks access-key verification outcomes by stage and kind.
type VerifyMetrics struct {
	outcomes *prometheus.CounterVec
	latency  prometheus.Histogram
}

// NonceMetrics tracks nonce reservation attempts.
type NonceMetrics struct {
	attempts *prometheus.CounterVec
}

var (
	cacheMetricsOnce sync.Once
	cacheRegistry    *CacheMetrics

	verifyMetricsOnce sync.Once
	verifyRegistry    *VerifyMetrics

	nonceMetricsOnce sync.Once
	nonceRegistry    *NonceMetrics
)

// Cache returns the lazily-initialised key-log cache metrics registry.
func Cache() *CacheMetrics {
	cacheMetricsOnce.Do(func() {
		cacheRegistry = &CacheMetrics{
			lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "hsmauthd",
				Subsystem: "keylog_cache",
				Name:      "lookups_total",
				Help:      "Count of key-log cache lookups segmented by outcome (hit, miss).",
			}, []string{"outcome"}),
			repopulation: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "hsmauthd",
				Subsystem: "keylog_cache",
				Name:      "repopulation_duration_seconds",
				Help:      "Latency distribution for full key-log cache repopulation.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(cacheRegistry.lookups, cacheRegistry.repopulation)
	})
	return cacheRegistry
}

// RecordLookup increments the hit/miss counter for a cache lookup.
func (m *CacheMetrics) RecordLookup(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.lookups.WithLabelValues(outcome).Inc()
}

// RecordRepopulation records how long a full cache repopulation took.
func (m *CacheMetrics) RecordRepopulation(d time.Duration) {
	if m == nil {
		return
	}
	m.repopulation.Observe(d.Seconds())
}

// Verify returns the lazily-initialised verification outcome metrics
// registry.
func Verify() *VerifyMetrics {
	verifyMetricsOnce.Do(func() {
		verifyRegistry = &VerifyMetrics{
			outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "hsmauthd",
				Subsystem: "verify",
				Name:      "outcomes_total",
				Help:      "Count of verification attempts segmented by result and error kind.",
			}, []string{"result", "kind"}),
			latency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "hsmauthd",
				Subsystem: "verify",
				Name:      "duration_seconds",
				Help:      "Latency distribution for end-to-end access verification.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(verifyRegistry.outcomes, verifyRegistry.latency)
	})
	return verifyRegistry
}

// RecordOutcome records a verification result. kind should be empty for
// allowed outcomes and the verifyerr.Kind string otherwise.
func (m *VerifyMetrics) RecordOutcome(allowed bool, kind string) {
	if m == nil {
		return
	}
	result := "denied"
	if allowed {
		result = "allowed"
		kind = ""
	}
	if kind = strings.TrimSpace(kind); kind == "" {
		kind = "none"
	}
	m.outcomes.WithLabelValues(result, kind).Inc()
}

// ObserveLatency records the wall-clock time a verification attempt took.
func (m *VerifyMetrics) ObserveLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.latency.Observe(d.Seconds())
}

// Nonces returns the lazily-initialised nonce reservation metrics registry.
func Nonces() *NonceMetrics {
	nonceMetricsOnce.Do(func() {
		nonceRegistry = &NonceMetrics{
			attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "hsmauthd",
				Subsystem: "noncestore",
				Name:      "reservations_total",
				Help:      "Count of nonce reservation attempts segmented by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(nonceRegistry.attempts)
	})
	return nonceRegistry
}

// RecordReservation increments the reservation counter.
func (m *NonceMetrics) RecordReservation(reserved bool) {
	if m == nil {
		return
	}
	outcome := "rejected"
	if reserved {
		outcome = "reserved"
	}
	m.attempts.WithLabelValues(outcome).Inc()
}
