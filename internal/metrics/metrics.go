// Package metrics exposes Prometheus collectors for the fetch core.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchOutcomesTotal    *prometheus.CounterVec
	fetchAttemptsTotal    *prometheus.CounterVec
	fetchRetriesTotal     *prometheus.CounterVec
	rateLimitDelaySeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		fetchOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetch_outcomes_total",
				Help: "Final target outcomes, labeled by source and disposition.",
			},
			[]string{"source", "status"},
		)

		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetch_attempts_total",
				Help: "Physical request attempts, labeled by status class.",
			},
			[]string{"class"},
		)

		fetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetch_retries_total",
				Help: "Retries scheduled after transient failures, by domain.",
			},
			[]string{"domain"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fetch_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-domain rate limiter.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// IncOutcome records a final outcome. Duplicate skips are counted under
// their own disposition so dashboards can separate them from robots skips.
func IncOutcome(source, status, skipReason string) {
	if fetchOutcomesTotal == nil {
		return
	}
	if skipReason == "duplicate" {
		status = "deduped"
	}
	fetchOutcomesTotal.WithLabelValues(source, status).Inc()
}

// IncAttempt records one physical attempt by status class
// ("2xx", "429", "4xx", "5xx", "error").
func IncAttempt(class string) {
	if fetchAttemptsTotal == nil {
		return
	}
	fetchAttemptsTotal.WithLabelValues(class).Inc()
}

// IncRetry records a scheduled retry for a domain.
func IncRetry(domain string) {
	if fetchRetriesTotal == nil {
		return
	}
	fetchRetriesTotal.WithLabelValues(domain).Inc()
}

// ObserveRateLimitDelay records how long a caller waited for a slot.
func ObserveRateLimitDelay(domain string, d time.Duration) {
	if rateLimitDelaySeconds == nil {
		return
	}
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(d.Seconds())
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
