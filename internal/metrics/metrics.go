// Package metrics exposes the watcher's Prometheus instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PostsFetched counts posts returned by the platform sources.
	PostsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promowatch_posts_fetched_total",
			Help: "Posts fetched from platform sources",
		},
		[]string{"platform"},
	)

	// FetchErrors counts failed source fetches.
	FetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promowatch_fetch_errors_total",
			Help: "Source fetches that returned an error",
		},
		[]string{"platform"},
	)

	// Candidates counts posts that passed the media and keyword filter.
	Candidates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "promowatch_candidates_total",
			Help: "Posts that looked like promocode announcements",
		},
	)

	// Extractions counts code extraction attempts by outcome.
	Extractions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promowatch_extractions_total",
			Help: "Promocode extraction attempts",
		},
		[]string{"status"}, // success, no_code, error
	)

	// Claims counts claim attempts by outcome.
	Claims = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promowatch_claims_total",
			Help: "Browser claim attempts",
		},
		[]string{"status"}, // success, error
	)

	// NotifyErrors counts failed webhook announcements.
	NotifyErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "promowatch_notify_errors_total",
			Help: "Webhook announcements that failed",
		},
	)

	// Cycles counts completed scrape cycles.
	Cycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "promowatch_cycles_total",
			Help: "Completed scrape cycles",
		},
	)

	// CycleDuration tracks end-to-end scrape cycle latency. Claims dominate
	// the upper buckets.
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "promowatch_cycle_duration_seconds",
			Help:    "Duration of one scrape cycle in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)
)

// ObserveCycle records one finished cycle.
func ObserveCycle(duration time.Duration) {
	Cycles.Inc()
	CycleDuration.Observe(duration.Seconds())
}
