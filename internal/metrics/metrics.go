// Package metrics exposes Prometheus collectors for the webhook pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WebhookOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealfx_webhook_outcomes_total",
			Help: "Webhook processing outcomes by result code",
		},
		[]string{"outcome"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dealfx_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	RateAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealfx_rate_attempts_total",
			Help: "Upstream rate fetch attempts by source and result",
		},
		[]string{"source", "result"},
	)

	RateCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealfx_rate_cache_lookups_total",
			Help: "Rate cache lookups by result (hit or miss)",
		},
		[]string{"result"},
	)

	DealsConverted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dealfx_deals_converted_total",
			Help: "Total number of deals converted successfully",
		},
	)

	StaleEventsIgnored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dealfx_stale_events_ignored_total",
			Help: "Total number of stale or superseded events ignored",
		},
	)
)

func init() {
	prometheus.MustRegister(WebhookOutcomes)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(RateAttempts)
	prometheus.MustRegister(RateCacheLookups)
	prometheus.MustRegister(DealsConverted)
	prometheus.MustRegister(StaleEventsIgnored)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
