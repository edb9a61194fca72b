// Package metrics exposes Prometheus collectors for the storefront service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	admissionRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_admission_rejected_total",
			Help: "Requests rejected by the fixed-window admission filter, labeled by key prefix.",
		},
		[]string{"prefix"},
	)

	prefetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_prefetch_total",
			Help: "Prefetch requests issued by the cache warmer, labeled by site and outcome.",
		},
		[]string{"site", "outcome"},
	)

	prefetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_prefetch_duration_seconds",
			Help:    "Histogram of prefetch request latencies, labeled by site.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"site"},
	)

	pacingDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_pacing_delay_seconds",
			Help:    "Histogram of per-host pacing waits before outbound fetches.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"site"},
	)

	ordersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_orders_total",
			Help: "Orders placed or transitioned, labeled by status.",
		},
		[]string{"status"},
	)
)

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveAdmissionRejected counts one rejected request.
func ObserveAdmissionRejected(prefix string) {
	admissionRejectedTotal.WithLabelValues(prefix).Inc()
}

// ObservePrefetch records the outcome of one prefetch request.
func ObservePrefetch(rawURL string, err error, duration time.Duration) {
	site := SanitizeSite(rawURL)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	prefetchTotal.WithLabelValues(site, outcome).Inc()
	prefetchDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
}

// ObservePacingDelay records the duration of a pacing wait.
func ObservePacingDelay(site string, duration time.Duration) {
	pacingDelaySeconds.WithLabelValues(site).Observe(duration.Seconds())
}

// ObserveOrder counts an order entering status.
func ObserveOrder(status string) {
	ordersTotal.WithLabelValues(status).Inc()
}
