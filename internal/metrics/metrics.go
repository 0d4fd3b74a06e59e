// Package metrics exposes Prometheus instrumentation for the drop engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// UploadsTotal counts create operations by outcome.
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teledrop",
		Name:      "uploads_total",
		Help:      "Number of drop create operations by outcome.",
	}, []string{"outcome"})

	// UploadBytes observes the size of successfully uploaded files.
	UploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "teledrop",
		Name:      "upload_bytes",
		Help:      "Size distribution of uploaded files in bytes.",
		Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
	})

	// DownloadsTotal counts download requests by outcome and kind
	// (full or range).
	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teledrop",
		Name:      "downloads_total",
		Help:      "Number of download requests by outcome and kind.",
	}, []string{"outcome", "kind"})

	// AccessDenials counts read-access denials by decision.
	AccessDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teledrop",
		Name:      "access_denials_total",
		Help:      "Number of denied access evaluations by decision.",
	}, []string{"decision"})

	// RequestDuration observes API request latency by route and method.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "teledrop",
		Name:      "http_request_duration_seconds",
		Help:      "API request latency by route pattern and method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "status"})
)

// Outcome labels for the counters above.
const (
	OutcomeOK     = "ok"
	OutcomeDenied = "denied"
	OutcomeError  = "error"
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
