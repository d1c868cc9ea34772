// Package metrics provides Prometheus metrics for nuxlab. They are served on
// /metrics by `nuxlab serve`.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// Namespace for all nuxlab metrics
	namespace = "nuxlab"
)

var (
	// ReconcileTotal tracks reconciliations by action and outcome
	ReconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_total",
			Help:      "Total number of lab reconciliations",
		},
		[]string{"state", "action", "result"},
	)

	// ReconcileFailures tracks failed reconciliations by error kind
	ReconcileFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_failures_total",
			Help:      "Total number of failed lab reconciliations",
		},
		[]string{"error_type"},
	)

	// ReconcileDuration tracks how long a reconciliation takes, waits included
	ReconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of lab reconciliations in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"state"},
	)

	// APIRequestsTotal tracks calls made to the NuageX API
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nuagex_requests_total",
			Help:      "Total number of NuageX API requests",
		},
		[]string{"method", "code"},
	)
)

func init() {
	prometheus.MustRegister(
		ReconcileTotal,
		ReconcileFailures,
		ReconcileDuration,
		APIRequestsTotal,
	)
}

// RecordReconcile records a finished reconciliation. errorType is empty on
// success.
func RecordReconcile(state, action string, changed bool, errorType string, d time.Duration) {
	result := "unchanged"
	switch {
	case errorType != "":
		result = "error"
		ReconcileFailures.WithLabelValues(errorType).Inc()
	case changed:
		result = "changed"
	}
	ReconcileTotal.WithLabelValues(state, action, result).Inc()
	ReconcileDuration.WithLabelValues(state).Observe(d.Seconds())
}

// RecordAPIRequest counts one NuageX API call. code is 0 when no response
// was received.
func RecordAPIRequest(method string, code int) {
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	APIRequestsTotal.WithLabelValues(method, label).Inc()
}
