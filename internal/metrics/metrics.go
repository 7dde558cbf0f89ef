// Package metrics registers the Prometheus collectors tracking store and
// HTTP activity.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"docucore/pkg/domain"
)

// Metrics holds the collectors shared across the service.
type Metrics struct {
	StoreOperationsTotal  *prometheus.CounterVec
	StoreOperationSeconds *prometheus.HistogramVec
	HTTPRequestsTotal     *prometheus.CounterVec
}

// New creates and registers all collectors against reg. Tests pass a fresh
// registry to avoid duplicate registration across cases.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StoreOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docucore_store_operations_total",
				Help: "Total number of document store operations by outcome",
			},
			[]string{"operation", "status"},
		),
		StoreOperationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docucore_store_operation_duration_seconds",
				Help:    "Duration of document store operations in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docucore_http_requests_total",
				Help: "Total number of HTTP requests by route and status code",
			},
			[]string{"method", "route", "code"},
		),
	}
}

// ObserveStoreOperation records one store call.
func (m *Metrics) ObserveStoreOperation(operation string, duration time.Duration, err error) {
	m.StoreOperationsTotal.WithLabelValues(operation, StatusLabel(err)).Inc()
	m.StoreOperationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// StatusLabel classifies a store outcome into a low-cardinality label.
func StatusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case domain.IsNotFound(err):
		return "not_found"
	case domain.IsConflict(err):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidToken):
		return "invalid_token"
	default:
		return "error"
	}
}
