// Package metrics provides Prometheus metrics collection for the document
// lifecycle engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/artpar/docgate/ports"
)

// Collector holds the Prometheus metrics observed by the engine.
type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates a metrics collector registered against the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docgate",
				Name:      "requests_total",
				Help:      "Total number of document requests processed",
			},
			[]string{"doc_type", "action", "outcome"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "docgate",
				Name:      "request_duration_seconds",
				Help:      "Document request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"doc_type", "action"},
		),
	}
}

// ObserveRequest records one pipeline invocation.
func (c *Collector) ObserveRequest(docTypeName, action, outcome string, duration time.Duration) {
	c.RequestsTotal.WithLabelValues(docTypeName, action, outcome).Inc()
	c.RequestDuration.WithLabelValues(docTypeName, action).Observe(duration.Seconds())
}

// Ensure interface compliance.
var _ ports.Metrics = (*Collector)(nil)
