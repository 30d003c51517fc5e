package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method becomes a no-op.
type Metrics struct {
	workflows *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	lowStock  prometheus.Counter
	gatherer  prometheus.Gatherer
}

// NewMetrics registers the collectors on a fresh registry so tests and
// multiple binaries never collide on the global one.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		workflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_workflow_total",
			Help: "Order workflow operations by operation and outcome (ok or error kind).",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orders_workflow_duration_seconds",
			Help:    "Order workflow latency including the surrounding transaction.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		lowStock: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inventory_low_stock_alerts_total",
			Help: "Stock movements that took a product below its minimum stock.",
		}),
		gatherer: reg,
	}
	reg.MustRegister(m.workflows, m.duration, m.lowStock)
	return m
}

func (m *Metrics) ObserveWorkflow(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.workflows.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) LowStockAlert() {
	if m == nil {
		return
	}
	m.lowStock.Inc()
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
