package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the reconcile collectors on a private registry.
type Metrics struct {
	registry  *prometheus.Registry
	outcomes  *prometheus.CounterVec
	fallbacks prometheus.Counter
	duration  *prometheus.HistogramVec
}

// New registers the collectors plus Go and process metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrattend",
			Name:      "reconcile_total",
			Help:      "Reconcile calls by outcome.",
		}, []string{"outcome"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qrattend",
			Name:      "reconcile_fallback_total",
			Help:      "Reconcile calls that needed the mark_attendance fallback.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "qrattend",
			Name:      "reconcile_duration_seconds",
			Help:      "Reconcile latency by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.outcomes,
		m.fallbacks,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveReconcile implements attendance.Observer.
func (m *Metrics) ObserveReconcile(outcome string, elapsed time.Duration, usedFallback bool) {
	m.outcomes.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	if usedFallback {
		m.fallbacks.Inc()
	}
}

// WatchQueue exports the history queue backlog, read from depth on every scrape.
func (m *Metrics) WatchQueue(depth func(context.Context) (int64, error)) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "qrattend",
		Name:      "history_queue_depth",
		Help:      "History entries waiting to be stored.",
	}, func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		n, err := depth(ctx)
		if err != nil {
			slog.Warn("queue depth unavailable", "error", err)
			return -1
		}
		return float64(n)
	}))
}

// Handler serves the registry for /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
