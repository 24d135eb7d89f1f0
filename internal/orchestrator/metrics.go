package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the orchestrator's Prometheus instrumentation. A zero
// Metrics (via NewMetrics) can be scraped directly in tests without an
// HTTP listener; Serve is only needed when a caller wants /metrics.
type Metrics struct {
	registry   *prometheus.Registry
	InFlight   prometheus.Gauge
	JobsTotal  *prometheus.CounterVec
	JobSeconds prometheus.Histogram
}

// NewMetrics constructs and registers the orchestrator's gauges and
// counters on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "music_commander_jobs_in_flight",
			Help: "Number of check/export jobs currently running.",
		}),
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "music_commander_jobs_total",
			Help: "Total check/export jobs completed, by final status.",
		}, []string{"status"}),
		JobSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "music_commander_job_duration_seconds",
			Help:    "Per-job wall-clock duration.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.InFlight, m.JobsTotal, m.JobSeconds)
	return m
}

// Observe records one completed job's status and duration.
func (m *Metrics) Observe(status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(status).Inc()
	m.JobSeconds.Observe(dur.Seconds())
}

// Serve starts a /metrics HTTP listener on addr and blocks until ctx
// is cancelled, then shuts the server down. Intended to be run in its
// own goroutine by the caller.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
