package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the service's Prometheus collectors and the registry they live in.
type Metrics struct {
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
	FileOperations *prometheus.CounterVec
	OrphansRemoved prometheus.Counter
	MissingBlobs   prometheus.Gauge
	PreviewCache   *prometheus.CounterVec

	registry *prometheus.Registry
}

// InitMetrics registers all collectors on a fresh registry.
func InitMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filesync_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "filesync_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		FileOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filesync_file_operations_total",
			Help: "File lifecycle operations by operation and result.",
		}, []string{"operation", "result"}),
		OrphansRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filesync_orphan_blobs_removed_total",
			Help: "Blobs without a metadata record removed by the reconciler.",
		}),
		MissingBlobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "filesync_missing_blobs",
			Help: "Metadata records whose blob was missing at the last reconcile.",
		}),
		PreviewCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filesync_preview_cache_total",
			Help: "Preview cache lookups by result.",
		}, []string{"result"}),
		registry: reg,
	}

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests, m.HTTPDuration, m.FileOperations, m.OrphansRemoved, m.MissingBlobs, m.PreviewCache,
	} {
		if err := reg.Register(c); err != nil {
			// If already registered, that's okay
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, err
			}
		}
	}
	return m, nil
}

// ObserveFileOp counts one file operation. Safe on a nil receiver.
func (m *Metrics) ObserveFileOp(operation string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.FileOperations.WithLabelValues(operation, result).Inc()
}

// ObservePreviewCache counts one preview cache lookup. Safe on a nil receiver.
func (m *Metrics) ObservePreviewCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.PreviewCache.WithLabelValues(result).Inc()
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// NewMetricsServer builds the HTTP server exposing /metrics and a plain /health.
func NewMetricsServer(addr string, m *Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", m.Handler())
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// ServeUntilDone runs srv until ctx is cancelled, then shuts it down.
func ServeUntilDone(ctx context.Context, srv *http.Server, name string, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting "+name+" server", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(name+" server shutdown failed", zap.Error(err))
		return err
	}
	logger.Info(name + " server stopped")
	return nil
}
