package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMetricsCounters(t *testing.T) {
	m, err := InitMetrics()
	require.NoError(t, err)

	m.ObserveFileOp("upload", nil)
	m.ObserveFileOp("upload", nil)
	m.ObserveFileOp("upload", errors.New("disk full"))
	m.ObservePreviewCache(true)
	m.ObservePreviewCache(false)
	m.ObservePreviewCache(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FileOperations.WithLabelValues("upload", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FileOperations.WithLabelValues("upload", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PreviewCache.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PreviewCache.WithLabelValues("miss")))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() {
		nilMetrics.ObserveFileOp("delete", nil)
		nilMetrics.ObservePreviewCache(true)
	})
}

func TestMetricsServer(t *testing.T) {
	m, err := InitMetrics()
	require.NoError(t, err)
	m.ObserveFileOp("list", nil)

	srv := httptest.NewServer(NewMetricsServer(":0", m).Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `filesync_file_operations_total{operation="list",result="success"} 1`)
	assert.Contains(t, string(body), "go_goroutines")

	health, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestServeUntilDoneStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- ServeUntilDone(ctx, srv, "test", zap.NewNop()) }()
	cancel()

	assert.NoError(t, <-done)
}

func TestTracerProvider(t *testing.T) {
	tp, err := InitTracerProvider(zap.NewNop(), false)
	require.NoError(t, err)
	defer ShutdownTracerProvider(context.Background(), tp, zap.NewNop())

	_, span := Tracer(tp).Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
}

func TestInitLogger(t *testing.T) {
	for _, dev := range []bool{true, false} {
		logger, err := InitLogger(dev)
		require.NoError(t, err)
		assert.NotNil(t, NewSugaredLogger(logger))
	}
}
