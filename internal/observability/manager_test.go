package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
)

func TestPrometheusMetricsHandler(t *testing.T) {
	cfg := config.Config{}
	cfg.Observability.ServiceName = "orderdesk"
	cfg.Observability.EnableMetrics = true
	cfg.Observability.MetricsExporter = "prometheus"
	cfg.Observability.PrometheusPath = "/metrics"

	lc := fxtest.NewLifecycle(t)
	mgr, err := NewManager(lc, cfg, zap.NewNop())
	require.NoError(t, err)
	lc.RequireStart()
	defer lc.RequireStop()

	assert.True(t, mgr.MetricsEnabled())
	assert.False(t, mgr.TracingEnabled())
	require.NotNil(t, mgr.MetricsHandler())

	counter, err := mgr.meterProvider.Meter("test").Int64Counter("orders.created")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)

	rec := httptest.NewRecorder()
	mgr.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
	assert.Contains(t, rec.Body.String(), "orders_created")
}

func TestDisabledManager(t *testing.T) {
	cfg := config.Config{}
	cfg.Observability.ServiceName = "orderdesk"

	lc := fxtest.NewLifecycle(t)
	mgr, err := NewManager(lc, cfg, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, mgr.MetricsEnabled())
	assert.False(t, mgr.TracingEnabled())
	assert.Nil(t, mgr.MetricsHandler())
}

func TestTraceExporterSelection(t *testing.T) {
	cfg := config.Config{}
	cfg.Observability.ServiceName = "orderdesk"
	cfg.Observability.EnableTracing = true
	cfg.Observability.TraceExporter = "stdout"
	cfg.Observability.TraceSampleRatio = 1

	lc := fxtest.NewLifecycle(t)
	mgr, err := NewManager(lc, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, mgr.TracingEnabled())
	lc.RequireStart().RequireStop()

	cfg.Observability.TraceExporter = "zipkin"
	mgr, err = NewManager(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, mgr.TracingEnabled())

	cfg.Observability.TraceExporter = "otlp"
	cfg.Observability.TraceEndpoint = ""
	_, err = NewManager(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	assert.Error(t, err)
}
