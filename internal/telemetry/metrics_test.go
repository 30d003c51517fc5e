package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics()
	m.ObserveWorkflow("create_order", "ok", 20*time.Millisecond)
	m.ObserveWorkflow("create_order", "InsufficientStock", time.Millisecond)
	m.LowStockAlert()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `orders_workflow_total{op="create_order",outcome="InsufficientStock"} 1`)
	assert.Contains(t, string(body), `orders_workflow_duration_seconds_count{op="create_order"} 2`)
	assert.Contains(t, string(body), `inventory_low_stock_alerts_total 1`)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveWorkflow("x", "ok", time.Second)
	m.LowStockAlert()
	assert.NotNil(t, m.Handler())
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	_, err := NewLogger("svc", "loud")
	assert.Error(t, err)

	l, err := NewLogger("svc", "debug")
	require.NoError(t, err)
	assert.NotNil(t, l)
}
