package observability

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoggerContextRoundTrip(t *testing.T) {
	logger := zap.NewNop()
	ctx := ContextWithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestNewLoggerWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	logger, err := NewLogger("boutique", "test", path)
	require.NoError(t, err)
	logger.Info("✅ démarrage")
	_ = logger.Sync()
	assert.FileExists(t, path)
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.OrderCreated()
	m.OrderPaid("webhook")
	m.OrderPaid("webhook")
	m.WebhookEvent("checkout.session.completed", "paid")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ordersCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ordersPaid.WithLabelValues("webhook")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.OrderCreated()
	m.CartClamped()
	m.ObserveHTTP("GET", "/", "200", 0.1)
}

func TestSpanHelpers(t *testing.T) {
	_, span := StartSpan(context.Background(), "test")
	EndSpan(span, errors.New("boom"))
}
