package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusCollector_Realtime(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusCollector(reg)

	p.ConnectionAdmitted()
	p.ConnectionAdmitted()
	p.ConnectionDismissed()
	p.EventEmitted("new_material", 3)
	p.EventEmitted("new_material", 2)
	p.EventDropped("new_material")

	assert.Equal(t, 1.0, testutil.ToFloat64(p.connectionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.connectionsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.eventsEmitted.WithLabelValues("new_material")))
	assert.Equal(t, 5.0, testutil.ToFloat64(p.eventRecipients))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.eventsDropped.WithLabelValues("new_material")))
}

func TestPrometheusCollector_HTTPAndOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusCollector(reg)

	p.RecordHTTPRequest("GET", "/api/materials", 200, 15*time.Millisecond)
	p.RecordHTTPRequest("GET", "", 404, time.Millisecond)
	p.RecordOperation("send_message", "ok")

	assert.Equal(t, 1.0, testutil.ToFloat64(p.httpRequests.WithLabelValues("GET", "/api/materials", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.httpRequests.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.operations.WithLabelValues("send_message", "ok")))
}

func TestPrometheusCollector_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewPrometheusCollector(prometheus.NewRegistry())
		NewPrometheusCollector(prometheus.NewRegistry())
	})
}

func TestHealthChecker_CheckAll(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("database", func(context.Context) error { return nil }, time.Second)
	h.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") }, time.Second)

	status := h.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, StatusHealthy, status.Checks["database"])
	assert.Equal(t, "connection refused", status.Checks["redis"])
	assert.False(t, h.IsReady(context.Background()))
	assert.Equal(t, []string{"database", "redis"}, h.Names())
}

func TestHealthChecker_Timeout(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("slow", func(ctx context.Context) error {
		time.Sleep(time.Second)
		return nil
	}, 20*time.Millisecond)

	start := time.Now()
	status := h.CheckAll(context.Background())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["slow"])
}

func TestHealthChecker_NoChecksIsReady(t *testing.T) {
	assert.True(t, NewHealthChecker().IsReady(context.Background()))
	h := NewHealthChecker()
	h.AddRedisCheck(nil, time.Second)
	assert.Empty(t, h.Names())
}
