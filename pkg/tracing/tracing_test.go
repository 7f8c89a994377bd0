package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "physlab", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInit_Disabled(t *testing.T) {
	tp, err := Init(DefaultConfig())
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestTraceRealtimeEvent_Attributes(t *testing.T) {
	rec := installRecorder(t)

	_, span := TraceRealtimeEvent(context.Background(), "new_material", "role:student")
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "realtime.new_material", spans[0].Name())

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "new_material", attrs["realtime.event"])
	assert.Equal(t, "role:student", attrs["realtime.group"])
}

func TestTraceStoreOperation_Name(t *testing.T) {
	rec := installRecorder(t)

	_, span := TraceStoreOperation(context.Background(), "update", "educational_materials")
	span.End()

	require.Len(t, rec.Ended(), 1)
	assert.Equal(t, "db.update", rec.Ended()[0].Name())
}

func TestRecordError_SetsStatus(t *testing.T) {
	rec := installRecorder(t)

	ctx, span := TraceHTTPRequest(context.Background(), "DELETE", "/api/materials/:id")
	RecordError(ctx, errors.New("store unavailable"))
	span.End()

	require.Len(t, rec.Ended(), 1)
	assert.Equal(t, codes.Error, rec.Ended()[0].Status().Code)
	assert.Equal(t, "http.DELETE", rec.Ended()[0].Name())
}
