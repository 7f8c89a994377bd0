package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Levels(t *testing.T) {
	assert.True(t, New("debug").Core().Enabled(zapcore.DebugLevel))
	assert.False(t, New("warn").Core().Enabled(zapcore.InfoLevel))
	assert.True(t, New("bogus").Core().Enabled(zapcore.InfoLevel))
	assert.False(t, New("bogus").Core().Enabled(zapcore.DebugLevel))
}

func TestContextLogger_AddsContextFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	cl := NewContextLogger(zap.New(core))

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithUserID(ctx, "42")
	cl.LogRequest(ctx, "GET", "/api/materials", 200, 3)

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, "42", fields["user_id"])
		assert.Equal(t, "/api/materials", fields["route"])
	}
	assert.Equal(t, "req-1", RequestIDFrom(ctx))
}

func TestContextLogger_LogError(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	cl := NewContextLogger(zap.New(core))

	cl.LogError(context.Background(), errors.New("boom"), "store failure")

	entries := logs.FilterMessage("store failure").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "boom", entries[0].ContextMap()["error"])
	}
}
