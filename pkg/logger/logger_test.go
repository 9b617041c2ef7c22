package logger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultLoggerIsUsableBeforeInit(t *testing.T) {
	require.NotNil(t, log)
	Info(context.Background(), "no init yet")
}

func TestInitAndContextLogging(t *testing.T) {
	log = zap.NewNop()
	once = sync.Once{}
	Init("development", "debug")
	require.NotNil(t, log)

	ctx := WithRequestID(context.Background(), "req-1")
	Info(ctx, "info")
	Debug(ctx, "debug")
	Warn(ctx, "warn")
	Error(ctx, "error")
	LogRequest(ctx, "GET", "/health", 200, 10*time.Millisecond, "127.0.0.1")
	Sync()
}

func TestInit_ProductionIgnoresBadLevel(t *testing.T) {
	log = zap.NewNop()
	once = sync.Once{}

	Init("production", "not-a-level")
	require.NotNil(t, log)
	require.NotNil(t, WithContext(nil))
}

func TestWithContextAddsRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	Info(WithRequestID(context.Background(), "abc"), "hello")
	Info(context.Background(), "plain")

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "abc", entries[0].ContextMap()["request_id"])
	_, ok := entries[1].ContextMap()["request_id"]
	require.False(t, ok)
}

func TestWithContextFieldsAccumulate(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	ctx := WithContextFields(WithRequestID(context.Background(), "req-1"), zap.String("a", "1"))
	ctx = WithContextFields(ctx, zap.String("b", "2"))
	Warn(ctx, "both")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "req-1", fields["request_id"])
	require.Equal(t, "1", fields["a"])
	require.Equal(t, "2", fields["b"])
}
