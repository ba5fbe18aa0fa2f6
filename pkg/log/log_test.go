package log_test

import (
	"bytes"
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"

	"github.com/flankk/node/pkg/log"
)

type recordedEvent struct {
	name  string
	kvs   []any
	isErr bool
}

type fakeRecorder struct {
	events []recordedEvent
}

func (r *fakeRecorder) TraceID() string { return "trace-1" }
func (r *fakeRecorder) SpanID() string  { return "span-1" }
func (r *fakeRecorder) RecordEvent(name string, kvs ...any) {
	r.events = append(r.events, recordedEvent{name: name, kvs: kvs})
}
func (r *fakeRecorder) RecordError(name string, kvs ...any) {
	r.events = append(r.events, recordedEvent{name: name, kvs: kvs, isErr: true})
}

func TestContextLogger(t *testing.T) {
	ctx := context.Background()

	_, isNoop := log.FromContext(ctx).(log.NoopLogger)
	assert.True(t, isNoop)

	var buf bytes.Buffer
	zl := log.NewZapLogger(log.Config{Output: "stdout"}, zapcore.AddSync(&buf))
	ctx = log.SetContextLogger(ctx, zl)
	_, isZap := log.FromContext(ctx).(*log.ZapLogger)
	assert.True(t, isZap)

	spanCtx := trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: [16]byte{1},
		SpanID:  [8]byte{1},
	}))
	spanCtx = log.SetContextLogger(spanCtx, zl)
	_, isSpan := log.FromContext(spanCtx).(log.SpanLogger)
	assert.True(t, isSpan)

	t.Run("span logger is not wrapped twice", func(t *testing.T) {
		var buf bytes.Buffer
		rec := &fakeRecorder{}
		base := log.NewZapLogger(log.Config{Format: "json", Output: "stdout"}, zapcore.AddSync(&buf))

		ctx := log.SetContextLogger(spanCtx, log.NewSpanLogger(base, rec))
		log.FromContext(ctx).Info("ledger committed")

		assert.Len(t, rec.events, 1)
		assert.Equal(t, 1, strings.Count(buf.String(), `"traceId"`))
	})

	ctx = log.SetContextLogger(context.Background(), nil)
	_, isNoop = log.FromContext(ctx).(log.NoopLogger)
	assert.True(t, isNoop)
}

func TestZapLogger(t *testing.T) {
	var buf bytes.Buffer
	lg := log.NewZapLogger(log.Config{Format: "logfmt", Level: log.LevelInfo, Output: "stdout"}, zapcore.AddSync(&buf))

	named := lg.WithName("channel").WithKV("channel", "0xabc")
	assert.Equal(t, "channel", named.Name())
	assert.Equal(t, []any{"channel", "0xabc"}, named.GetAllKV())

	named.Debug("hidden")
	named.Info("instructions applied", "nonce", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "instructions applied")
	assert.Contains(t, out, "nonce=3")
	assert.Contains(t, out, "channel=0xabc")
}

func TestSpanLogger(t *testing.T) {
	var buf bytes.Buffer
	rec := &fakeRecorder{}
	base := log.NewZapLogger(log.Config{Format: "json", Output: "stdout"}, zapcore.AddSync(&buf)).WithName("store")
	lg := log.NewSpanLogger(base, rec).WithKV("channel", "0x01")

	lg.Info("statement saved", "balance", big.NewInt(42))
	lg.Error("commit failed", "error", assert.AnError)

	require.Len(t, rec.events, 2)
	assert.Equal(t, "statement saved", rec.events[0].name)
	assert.False(t, rec.events[0].isErr)
	assert.Equal(t, []any{"level", "info", "component", "store", "channel", "0x01", "balance", big.NewInt(42)}, rec.events[0].kvs)
	assert.True(t, rec.events[1].isErr)

	assert.Contains(t, buf.String(), `"traceId":"trace-1"`)
	assert.Contains(t, buf.String(), `"spanId":"span-1"`)
}
