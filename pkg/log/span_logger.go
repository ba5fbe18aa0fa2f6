package log

import (
	"fmt"
	"math/big"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ Logger = SpanLogger{}

// SpanLogger forwards entries to a wrapped logger, tagged with trace and span
// ids, and mirrors them as events on the current span.
type SpanLogger struct {
	lg  Logger
	rec EventRecorder
}

func NewSpanLogger(lg Logger, rec EventRecorder) SpanLogger {
	return SpanLogger{lg: lg.AddCallerSkip(1), rec: rec}
}

func (sl SpanLogger) Debug(msg string, keysAndValues ...any) {
	sl.rec.RecordEvent(msg, sl.eventAttrs(LevelDebug, keysAndValues)...)
	sl.lg.Debug(msg, sl.traced(keysAndValues)...)
}

func (sl SpanLogger) Info(msg string, keysAndValues ...any) {
	sl.rec.RecordEvent(msg, sl.eventAttrs(LevelInfo, keysAndValues)...)
	sl.lg.Info(msg, sl.traced(keysAndValues)...)
}

func (sl SpanLogger) Warn(msg string, keysAndValues ...any) {
	sl.rec.RecordEvent(msg, sl.eventAttrs(LevelWarn, keysAndValues)...)
	sl.lg.Warn(msg, sl.traced(keysAndValues)...)
}

// Error marks the span as failed.
func (sl SpanLogger) Error(msg string, keysAndValues ...any) {
	sl.rec.RecordError(msg, sl.eventAttrs(LevelError, keysAndValues)...)
	sl.lg.Error(msg, sl.traced(keysAndValues)...)
}

func (sl SpanLogger) Fatal(msg string, keysAndValues ...any) {
	sl.rec.RecordError(msg, sl.eventAttrs(LevelFatal, keysAndValues)...)
	sl.lg.Fatal(msg, sl.traced(keysAndValues)...)
}

func (sl SpanLogger) WithKV(key string, value any) Logger {
	return SpanLogger{lg: sl.lg.WithKV(key, value), rec: sl.rec}
}

func (sl SpanLogger) GetAllKV() []any { return sl.lg.GetAllKV() }

func (sl SpanLogger) WithName(name string) Logger {
	return SpanLogger{lg: sl.lg.WithName(name), rec: sl.rec}
}

func (sl SpanLogger) Name() string { return sl.lg.Name() }

func (sl SpanLogger) AddCallerSkip(skip int) Logger {
	return SpanLogger{lg: sl.lg.AddCallerSkip(skip), rec: sl.rec}
}

func (sl SpanLogger) traced(keysAndValues []any) []any {
	out := make([]any, 0, len(keysAndValues)+4)
	out = append(out, "traceId", sl.rec.TraceID(), "spanId", sl.rec.SpanID())
	return append(out, keysAndValues...)
}

// eventAttrs carries the logger's own context onto the span, since span
// events do not see WithKV pairs otherwise.
func (sl SpanLogger) eventAttrs(level Level, keysAndValues []any) []any {
	kvs := sl.lg.GetAllKV()
	out := make([]any, 0, len(kvs)+len(keysAndValues)+4)
	out = append(out, "level", string(level), "component", sl.lg.Name())
	out = append(out, kvs...)
	return append(out, keysAndValues...)
}

var _ EventRecorder = (*OtelEventRecorder)(nil)

// OtelEventRecorder records entries on an OpenTelemetry span.
type OtelEventRecorder struct {
	span trace.Span
}

func NewOtelEventRecorder(span trace.Span) *OtelEventRecorder {
	return &OtelEventRecorder{span: span}
}

func (r *OtelEventRecorder) TraceID() string { return r.span.SpanContext().TraceID().String() }
func (r *OtelEventRecorder) SpanID() string  { return r.span.SpanContext().SpanID().String() }

func (r *OtelEventRecorder) RecordEvent(name string, keysAndValues ...any) {
	r.span.AddEvent(name, trace.WithAttributes(toAttributes(keysAndValues)...))
}

func (r *OtelEventRecorder) RecordError(name string, keysAndValues ...any) {
	r.span.AddEvent(name, trace.WithAttributes(toAttributes(keysAndValues)...))
	r.span.SetStatus(codes.Error, name)
}

func toAttributes(keysAndValues []any) []attribute.KeyValue {
	if len(keysAndValues)%2 != 0 {
		keysAndValues = append(keysAndValues, "MISSING")
	}

	attrs := make([]attribute.KeyValue, 0, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			attrs = append(attrs, attribute.String("invalidKeysAndValues", fmt.Sprint(keysAndValues[i:])))
			break
		}

		switch v := keysAndValues[i+1].(type) {
		case bool:
			attrs = append(attrs, attribute.Bool(key, v))
		case int:
			attrs = append(attrs, attribute.Int(key, v))
		case int64:
			attrs = append(attrs, attribute.Int64(key, v))
		case uint64:
			// nonces and block times; balances are *big.Int
			attrs = append(attrs, attribute.String(key, fmt.Sprint(v)))
		case float64:
			attrs = append(attrs, attribute.Float64(key, v))
		case *big.Int:
			attrs = append(attrs, attribute.String(key, v.String()))
		case error:
			attrs = append(attrs, attribute.String(key, v.Error()))
		case fmt.Stringer:
			attrs = append(attrs, attribute.String(key, v.String()))
		default:
			attrs = append(attrs, attribute.String(key, fmt.Sprint(v)))
		}
	}
	return attrs
}
