package log

// Logger is the structured logger used across the node.
//
// keysAndValues are alternating key/value pairs, e.g. "channel", id, "nonce", 3.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	// Fatal logs and terminates the process for the zap backed logger.
	Fatal(msg string, keysAndValues ...any)

	// WithKV returns a logger that attaches key=value to every entry.
	WithKV(key string, value any) Logger
	// GetAllKV returns the pairs attached through WithKV.
	GetAllKV() []any
	// WithName returns a logger named after a component, e.g. "channel" or "store".
	WithName(name string) Logger
	Name() string
	// AddCallerSkip is used by wrappers so that entries point at the real call site.
	AddCallerSkip(skip int) Logger
}

// Level is the severity of an entry.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// Config configures the zap backed logger. It is read from the environment with cleanenv.
type Config struct {
	Format string `env:"FLANKK_LOG_FORMAT" env-default:"console"` // console, logfmt or json
	Level  Level  `env:"FLANKK_LOG_LEVEL" env-default:"info"`
	Output string `env:"FLANKK_LOG_OUTPUT" env-default:"stderr"` // stderr, stdout or a file path
}

// EventRecorder receives log entries that should also be attached to a trace span.
type EventRecorder interface {
	TraceID() string
	SpanID() string
	RecordEvent(name string, keysAndValues ...any)
	RecordError(name string, keysAndValues ...any)
}
