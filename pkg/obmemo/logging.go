package obmemo

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel defines the severity level for logging
type LogLevel int

const (
	// LogLevelDebug enables all log messages including detailed debugging
	LogLevelDebug LogLevel = iota

	// LogLevelInfo enables informational messages and above
	LogLevelInfo

	// LogLevelWarn enables warning messages and above
	LogLevelWarn

	// LogLevelError enables only error messages
	LogLevelError

	// LogLevelNone disables all logging
	LogLevelNone
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelInfo:
		return zapcore.InfoLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// Logger defines the interface for memoizer logging
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value interface{}
}

// F is a convenience function to create a logging field
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// ZapLogger implements Logger on top of a zap logger
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger adapts an existing zap logger
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger}
}

// NewDefaultLogger creates a JSON logger writing to stderr at the given level.
// LogLevelNone returns a NoOpLogger.
func NewDefaultLogger(level LogLevel) Logger {
	if level >= LogLevelNone {
		return NewNoOpLogger()
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	cfg.Sampling = nil

	logger, err := cfg.Build()
	if err != nil {
		return NewNoOpLogger()
	}
	return NewZapLogger(logger.Named("obmemo"))
}

// Debug logs a debug message
func (z *ZapLogger) Debug(msg string, fields ...Field) {
	z.logger.Debug(msg, zapFields(fields)...)
}

// Info logs an info message
func (z *ZapLogger) Info(msg string, fields ...Field) {
	z.logger.Info(msg, zapFields(fields)...)
}

// Warn logs a warning message
func (z *ZapLogger) Warn(msg string, fields ...Field) {
	z.logger.Warn(msg, zapFields(fields)...)
}

// Error logs an error message
func (z *ZapLogger) Error(msg string, fields ...Field) {
	z.logger.Error(msg, zapFields(fields)...)
}

// With creates a new logger with additional fields
func (z *ZapLogger) With(fields ...Field) Logger {
	return &ZapLogger{logger: z.logger.With(zapFields(fields)...)}
}

// Zap returns the underlying zap logger
func (z *ZapLogger) Zap() *zap.Logger {
	return z.logger
}

func zapFields(fields []Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		if err, ok := f.Value.(error); ok {
			out[i] = zap.NamedError(f.Key, err)
			continue
		}
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}

// NoOpLogger is a logger that does nothing - useful for disabling logging
type NoOpLogger struct{}

// NewNoOpLogger creates a logger that discards all messages
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (nol *NoOpLogger) Debug(string, ...Field) {}
func (nol *NoOpLogger) Info(string, ...Field)  {}
func (nol *NoOpLogger) Warn(string, ...Field)  {}
func (nol *NoOpLogger) Error(string, ...Field) {}
func (nol *NoOpLogger) With(...Field) Logger   { return nol }

// LoggingConfig defines which memoizer events CreateLoggingHooks logs
type LoggingConfig struct {
	Logger Logger

	// LogHits enables logging of cache hit events
	LogHits bool

	// LogMisses enables logging of cache miss events
	LogMisses bool

	// LogEvictions enables logging of eviction events
	LogEvictions bool

	// LogInvalidations enables logging of invalidation events
	LogInvalidations bool

	// IncludeArgs determines whether to include call arguments in logs (may be verbose)
	IncludeArgs bool

	// MaxArgsLength limits the length of the arguments included in logs
	MaxArgsLength int
}

// NewDefaultLoggingConfig creates a logging configuration that logs every event
func NewDefaultLoggingConfig(level LogLevel) *LoggingConfig {
	return &LoggingConfig{
		Logger:           NewDefaultLogger(level),
		LogHits:          true,
		LogMisses:        true,
		LogEvictions:     true,
		LogInvalidations: true,
		IncludeArgs:      false,
		MaxArgsLength:    100,
	}
}

// CreateLoggingHooks creates a set of hooks that implement memoizer event logging
func CreateLoggingHooks(config *LoggingConfig) *Hooks {
	if config == nil || config.Logger == nil {
		return &Hooks{}
	}

	hooks := &Hooks{}
	logger := config.Logger

	fields := func(event, key string, args []any) []Field {
		fs := []Field{F("key", key), F("event", event)}
		if config.IncludeArgs {
			fs = append(fs, F("args", truncateValue(fmt.Sprintf("%v", args), config.MaxArgsLength)))
		} else if len(args) > 0 {
			fs = append(fs, F("args_count", len(args)))
		}
		return fs
	}

	if config.LogHits {
		hooks.AddOnHit(func(_ context.Context, key string, args []any) {
			logger.Debug("Memo hit", fields("hit", key, args)...)
		})
	}

	if config.LogMisses {
		hooks.AddOnMiss(func(_ context.Context, key string, args []any) {
			logger.Info("Memo miss", fields("miss", key, args)...)
		})
	}

	if config.LogEvictions {
		hooks.AddOnEvict(func(_ context.Context, key string, args []any, reason EvictReason) {
			logger.Info("Memo eviction", append(fields("evict", key, args), F("reason", reason.String()))...)
		})
	}

	if config.LogInvalidations {
		hooks.AddOnInvalidate(func(_ context.Context, key string, args []any) {
			logger.Info("Memo invalidation", fields("invalidate", key, args)...)
		})
	}

	return hooks
}

// LoggingHookBuilder provides a fluent interface for creating logging hooks
type LoggingHookBuilder struct {
	config *LoggingConfig
}

// NewLoggingHookBuilder creates a new logging hook builder
func NewLoggingHookBuilder() *LoggingHookBuilder {
	return &LoggingHookBuilder{
		config: &LoggingConfig{
			Logger:        NewNoOpLogger(), // Default to no-op
			MaxArgsLength: 100,
		},
	}
}

// WithLogger sets the logger to use
func (lhb *LoggingHookBuilder) WithLogger(logger Logger) *LoggingHookBuilder {
	lhb.config.Logger = logger
	return lhb
}

// WithLevel sets the logging level (creates a default logger)
func (lhb *LoggingHookBuilder) WithLevel(level LogLevel) *LoggingHookBuilder {
	lhb.config.Logger = NewDefaultLogger(level)
	return lhb
}

// EnableHitLogging enables hit logging
func (lhb *LoggingHookBuilder) EnableHitLogging() *LoggingHookBuilder {
	lhb.config.LogHits = true
	return lhb
}

// EnableMissLogging enables miss logging
func (lhb *LoggingHookBuilder) EnableMissLogging() *LoggingHookBuilder {
	lhb.config.LogMisses = true
	return lhb
}

// EnableEvictionLogging enables eviction logging
func (lhb *LoggingHookBuilder) EnableEvictionLogging() *LoggingHookBuilder {
	lhb.config.LogEvictions = true
	return lhb
}

// EnableInvalidationLogging enables invalidation logging
func (lhb *LoggingHookBuilder) EnableInvalidationLogging() *LoggingHookBuilder {
	lhb.config.LogInvalidations = true
	return lhb
}

// EnableAllLogging enables all types of memoizer event logging
func (lhb *LoggingHookBuilder) EnableAllLogging() *LoggingHookBuilder {
	lhb.config.LogHits = true
	lhb.config.LogMisses = true
	lhb.config.LogEvictions = true
	lhb.config.LogInvalidations = true
	return lhb
}

// IncludeArgs enables including call arguments in logs
func (lhb *LoggingHookBuilder) IncludeArgs(maxLength int) *LoggingHookBuilder {
	lhb.config.IncludeArgs = true
	lhb.config.MaxArgsLength = maxLength
	return lhb
}

// Build creates the hooks configured by this builder
func (lhb *LoggingHookBuilder) Build() *Hooks {
	return CreateLoggingHooks(lhb.config)
}

func truncateValue(value string, maxLength int) string {
	if maxLength < 4 || len(value) <= maxLength {
		return value
	}
	return value[:maxLength-3] + "..."
}
