package logging

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger and redacts provider credentials from every
// entry before it reaches a sink.
//
// Components receive a named child logger:
//
//	logger, err := logging.NewLogger(logging.Options{Development: true, FilePath: "postforge.log"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	textLog := logger.Named("textgen")
//	textLog.Info("attempt failed", zap.String("model", "gpt-4o"), zap.Int("attempt", 2))
type Logger struct {
	zap         *zap.Logger
	development bool
	filePath    string
}

// Options configures NewLogger.
type Options struct {
	// Development switches the console encoder to colored human output and
	// lowers the default level to debug.
	Development bool

	// Level overrides the default level when non-empty ("debug", "info", ...).
	Level string

	// FilePath enables a rotated JSON log file. Empty disables file output.
	FilePath string

	// Rotation tunes the lumberjack writer behind FilePath.
	Rotation FileWriterConfig
}

// NewLogger builds a Logger that tees to stdout and, when configured, to a
// rotated log file.
func NewLogger(opts Options) (*Logger, error) {
	level := zapcore.InfoLevel
	if opts.Development {
		level = zapcore.DebugLevel
	}
	if opts.Level != "" {
		level = ParseLogLevelString(opts.Level, level)
	}

	core, err := NewMultiCore(level, opts.FilePath, opts.Rotation, opts.Development)
	if err != nil {
		return nil, fmt.Errorf("failed to create log core: %w", err)
	}

	return &Logger{
		zap:         zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)),
		development: opts.Development,
		filePath:    opts.FilePath,
	}, nil
}

// NewWriterLogger builds a JSON Logger writing to w. Used by tests that
// inspect log output.
func NewWriterLogger(w io.Writer, level zapcore.Level) *Logger {
	core := zapcore.NewCore(zapcore.NewJSONEncoder(NewEncoderConfig()), zapcore.AddSync(w), level)
	return &Logger{zap: zap.New(core)}
}

// FromZap wraps an existing zap logger, such as zaptest.NewLogger in tests.
func FromZap(z *zap.Logger) *Logger {
	return &Logger{zap: z}
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// Sync flushes buffered entries. Call before exit.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

// Debug logs at DebugLevel.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, redactFields(fields)...)
}

// Info logs at InfoLevel.
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, redactFields(fields)...)
}

// Warn logs at WarnLevel.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(msg, redactFields(fields)...)
}

// Error logs at ErrorLevel.
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(msg, redactFields(fields)...)
}

// Fatal logs at FatalLevel then exits the process.
func (l *Logger) Fatal(msg string, fields ...zap.Field) {
	l.zap.Fatal(msg, redactFields(fields)...)
}

// With returns a child logger that adds fields to every entry.
//
// Example:
//
//	reqLog := logger.With(zap.String("request_id", id))
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{
		zap:         l.zap.With(redactFields(fields)...),
		development: l.development,
		filePath:    l.filePath,
	}
}

// Named returns a child logger with name appended to the logger name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		zap:         l.zap.Named(name),
		development: l.development,
		filePath:    l.filePath,
	}
}

// Zap exposes the underlying logger for libraries that take *zap.Logger.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// IsDevelopment reports whether the logger was built in development mode.
func (l *Logger) IsDevelopment() bool {
	return l.development
}

// FilePath returns the rotated log file path, or "" when file output is off.
func (l *Logger) FilePath() string {
	return l.filePath
}

func redactFields(fields []zap.Field) []zap.Field {
	if len(fields) == 0 {
		return fields
	}
	result := make([]zap.Field, len(fields))
	for i, field := range fields {
		result[i] = redactField(field)
	}
	return result
}

func redactField(field zap.Field) zap.Field {
	if IsSensitiveField(field.Key) {
		return zap.String(field.Key, RedactedPlaceholder)
	}
	switch field.Type {
	case zapcore.StringType:
		if redacted := RedactSensitiveData(field.String); redacted != field.String {
			return zap.String(field.Key, redacted)
		}
	case zapcore.ErrorType:
		if err, ok := field.Interface.(error); ok && err != nil {
			msg := err.Error()
			if redacted := RedactSensitiveData(msg); redacted != msg {
				return zap.String(field.Key, redacted)
			}
		}
	}
	return field
}
