package logging

import (
	"os"

	"go.uber.org/zap/zapcore"
)

// NewMultiCore creates a zapcore.Core that tees to stdout and, when filePath
// is non-empty, to a lumberjack-rotated JSON file.
//
// The file output always uses JSON. The console uses colored human output in
// development mode and JSON otherwise.
func NewMultiCore(level zapcore.Level, filePath string, rotation FileWriterConfig, isDev bool) (zapcore.Core, error) {
	consoleCore := zapcore.NewCore(consoleEncoder(isDev), zapcore.Lock(os.Stdout), level)
	if filePath == "" {
		return consoleCore, nil
	}

	fileWriter, err := NewFileWriterWithConfig(filePath, rotation)
	if err != nil {
		return nil, err
	}
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(NewEncoderConfig()), fileWriter, level)

	return zapcore.NewTee(consoleCore, fileCore), nil
}

// NewMultiCoreWithWriters tees to the provided writers. Useful in tests.
func NewMultiCoreWithWriters(level zapcore.Level, consoleWriter, fileWriter zapcore.WriteSyncer, isDev bool) zapcore.Core {
	return zapcore.NewTee(
		zapcore.NewCore(consoleEncoder(isDev), consoleWriter, level),
		zapcore.NewCore(zapcore.NewJSONEncoder(NewEncoderConfig()), fileWriter, level),
	)
}

func consoleEncoder(isDev bool) zapcore.Encoder {
	if isDev {
		return zapcore.NewConsoleEncoder(NewConsoleEncoderConfig())
	}
	return zapcore.NewJSONEncoder(NewEncoderConfig())
}
