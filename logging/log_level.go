package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// ParseLogLevelString maps LOG_LEVEL onto a zap level. "warning" is
// accepted for "warn"; blank or unknown values yield defaultLevel.
func ParseLogLevelString(levelStr string, defaultLevel zapcore.Level) zapcore.Level {
	name := strings.ToLower(strings.TrimSpace(levelStr))
	if name == "warning" {
		name = "warn"
	}
	if name == "" {
		return defaultLevel
	}
	level, err := zapcore.ParseLevel(name)
	if err != nil {
		return defaultLevel
	}
	return level
}
