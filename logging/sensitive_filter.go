package logging

import (
	"regexp"
	"strings"
)

// RedactedPlaceholder replaces sensitive values in log output.
const RedactedPlaceholder = "[REDACTED]"

var sensitivePatterns = []*regexp.Regexp{
	// OpenAI keys: sk-... and sk-proj-...
	regexp.MustCompile(`(?i)(sk-[a-zA-Z0-9_-]{20,})`),
	// Google / Gemini keys
	regexp.MustCompile(`(AIza[a-zA-Z0-9_-]{35})`),
	regexp.MustCompile(`(?i)(bearer\s+[a-zA-Z0-9._-]{20,})`),
	regexp.MustCompile(`(?i)(api-key\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(api_key\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(apikey\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(token\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(secret\s*[:=]\s*[^\s,;]{8,})`),
	// Signed blob URLs returned by image providers carry their signature in the query.
	regexp.MustCompile(`(?i)(sig=[a-zA-Z0-9%/+=_-]{16,})`),
}

var sensitiveFieldNames = []string{
	"API_KEY",
	"APIKEY",
	"AUTHORIZATION",
	"PASSWORD",
	"SECRET",
	"ACCESS_TOKEN",
	"AUTH_TOKEN",
}

// RedactSensitiveData replaces every detected credential in value.
//
// Example:
//
//	RedactSensitiveData("calling with sk-abc123def456ghi789jkl012")
//	// "calling with [REDACTED]"
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}
	result := value
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, RedactedPlaceholder)
	}
	return result
}

// IsSensitiveField reports whether a field name denotes a credential.
// Matching is case-insensitive and ignores "-" versus "_".
//
//	IsSensitiveField("openai_api_key") // true
//	IsSensitiveField("model")          // false
func IsSensitiveField(fieldName string) bool {
	upperName := strings.ReplaceAll(strings.ToUpper(fieldName), "-", "_")
	for _, name := range sensitiveFieldNames {
		if strings.Contains(upperName, name) {
			return true
		}
	}
	return false
}
