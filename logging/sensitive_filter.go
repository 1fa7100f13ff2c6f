package logging

import (
	"regexp"
	"strings"
)

// RedactedPlaceholder replaces sensitive data in log output.
const RedactedPlaceholder = "[REDACTED]"

var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer\s+[a-zA-Z0-9._-]{20,})`),
	regexp.MustCompile(`(?i)(password\s*[:=]\s*[^\s,;]+)`),
	regexp.MustCompile(`(?i)(secret\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(token\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(srdash_session=[^\s;]+)`),
}

// Field names whose values are never logged.
var sensitiveFieldNames = []string{
	"PASSWORD",
	"PWD",
	"SECRET",
	"TOKEN",
	"SESSION",
	"COOKIE",
}

// RedactSensitiveData replaces every detected secret in value with
// RedactedPlaceholder.
//
// Example:
//
//	RedactSensitiveData("login with password=hunter22")
//	// "login with [REDACTED]"
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

// IsSensitiveField reports whether a field name indicates a secret value.
func IsSensitiveField(fieldName string) bool {
	upperName := strings.ToUpper(fieldName)
	for _, name := range sensitiveFieldNames {
		if strings.Contains(upperName, name) {
			return true
		}
	}
	return false
}
