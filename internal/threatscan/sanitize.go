package threatscan

import "strings"

const (
	redactedValue = "[REDACTED]"
	maxValueLen   = 200
)

// sensitiveKeys are substrings of field names whose values must never be
// persisted in audit records. Keys are compared with separators stripped,
// so "api-key", "api_key" and "ApiKey" all match "apikey".
var sensitiveKeys = []string{
	"password", "token", "secret", "authorization", "cookie", "apikey",
}

var keySeparators = strings.NewReplacer("-", "", "_", "")

// SanitizeValue truncates a value for safe persistence in audit metadata.
func SanitizeValue(value string) string {
	if len(value) > maxValueLen {
		return value[:maxValueLen] + "...[truncated]"
	}
	return value
}

// SanitizeFields redacts sensitive keys and truncates long values. The
// input map is not modified.
func SanitizeFields(fields map[string]string) map[string]string {
	if fields == nil {
		return nil
	}

	out := make(map[string]string, len(fields))
	for key, value := range fields {
		if IsSensitiveKey(key) {
			out[key] = redactedValue
			continue
		}
		out[key] = SanitizeValue(value)
	}
	return out
}

// IsSensitiveKey reports whether a field name must be redacted.
func IsSensitiveKey(key string) bool {
	normalized := keySeparators.Replace(strings.ToLower(key))
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(normalized, sensitive) {
			return true
		}
	}
	return false
}
