package activity

import "strings"

// maxDetailStringBytes bounds individual string values inside entry details
// so a single oversized payload cannot bloat the log table or the live
// stream.
const maxDetailStringBytes = 200

const truncationMarker = "…[truncated]"

// sensitiveKeyParts are matched as case-insensitive substrings of detail
// keys. A match replaces the whole value with [REDACTED].
var sensitiveKeyParts = []string{
	"password", "token", "secret", "api_key", "apikey", "authorization",
	"cookie", "credential", "private_key", "access_token", "refresh_token",
	"client_secret",
}

// Sanitize returns a deep copy of details safe for persistence and
// broadcast. Sensitive keys are redacted when redact is true; oversized
// strings are truncated unconditionally.
func Sanitize(details map[string]any, redact bool) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		if redact && isSensitiveKey(k) {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = sanitizeValue(v, redact)
	}
	return out
}

func sanitizeValue(v any, redact bool) any {
	switch val := v.(type) {
	case string:
		return truncate(val)
	case map[string]any:
		return Sanitize(val, redact)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item, redact)
		}
		return out
	default:
		return v
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

func truncate(s string) string {
	if len(s) <= maxDetailStringBytes {
		return s
	}
	return s[:maxDetailStringBytes] + truncationMarker
}
