package activity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize_RedactsSensitiveKeys(t *testing.T) {
	details := map[string]any{
		"method":        "tools/call",
		"api_key":       "sk-12345",
		"Authorization": "Bearer abc",
		"nested": map[string]any{
			"client_secret": "shhh",
			"host":          "example.com",
		},
		"items": []any{
			map[string]any{"refresh_token": "rt-1", "index": 1},
		},
	}

	out := Sanitize(details, true)
	require.NotNil(t, out)

	assert.Equal(t, "tools/call", out["method"])
	assert.Equal(t, "[REDACTED]", out["api_key"])
	assert.Equal(t, "[REDACTED]", out["Authorization"])

	nested := out["nested"].(map[string]any)
	assert.Equal(t, "[REDACTED]", nested["client_secret"])
	assert.Equal(t, "example.com", nested["host"])

	item := out["items"].([]any)[0].(map[string]any)
	assert.Equal(t, "[REDACTED]", item["refresh_token"])
	assert.Equal(t, 1, item["index"])
}

func TestSanitize_SubstringKeyMatch(t *testing.T) {
	out := Sanitize(map[string]any{
		"MY_API_KEY_V2":   "x",
		"sessionCookie":   "y",
		"user_credential": "z",
	}, true)

	assert.Equal(t, "[REDACTED]", out["MY_API_KEY_V2"])
	assert.Equal(t, "[REDACTED]", out["sessionCookie"])
	assert.Equal(t, "[REDACTED]", out["user_credential"])
}

func TestSanitize_TruncatesLongStrings(t *testing.T) {
	long := strings.Repeat("a", maxDetailStringBytes+50)
	out := Sanitize(map[string]any{"payload": long}, true)

	got := out["payload"].(string)
	assert.True(t, strings.HasSuffix(got, truncationMarker))
	assert.Equal(t, maxDetailStringBytes+len(truncationMarker), len(got))
}

func TestSanitize_ShortStringsUntouched(t *testing.T) {
	out := Sanitize(map[string]any{"msg": "hello"}, true)
	assert.Equal(t, "hello", out["msg"])
}

func TestSanitize_RedactionDisabled(t *testing.T) {
	long := strings.Repeat("b", maxDetailStringBytes+1)
	out := Sanitize(map[string]any{
		"api_key": "sk-visible",
		"payload": long,
	}, false)

	// Keys stay visible but oversized values are still truncated.
	assert.Equal(t, "sk-visible", out["api_key"])
	assert.True(t, strings.HasSuffix(out["payload"].(string), truncationMarker))
}

func TestSanitize_NilDetails(t *testing.T) {
	assert.Nil(t, Sanitize(nil, true))
}

func TestSanitize_DoesNotMutateInput(t *testing.T) {
	details := map[string]any{"token": "secret-value"}
	_ = Sanitize(details, true)
	assert.Equal(t, "secret-value", details["token"])
}
