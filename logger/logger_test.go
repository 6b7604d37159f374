package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	out := sanitize([]interface{}{"api_key", "abc", "user_id", "u1", "filename", "a.pdf", "dangling"})

	assert.Equal(t, "[REDACTED]", out[1])
	assert.Contains(t, out[3], "hash:")
	assert.NotContains(t, out[3], "u1")
	assert.Equal(t, "a.pdf", out[5])
	assert.Equal(t, "dangling", out[6])
}

func TestSanitizeMatchesWholeKeys(t *testing.T) {
	tests := []struct {
		key    string
		redact bool
	}{
		{"token", true},
		{"access_token", true},
		{"Authorization", true},
		{"jwt_secret", true},
		{"gemini_api_key", true},
		{"password", true},
		{"tokens", false},
		{"total_tokens", false},
		{"token_count", false},
		{"chunks", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			out := sanitize([]interface{}{tt.key, 1234})
			if tt.redact {
				assert.Equal(t, "[REDACTED]", out[1])
			} else {
				assert.Equal(t, 1234, out[1])
			}
		})
	}
}

func TestHashValueStable(t *testing.T) {
	assert.Equal(t, hashValue("u1"), hashValue("u1"))
	assert.NotEqual(t, hashValue("u1"), hashValue("u2"))
	assert.Equal(t, "", hashValue(""))
}
