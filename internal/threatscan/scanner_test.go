package threatscan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScannerScan(t *testing.T) {
	scanner := NewScanner(DefaultSignatures()...)

	tests := []struct {
		name     string
		input    string
		wantKind Kind
	}{
		{"union select with quote", `' UNION SELECT password FROM users --`, KindSQLInjection},
		{"drop table", `x'; DROP TABLE users; --`, KindSQLInjection},
		{"tautology", `admin' OR '1'='1`, KindSQLInjection},
		{"trailing comment", `value --`, KindSQLInjection},
		{"script tag", `<script>alert(1)</script>`, KindXSS},
		{"spaced script tag", `< script >alert(1)`, KindXSS},
		{"javascript uri", `javascript:alert(document.cookie)`, KindXSS},
		{"event handler", `<img src=x onerror=alert(1)>`, KindXSS},
		{"iframe", `<iframe src="https://evil.example">`, KindXSS},
		{"unix traversal", `../../etc/passwd`, KindPathTraversal},
		{"windows traversal", `..\..\windows\system32`, KindPathTraversal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals := scanner.Scan(tt.input)
			require.NotEmpty(t, signals)
			assert.Equal(t, tt.wantKind, signals[0].Kind)
		})
	}
}

func TestScannerCleanInput(t *testing.T) {
	scanner := NewScanner(DefaultSignatures()...)

	clean := []string{
		"",
		"hello world",
		"select a plan that fits",
		"please update my address",
		"the script of the play",
		"jane.doe@example.com",
		"/api/users/42",
		"version 1.2.3",
	}

	for _, input := range clean {
		t.Run(input, func(t *testing.T) {
			assert.Empty(t, scanner.Scan(input))
		})
	}
}

func TestScannerSignalOrder(t *testing.T) {
	scanner := NewScanner(DefaultSignatures()...)

	// Input matching multiple signatures reports them in signature order.
	signals := scanner.Scan(`' UNION SELECT '<script>' --`)
	require.NotEmpty(t, signals)
	assert.Equal(t, "sqli-keyword", signals[0].Signature.Name)
}

func TestScannerCustomSignatures(t *testing.T) {
	scanner := NewScanner(NewSignature("forbidden-word", KindSQLInjection, `(?i)\bforbidden\b`))

	assert.NotEmpty(t, scanner.Scan("this is FORBIDDEN"))
	assert.Empty(t, scanner.Scan(`<script>`))
}

func TestSanitizeValue(t *testing.T) {
	t.Run("short values pass through", func(t *testing.T) {
		assert.Equal(t, "hello", SanitizeValue("hello"))
	})

	t.Run("long values are truncated", func(t *testing.T) {
		long := strings.Repeat("a", 500)
		got := SanitizeValue(long)
		assert.True(t, strings.HasSuffix(got, "...[truncated]"))
		assert.Less(t, len(got), len(long))
	})
}

func TestSanitizeFields(t *testing.T) {
	fields := map[string]string{
		"username": "alice",
		"password": "hunter2",
		"Api-Key":  "secret-value",
		"note":     strings.Repeat("x", 500),
	}

	got := SanitizeFields(fields)

	assert.Equal(t, "alice", got["username"])
	assert.Equal(t, "[REDACTED]", got["password"])
	assert.Equal(t, "[REDACTED]", got["Api-Key"])
	assert.True(t, strings.HasSuffix(got["note"], "...[truncated]"))

	// The input map is untouched.
	assert.Equal(t, "hunter2", fields["password"])
}

func TestIsSensitiveKey(t *testing.T) {
	assert.True(t, IsSensitiveKey("password"))
	assert.True(t, IsSensitiveKey("X-Api-Token"))
	assert.True(t, IsSensitiveKey("Api-Key"))
	assert.True(t, IsSensitiveKey("api_key"))
	assert.True(t, IsSensitiveKey("Set-Cookie"))
	assert.False(t, IsSensitiveKey("username"))
	assert.False(t, IsSensitiveKey("request-id"))
}
