package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  host: 127.0.0.1
  port: 9443
logging:
  level: debug
rateLimit:
  categories:
    login:
      requests: 5
      window: 1m
    general:
      requests: 200
      window: 30s
csrf:
  enabled: true
  tokenLifetime: 2h
trustedProxies:
  - 10.0.0.5
maxBodyBytes: 2048
`

func TestLoadConfigFromReader(t *testing.T) {
	config, err := LoadConfigFromReader(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9443", config.Server.Address())
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, 5, config.RateLimit.Categories["login"].Requests)
	assert.Equal(t, 30*time.Second, config.RateLimit.Categories["general"].Window.Duration())
	assert.True(t, config.CSRF.Enabled)
	assert.Equal(t, 2*time.Hour, config.CSRF.TokenLifetime.Duration())
	assert.Equal(t, []string{"10.0.0.5"}, config.TrustedProxies)
	assert.Equal(t, int64(2048), config.MaxBodyBytes)
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	config, err := LoadConfigFromReader(strings.NewReader("server:\n  port: 8081\n"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 15*time.Second, config.Server.ReadTimeout.Duration())
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, 1, config.RateLimit.Categories["login"].Requests)
	assert.Equal(t, 100, config.RateLimit.Categories["general"].Requests)
	assert.Equal(t, int64(1<<20), config.MaxBodyBytes)
	assert.Equal(t, []string{"/api/security"}, config.Allowlist.PrivilegedPrefixes)
	assert.Equal(t, []string{"/healthz", "/metrics"}, config.ExcludedPaths)
	assert.Equal(t, "stdout", config.Audit.Output)
	assert.Equal(t, 1024, config.Audit.BufferSize)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9443, config.Server.Port)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "port out of range",
			yaml: "server:\n  port: 70000\n",
		},
		{
			name: "tls without key material",
			yaml: "server:\n  tls:\n    enabled: true\n",
		},
		{
			name: "redis enabled without address",
			yaml: "redis:\n  enabled: true\n",
		},
		{
			name: "non-positive category limit",
			yaml: "rateLimit:\n  categories:\n    login:\n      requests: 0\n      window: 1m\n",
		},
		{
			name: "malformed yaml",
			yaml: "server: [unbalanced\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfigFromReader(strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("SECGATE_TEST_HOST", "10.1.2.3")
	os.Unsetenv("SECGATE_TEST_UNSET")

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "set variable",
			content: "host: ${SECGATE_TEST_HOST}",
			want:    "host: 10.1.2.3",
		},
		{
			name:    "unset variable becomes empty",
			content: "host: ${SECGATE_TEST_UNSET}",
			want:    "host: ",
		},
		{
			name:    "unset variable with default",
			content: "host: ${SECGATE_TEST_UNSET:-localhost}",
			want:    "host: localhost",
		},
		{
			name:    "set variable wins over default",
			content: "host: ${SECGATE_TEST_HOST:-localhost}",
			want:    "host: 10.1.2.3",
		},
		{
			name:    "escaped dollar passes through",
			content: "password: pa$${SECGATE_TEST_HOST}word",
			want:    "password: pa${SECGATE_TEST_HOST}word",
		},
		{
			name:    "plain text untouched",
			content: "host: localhost",
			want:    "host: localhost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, substituteEnvVars(tt.content))
		})
	}
}

func TestLoadConfigExpandsEnvInValues(t *testing.T) {
	t.Setenv("SECGATE_TEST_PORT", "9090")

	config, err := LoadConfigFromReader(strings.NewReader("server:\n  port: ${SECGATE_TEST_PORT}\n"))
	require.NoError(t, err)
	assert.Equal(t, 9090, config.Server.Port)
}
