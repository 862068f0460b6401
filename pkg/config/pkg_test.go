package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		opts, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, DefaultAttemptTimeout, opts.Refresh.AttemptTimeout)
		assert.Equal(t, DefaultFallbackTTL, opts.Refresh.FallbackTTL)
		assert.Equal(t, "stderr", opts.Logging.Output)
		assert.Empty(t, opts.ConfigPath())
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		content := `
names:
  - a.example
  - b.example
logging:
  level: debug
  handler: json
resolver:
  servers:
    - 127.0.0.1:5353
  order: ["aaaa"]
  timeout: 2s
refresh:
  fallback_ttl: 30s
metrics:
  prometheus:
    enabled: true
    bind: 127.0.0.1:9091
`
		path := filepath.Join(t.TempDir(), "refresh-dns.yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		opts, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, []string{"a.example", "b.example"}, opts.Names)
		assert.Equal(t, "debug", opts.Logging.Level)
		assert.Equal(t, "json", opts.Logging.Handler)
		assert.Equal(t, "stderr", opts.Logging.Output)
		assert.Equal(t, []string{"127.0.0.1:5353"}, opts.Resolver.Servers)
		assert.Equal(t, []string{"aaaa"}, opts.Resolver.Order)
		assert.Equal(t, 2*time.Second, opts.Resolver.Timeout)
		assert.Equal(t, DefaultAttemptTimeout, opts.Refresh.AttemptTimeout)
		assert.Equal(t, 30*time.Second, opts.Refresh.FallbackTTL)
		assert.True(t, opts.Metrics.Prometheus.Enabled)
		assert.Equal(t, DefaultMetricsPath, opts.Metrics.Prometheus.Path)
		assert.Equal(t, path, opts.ConfigPath())

		assert.NoError(t, ValidateConfig(opts))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("broken yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("names: [a.example"), 0o600))

		_, err := Load(path)
		assert.Error(t, err)
	})
}
