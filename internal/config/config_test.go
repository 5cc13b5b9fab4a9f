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
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.Listen)
		assert.Equal(t, "localhost:6379", cfg.RedisAddr)
		assert.False(t, cfg.FailOpen)
		assert.Equal(t, 30, cfg.MetricsRetentionDays)
	})

	t.Run("YAMLFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(
			"listen: \":9090\"\n"+
				"redis_addr: \"redis:6379\"\n"+
				"database_dsn: \"postgres://gate@db/tenantgate\"\n"+
				"fail_open: true\n"+
				"resolver_cache_ttl: 5s\n"), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, ":9090", cfg.Listen)
		assert.Equal(t, "redis:6379", cfg.RedisAddr)
		assert.True(t, cfg.FailOpen)
		assert.Equal(t, 5*time.Second, cfg.ResolverCacheTTL)
		// Untouched keys keep their defaults.
		assert.Equal(t, 1024, cfg.MetricsBuffer)
	})

	t.Run("EnvOverridesFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("listen: \":9090\"\n"), 0o600))
		t.Setenv("TENANTGATE_LISTEN", ":7070")
		t.Setenv("TENANTGATE_FAIL_OPEN", "true")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, ":7070", cfg.Listen)
		assert.True(t, cfg.FailOpen)
	})

	t.Run("BadEnvValue", func(t *testing.T) {
		t.Setenv("TENANTGATE_REDIS_DB", "not-a-number")
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("BadLogLevel", func(t *testing.T) {
		t.Setenv("TENANTGATE_LOG_LEVEL", "loud")
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load("/does/not/exist.yaml")
		assert.Error(t, err)
	})
}
