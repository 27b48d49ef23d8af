package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir keeps a token_config.yaml in the working directory from leaking in.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoadConfig_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, BackendMongo, cfg.StorageBackend)
	assert.Equal(t, "tokens", cfg.Collection)
	assert.Equal(t, time.Hour, cfg.SessionTimeout)
	assert.Equal(t, 100*365*24*time.Hour, cfg.FinalTimeout)
	assert.Equal(t, time.Minute, cfg.CleanupInterval)
	assert.Equal(t, "refresh", cfg.FinalPolicy)
	assert.Equal(t, "uuid", cfg.TokenGenerator)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, 3, cfg.ConnectRetries)
	assert.Empty(t, cfg.AdminRole)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token_config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
STORAGE_BACKEND: bolt
BOLT_PATH: /tmp/tokens.db
SESSION_TIMEOUT: 15m
COLLECTION: sessions
`), 0o600))

	t.Setenv("TOKEN_COLLECTION", "from_env")
	t.Setenv("TOKEN_CLEANUP_INTERVAL", "30s")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, BackendBolt, cfg.StorageBackend)
	assert.Equal(t, "/tmp/tokens.db", cfg.BoltPath)
	assert.Equal(t, 15*time.Minute, cfg.SessionTimeout)
	assert.Equal(t, "from_env", cfg.Collection, "env wins over the file")
	assert.Equal(t, 30*time.Second, cfg.CleanupInterval)
}

func TestLoadConfig_Invalid(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TOKEN_STORAGE_BACKEND", "cassandra")

	_, err := LoadConfig("")
	assert.ErrorContains(t, err, "unknown storage backend")
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestServerConfig_Validate(t *testing.T) {
	cfg := ServerConfig{StorageBackend: BackendPostgres, Collection: "tokens", SessionTimeout: time.Second, FinalTimeout: time.Second}
	require.NoError(t, cfg.Validate())

	cfg.ConnectRetries = -1
	assert.Error(t, cfg.Validate())

	cfg.ConnectRetries = 0
	cfg.SessionTimeout = 0
	assert.Error(t, cfg.Validate())
}
