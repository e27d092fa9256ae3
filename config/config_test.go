package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `log:
  level: debug
  format: json
cache:
  type: sqlite
  sqlite_path: data/cache.db
store:
  path: /var/lib/designer/profiles.db
registry:
  endpoints: [localhost:2379, localhost:22379]
  namespace: designer
  dial_timeout: 2s
import:
  tenant: acme
  fail_on_already_imported: true
  global_model_rule: uri.startsWith("http://opcfoundation.org/UA/")
serve:
  port: 6000
  check_interval: 1m
`

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "designer.yaml", sample)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Path())
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())
	assert.Equal(t, "json", cfg.LogFormat())
	assert.Equal(t, CacheSQLite, cfg.CacheType())
	assert.Equal(t, filepath.Join(dir, "data", "cache.db"), cfg.CacheSQLitePath())
	assert.Equal(t, "/var/lib/designer/profiles.db", cfg.StorePath())

	require.True(t, cfg.RegistryEnabled())
	assert.Equal(t, []string{"localhost:2379", "localhost:22379"}, cfg.Registry.Endpoints)
	assert.Equal(t, "designer", cfg.Registry.Namespace)
	assert.Equal(t, 2*time.Second, cfg.Registry.DialTimeout)

	assert.Equal(t, "acme", cfg.Tenant())
	assert.True(t, cfg.FailOnAlreadyImported())
	assert.Equal(t, `uri.startsWith("http://opcfoundation.org/UA/")`, cfg.GlobalModelRule())
	assert.Equal(t, 6000, cfg.ServePort())
	assert.Equal(t, time.Minute, cfg.CheckInterval())
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, slog.LevelInfo, cfg.LogLevel())
	assert.Equal(t, "text", cfg.LogFormat())
	assert.Equal(t, CacheFile, cfg.CacheType())
	assert.Equal(t, "cache", cfg.CacheDir())
	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL())
	assert.Equal(t, "nodeset", cfg.KeyPrefix())
	assert.Empty(t, cfg.StorePath())
	assert.False(t, cfg.RegistryEnabled())
	assert.Empty(t, cfg.Tenant())
	assert.False(t, cfg.FailOnAlreadyImported())
	assert.Equal(t, 50051, cfg.ServePort())
	assert.Equal(t, 15*time.Second, cfg.CheckInterval())
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "designer.yml", "cache:\n  type: redis\n  key_prefix: ns\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, CacheRedis, cfg.CacheType())
	assert.Equal(t, "ns", cfg.KeyPrefix())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "cache type", content: "cache:\n  type: s3\n"},
		{name: "log format", content: "log:\n  format: xml\n"},
		{name: "interval", content: "serve:\n  check_interval: soon\n"},
		{name: "yaml", content: "cache: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), "designer.yaml", tt.content)
			_, err := Load(path)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoadFromDir_WalksParents(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "designer.yaml", "import:\n  tenant: parent\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	cfg, err := LoadFromDir(nested)
	require.NoError(t, err)
	assert.Equal(t, "parent", cfg.Tenant())
	assert.Equal(t, filepath.Join(root, "cache"), cfg.CacheDir())
}

func TestLoadFromDir_NotFound(t *testing.T) {
	_, err := LoadFromDir(t.TempDir())
	// A designer.yaml above the temp dir would be found; only assert the
	// error kind when the walk failed.
	if err != nil {
		assert.ErrorIs(t, err, ErrNotFound)
	}
}
