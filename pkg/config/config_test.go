package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "zstd", cfg.Index.Compression)
	assert.Equal(t, "manual", cfg.Index.ReloadPolicy)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Equal(t, 5*time.Second, cfg.Index.MaxReloadWait)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "textindex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
index:
  dataDir: /var/lib/textindex
  compression: lz4
  reloadPolicy: oncommit
  reloadDelay: 250ms
search:
  defaultFields: [title]
  conjunction: true
`), 0o644))
	t.Setenv("TI_SEARCH_SCORER", "tf")
	t.Setenv("TI_INDEX_THREADS", "4")
	t.Setenv("TI_SERVER_API_KEYS", "k1,k2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/textindex", cfg.Index.DataDir)
	assert.Equal(t, "lz4", cfg.Index.Compression)
	assert.Equal(t, "oncommit", cfg.Index.ReloadPolicy)
	assert.Equal(t, 250*time.Millisecond, cfg.Index.ReloadDelay)
	assert.Equal(t, []string{"title"}, cfg.Search.DefaultFields)
	assert.True(t, cfg.Search.Conjunction)
	assert.Equal(t, "tf", cfg.Search.Scorer)
	assert.Equal(t, 4, cfg.Index.Threads)
	assert.Equal(t, 100, cfg.Search.MaxResults)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"compression", func(c *Config) { c.Index.Compression = "gzip" }},
		{"reload policy", func(c *Config) { c.Index.ReloadPolicy = "sometimes" }},
		{"scorer", func(c *Config) { c.Search.Scorer = "pagerank" }},
		{"threads", func(c *Config) { c.Index.Threads = -1 }},
		{"limits", func(c *Config) { c.Search.DefaultLimit = 500 }},
		{"rate", func(c *Config) { c.Ingest.MaxDocsPerSecond = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestLoadRejectsBadFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("index: [unclosed"), 0o644))
	_, err = Load(path)
	require.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	cfg := Default().Postgres
	cfg.Host = "db"
	assert.Equal(t, "host=db port=5432 user=textindex password= dbname=textindex sslmode=disable", cfg.DSN())
}
