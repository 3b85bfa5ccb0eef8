package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, "shelfsync.yaml", `
destination:
  bucket: my-mirror
  region: eu-west-1
  root: /books
state:
  backend: sqlite
  path: /var/lib/shelfsync/state.db
workers: 8
retry:
  maxAttempts: 5
  initialBackoff: 200ms
  maxBackoff: 5s
rateLimit:
  qps: 2
  destQps: 4
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "my-mirror", cfg.Destination.Bucket)
	assert.Equal(t, "eu-west-1", cfg.Destination.Region)
	assert.Equal(t, "/books", cfg.Destination.Root)
	assert.Equal(t, "sqlite", cfg.State.Backend)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeFile(t, "shelfsync.yaml", `
destination:
  bucket: my-mirror
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "document", cfg.State.Backend)
	assert.Equal(t, ".state/state.json", cfg.State.Path)
	assert.Equal(t, ".logs/failures.jsonl", cfg.FailureLog)
}

func TestLoadConfig_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("SHELFSYNC_BUCKET", "bucket-from-env")

	path := writeFile(t, "shelfsync.yaml", `
destination:
  bucket: $(SHELFSYNC_BUCKET)
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "bucket-from-env", cfg.Destination.Bucket)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestRateLimitConfig_PerServiceFallback(t *testing.T) {
	shared := RateLimitConfig{QPS: 2}
	assert.Equal(t, 2.0, shared.SourceQPSEffective())
	assert.Equal(t, 2.0, shared.DestQPSEffective())

	mixed := RateLimitConfig{QPS: 2, DestQPS: 4}
	assert.Equal(t, 2.0, mixed.SourceQPSEffective())
	assert.Equal(t, 4.0, mixed.DestQPSEffective())

	disabled := RateLimitConfig{}
	assert.Equal(t, 0.0, disabled.SourceQPSEffective())
}

func TestLoadCatalogue(t *testing.T) {
	path := writeFile(t, "catalogue.json", `[
  {"id": "b1", "title": "Alpha", "ext": "pdf", "updated_at": "2026-01-15T10:00:00Z", "size": 2048, "url": "https://example.com/content/b1"},
  {"id": "b2", "title": "Beta", "size": 100, "url": "https://example.com/content/b2"}
]`)

	items, err := loadCatalogue(path)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "b1", items[0].ID)
	assert.Equal(t, "Alpha", items[0].Title)
	assert.Equal(t, "pdf", items[0].Ext)
	assert.Equal(t, int64(2048), items[0].Size)
	assert.Equal(t, "https://example.com/content/b1", items[0].Locator)

	// Ext may be absent; the planner fills the default later.
	assert.Empty(t, items[1].Ext)
}

func TestLoadCatalogue_Malformed(t *testing.T) {
	path := writeFile(t, "catalogue.json", `{"not": "an array"}`)
	_, err := loadCatalogue(path)
	assert.Error(t, err)
}
