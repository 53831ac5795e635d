package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	path := writeTempJSON(t, dir, "flag.json", map[string]any{
		"ledger_path":     "/data/seedbank.db",
		"s3_bucket":       "cold-backups",
		"initial_backoff": "2s",
		"max_attempts":    7,
	})

	t.Run("loads from config flag", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", path}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "/data/seedbank.db", cfg.LedgerPath)
		assert.Equal(t, "cold-backups", cfg.S3.Bucket)
		assert.Equal(t, 2*time.Second, cfg.Transfer.InitialBackoff)
		assert.Equal(t, 7, cfg.Transfer.MaxAttempts)

		// Untouched fields keep their defaults.
		assert.Equal(t, "blobs", cfg.BlobDir)
		assert.Equal(t, 16, cfg.IDHexLen)
	})

	t.Run("no flag means no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{LedgerPath: "keep.db"}
		parseJson(cfg)

		assert.Equal(t, "keep.db", cfg.LedgerPath)
	})

	t.Run("invalid JSON panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))
		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})

	t.Run("missing file panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", filepath.Join(dir, "nope.json")}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	os.Args = []string{"testbin", "-ledger", "/data/sb.db", "-blobs", "/data/blobs", "-bucket", "cold-backups", "upload", "a1b2"}

	cfg := &Config{}
	cfg.LoadDefaults()
	parseFlags(cfg)

	assert.Equal(t, "/data/sb.db", cfg.LedgerPath)
	assert.Equal(t, "/data/blobs", cfg.BlobDir)
	assert.Equal(t, "cold-backups", cfg.S3.Bucket)
}
