// Package config holds runtime settings for the seedbank CLI. The
// engine packages never read configuration sources themselves; a front
// end loads a Config here and passes explicit values down.
package config

import (
	"time"

	"github.com/sqweebloid/seedbank/internal/chunk"
	"github.com/sqweebloid/seedbank/internal/remote"
	"github.com/sqweebloid/seedbank/internal/transfer"
)

// Config is assembled from defaults, then an optional JSON file, then
// command-line flags; later sources take precedence.
type Config struct {
	// LedgerPath is the versioned ledger database file.
	LedgerPath string

	// BlobDir is the root of the local payload store.
	BlobDir string

	// IDHexLen is the archive identifier length in hex characters.
	IDHexLen int

	Transfer transfer.Config
	S3       remote.S3Config
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.LedgerPath = "seedbank.db"
	c.BlobDir = "blobs"
	c.IDHexLen = 16
	c.Transfer = transfer.Config{
		SinglePartThreshold: 64 << 20,
		PartLimits:          chunk.DefaultLimits(),
		MaxAttempts:         5,
		InitialBackoff:      500 * time.Millisecond,
		PartConcurrency:     4,
		GlobalConcurrency:   8,
	}
	c.S3 = remote.S3Config{
		Region:       "us-east-1",
		StorageClass: "GLACIER",
		RestoreDays:  3,
	}
}

// LoadConfig constructs a Config, applies defaults, then overlays
// values from JSON (if a config file was named) and command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
