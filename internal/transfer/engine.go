// Package transfer drives archive payload uploads and retrieval
// requests against the remote vault. It picks a strategy per payload
// size, retries transient failures with exponential backoff, runs
// multi-part uploads across a bounded worker pool, resumes interrupted
// jobs without re-sending confirmed parts, and aborts cleanly on
// unrecoverable failure or cancellation.
package transfer

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/semaphore"

	"github.com/sqweebloid/seedbank/internal/blobstore"
	"github.com/sqweebloid/seedbank/internal/chunk"
	"github.com/sqweebloid/seedbank/internal/common"
	"github.com/sqweebloid/seedbank/internal/jobs"
	"github.com/sqweebloid/seedbank/internal/logging"
	"github.com/sqweebloid/seedbank/internal/remote"
)

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	// SinglePartThreshold is the largest payload sent in one request.
	// The boundary is inclusive: a payload of exactly this size is
	// still single-part.
	SinglePartThreshold int64

	// PartLimits is the remote side's part-size contract.
	PartLimits chunk.Limits

	// MaxAttempts bounds retries of one remote operation.
	MaxAttempts int

	// InitialBackoff seeds the exponential backoff between attempts.
	InitialBackoff time.Duration

	// PartConcurrency bounds concurrent part transfers within one job.
	PartConcurrency int

	// GlobalConcurrency bounds concurrent part transfers across all
	// jobs sharing this engine, to respect remote rate limits.
	GlobalConcurrency int64
}

// DefaultConfig mirrors sensible cold-storage settings.
func DefaultConfig() Config {
	return Config{
		SinglePartThreshold: 64 << 20,
		PartLimits:          chunk.DefaultLimits(),
		MaxAttempts:         5,
		InitialBackoff:      500 * time.Millisecond,
		PartConcurrency:     4,
		GlobalConcurrency:   8,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SinglePartThreshold <= 0 {
		c.SinglePartThreshold = d.SinglePartThreshold
	}
	if c.PartLimits == (chunk.Limits{}) {
		c.PartLimits = d.PartLimits
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.PartConcurrency <= 0 {
		c.PartConcurrency = d.PartConcurrency
	}
	if c.GlobalConcurrency <= 0 {
		c.GlobalConcurrency = d.GlobalConcurrency
	}
	return c
}

// Engine executes transfers. One engine is shared by all jobs so the
// global concurrency bound actually holds.
type Engine struct {
	vault   remote.Vault
	tracker *jobs.Tracker
	blobs   *blobstore.Store
	logger  logging.Logger
	cfg     Config
	global  *semaphore.Weighted
}

func New(vault remote.Vault, tracker *jobs.Tracker, blobs *blobstore.Store, logger logging.Logger, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		vault:   vault,
		tracker: tracker,
		blobs:   blobs,
		logger:  logger.With("module", "transfer"),
		cfg:     cfg,
		global:  semaphore.NewWeighted(cfg.GlobalConcurrency),
	}
}

// Decide picks the transfer strategy for a payload size. Sizes at or
// below the threshold go single-part.
func (e *Engine) Decide(size int64) jobs.Strategy {
	if size <= e.cfg.SinglePartThreshold {
		return jobs.StrategySinglePart
	}
	return jobs.StrategyMultiPart
}

// retryOp runs fn with exponential backoff on transient errors, at most
// MaxAttempts times. It reports how many attempts were made.
func (e *Engine) retryOp(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	attempts := 0
	b := retry.WithMaxRetries(uint64(e.cfg.MaxAttempts-1), retry.NewExponential(e.cfg.InitialBackoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if common.IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	return attempts, err
}
