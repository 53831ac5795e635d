package transfer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sqweebloid/seedbank/internal/chunk"
	"github.com/sqweebloid/seedbank/internal/common"
	"github.com/sqweebloid/seedbank/internal/jobs"
	"github.com/sqweebloid/seedbank/internal/remote"
	"github.com/sqweebloid/seedbank/internal/treehash"
)

// StartUpload plans and runs a new upload job for the staged payload of
// archiveID. The descriptor text travels with the remote object for
// disaster recovery.
func (e *Engine) StartUpload(ctx context.Context, archiveID, descriptor string) (*jobs.UploadJob, error) {
	f, size, err := e.blobs.Open(archiveID)
	if err != nil {
		return nil, err
	}
	f.Close()

	strategy := e.Decide(size)

	var parts []jobs.PartUpload
	if strategy == jobs.StrategyMultiPart {
		plan, err := chunk.Plan(size, e.cfg.PartLimits)
		if err != nil {
			return nil, err
		}
		parts = make([]jobs.PartUpload, len(plan))
		for i, p := range plan {
			parts[i] = jobs.PartUpload{Seq: i, Offset: p.Offset, Length: p.Length}
		}
	}

	job, err := e.tracker.CreateUploadJob(ctx, archiveID, strategy, parts)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, job, descriptor)
}

// ResumeUpload continues a still-open upload job after a restart. Only
// unconfirmed parts are sent; confirmed data never travels twice.
func (e *Engine) ResumeUpload(ctx context.Context, jobID, descriptor string) (*jobs.UploadJob, error) {
	job, err := e.tracker.GetUploadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.State.Terminal() {
		return nil, fmt.Errorf("%w: upload job %s already %s", common.ErrValidation, jobID, job.State)
	}
	return e.run(ctx, job, descriptor)
}

// Cancel asks a running upload job to stop. Cancellation is
// cooperative: in-flight parts finish or fail normally, then the run
// loop aborts the remote upload and marks the job FAILED.
func (e *Engine) Cancel(ctx context.Context, jobID string) error {
	return e.tracker.SetUploadState(ctx, jobID, jobs.UploadCancelling, "cancellation requested")
}

func (e *Engine) run(ctx context.Context, job *jobs.UploadJob, descriptor string) (*jobs.UploadJob, error) {
	if err := e.tracker.SetUploadState(ctx, job.ID, jobs.UploadInProgress, "transfer started"); err != nil &&
		!errors.Is(err, common.ErrStateRegression) {
		return nil, err
	}

	f, size, err := e.blobs.Open(job.ArchiveID)
	if err != nil {
		return nil, e.fail(ctx, job, 0, err)
	}
	defer f.Close()

	expected, err := treehash.HexHash(io.NewSectionReader(f, 0, size))
	if err != nil {
		return nil, e.fail(ctx, job, 0, err)
	}

	switch job.Strategy {
	case jobs.StrategySinglePart:
		err = e.runSinglePart(ctx, job, f, size, expected, descriptor)
	case jobs.StrategyMultiPart:
		err = e.runMultiPart(ctx, job, f, size, expected, descriptor)
	default:
		err = fmt.Errorf("%w: unknown strategy %q", common.ErrValidation, job.Strategy)
	}
	if err != nil {
		return nil, err
	}

	if err := e.blobs.Confirm(job.ArchiveID); err != nil {
		e.logger.Warn(ctx, "payload confirmed remotely but local blob move failed",
			"archive", job.ArchiveID, "error", err)
	}
	return e.tracker.GetUploadJob(ctx, job.ID)
}

func (e *Engine) runSinglePart(ctx context.Context, job *jobs.UploadJob, f *os.File, size int64, expected, descriptor string) error {
	var remoteID, remoteSum string
	attempts, err := e.retryOp(ctx, func(ctx context.Context) error {
		var err error
		remoteID, remoteSum, err = e.vault.Upload(ctx, remote.UploadInput{
			Key:        remote.ObjectKey(job.ArchiveID),
			Body:       io.NewSectionReader(f, 0, size),
			Length:     size,
			TreeHash:   expected,
			Descriptor: descriptor,
		})
		return err
	})
	if err != nil {
		return e.fail(ctx, job, attempts, err)
	}

	if remoteSum != "" && remoteSum != expected {
		return e.fail(ctx, job, attempts, &common.ChecksumMismatchError{Expected: expected, Actual: remoteSum})
	}
	return e.complete(ctx, job, attempts, remoteID)
}

func (e *Engine) runMultiPart(ctx context.Context, job *jobs.UploadJob, f *os.File, size int64, expected, descriptor string) error {
	handle := job.RemoteHandle
	if handle == "" {
		attempts, err := e.retryOp(ctx, func(ctx context.Context) error {
			var err error
			handle, err = e.vault.InitiateUpload(ctx, remote.InitInput{
				Key:        remote.ObjectKey(job.ArchiveID),
				TotalSize:  size,
				PartSize:   job.Parts[0].Length,
				Descriptor: descriptor,
			})
			return err
		})
		if err != nil {
			return e.fail(ctx, job, attempts, err)
		}
		// Persisted before any part travels, so a restart resumes
		// against this handle instead of opening a second upload.
		if err := e.tracker.SetRemoteHandle(ctx, job.ID, handle); err != nil {
			return err
		}
	}

	partAttempts, partErr := e.uploadParts(ctx, job, f, handle)

	fresh, err := e.tracker.GetUploadJob(ctx, job.ID)
	if err != nil {
		return err
	}

	if remaining := fresh.UnconfirmedParts(); len(remaining) > 0 {
		if partErr == nil {
			partErr = fmt.Errorf("%w: %d part(s) unconfirmed", common.ErrIncompleteUpload, len(remaining))
		}
		e.abort(ctx, job, handle)
		return e.fail(ctx, job, partAttempts, partErr)
	}

	var remoteID, remoteSum string
	attempts, err := e.retryOp(ctx, func(ctx context.Context) error {
		var err error
		remoteID, remoteSum, err = e.vault.CompleteUpload(ctx, remote.CompleteInput{
			Handle:    handle,
			Key:       remote.ObjectKey(job.ArchiveID),
			TotalSize: size,
			TreeHash:  expected,
		})
		return err
	})
	if err != nil {
		// Completion is never blindly retried past its own backoff
		// budget; the job fails and the caller decides.
		e.abort(ctx, job, handle)
		return e.fail(ctx, job, attempts, err)
	}

	if remoteSum != "" && remoteSum != expected {
		return e.fail(ctx, job, attempts, &common.ChecksumMismatchError{Expected: expected, Actual: remoteSum})
	}
	return e.complete(ctx, job, attempts, remoteID)
}

// uploadParts sends every unconfirmed part across the worker pool.
// Parts have no ordering requirement. It returns the attempt count of
// the worst failing part, or of any part when all succeed.
func (e *Engine) uploadParts(ctx context.Context, job *jobs.UploadJob, f *os.File, handle string) (int, error) {
	fresh, err := e.tracker.GetUploadJob(ctx, job.ID)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.PartConcurrency)

	var (
		mu          sync.Mutex
		maxAttempts int
	)

	for _, p := range fresh.UnconfirmedParts() {
		if gctx.Err() != nil {
			break
		}
		if e.cancelled(ctx, job.ID) {
			break
		}

		part := p
		g.Go(func() error {
			if err := e.global.Acquire(gctx, 1); err != nil {
				return err
			}
			defer e.global.Release(1)

			sum, err := treehash.Hash(io.NewSectionReader(f, part.Offset, part.Length))
			if err != nil {
				return err
			}
			checksum := hex.EncodeToString(sum)

			attempts, err := e.retryOp(gctx, func(ctx context.Context) error {
				return e.vault.UploadPart(ctx, remote.PartInput{
					Handle:     handle,
					Key:        remote.ObjectKey(job.ArchiveID),
					PartNumber: part.Seq + 1,
					Offset:     part.Offset,
					Body:       io.NewSectionReader(f, part.Offset, part.Length),
					Length:     part.Length,
					TreeHash:   checksum,
				})
			})

			mu.Lock()
			if attempts > maxAttempts {
				maxAttempts = attempts
			}
			mu.Unlock()

			if err != nil {
				return fmt.Errorf("part %d: %w", part.Seq, err)
			}
			// Recorded with the parent context: a sibling's failure
			// must not lose a confirmation that already happened.
			return e.tracker.ConfirmPart(ctx, job.ID, part.Seq, checksum)
		})
	}

	err = g.Wait()
	return maxAttempts, err
}

// cancelled checks whether a cooperative cancellation was requested.
func (e *Engine) cancelled(ctx context.Context, jobID string) bool {
	job, err := e.tracker.GetUploadJob(ctx, jobID)
	if err != nil {
		return false
	}
	return job.State == jobs.UploadCancelling
}

// abort releases the remote upload. If the abort itself fails, the
// handle is recorded for manual or later cleanup rather than forgotten.
func (e *Engine) abort(ctx context.Context, job *jobs.UploadJob, handle string) {
	_, err := e.retryOp(ctx, func(ctx context.Context) error {
		return e.vault.AbortUpload(ctx, handle, remote.ObjectKey(job.ArchiveID))
	})
	if err != nil {
		e.logger.Warn(ctx, "abort failed, recording dangling handle",
			"job", job.ID, "handle", handle, "error", err)
		if recErr := e.tracker.RecordDanglingHandle(ctx, job.ID, handle); recErr != nil {
			e.logger.Error(ctx, "failed to record dangling handle",
				"job", job.ID, "handle", handle, "error", recErr)
		}
	}
}

func (e *Engine) complete(ctx context.Context, job *jobs.UploadJob, attempts int, remoteID string) error {
	if err := e.tracker.SetRemoteID(ctx, job.ID, remoteID); err != nil {
		return err
	}
	if err := e.tracker.RecordAttempts(ctx, job.ID, attempts, ""); err != nil {
		return err
	}
	if err := e.tracker.SetUploadState(ctx, job.ID, jobs.UploadCompleted, "remote confirmed"); err != nil {
		return err
	}
	e.logger.Info(ctx, "upload completed", "job", job.ID, "archive", job.ArchiveID, "remote_id", remoteID)
	return nil
}

// fail marks the job FAILED and wraps the cause with the job identifier
// and attempt count so the caller can resume or abort deliberately.
func (e *Engine) fail(ctx context.Context, job *jobs.UploadJob, attempts int, cause error) error {
	if err := e.tracker.RecordAttempts(ctx, job.ID, attempts, cause.Error()); err != nil {
		e.logger.Error(ctx, "failed to record attempts", "job", job.ID, "error", err)
	}
	if err := e.tracker.SetUploadState(ctx, job.ID, jobs.UploadFailed, cause.Error()); err != nil &&
		!errors.Is(err, common.ErrStateRegression) {
		e.logger.Error(ctx, "failed to mark job failed", "job", job.ID, "error", err)
	}
	e.logger.Error(ctx, "upload failed", "job", job.ID, "attempts", attempts, "error", cause)
	return &common.TransferError{JobID: job.ID, Attempts: attempts, Err: cause}
}
