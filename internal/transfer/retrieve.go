package transfer

import (
	"context"

	"github.com/sqweebloid/seedbank/internal/jobs"
	"github.com/sqweebloid/seedbank/internal/remote"
)

// StartRetrieval asks the remote to stage an archive (optionally a byte
// range of it) for download and records the asynchronous job. The
// remote works on its own clock; callers learn about progress through
// reconciliation, never through timers of ours.
func (e *Engine) StartRetrieval(ctx context.Context, archiveID string, rng *remote.ByteRange) (*jobs.RetrievalJob, error) {
	var remoteJobID string
	attempts, err := e.retryOp(ctx, func(ctx context.Context) error {
		var err error
		remoteJobID, err = e.vault.InitiateRetrieval(ctx, remote.ObjectKey(archiveID), rng)
		return err
	})
	if err != nil {
		e.logger.Error(ctx, "retrieval request failed",
			"archive", archiveID, "attempts", attempts, "error", err)
		return nil, err
	}

	var off, length *int64
	if rng != nil {
		off, length = &rng.Offset, &rng.Length
	}

	job, err := e.tracker.CreateRetrievalJob(ctx, archiveID, remoteJobID, off, length)
	if err != nil {
		return nil, err
	}
	// The remote accepted the request, so the job is already staging.
	if err := e.tracker.SetRetrievalState(ctx, job.ID, jobs.RetrievalInProgress, "remote accepted"); err != nil {
		return nil, err
	}
	job.State = jobs.RetrievalInProgress

	e.logger.Info(ctx, "retrieval requested", "archive", archiveID, "job", job.ID, "remote_job", remoteJobID)
	return job, nil
}
