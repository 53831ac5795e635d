// Package librarian is the facade front ends call into. Every
// operation returns structured results or typed errors; nothing here
// writes to a console. All state the operations touch is explicit:
// the package never reads environment variables or home-directory
// files.
package librarian

import (
	"context"
	"fmt"
	"io"

	"github.com/sqweebloid/seedbank/internal/blobstore"
	"github.com/sqweebloid/seedbank/internal/common"
	"github.com/sqweebloid/seedbank/internal/descriptor"
	"github.com/sqweebloid/seedbank/internal/jobs"
	"github.com/sqweebloid/seedbank/internal/ledger"
	"github.com/sqweebloid/seedbank/internal/logging"
	"github.com/sqweebloid/seedbank/internal/remote"
	"github.com/sqweebloid/seedbank/internal/transfer"
	"github.com/sqweebloid/seedbank/internal/treehash"
)

// Deps wires a Librarian. Records, Tracker, Engine, Reconciler and
// Blobs are required; Committer and Logger fall back to no-ops.
type Deps struct {
	Records    *ledger.SQLiteStore
	Tracker    *jobs.Tracker
	Engine     *transfer.Engine
	Reconciler *jobs.Reconciler
	Blobs      *blobstore.Store
	Committer  Committer
	Logger     logging.Logger

	// LedgerPath is the snapshot handed to the Committer.
	LedgerPath string
}

type Librarian struct {
	records    *ledger.SQLiteStore
	tracker    *jobs.Tracker
	engine     *transfer.Engine
	reconciler *jobs.Reconciler
	blobs      *blobstore.Store
	committer  Committer
	logger     logging.Logger
	ledgerPath string
}

func New(d Deps) *Librarian {
	if d.Committer == nil {
		d.Committer = NopCommitter{}
	}
	if d.Logger == nil {
		d.Logger = logging.NewNopLogger()
	}
	return &Librarian{
		records:    d.Records,
		tracker:    d.Tracker,
		engine:     d.Engine,
		reconciler: d.Reconciler,
		blobs:      d.Blobs,
		committer:  d.Committer,
		logger:     d.Logger.With("module", "librarian"),
		ledgerPath: d.LedgerPath,
	}
}

// CreateArchive records a new archive and stages its payload locally.
// The record and the staged blob share the freshly assigned identifier;
// the payload checksum is computed from the staged copy.
func (l *Librarian) CreateArchive(ctx context.Context, sourcePath, description string, files []ledger.FileEntry, payload io.Reader) (*ledger.ArchiveRecord, error) {
	rec, err := l.records.CreateRecord(ctx, sourcePath, description, files)
	if err != nil {
		return nil, err
	}

	if _, err := l.blobs.Stage(rec.ID, payload); err != nil {
		return nil, fmt.Errorf("stage payload for %s: %w", rec.ID, err)
	}

	f, size, err := l.blobs.Open(rec.ID)
	if err != nil {
		return nil, err
	}
	sum, err := treehash.HexHash(io.NewSectionReader(f, 0, size))
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("hash payload for %s: %w", rec.ID, err)
	}
	if err := l.records.SetChecksum(ctx, rec.ID, sum); err != nil {
		return nil, err
	}
	rec.Checksum = sum

	l.commitLedger(ctx, "archive created")
	l.logger.Info(ctx, "archive created", "archive", rec.ID, "files", len(files), "bytes", size)
	return rec, nil
}

// ResolveReference resolves a short identifier prefix to its record.
func (l *Librarian) ResolveReference(ctx context.Context, prefix string) (*ledger.ArchiveRecord, error) {
	return l.records.ResolveReference(ctx, prefix)
}

// ListArchives lists records most-recent-first. limit <= 0 lists all.
func (l *Librarian) ListArchives(ctx context.Context, limit int) ([]*ledger.ArchiveRecord, error) {
	return l.records.ListRecords(ctx, limit)
}

// StartUpload transfers the staged payload of the referenced archive to
// the remote vault and keeps the record's upload status in step with
// the job.
func (l *Librarian) StartUpload(ctx context.Context, reference string) (*jobs.UploadJob, error) {
	rec, err := l.records.ResolveReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	desc, err := descriptor.Encode(descriptor.Descriptor{
		ID:          rec.ID,
		FileCount:   len(rec.Files),
		TreeHash:    rec.Checksum,
		Description: rec.Description,
	})
	if err != nil {
		return nil, err
	}

	if err := l.records.UpdateUploadStatus(ctx, rec.ID, ledger.UploadInProgress); err != nil {
		return nil, err
	}

	job, err := l.engine.StartUpload(ctx, rec.ID, desc)
	l.finishUpload(ctx, rec.ID, job, err)
	return job, err
}

// ResumeUpload picks a still-open upload job back up after a restart.
func (l *Librarian) ResumeUpload(ctx context.Context, jobID string) (*jobs.UploadJob, error) {
	job, err := l.tracker.GetUploadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	rec, err := l.records.GetRecord(ctx, job.ArchiveID)
	if err != nil {
		return nil, err
	}

	desc, err := descriptor.Encode(descriptor.Descriptor{
		ID:          rec.ID,
		FileCount:   len(rec.Files),
		TreeHash:    rec.Checksum,
		Description: rec.Description,
	})
	if err != nil {
		return nil, err
	}

	job, err = l.engine.ResumeUpload(ctx, jobID, desc)
	l.finishUpload(ctx, rec.ID, job, err)
	return job, err
}

// CancelUpload requests cooperative cancellation of a running upload.
func (l *Librarian) CancelUpload(ctx context.Context, jobID string) error {
	return l.engine.Cancel(ctx, jobID)
}

func (l *Librarian) finishUpload(ctx context.Context, archiveID string, job *jobs.UploadJob, runErr error) {
	status := ledger.UploadFailed
	if runErr == nil && job != nil && job.State == jobs.UploadCompleted {
		status = ledger.UploadCompleted
	}
	if err := l.records.UpdateUploadStatus(ctx, archiveID, status); err != nil {
		l.logger.Error(ctx, "failed to update record upload status",
			"archive", archiveID, "status", status, "error", err)
	}
	l.commitLedger(ctx, "upload finished")
}

// StartRetrieval asks the remote to stage the referenced archive for
// download, optionally a byte range only.
func (l *Librarian) StartRetrieval(ctx context.Context, reference string, rng *remote.ByteRange) (*jobs.RetrievalJob, error) {
	rec, err := l.records.ResolveReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if rec.UploadStatus != ledger.UploadCompleted {
		return nil, fmt.Errorf("%w: archive %s has no completed upload", common.ErrValidation, rec.ID)
	}

	if err := l.records.UpdateRetrievalStatus(ctx, rec.ID, ledger.RetrievalPending); err != nil {
		return nil, err
	}

	job, err := l.engine.StartRetrieval(ctx, rec.ID, rng)
	if err != nil {
		return nil, err
	}
	if err := l.records.UpdateRetrievalStatus(ctx, rec.ID, ledger.RetrievalInProgress); err != nil {
		return nil, err
	}
	l.commitLedger(ctx, "retrieval requested")
	return job, nil
}

// CheckResult is what one reconciliation sweep found.
type CheckResult struct {
	Retrievals []*jobs.RetrievalJob
	Anomalies  []error
}

// CheckJobs reconciles every open retrieval job against remote status
// and mirrors the outcome onto the records. Anomalies are surfaced in
// the result, not as a failure of the sweep.
func (l *Librarian) CheckJobs(ctx context.Context) (*CheckResult, error) {
	updated, anomalies, err := l.reconciler.ReconcileAll(ctx)
	if err != nil {
		return nil, err
	}

	for _, job := range updated {
		status := ledger.RetrievalStatus(job.State)
		if err := l.records.UpdateRetrievalStatus(ctx, job.ArchiveID, status); err != nil {
			l.logger.Error(ctx, "failed to mirror retrieval status",
				"archive", job.ArchiveID, "status", status, "error", err)
		}
	}

	if len(updated) > 0 {
		l.commitLedger(ctx, "jobs reconciled")
	}
	return &CheckResult{Retrievals: updated, Anomalies: anomalies}, nil
}

// commitLedger hands the ledger snapshot to the version-control
// collaborator. Failure to commit never fails the operation that
// triggered it; the ledger itself is already durable.
func (l *Librarian) commitLedger(ctx context.Context, reason string) {
	commitID, err := l.committer.Commit(ctx, l.ledgerPath)
	if err != nil {
		l.logger.Warn(ctx, "ledger snapshot commit failed", "reason", reason, "error", err)
		return
	}
	if err := l.committer.Push(ctx); err != nil {
		l.logger.Warn(ctx, "ledger snapshot push failed", "commit", commitID, "error", err)
	}
}
