package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sqweebloid/seedbank/internal/common"
	"github.com/sqweebloid/seedbank/internal/dbx"
	"github.com/sqweebloid/seedbank/internal/timex"
)

// Tracker persists jobs, their parts, and the append-only transition
// log in the ledger database. Like the ledger, mutations follow
// single-writer discipline.
type Tracker struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time
}

func NewTracker(db *sql.DB) *Tracker {
	return &Tracker{db: db, now: time.Now}
}

// CreateUploadJob records a new PENDING upload job and its planned
// parts in one transaction.
func (t *Tracker) CreateUploadJob(ctx context.Context, archiveID string, strategy Strategy, parts []PartUpload) (*UploadJob, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job := &UploadJob{
		ID:        uuid.NewString(),
		ArchiveID: archiveID,
		Strategy:  strategy,
		State:     UploadPending,
		CreatedAt: t.now().UTC(),
		Parts:     parts,
	}

	err := dbx.WithTx(ctx, t.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO upload_jobs (id, archive_id, strategy, state, created_at) VALUES (?, ?, ?, ?, ?)`,
			job.ID, job.ArchiveID, string(job.Strategy), string(job.State),
			timex.Stamp(job.CreatedAt))
		if err != nil {
			return err
		}
		for i := range parts {
			parts[i].Seq = i
			_, err := tx.ExecContext(ctx,
				`INSERT INTO upload_parts (job_id, seq, part_offset, part_length) VALUES (?, ?, ?, ?)`,
				job.ID, i, parts[i].Offset, parts[i].Length)
			if err != nil {
				return err
			}
		}
		return t.appendTransition(ctx, tx, job.ID, string(UploadPending), "created")
	})
	if err != nil {
		return nil, fmt.Errorf("create upload job: %w", err)
	}
	return job, nil
}

// GetUploadJob loads a job and its parts.
func (t *Tracker) GetUploadJob(ctx context.Context, id string) (*UploadJob, error) {
	job := &UploadJob{}
	var createdAt, strategy, state string
	err := t.db.QueryRowContext(ctx,
		`SELECT id, archive_id, strategy, state, remote_handle, remote_id, attempts, last_error, created_at
		 FROM upload_jobs WHERE id = ?`, id).
		Scan(&job.ID, &job.ArchiveID, &strategy, &state, &job.RemoteHandle,
			&job.RemoteID, &job.Attempts, &job.LastError, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("upload job %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load upload job %s: %w", id, err)
	}
	job.Strategy = Strategy(strategy)
	job.State = UploadState(state)
	if job.CreatedAt, err = timex.ParseStamp(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	rows, err := t.db.QueryContext(ctx,
		`SELECT seq, part_offset, part_length, checksum, confirmed FROM upload_parts
		 WHERE job_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("load parts of job %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var p PartUpload
		var confirmed int
		if err := rows.Scan(&p.Seq, &p.Offset, &p.Length, &p.Checksum, &confirmed); err != nil {
			return nil, err
		}
		p.Confirmed = confirmed != 0
		job.Parts = append(job.Parts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return job, nil
}

// ListOpenUploadJobs returns jobs that have not reached a terminal state.
func (t *Tracker) ListOpenUploadJobs(ctx context.Context) ([]*UploadJob, error) {
	return t.listUploadJobs(ctx,
		`SELECT id FROM upload_jobs WHERE state NOT IN (?, ?) ORDER BY created_at`,
		string(UploadCompleted), string(UploadFailed))
}

func (t *Tracker) listUploadJobs(ctx context.Context, query string, args ...any) ([]*UploadJob, error) {
	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list upload jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	jobs := make([]*UploadJob, 0, len(ids))
	for _, id := range ids {
		job, err := t.GetUploadJob(ctx, id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// SetUploadState advances a job's state and appends to the transition
// log. Reapplying the current state is a no-op (so a terminal state is
// recorded exactly once); moving backwards is a state regression.
func (t *Tracker) SetUploadState(ctx context.Context, id string, state UploadState, note string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.GetUploadJob(ctx, id)
	if err != nil {
		return err
	}
	if job.State == state {
		return nil
	}
	if !job.State.Advances(state) {
		return fmt.Errorf("upload job %s %s -> %s: %w", id, job.State, state, common.ErrStateRegression)
	}

	return dbx.WithTx(ctx, t.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE upload_jobs SET state = ? WHERE id = ?`, string(state), id); err != nil {
			return err
		}
		return t.appendTransition(ctx, tx, id, string(state), note)
	})
}

// SetRemoteHandle persists the remote upload handle before any part is
// sent, so a restart can resume against the same upload.
func (t *Tracker) SetRemoteHandle(ctx context.Context, id, handle string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.db.ExecContext(ctx, `UPDATE upload_jobs SET remote_handle = ? WHERE id = ?`, handle, id)
	if err != nil {
		return fmt.Errorf("set remote handle: %w", err)
	}
	return nil
}

// SetRemoteID records the identifier the remote confirmed on completion.
func (t *Tracker) SetRemoteID(ctx context.Context, id, remoteID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.db.ExecContext(ctx, `UPDATE upload_jobs SET remote_id = ? WHERE id = ?`, remoteID, id)
	if err != nil {
		return fmt.Errorf("set remote id: %w", err)
	}
	return nil
}

// RecordAttempts stores the attempt count and last error of a job for
// the caller to inspect after a failure.
func (t *Tracker) RecordAttempts(ctx context.Context, id string, attempts int, lastError string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.db.ExecContext(ctx,
		`UPDATE upload_jobs SET attempts = ?, last_error = ? WHERE id = ?`, attempts, lastError, id)
	if err != nil {
		return fmt.Errorf("record attempts: %w", err)
	}
	return nil
}

// ConfirmPart marks one part as confirmed with its checksum. Confirmed
// parts are never re-sent.
func (t *Tracker) ConfirmPart(ctx context.Context, jobID string, seq int, checksum string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.db.ExecContext(ctx,
		`UPDATE upload_parts SET confirmed = 1, checksum = ? WHERE job_id = ? AND seq = ?`,
		checksum, jobID, seq)
	if err != nil {
		return fmt.Errorf("confirm part %d of job %s: %w", seq, jobID, err)
	}
	return nil
}

// RecordDanglingHandle remembers a remote upload handle whose abort
// failed, so it can be cleaned up manually or by a later run instead of
// being forgotten.
func (t *Tracker) RecordDanglingHandle(ctx context.Context, jobID, handle string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO dangling_handles (handle, job_id, recorded_at) VALUES (?, ?, ?)
		 ON CONFLICT(handle) DO NOTHING`,
		handle, jobID, timex.Stamp(t.now()))
	if err != nil {
		return fmt.Errorf("record dangling handle: %w", err)
	}
	return nil
}

// DanglingHandles lists remote handles awaiting cleanup.
func (t *Tracker) DanglingHandles(ctx context.Context) ([]string, error) {
	rows, err := t.db.QueryContext(ctx, `SELECT handle FROM dangling_handles ORDER BY recorded_at`)
	if err != nil {
		return nil, fmt.Errorf("list dangling handles: %w", err)
	}
	defer rows.Close()

	var handles []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, rows.Err()
}

// CreateRetrievalJob records a new PENDING retrieval job.
func (t *Tracker) CreateRetrievalJob(ctx context.Context, archiveID, remoteJobID string, rangeOffset, rangeLength *int64) (*RetrievalJob, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job := &RetrievalJob{
		ID:          uuid.NewString(),
		ArchiveID:   archiveID,
		RemoteJobID: remoteJobID,
		State:       RetrievalPending,
		RequestedAt: t.now().UTC(),
		RangeOffset: rangeOffset,
		RangeLength: rangeLength,
	}

	err := dbx.WithTx(ctx, t.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO retrieval_jobs (id, archive_id, remote_job_id, state, requested_at, range_offset, range_length)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			job.ID, job.ArchiveID, job.RemoteJobID, string(job.State),
			timex.Stamp(job.RequestedAt), job.RangeOffset, job.RangeLength)
		if err != nil {
			return err
		}
		return t.appendTransition(ctx, tx, job.ID, string(RetrievalPending), "created")
	})
	if err != nil {
		return nil, fmt.Errorf("create retrieval job: %w", err)
	}
	return job, nil
}

// GetRetrievalJob loads a retrieval job.
func (t *Tracker) GetRetrievalJob(ctx context.Context, id string) (*RetrievalJob, error) {
	job := &RetrievalJob{}
	var requestedAt, state string
	err := t.db.QueryRowContext(ctx,
		`SELECT id, archive_id, remote_job_id, state, requested_at, range_offset, range_length
		 FROM retrieval_jobs WHERE id = ?`, id).
		Scan(&job.ID, &job.ArchiveID, &job.RemoteJobID, &state, &requestedAt,
			&job.RangeOffset, &job.RangeLength)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("retrieval job %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load retrieval job %s: %w", id, err)
	}
	job.State = RetrievalState(state)
	if job.RequestedAt, err = timex.ParseStamp(requestedAt); err != nil {
		return nil, fmt.Errorf("parse requested_at: %w", err)
	}
	return job, nil
}

// ListOpenRetrievalJobs returns retrieval jobs that are not terminal.
func (t *Tracker) ListOpenRetrievalJobs(ctx context.Context) ([]*RetrievalJob, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT id FROM retrieval_jobs WHERE state NOT IN (?, ?) ORDER BY requested_at`,
		string(RetrievalExpired), string(RetrievalFailed))
	if err != nil {
		return nil, fmt.Errorf("list retrieval jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	jobs := make([]*RetrievalJob, 0, len(ids))
	for _, id := range ids {
		job, err := t.GetRetrievalJob(ctx, id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// SetRetrievalState advances a retrieval job's state with the same
// monotonicity rules as SetUploadState.
func (t *Tracker) SetRetrievalState(ctx context.Context, id string, state RetrievalState, note string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.GetRetrievalJob(ctx, id)
	if err != nil {
		return err
	}
	if job.State == state {
		return nil
	}
	if !job.State.Advances(state) {
		return fmt.Errorf("retrieval job %s %s -> %s: %w", id, job.State, state, common.ErrStateRegression)
	}

	return dbx.WithTx(ctx, t.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE retrieval_jobs SET state = ? WHERE id = ?`, string(state), id); err != nil {
			return err
		}
		return t.appendTransition(ctx, tx, id, string(state), note)
	})
}

// Transitions returns a job's full transition history, oldest first.
func (t *Tracker) Transitions(ctx context.Context, jobID string) ([]Transition, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT job_id, seq, state, at, note FROM job_transitions WHERE job_id = ? ORDER BY seq`, jobID)
	if err != nil {
		return nil, fmt.Errorf("load transitions of %s: %w", jobID, err)
	}
	defer rows.Close()

	var result []Transition
	for rows.Next() {
		var tr Transition
		var at string
		if err := rows.Scan(&tr.JobID, &tr.Seq, &tr.State, &at, &tr.Note); err != nil {
			return nil, err
		}
		if tr.At, err = timex.ParseStamp(at); err != nil {
			return nil, fmt.Errorf("parse transition time: %w", err)
		}
		result = append(result, tr)
	}
	return result, rows.Err()
}

func (t *Tracker) appendTransition(ctx context.Context, tx dbx.DBTX, jobID, state, note string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO job_transitions (job_id, seq, state, at, note)
		 SELECT ?, COALESCE(MAX(seq), -1) + 1, ?, ?, ? FROM job_transitions WHERE job_id = ?`,
		jobID, state, timex.Stamp(t.now()), note, jobID)
	return err
}
