package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/sqweebloid/seedbank/internal/common"
	"github.com/sqweebloid/seedbank/internal/logging"
	"github.com/sqweebloid/seedbank/internal/remote"
)

// Reconciler updates locally recorded retrieval state to match queried
// remote status without ever regressing it. It is timer-agnostic: the
// caller decides when to reconcile; nothing here schedules itself.
type Reconciler struct {
	tracker *Tracker
	vault   remote.Vault
	logger  logging.Logger
}

func NewReconciler(tracker *Tracker, vault remote.Vault, logger logging.Logger) *Reconciler {
	return &Reconciler{
		tracker: tracker,
		vault:   vault,
		logger:  logger.With("module", "reconciler"),
	}
}

// stateFor maps a remote job report onto the local state machine.
func stateFor(status remote.JobStatus) RetrievalState {
	switch status {
	case remote.StatusInProgress:
		return RetrievalInProgress
	case remote.StatusSucceeded:
		return RetrievalReady
	case remote.StatusExpired:
		return RetrievalExpired
	default:
		return RetrievalFailed
	}
}

// Reconcile queries remote status for one retrieval job and applies the
// transition only if it advances the recorded state. A remote report
// conflicting with a recorded terminal state is logged and returned as
// a ReconciliationAnomaly; the recorded history stays untouched.
func (r *Reconciler) Reconcile(ctx context.Context, jobID string) (*RetrievalJob, error) {
	job, err := r.tracker.GetRetrievalJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	desc, err := r.vault.DescribeJob(ctx, job.RemoteJobID, remote.ObjectKey(job.ArchiveID))
	if err != nil {
		return nil, fmt.Errorf("describe job %s: %w", job.RemoteJobID, err)
	}
	reported := stateFor(desc.Status)

	if job.State.Terminal() {
		if reported == job.State {
			return job, nil
		}
		anomaly := &common.ReconciliationAnomaly{
			JobID:    job.ID,
			Recorded: string(job.State),
			Reported: string(reported),
		}
		r.logger.Warn(ctx, "reconciliation anomaly",
			"job", job.ID, "recorded", job.State, "reported", reported)
		return job, anomaly
	}

	if !job.State.Advances(reported) {
		// Remote lags behind what we already know; nothing to apply.
		return job, nil
	}

	if err := r.tracker.SetRetrievalState(ctx, job.ID, reported, "reconciled from remote"); err != nil {
		return nil, err
	}
	job.State = reported
	r.logger.Info(ctx, "reconciled retrieval job", "job", job.ID, "state", reported)
	return job, nil
}

// ReconcileAll reconciles every open retrieval job. Anomalies do not
// stop the sweep; they are collected and returned alongside the jobs.
func (r *Reconciler) ReconcileAll(ctx context.Context) ([]*RetrievalJob, []error, error) {
	open, err := r.tracker.ListOpenRetrievalJobs(ctx)
	if err != nil {
		return nil, nil, err
	}

	var (
		updated   []*RetrievalJob
		anomalies []error
	)
	for _, job := range open {
		j, err := r.Reconcile(ctx, job.ID)
		if err != nil {
			var anomaly *common.ReconciliationAnomaly
			if errors.As(err, &anomaly) {
				anomalies = append(anomalies, err)
				updated = append(updated, j)
				continue
			}
			return nil, nil, err
		}
		updated = append(updated, j)
	}
	return updated, anomalies, nil
}
