// Package common defines shared sentinel and typed errors used across
// the seedbank engine. Callers should use errors.Is for sentinels and
// errors.As for the typed errors that carry detail.
package common

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Validation errors (malformed or unusable input).
	ErrValidation = errors.New("validation error")

	// Transfer errors. Transient failures are retried with backoff up
	// to a bounded attempt count; protocol errors (quota, permission,
	// malformed request) are surfaced and never retried.
	ErrTransientNetwork = errors.New("transient network error")
	ErrRemoteProtocol   = errors.New("remote protocol error")

	// ErrIncompleteUpload is returned when completion is requested for
	// a multi-part upload that still has unconfirmed parts.
	ErrIncompleteUpload = errors.New("incomplete upload")

	// ErrStateRegression is returned when a state change would move a
	// job or record backwards from an already-recorded terminal state.
	ErrStateRegression = errors.New("state regression")
)

// AmbiguousReferenceError reports a short reference that matches more
// than one archive identifier. Candidates lists every match, sorted.
type AmbiguousReferenceError struct {
	Prefix     string
	Candidates []string
}

func (e *AmbiguousReferenceError) Error() string {
	return fmt.Sprintf("ambiguous reference %q: matches %s",
		e.Prefix, strings.Join(e.Candidates, ", "))
}

// ChecksumMismatchError reports disagreement between a locally computed
// digest and the digest confirmed by the remote side. It is fatal and
// never retried: it means data corruption somewhere in the pipeline.
type ChecksumMismatchError struct {
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// TransferError wraps the last error of a failed transfer job together
// with the job identifier and the attempt count, so the caller can
// decide whether to resume or abort.
type TransferError struct {
	JobID    string
	Attempts int
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer job %s failed after %d attempt(s): %v", e.JobID, e.Attempts, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// ReconciliationAnomaly reports a remote job status that conflicts with
// an already-recorded terminal state. The recorded history is never
// overwritten; the anomaly is logged and surfaced instead.
type ReconciliationAnomaly struct {
	JobID    string
	Recorded string
	Reported string
}

func (e *ReconciliationAnomaly) Error() string {
	return fmt.Sprintf("reconciliation anomaly for job %s: recorded %s, remote reports %s",
		e.JobID, e.Recorded, e.Reported)
}

// IsTransient reports whether err may succeed on a later attempt.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientNetwork)
}
