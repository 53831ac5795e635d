// Package remote abstracts the cold-storage service the librarian
// uploads archives to. The production implementation targets S3-style
// object storage; tests use the in-memory fake.
package remote

import (
	"context"
	"io"
)

// JobStatus is the remote's view of an asynchronous job.
type JobStatus string

const (
	StatusInProgress JobStatus = "IN_PROGRESS"
	StatusSucceeded  JobStatus = "SUCCEEDED"
	StatusFailed     JobStatus = "FAILED"
	StatusExpired    JobStatus = "EXPIRED"
)

// ByteRange selects part of an archive for retrieval.
type ByteRange struct {
	Offset int64
	Length int64
}

// UploadInput carries a complete single-part payload.
type UploadInput struct {
	Key        string
	Body       io.Reader
	Length     int64
	TreeHash   string // lowercase hex
	Descriptor string
}

// InitInput opens a multi-part upload.
type InitInput struct {
	Key        string
	TotalSize  int64
	PartSize   int64
	Descriptor string
}

// PartInput carries one part of an open multi-part upload. PartNumber
// is 1-based and consistent with Offset/PartSize.
type PartInput struct {
	Handle     string
	Key        string
	PartNumber int
	Offset     int64
	Body       io.Reader
	Length     int64
	TreeHash   string
}

// CompleteInput finalizes a multi-part upload.
type CompleteInput struct {
	Handle    string
	Key       string
	TotalSize int64
	TreeHash  string
}

// JobDescription is the remote's answer to a job status query.
type JobDescription struct {
	ID      string
	Status  JobStatus
	Message string
}

// Vault is the remote archive-storage contract. All errors are
// classified: transient failures wrap common.ErrTransientNetwork,
// protocol failures wrap common.ErrRemoteProtocol.
type Vault interface {
	// Upload stores a complete payload in one request and returns the
	// remote identifier plus the digest the remote confirmed (empty if
	// the backend does not echo one).
	Upload(ctx context.Context, in UploadInput) (remoteID, checksum string, err error)

	// InitiateUpload obtains a handle for a multi-part upload.
	InitiateUpload(ctx context.Context, in InitInput) (handle string, err error)

	// UploadPart stores one part. Parts may arrive in any order and
	// concurrently.
	UploadPart(ctx context.Context, in PartInput) error

	// CompleteUpload finalizes a multi-part upload. It fails if any
	// part is missing on the remote side.
	CompleteUpload(ctx context.Context, in CompleteInput) (remoteID, checksum string, err error)

	// AbortUpload releases the remote resources of an open upload.
	AbortUpload(ctx context.Context, handle, key string) error

	// InitiateRetrieval asks the remote to stage an archive (or a byte
	// range of it) for download and returns the asynchronous job id.
	InitiateRetrieval(ctx context.Context, key string, rng *ByteRange) (jobID string, err error)

	// DescribeJob reports the current status of an asynchronous job.
	DescribeJob(ctx context.Context, jobID, key string) (JobDescription, error)
}
