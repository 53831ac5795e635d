// Package ledger owns archive records: it assigns identifiers, resolves
// short references, and tracks per-record transfer status. Records are
// append-only; after creation only the status fields ever change.
package ledger

import "time"

// UploadStatus tracks where a record's payload stands with the remote
// side. COMPLETED and FAILED are terminal.
type UploadStatus string

const (
	UploadNone       UploadStatus = "NONE"
	UploadPending    UploadStatus = "PENDING"
	UploadInProgress UploadStatus = "IN_PROGRESS"
	UploadCompleted  UploadStatus = "COMPLETED"
	UploadFailed     UploadStatus = "FAILED"
)

func (s UploadStatus) Terminal() bool {
	return s == UploadCompleted || s == UploadFailed
}

// RetrievalStatus tracks an optional staged-download request. READY
// archives expire on the remote side after a time window.
type RetrievalStatus string

const (
	RetrievalNone       RetrievalStatus = ""
	RetrievalPending    RetrievalStatus = "PENDING"
	RetrievalInProgress RetrievalStatus = "IN_PROGRESS"
	RetrievalReady      RetrievalStatus = "READY"
	RetrievalExpired    RetrievalStatus = "EXPIRED"
	RetrievalFailed     RetrievalStatus = "FAILED"
)

func (s RetrievalStatus) Terminal() bool {
	return s == RetrievalExpired || s == RetrievalFailed
}

// FileEntry is one line of a record's ordered file manifest.
type FileEntry struct {
	RelPath string
	Size    int64
}

// ArchiveRecord describes one archived backup. The identifier, source
// path, timestamp and file list are fixed at creation.
type ArchiveRecord struct {
	ID              string
	SourcePath      string
	Description     string
	CreatedAt       time.Time
	Files           []FileEntry
	Checksum        string
	UploadStatus    UploadStatus
	RetrievalStatus RetrievalStatus
}

// TotalSize sums the manifest entries.
func (r *ArchiveRecord) TotalSize() int64 {
	var total int64
	for _, f := range r.Files {
		total += f.Size
	}
	return total
}
