package jobs

import "time"

// Strategy is how a payload travels to the remote side.
type Strategy string

const (
	StrategySinglePart Strategy = "SINGLE_PART"
	StrategyMultiPart  Strategy = "MULTI_PART"
)

// PartUpload is one planned part of a multi-part job and its
// confirmation state. Checksum is recorded when the part is confirmed.
type PartUpload struct {
	Seq       int
	Offset    int64
	Length    int64
	Checksum  string
	Confirmed bool
}

// UploadJob references an archive record (by identifier only; the
// ledger owns the record) and tracks one transfer attempt lifecycle.
type UploadJob struct {
	ID           string
	ArchiveID    string
	Strategy     Strategy
	State        UploadState
	RemoteHandle string
	RemoteID     string
	Attempts     int
	LastError    string
	CreatedAt    time.Time
	Parts        []PartUpload
}

// UnconfirmedParts returns the parts still waiting for remote
// confirmation, in plan order.
func (j *UploadJob) UnconfirmedParts() []PartUpload {
	var out []PartUpload
	for _, p := range j.Parts {
		if !p.Confirmed {
			out = append(out, p)
		}
	}
	return out
}

// RetrievalJob tracks an asynchronous staged-download request.
type RetrievalJob struct {
	ID          string
	ArchiveID   string
	RemoteJobID string
	State       RetrievalState
	RequestedAt time.Time
	RangeOffset *int64
	RangeLength *int64
}

// Transition is one entry of a job's append-only state log.
type Transition struct {
	JobID string
	Seq   int
	State string
	At    time.Time
	Note  string
}
