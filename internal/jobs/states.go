// Package jobs records and reconciles transfer job state. Every job
// keeps an append-only transition log; states only ever advance, and a
// terminal state is never overwritten by a lesser one.
package jobs

// UploadState is the lifecycle of an upload job:
// PENDING -> IN_PROGRESS -> {COMPLETED | FAILED}, with CANCELLING as a
// non-terminal stop on the way to FAILED when a user cancels.
type UploadState string

const (
	UploadPending    UploadState = "PENDING"
	UploadInProgress UploadState = "IN_PROGRESS"
	UploadCancelling UploadState = "CANCELLING"
	UploadCompleted  UploadState = "COMPLETED"
	UploadFailed     UploadState = "FAILED"
)

var uploadRank = map[UploadState]int{
	UploadPending:    0,
	UploadInProgress: 1,
	UploadCancelling: 2,
	UploadCompleted:  3,
	UploadFailed:     3,
}

func (s UploadState) Terminal() bool {
	return s == UploadCompleted || s == UploadFailed
}

// Advances reports whether moving to next is a forward transition.
func (s UploadState) Advances(next UploadState) bool {
	return uploadRank[next] > uploadRank[s]
}

// RetrievalState is the lifecycle of a retrieval job:
// PENDING -> IN_PROGRESS -> READY -> EXPIRED. The remote expires
// completed retrievals after a readiness window. FAILED is terminal and
// reachable before READY.
type RetrievalState string

const (
	RetrievalPending    RetrievalState = "PENDING"
	RetrievalInProgress RetrievalState = "IN_PROGRESS"
	RetrievalReady      RetrievalState = "READY"
	RetrievalExpired    RetrievalState = "EXPIRED"
	RetrievalFailed     RetrievalState = "FAILED"
)

var retrievalRank = map[RetrievalState]int{
	RetrievalPending:    0,
	RetrievalInProgress: 1,
	RetrievalReady:      2,
	RetrievalExpired:    3,
	RetrievalFailed:     3,
}

func (s RetrievalState) Terminal() bool {
	return s == RetrievalExpired || s == RetrievalFailed
}

// Advances reports whether moving to next is a forward transition.
// FAILED does not advance READY: a readable retrieval only expires.
func (s RetrievalState) Advances(next RetrievalState) bool {
	if s == RetrievalReady && next == RetrievalFailed {
		return false
	}
	return retrievalRank[next] > retrievalRank[s]
}
