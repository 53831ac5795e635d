package remote

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/sqweebloid/seedbank/internal/common"
	"github.com/sqweebloid/seedbank/internal/treehash"
)

// FakeVault is an in-memory Vault for tests. It verifies the tree hash
// of completed uploads the way the real service does and lets tests
// inject failures per operation.
type FakeVault struct {
	mu sync.Mutex

	objects map[string][]byte
	uploads map[string]*fakeUpload
	jobs    map[string]JobStatus

	nextHandle int
	nextJob    int

	// Failure scripts: number of upcoming calls that fail with the
	// paired error. Zero means the call succeeds.
	uploadFails   int
	uploadErr     error
	partFails     map[int]int // part number -> remaining failures
	partErr       error
	completeErr   error
	abortErr      error
	initiateErr   error
	describeErr   error
	retrievalErr  error

	// Call counters, for asserting retry and resume behavior.
	UploadCalls   int
	InitCalls     int
	PartCalls     map[int]int
	CompleteCalls int
	AbortCalls    int
	DescribeCalls int
}

type fakeUpload struct {
	key      string
	partSize int64
	total    int64
	parts    map[int][]byte // part number -> bytes
	offsets  map[int]int64
	aborted  bool
	done     bool
}

func NewFakeVault() *FakeVault {
	return &FakeVault{
		objects:   map[string][]byte{},
		uploads:   map[string]*fakeUpload{},
		jobs:      map[string]JobStatus{},
		partFails: map[int]int{},
		PartCalls: map[int]int{},
	}
}

// FailUploads makes the next n single-part uploads fail with err.
func (v *FakeVault) FailUploads(n int, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.uploadFails, v.uploadErr = n, err
}

// FailPart makes the next n uploads of the given part number fail with err.
func (v *FakeVault) FailPart(partNumber, n int, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.partFails[partNumber] = n
	v.partErr = err
}

// FailComplete makes CompleteUpload fail with err until cleared.
func (v *FakeVault) FailComplete(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.completeErr = err
}

// FailAbort makes AbortUpload fail with err until cleared.
func (v *FakeVault) FailAbort(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.abortErr = err
}

// FailInitiate makes InitiateUpload fail with err until cleared.
func (v *FakeVault) FailInitiate(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.initiateErr = err
}

// FailDescribe makes DescribeJob fail with err until cleared.
func (v *FakeVault) FailDescribe(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.describeErr = err
}

// FailRetrieval makes InitiateRetrieval fail with err until cleared.
func (v *FakeVault) FailRetrieval(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.retrievalErr = err
}

// SetJobStatus scripts what DescribeJob reports for jobID.
func (v *FakeVault) SetJobStatus(jobID string, status JobStatus) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.jobs[jobID] = status
}

// Object returns the stored payload for key, for assertions.
func (v *FakeVault) Object(key string) ([]byte, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	b, ok := v.objects[key]
	return b, ok
}

// OpenUploads reports how many multi-part uploads are neither completed
// nor aborted.
func (v *FakeVault) OpenUploads() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, u := range v.uploads {
		if !u.done && !u.aborted {
			n++
		}
	}
	return n
}

func (v *FakeVault) Upload(ctx context.Context, in UploadInput) (string, string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.UploadCalls++
	if v.uploadFails > 0 {
		v.uploadFails--
		return "", "", v.uploadErr
	}

	data, err := io.ReadAll(in.Body)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", common.ErrTransientNetwork, err)
	}
	sum := treehash.HashBytes(data)
	v.objects[in.Key] = data
	return in.Key, fmt.Sprintf("%x", sum), nil
}

func (v *FakeVault) InitiateUpload(ctx context.Context, in InitInput) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.InitCalls++
	if v.initiateErr != nil {
		return "", v.initiateErr
	}

	v.nextHandle++
	handle := fmt.Sprintf("upload-%d", v.nextHandle)
	v.uploads[handle] = &fakeUpload{
		key:      in.Key,
		partSize: in.PartSize,
		total:    in.TotalSize,
		parts:    map[int][]byte{},
		offsets:  map[int]int64{},
	}
	return handle, nil
}

func (v *FakeVault) UploadPart(ctx context.Context, in PartInput) error {
	data, readErr := io.ReadAll(in.Body)

	v.mu.Lock()
	defer v.mu.Unlock()

	v.PartCalls[in.PartNumber]++
	if n := v.partFails[in.PartNumber]; n > 0 {
		v.partFails[in.PartNumber] = n - 1
		return v.partErr
	}
	if readErr != nil {
		return fmt.Errorf("%w: %v", common.ErrTransientNetwork, readErr)
	}

	u, ok := v.uploads[in.Handle]
	if !ok || u.aborted {
		return fmt.Errorf("%w: unknown upload handle %s", common.ErrRemoteProtocol, in.Handle)
	}
	u.parts[in.PartNumber] = data
	u.offsets[in.PartNumber] = in.Offset
	return nil
}

func (v *FakeVault) CompleteUpload(ctx context.Context, in CompleteInput) (string, string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.CompleteCalls++
	if v.completeErr != nil {
		return "", "", v.completeErr
	}

	u, ok := v.uploads[in.Handle]
	if !ok || u.aborted {
		return "", "", fmt.Errorf("%w: unknown upload handle %s", common.ErrRemoteProtocol, in.Handle)
	}

	numbers := make([]int, 0, len(u.parts))
	for n := range u.parts {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	var assembled []byte
	for _, n := range numbers {
		assembled = append(assembled, u.parts[n]...)
	}
	if int64(len(assembled)) != in.TotalSize {
		return "", "", fmt.Errorf("%w: upload %s has %d of %d bytes",
			common.ErrRemoteProtocol, in.Handle, len(assembled), in.TotalSize)
	}

	sum := fmt.Sprintf("%x", treehash.HashBytes(assembled))
	u.done = true
	v.objects[u.key] = assembled
	return u.key, sum, nil
}

func (v *FakeVault) AbortUpload(ctx context.Context, handle, key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.AbortCalls++
	if v.abortErr != nil {
		return v.abortErr
	}
	if u, ok := v.uploads[handle]; ok {
		u.aborted = true
	}
	return nil
}

func (v *FakeVault) InitiateRetrieval(ctx context.Context, key string, rng *ByteRange) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.retrievalErr != nil {
		return "", v.retrievalErr
	}
	if _, ok := v.objects[key]; !ok {
		return "", fmt.Errorf("%w: no archive at %s", common.ErrRemoteProtocol, key)
	}

	v.nextJob++
	jobID := fmt.Sprintf("job-%d", v.nextJob)
	v.jobs[jobID] = StatusInProgress
	return jobID, nil
}

func (v *FakeVault) DescribeJob(ctx context.Context, jobID, key string) (JobDescription, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.DescribeCalls++
	if v.describeErr != nil {
		return JobDescription{}, v.describeErr
	}
	status, ok := v.jobs[jobID]
	if !ok {
		return JobDescription{}, fmt.Errorf("job %s: %w", jobID, common.ErrNotFound)
	}
	return JobDescription{ID: jobID, Status: status}, nil
}

var _ Vault = (*FakeVault)(nil)
