package librarian

import "context"

// Committer is the version-control collaborator the librarian hands the
// ledger snapshot to after mutations. The engine never inspects history
// or branches; committing and pushing are all it asks for.
type Committer interface {
	Commit(ctx context.Context, snapshotPath string) (commitID string, err error)
	Push(ctx context.Context) error
}

// NopCommitter satisfies Committer for setups without version control.
type NopCommitter struct{}

func (NopCommitter) Commit(ctx context.Context, snapshotPath string) (string, error) {
	return "", nil
}

func (NopCommitter) Push(ctx context.Context) error { return nil }
