package gitsync

import "deployhook/pkg/event"

// State is the position of a sync task in the pipeline. Transitions are
// strictly linear; any state may move to StateFailed but no state is ever
// re-entered.
type State string

const (
	StateCreated        State = "created"
	StateDirectoryReady State = "directory_ready"
	StateFetching       State = "fetching"
	StateFetched        State = "fetched"
	StateResolving      State = "resolving"
	StateResolved       State = "resolved"
	StateUpdatingHead   State = "updating_head"
	StateHeadUpdated    State = "head_updated"
	StateCheckingOut    State = "checking_out"
	StateSucceeded      State = "succeeded"
	StateFailed         State = "failed"
)

// Task is one synchronization attempt against one target directory. The
// access token is held unexported so lifecycle listeners and log sinks only
// ever see the credential-free fields.
//
// A Task is owned by a single Sync call. The engine holds no locks: callers
// must not run two concurrent syncs against the same target directory.
type Task struct {
	TargetDir string
	Repo      event.RepositoryRef
	State     State

	// ResolvedSHA is set once the resolve step completes.
	ResolvedSHA string

	token string
}

// NewTask creates a sync task for one push delivery.
func NewTask(targetDir string, repo event.RepositoryRef, token string) *Task {
	return &Task{
		TargetDir: targetDir,
		Repo:      repo,
		State:     StateCreated,
		token:     token,
	}
}

func (t *Task) fail(err *SyncError) error {
	t.State = StateFailed
	return err
}
