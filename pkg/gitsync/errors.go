package gitsync

import "fmt"

// Stage names the pipeline step that produced a sync failure.
type Stage string

const (
	StageDirectory  Stage = "directory"
	StageFetch      Stage = "fetch"
	StageResolve    Stage = "resolve"
	StageHeadUpdate Stage = "head_update"
	StageCheckout   Stage = "checkout"
)

// SyncError is a failure of one pipeline stage. Sync failures are retryable
// by re-invoking Sync from scratch; there is no partial-step retry.
type SyncError struct {
	Stage Stage
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("git sync: %s: %v", e.Stage, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) *SyncError {
	return &SyncError{Stage: stage, Err: err}
}
