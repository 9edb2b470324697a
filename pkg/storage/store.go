package storage

import (
	"context"
	"time"
)

// SyncRecord is one row of the sync journal: the terminal outcome of a
// dispatched delivery. Credentials never enter the record.
type SyncRecord struct {
	Provider     string
	Organization string
	RepoName     string
	Ref          string
	CommitSHA    string
	ResolvedSHA  string
	TargetDir    string
	Outcome      string
	ErrorStage   string
	ErrorMessage string
	DurationMS   int64
	CreatedAt    time.Time
}

// RecordFilter selects journal rows.
type RecordFilter struct {
	Provider     string
	Organization string
	RepoName     string
	Outcome      string
	Limit        int
}

// Store persists sync outcomes.
type Store interface {
	RecordSync(ctx context.Context, record SyncRecord) error
	ListRecords(ctx context.Context, filter RecordFilter) ([]SyncRecord, error)
	Close() error
}
