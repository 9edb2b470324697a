// Package notify reports sync lifecycle signals back to the hosting
// platform as commit statuses.
package notify

import (
	"context"
	"log"

	"deployhook/pkg/dispatch"
	"deployhook/pkg/event"
	"deployhook/pkg/gitsync"
)

// Status is the remote status a lifecycle signal maps to.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Notifier publishes one commit status against a repository.
type Notifier interface {
	PublishStatus(ctx context.Context, repo event.RepositoryRef, sha string, status Status, description string) error
}

// Listener adapts a Notifier to the dispatcher's lifecycle hook surface:
// ready becomes pending, success and error map directly. Publish failures
// are logged, never propagated into the sync pipeline.
func Listener(n Notifier, logger *log.Logger) dispatch.Listener {
	if logger == nil {
		logger = log.Default()
	}
	publish := func(ctx context.Context, repo event.RepositoryRef, sha string, status Status, description string) {
		if sha == "" {
			return
		}
		if err := n.PublishStatus(ctx, repo, sha, status, description); err != nil {
			logger.Printf("status %s for %s@%s failed: %v", status, repo.FullName(), sha, err)
		}
	}

	return dispatch.Listener{
		OnReady: func(ctx context.Context, task *gitsync.Task) {
			publish(ctx, task.Repo, task.Repo.CommitSHA, StatusPending, "synchronizing working tree")
		},
		OnSuccess: func(ctx context.Context, task *gitsync.Task) {
			publish(ctx, task.Repo, task.Repo.CommitSHA, StatusSuccess, "working tree synchronized")
		},
		OnError: func(ctx context.Context, task *gitsync.Task, err error) {
			publish(ctx, task.Repo, task.Repo.CommitSHA, StatusError, err.Error())
		},
	}
}
