package worker

import (
	"context"
	"errors"

	"deployhook/pkg/event"
	"deployhook/pkg/gitsync"
)

// RetryDecision says whether a failed delivery should be redelivered.
type RetryDecision struct {
	Nack bool
}

// RetryPolicy decides the fate of a failed delivery.
type RetryPolicy interface {
	OnError(ctx context.Context, dlv event.Delivery, err error) RetryDecision
}

// NoRetry drops every failed delivery.
type NoRetry struct{}

func (NoRetry) OnError(context.Context, event.Delivery, error) RetryDecision {
	return RetryDecision{Nack: false}
}

// RetryTransient redelivers sync-stage failures, which are retryable by
// re-running the pipeline from scratch, and drops everything else
// (malformed payloads and invalid URLs cannot succeed on retry).
type RetryTransient struct{}

func (RetryTransient) OnError(_ context.Context, _ event.Delivery, err error) RetryDecision {
	var syncErr *gitsync.SyncError
	if errors.As(err, &syncErr) {
		return RetryDecision{Nack: true}
	}
	return RetryDecision{Nack: false}
}
