// Package worker consumes webhook deliveries from the transport and runs
// them through the dispatch pipeline.
package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"deployhook/internal"
	"deployhook/pkg/dispatch"
	"deployhook/pkg/event"
	"deployhook/pkg/gitsync"
	"deployhook/pkg/storage"
)

// Config carries the worker's dependencies. Subscriber, Topic and
// Dispatcher are required; everything else is optional.
type Config struct {
	Subscriber  message.Subscriber
	Topic       string
	Concurrency int
	Dispatcher  *dispatch.Dispatcher
	Filter      *internal.FilterEngine
	Journal     storage.Store
	Logger      *log.Logger
	SyncTimeout time.Duration
	Retry       RetryPolicy
}

// Worker subscribes to the delivery topic and dispatches each message.
// Deliveries targeting the same working tree are serialized; distinct
// trees sync concurrently up to the configured limit.
type Worker struct {
	sub         message.Subscriber
	topic       string
	concurrency int
	dispatcher  *dispatch.Dispatcher
	filter      *internal.FilterEngine
	journal     storage.Store
	logger      *log.Logger
	syncTimeout time.Duration
	retry       RetryPolicy
	locks       *dirLocks
}

// New creates a Worker.
func New(cfg Config) (*Worker, error) {
	if cfg.Subscriber == nil {
		return nil, errors.New("worker: subscriber is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("worker: topic is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("worker: dispatcher is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	retry := cfg.Retry
	if retry == nil {
		retry = RetryTransient{}
	}
	return &Worker{
		sub:         cfg.Subscriber,
		topic:       cfg.Topic,
		concurrency: concurrency,
		dispatcher:  cfg.Dispatcher,
		filter:      cfg.Filter,
		journal:     cfg.Journal,
		logger:      logger,
		syncTimeout: cfg.SyncTimeout,
		retry:       retry,
		locks:       newDirLocks(),
	}, nil
}

// Run subscribes to the topic and processes messages until the context is
// canceled.
func (w *Worker) Run(ctx context.Context) error {
	msgs, err := w.sub.Subscribe(ctx, w.topic)
	if err != nil {
		return err
	}

	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				wg.Wait()
				return nil
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(msg *message.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				w.handleMessage(ctx, msg)
			}(msg)
		}
	}
}

// Close shuts down the subscriber.
func (w *Worker) Close() error {
	return w.sub.Close()
}

func (w *Worker) handleMessage(ctx context.Context, msg *message.Message) {
	dlv, body, err := decodeDelivery(msg)
	if err != nil {
		if errors.Is(err, event.ErrMalformedPayload) {
			w.logger.Printf("dropping malformed delivery: %v", err)
		} else {
			w.logger.Printf("dropping undecodable delivery: %v", err)
		}
		msg.Ack()
		return
	}

	if dlv.Kind == event.KindPush && !dlv.Repo.Deleted && w.filter != nil {
		if !w.filter.ShouldDeploy(body) {
			w.logger.Printf("delivery for %s filtered out", dlv.Repo.FullName())
			msg.Ack()
			return
		}
	}

	outcome, err := w.dispatch(ctx, dlv)
	internal.IncSyncOutcome(string(outcome))

	if err != nil && !errors.Is(err, dispatch.ErrNotHandled) {
		if w.retry.OnError(ctx, dlv, err).Nack {
			msg.Nack()
			return
		}
	}
	msg.Ack()
}

// dispatch serializes same-directory syncs and applies the sync timeout.
func (w *Worker) dispatch(ctx context.Context, dlv event.Delivery) (dispatch.Outcome, error) {
	if dlv.Kind == event.KindPush && !dlv.Repo.Deleted {
		unlock := w.locks.Lock(w.dispatcher.TargetDir(dlv.Repo))
		defer unlock()
	}

	if w.syncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.syncTimeout)
		defer cancel()
	}

	start := time.Now()
	outcome, task, err := w.dispatcher.DispatchTask(ctx, dlv)
	w.record(ctx, dlv, task, outcome, err, time.Since(start))
	return outcome, err
}

func (w *Worker) record(ctx context.Context, dlv event.Delivery, task *gitsync.Task, outcome dispatch.Outcome, dispatchErr error, elapsed time.Duration) {
	if w.journal == nil {
		return
	}
	rec := storage.SyncRecord{
		Provider:     dlv.Provider,
		Organization: dlv.Repo.Organization,
		RepoName:     dlv.Repo.RepoName,
		Ref:          dlv.Repo.Ref,
		CommitSHA:    dlv.Repo.CommitSHA,
		TargetDir:    w.dispatcher.TargetDir(dlv.Repo),
		Outcome:      string(outcome),
		DurationMS:   elapsed.Milliseconds(),
	}
	if task != nil {
		rec.ResolvedSHA = task.ResolvedSHA
	}
	if dispatchErr != nil {
		rec.ErrorMessage = dispatchErr.Error()
		var syncErr *gitsync.SyncError
		if errors.As(dispatchErr, &syncErr) {
			rec.ErrorStage = string(syncErr.Stage)
		}
	}
	if err := w.journal.RecordSync(ctx, rec); err != nil {
		w.logger.Printf("journal write failed: %v", err)
	}
}
