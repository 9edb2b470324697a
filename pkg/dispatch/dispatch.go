// Package dispatch routes classified webhook deliveries to their handling
// path and emits lifecycle signals around the git synchronization pipeline.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"deployhook/pkg/event"
	"deployhook/pkg/gitsync"
)

// Outcome is the single terminal result of dispatching one delivery.
type Outcome string

const (
	// OutcomeAcknowledged is a ping: acknowledged, no sync, no lifecycle
	// signal.
	OutcomeAcknowledged Outcome = "acknowledged"
	// OutcomePassed is an unknown event kind passed through without error.
	OutcomePassed Outcome = "passed"
	// OutcomeBranchDeleted is a delete completing immediately without a
	// sync.
	OutcomeBranchDeleted Outcome = "branch_deleted"
	// OutcomeSynced is a push that ran the full pipeline successfully.
	OutcomeSynced Outcome = "synced"
	// OutcomeFailed is a push whose pipeline failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeNotHandled marks event kinds that are routed but whose
	// handling is not implemented.
	OutcomeNotHandled Outcome = "not_handled"
)

// ErrNotHandled is returned for pull_request and deployment events so the
// gap is visible to callers rather than silently dropped.
var ErrNotHandled = errors.New("event kind routed but not handled")

// Engine runs one synchronization task to completion.
type Engine interface {
	Sync(ctx context.Context, task *gitsync.Task) error
}

// Listener observes task lifecycle signals. Each delivery produces at most
// one of ready→success or ready→error; nil hooks are skipped.
type Listener struct {
	OnReady   func(ctx context.Context, task *gitsync.Task)
	OnSuccess func(ctx context.Context, task *gitsync.Task)
	OnError   func(ctx context.Context, task *gitsync.Task, err error)
}

// Config carries the dispatcher's construction-time dependencies. Token is
// required: a missing token is a construction error, not a per-delivery
// one.
type Config struct {
	// Token authenticates fetches against the hosting platform.
	Token string
	// DeployRoot is the directory under which per-repository working
	// trees are kept, as <root>/<organization>/<repo>.
	DeployRoot string
	Engine     Engine
	Logger     *log.Logger
	// Deploy is invoked after a successful sync, once the working tree
	// matches the target commit. External deployment creation hook.
	Deploy func(ctx context.Context, task *gitsync.Task)
}

// Dispatcher routes deliveries.
type Dispatcher struct {
	token     string
	root      string
	engine    Engine
	logger    *log.Logger
	deploy    func(ctx context.Context, task *gitsync.Task)
	listeners []Listener
}

// New creates a Dispatcher. It fails when no access token or engine is
// configured.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Token == "" {
		return nil, errors.New("dispatch: access token is required")
	}
	if cfg.Engine == nil {
		return nil, errors.New("dispatch: engine is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	root := cfg.DeployRoot
	if root == "" {
		root = "."
	}
	return &Dispatcher{
		token:  cfg.Token,
		root:   root,
		engine: cfg.Engine,
		logger: logger,
		deploy: cfg.Deploy,
	}, nil
}

// AddListener registers a lifecycle listener.
func (d *Dispatcher) AddListener(l Listener) {
	d.listeners = append(d.listeners, l)
}

// SetDeploy sets the post-sync deployment hook.
func (d *Dispatcher) SetDeploy(fn func(ctx context.Context, task *gitsync.Task)) {
	d.deploy = fn
}

// TargetDir returns the working tree path for a repository.
func (d *Dispatcher) TargetDir(repo event.RepositoryRef) string {
	return filepath.Join(d.root, repo.Organization, repo.RepoName)
}

// Dispatch routes one delivery. Push events run the sync pipeline between
// ready and success/error lifecycle signals; delete events complete
// immediately; ping and unknown events pass through.
func (d *Dispatcher) Dispatch(ctx context.Context, dlv event.Delivery) (Outcome, error) {
	outcome, _, err := d.DispatchTask(ctx, dlv)
	return outcome, err
}

// DispatchTask routes one delivery like Dispatch and additionally returns
// the sync task for push events, so callers can observe the resolved
// commit. The task is nil for deliveries that never start the pipeline.
func (d *Dispatcher) DispatchTask(ctx context.Context, dlv event.Delivery) (Outcome, *gitsync.Task, error) {
	switch dlv.Kind {
	case event.KindPing:
		d.logger.Printf("ping from %s acknowledged", dlv.Provider)
		return OutcomeAcknowledged, nil, nil

	case event.KindDelete:
		return d.branchDeleted(dlv), nil, nil

	case event.KindPush:
		if dlv.Repo.Deleted {
			return d.branchDeleted(dlv), nil, nil
		}
		return d.push(ctx, dlv)

	case event.KindPullRequest, event.KindDeployment:
		d.logger.Printf("%s event for %s not handled", dlv.Kind, dlv.Repo.FullName())
		return OutcomeNotHandled, nil, fmt.Errorf("%w: %s", ErrNotHandled, dlv.Kind)

	default:
		return OutcomePassed, nil, nil
	}
}

func (d *Dispatcher) branchDeleted(dlv event.Delivery) Outcome {
	d.logger.Printf("branch %s deleted on %s, nothing to sync", dlv.Repo.Branch, dlv.Repo.FullName())
	return OutcomeBranchDeleted
}

func (d *Dispatcher) push(ctx context.Context, dlv event.Delivery) (Outcome, *gitsync.Task, error) {
	task := gitsync.NewTask(d.TargetDir(dlv.Repo), dlv.Repo, d.token)

	for _, l := range d.listeners {
		if l.OnReady != nil {
			l.OnReady(ctx, task)
		}
	}

	if err := d.engine.Sync(ctx, task); err != nil {
		d.logger.Printf("sync %s @ %s failed: %v", dlv.Repo.FullName(), dlv.Repo.Ref, err)
		for _, l := range d.listeners {
			if l.OnError != nil {
				l.OnError(ctx, task, err)
			}
		}
		return OutcomeFailed, task, err
	}

	d.logger.Printf("ready to deploy")
	for _, l := range d.listeners {
		if l.OnSuccess != nil {
			l.OnSuccess(ctx, task)
		}
	}
	if d.deploy != nil {
		d.deploy(ctx, task)
	}
	return OutcomeSynced, task, nil
}
