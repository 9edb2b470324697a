package dispatch

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"deployhook/pkg/event"
	"deployhook/pkg/gitsync"
)

type fakeEngine struct {
	err   error
	tasks []*gitsync.Task
}

func (f *fakeEngine) Sync(ctx context.Context, task *gitsync.Task) error {
	f.tasks = append(f.tasks, task)
	if f.err != nil {
		task.State = gitsync.StateFailed
		return f.err
	}
	task.ResolvedSHA = "abc123"
	task.State = gitsync.StateSucceeded
	return nil
}

func testDispatcher(t *testing.T, engine Engine) *Dispatcher {
	t.Helper()
	d, err := New(Config{
		Token:      "tok",
		DeployRoot: t.TempDir(),
		Engine:     engine,
		Logger:     log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return d
}

func pushDelivery() event.Delivery {
	return event.Delivery{
		Provider: "github",
		Kind:     event.KindPush,
		Repo: event.RepositoryRef{
			Organization: "acme",
			RepoName:     "site",
			CloneURL:     "https://github.com/acme/site",
			Ref:          "refs/heads/main",
			Branch:       "main",
			CommitSHA:    "abc123",
		},
	}
}

// TestDispatchRequiresToken tests that construction fails without an access token.
func TestDispatchRequiresToken(t *testing.T) {
	_, err := New(Config{Engine: &fakeEngine{}})
	if err == nil {
		t.Fatalf("expected construction error without token")
	}
}

// TestDispatchPing tests that ping events are acknowledged without running a sync.
func TestDispatchPing(t *testing.T) {
	engine := &fakeEngine{}
	d := testDispatcher(t, engine)

	outcome, err := d.Dispatch(context.Background(), event.Delivery{Provider: "github", Kind: event.KindPing})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if outcome != OutcomeAcknowledged {
		t.Fatalf("expected acknowledged, got %s", outcome)
	}
	if len(engine.tasks) != 0 {
		t.Fatalf("ping must not start a sync")
	}
}

// TestDispatchPushLifecycle tests that a successful push emits ready then success, never error.
func TestDispatchPushLifecycle(t *testing.T) {
	engine := &fakeEngine{}
	d := testDispatcher(t, engine)

	var signals []string
	d.AddListener(Listener{
		OnReady:   func(context.Context, *gitsync.Task) { signals = append(signals, "ready") },
		OnSuccess: func(context.Context, *gitsync.Task) { signals = append(signals, "success") },
		OnError:   func(context.Context, *gitsync.Task, error) { signals = append(signals, "error") },
	})

	outcome, err := d.Dispatch(context.Background(), pushDelivery())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if outcome != OutcomeSynced {
		t.Fatalf("expected synced, got %s", outcome)
	}
	if len(signals) != 2 || signals[0] != "ready" || signals[1] != "success" {
		t.Fatalf("unexpected signal sequence %v", signals)
	}
	if len(engine.tasks) != 1 {
		t.Fatalf("expected one sync, got %d", len(engine.tasks))
	}
}

// TestDispatchPushFailure tests that a failed push emits ready then error and surfaces the cause.
func TestDispatchPushFailure(t *testing.T) {
	cause := &gitsync.SyncError{Stage: gitsync.StageFetch, Err: errors.New("remote unreachable")}
	d := testDispatcher(t, &fakeEngine{err: cause})

	var signals []string
	var got error
	d.AddListener(Listener{
		OnReady:   func(context.Context, *gitsync.Task) { signals = append(signals, "ready") },
		OnSuccess: func(context.Context, *gitsync.Task) { signals = append(signals, "success") },
		OnError: func(_ context.Context, _ *gitsync.Task, err error) {
			signals = append(signals, "error")
			got = err
		},
	})

	outcome, err := d.Dispatch(context.Background(), pushDelivery())
	if !errors.Is(err, cause) {
		t.Fatalf("expected sync error, got %v", err)
	}
	if outcome != OutcomeFailed {
		t.Fatalf("expected failed, got %s", outcome)
	}
	if len(signals) != 2 || signals[0] != "ready" || signals[1] != "error" {
		t.Fatalf("unexpected signal sequence %v", signals)
	}
	if !errors.Is(got, cause) {
		t.Fatalf("listener received %v", got)
	}
}

// TestDispatchBranchDeleted tests that delete events complete immediately without a sync.
func TestDispatchBranchDeleted(t *testing.T) {
	engine := &fakeEngine{}
	d := testDispatcher(t, engine)

	dlv := pushDelivery()
	dlv.Kind = event.KindDelete
	dlv.Repo.Deleted = true
	dlv.Repo.CommitSHA = ""

	outcome, err := d.Dispatch(context.Background(), dlv)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if outcome != OutcomeBranchDeleted {
		t.Fatalf("expected branch_deleted, got %s", outcome)
	}
	if len(engine.tasks) != 0 {
		t.Fatalf("delete must not start a sync")
	}
}

// TestDispatchDeletedPush tests that a push flagged as a deletion is treated like a delete event.
func TestDispatchDeletedPush(t *testing.T) {
	engine := &fakeEngine{}
	d := testDispatcher(t, engine)

	dlv := pushDelivery()
	dlv.Repo.Deleted = true
	dlv.Repo.CommitSHA = ""

	outcome, err := d.Dispatch(context.Background(), dlv)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if outcome != OutcomeBranchDeleted {
		t.Fatalf("expected branch_deleted, got %s", outcome)
	}
	if len(engine.tasks) != 0 {
		t.Fatalf("deleted push must not start a sync")
	}
}

// TestDispatchNotHandled tests that pull request and deployment events return ErrNotHandled.
func TestDispatchNotHandled(t *testing.T) {
	engine := &fakeEngine{}
	d := testDispatcher(t, engine)

	for _, kind := range []event.Kind{event.KindPullRequest, event.KindDeployment} {
		dlv := pushDelivery()
		dlv.Kind = kind
		outcome, err := d.Dispatch(context.Background(), dlv)
		if !errors.Is(err, ErrNotHandled) {
			t.Fatalf("%s: expected ErrNotHandled, got %v", kind, err)
		}
		if outcome != OutcomeNotHandled {
			t.Fatalf("%s: expected not_handled, got %s", kind, outcome)
		}
	}
	if len(engine.tasks) != 0 {
		t.Fatalf("unhandled kinds must not start a sync")
	}
}

// TestDispatchUnknownPassesThrough tests that unknown event kinds pass without error.
func TestDispatchUnknownPassesThrough(t *testing.T) {
	d := testDispatcher(t, &fakeEngine{})

	outcome, err := d.Dispatch(context.Background(), event.Delivery{Provider: "github", Kind: event.KindUnknown})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if outcome != OutcomePassed {
		t.Fatalf("expected passed, got %s", outcome)
	}
}

// TestDispatchDeployHook tests that the deployment hook fires only after a successful sync.
func TestDispatchDeployHook(t *testing.T) {
	engine := &fakeEngine{}
	d := testDispatcher(t, engine)

	var deployed []*gitsync.Task
	d.SetDeploy(func(_ context.Context, task *gitsync.Task) { deployed = append(deployed, task) })

	if _, err := d.Dispatch(context.Background(), pushDelivery()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(deployed) != 1 {
		t.Fatalf("expected one deployment, got %d", len(deployed))
	}

	failing := testDispatcher(t, &fakeEngine{err: errors.New("boom")})
	failing.SetDeploy(func(_ context.Context, task *gitsync.Task) { deployed = append(deployed, task) })
	if _, err := failing.Dispatch(context.Background(), pushDelivery()); err == nil {
		t.Fatalf("expected sync failure")
	}
	if len(deployed) != 1 {
		t.Fatalf("deploy hook must not fire on failure")
	}
}

// TestTargetDirLayout tests that working trees are laid out as root/org/repo.
func TestTargetDirLayout(t *testing.T) {
	d, err := New(Config{Token: "tok", DeployRoot: "deploys", Engine: &fakeEngine{}, Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	got := d.TargetDir(event.RepositoryRef{Organization: "acme", RepoName: "site"})
	if got != "deploys/acme/site" {
		t.Fatalf("unexpected target dir %q", got)
	}
}
