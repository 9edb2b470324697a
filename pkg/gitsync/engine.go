// Package gitsync updates a local repository and working tree to match a
// single remote ref. The pipeline is strictly linear: directory, fetch,
// resolve, head update, checkout. Each step is gated on the previous one and
// the first failure aborts the rest.
//
// The engine performs no locking and no retries. At most one Sync may run
// against a target directory at a time; serialization per directory is a
// caller responsibility. A sync interrupted mid-pipeline leaves partial
// state behind, and re-running the same sync converges on the same result.
package gitsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// LogFunc receives one human-readable progress line per pipeline step,
// emitted before the step runs. Lines never contain credentials.
type LogFunc func(format string, args ...interface{})

// Engine runs sync tasks.
type Engine struct {
	logf LogFunc
}

// NewEngine creates an engine that reports progress through logf. A nil
// logf discards progress lines.
func NewEngine(logf LogFunc) *Engine {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Engine{logf: logf}
}

// Sync brings task.TargetDir up to date with the commit task.Repo.Ref
// points at on the remote. The object store lives in TargetDir/.git and the
// working tree is materialized in TargetDir itself.
//
// Fetch and checkout respect ctx; a deadline that expires during those
// steps surfaces as a fetch or checkout stage failure.
func (e *Engine) Sync(ctx context.Context, task *Task) error {
	// The credential rides as a transport option, never inside the remote
	// URL: transport errors echo the URL they dialed, and a fetch failure
	// flows into logs, the journal and remote status descriptions.
	remote := task.Repo.CloneURL
	var auth transport.AuthMethod
	if task.token != "" {
		fetchURL, err := FetchURL(task.Repo.CloneURL)
		if err != nil {
			task.State = StateFailed
			return err
		}
		remote = fetchURL
		auth = BasicAuth(task.token)
	}

	e.logf("cloning %s to %s", task.Repo.CloneURL, task.TargetDir)
	repo, err := e.openObjectStore(task)
	if err != nil {
		return err
	}

	if err := e.fetch(ctx, task, repo, remote, auth); err != nil {
		return err
	}

	hash, err := e.resolve(task, repo)
	if err != nil {
		return err
	}

	if err := e.updateHead(task, repo, hash); err != nil {
		return err
	}

	return e.checkout(ctx, task, repo, hash)
}

// openObjectStore ensures TargetDir/.git exists, creating intermediate path
// segments as needed, and opens or initializes the repository.
func (e *Engine) openObjectStore(task *Task) (*git.Repository, error) {
	if err := os.MkdirAll(filepath.Join(task.TargetDir, ".git"), 0o755); err != nil {
		return nil, task.fail(stageErr(StageDirectory, err))
	}

	repo, err := git.PlainOpen(task.TargetDir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(task.TargetDir, false)
	}
	if err != nil {
		return nil, task.fail(stageErr(StageDirectory, err))
	}

	task.State = StateDirectoryReady
	return repo, nil
}

// fetch requests exactly the object graph reachable from the task's ref.
// The want list is a single refspec, never a mirror fetch.
func (e *Engine) fetch(ctx context.Context, task *Task, repo *git.Repository, remoteURL string, auth transport.AuthMethod) error {
	task.State = StateFetching
	e.logf("fetching %s", task.Repo.CloneURL)

	ref := fullRefName(task.Repo.Ref)
	remote := git.NewRemote(repo.Storer, &gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{remoteURL},
	})
	err := remote.FetchContext(ctx, &git.FetchOptions{
		RefSpecs: []gitconfig.RefSpec{
			gitconfig.RefSpec(fmt.Sprintf("+%s:%s", ref, ref)),
		},
		Auth:  auth,
		Force: true,
		Tags:  git.NoTags,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return task.fail(stageErr(StageFetch, err))
	}

	task.State = StateFetched
	return nil
}

// resolve turns the fetched hashish (symbolic name, short hash or full
// hash) into one concrete commit identifier.
func (e *Engine) resolve(task *Task, repo *git.Repository) (plumbing.Hash, error) {
	task.State = StateResolving
	e.logf("resolving %s", task.Repo.Ref)

	hash, err := repo.ResolveRevision(plumbing.Revision(task.Repo.Ref))
	if err != nil {
		return plumbing.ZeroHash, task.fail(stageErr(StageResolve, err))
	}

	task.ResolvedSHA = hash.String()
	task.State = StateResolved
	return *hash, nil
}

// updateHead moves the object-store head pointer. Metadata only; the
// working tree is untouched until checkout.
func (e *Engine) updateHead(task *Task, repo *git.Repository, hash plumbing.Hash) error {
	task.State = StateUpdatingHead
	e.logf("updating head to %s", hash)

	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.HEAD, hash)); err != nil {
		return task.fail(stageErr(StageHeadUpdate, err))
	}

	task.State = StateHeadUpdated
	return nil
}

// checkout materializes the working tree at the resolved commit. Tracked
// files absent from the target commit are removed; untracked files are left
// alone. The head pointer and the working tree must agree on the same
// commit afterwards; any divergence is a checkout failure.
func (e *Engine) checkout(ctx context.Context, task *Task, repo *git.Repository, hash plumbing.Hash) error {
	task.State = StateCheckingOut
	e.logf("checking out %s", task.Repo.Ref)

	if err := ctx.Err(); err != nil {
		return task.fail(stageErr(StageCheckout, err))
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return task.fail(stageErr(StageCheckout, err))
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return task.fail(stageErr(StageCheckout, err))
	}

	head, err := repo.Head()
	if err != nil {
		return task.fail(stageErr(StageCheckout, err))
	}
	if head.Hash() != hash {
		return task.fail(stageErr(StageCheckout,
			fmt.Errorf("head %s diverges from resolved commit %s", head.Hash(), hash)))
	}

	task.State = StateSucceeded
	return nil
}

// fullRefName widens a bare branch name to its refs/heads/ form so the
// fetch refspec is always a full ref path.
func fullRefName(ref string) string {
	if strings.HasPrefix(ref, "refs/") {
		return ref
	}
	return "refs/heads/" + ref
}
