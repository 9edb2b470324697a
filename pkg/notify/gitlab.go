package notify

import (
	"context"

	gl "github.com/xanzy/go-gitlab"

	"deployhook/pkg/event"
)

// GitLabNotifier posts commit statuses through the GitLab API.
type GitLabNotifier struct {
	client *gl.Client
}

// NewGitLabNotifier creates a notifier using a private or project access
// token. baseURL is only needed for self-managed instances.
func NewGitLabNotifier(token, baseURL string) (*GitLabNotifier, error) {
	var opts []gl.ClientOptionFunc
	if baseURL != "" {
		opts = append(opts, gl.WithBaseURL(baseURL))
	}
	client, err := gl.NewClient(token, opts...)
	if err != nil {
		return nil, err
	}
	return &GitLabNotifier{client: client}, nil
}

// PublishStatus sets the commit status for sha.
func (n *GitLabNotifier) PublishStatus(ctx context.Context, repo event.RepositoryRef, sha string, status Status, description string) error {
	state := map[Status]gl.BuildStateValue{
		StatusPending: gl.Pending,
		StatusSuccess: gl.Success,
		StatusError:   gl.Failed,
	}[status]

	_, _, err := n.client.Commits.SetCommitStatus(repo.FullName(), sha, &gl.SetCommitStatusOptions{
		State:       state,
		Context:     gl.Ptr(statusContext),
		Description: gl.Ptr(truncate(description, 140)),
	}, gl.WithContext(ctx))
	return err
}
