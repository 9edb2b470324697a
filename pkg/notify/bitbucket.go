package notify

import (
	"context"

	bb "github.com/ktrysmt/go-bitbucket"

	"deployhook/pkg/event"
)

// BitbucketNotifier posts build statuses through the Bitbucket Cloud API.
type BitbucketNotifier struct {
	client *bb.Client
}

// NewBitbucketNotifier creates a notifier using an OAuth bearer token.
func NewBitbucketNotifier(token string) *BitbucketNotifier {
	return &BitbucketNotifier{client: bb.NewOAuthbearerToken(token)}
}

// PublishStatus sets the build status for sha. Bitbucket has no context
// parameter on the request itself; the status key plays that role.
func (n *BitbucketNotifier) PublishStatus(ctx context.Context, repo event.RepositoryRef, sha string, status Status, description string) error {
	state := map[Status]string{
		StatusPending: "INPROGRESS",
		StatusSuccess: "SUCCESSFUL",
		StatusError:   "FAILED",
	}[status]

	_, err := n.client.Repositories.Commits.CreateCommitStatus(&bb.CommitsOptions{
		Owner:    repo.Organization,
		RepoSlug: repo.RepoName,
		Revision: sha,
	}, &bb.CommitStatusOptions{
		Key:         statusContext,
		State:       state,
		Description: truncate(description, 140),
	})
	return err
}
