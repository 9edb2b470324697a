package notify

import (
	"context"
	"strings"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"deployhook/pkg/event"
	"deployhook/pkg/gitsync"
)

const statusContext = "deployhook"

// GitHubNotifier posts commit statuses and creates deployments through the
// GitHub API.
type GitHubNotifier struct {
	client *gh.Client
}

// NewGitHubNotifier creates a notifier authenticated with a personal access
// or installation token. baseURL is only needed for GitHub Enterprise.
func NewGitHubNotifier(token, baseURL string) (*GitHubNotifier, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), ts)

	base := strings.TrimRight(baseURL, "/")
	if base != "" && base != "https://api.github.com" {
		client, err := gh.NewClient(httpClient).WithEnterpriseURLs(base, base)
		if err != nil {
			return nil, err
		}
		return &GitHubNotifier{client: client}, nil
	}
	return &GitHubNotifier{client: gh.NewClient(httpClient)}, nil
}

// PublishStatus sets the commit status for sha.
func (n *GitHubNotifier) PublishStatus(ctx context.Context, repo event.RepositoryRef, sha string, status Status, description string) error {
	state := map[Status]string{
		StatusPending: "pending",
		StatusSuccess: "success",
		StatusError:   "error",
	}[status]

	_, _, err := n.client.Repositories.CreateStatus(ctx, repo.Organization, repo.RepoName, sha, &gh.RepoStatus{
		State:       gh.String(state),
		Description: gh.String(truncate(description, 140)),
		Context:     gh.String(statusContext),
	})
	return err
}

// CreateDeployment records a deployment for a successfully synchronized
// task. Used as the dispatcher's post-success hook.
func (n *GitHubNotifier) CreateDeployment(ctx context.Context, task *gitsync.Task) error {
	_, _, err := n.client.Repositories.CreateDeployment(ctx, task.Repo.Organization, task.Repo.RepoName, &gh.DeploymentRequest{
		Ref:              gh.String(task.Repo.Ref),
		Environment:      gh.String("production"),
		AutoMerge:        gh.Bool(false),
		RequiredContexts: &[]string{},
		Description:      gh.String("deployhook sync " + task.ResolvedSHA),
	})
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
