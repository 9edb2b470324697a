package event

import (
	"fmt"
	"strings"
)

// Provider names accepted by Classify.
const (
	ProviderGitHub    = "github"
	ProviderGitLab    = "gitlab"
	ProviderBitbucket = "bitbucket"
)

// event-kind headers per provider
const (
	githubEventHeader    = "X-GitHub-Event"
	gitlabEventHeader    = "X-Gitlab-Event"
	bitbucketEventHeader = "X-Event-Key"
)

const zeroSHA = "0000000000000000000000000000000000000000"

// Classify derives a Delivery from a provider's raw headers and decoded
// body. The event-kind header is read case-insensitively; unknown or absent
// values yield KindUnknown. Ping events return immediately without touching
// the payload. Push and delete events require the repository block and ref;
// anything missing fails with ErrMalformedPayload.
func Classify(provider string, headers Headers, body map[string]interface{}) (Delivery, error) {
	d := Delivery{
		Provider: provider,
		Headers:  headers,
		Body:     body,
		Kind:     kindOf(provider, headers),
	}

	switch d.Kind {
	case KindPing, KindUnknown:
		return d, nil
	case KindPush, KindDelete:
		repo, err := pushRef(provider, d.Kind, body)
		if err != nil {
			return Delivery{}, err
		}
		d.Repo = repo
		return d, nil
	case KindPullRequest, KindDeployment:
		// Recognized but not fully handled downstream; extract only what
		// every payload shape guarantees.
		d.Repo = partialRef(provider, body)
		return d, nil
	}
	return d, nil
}

func kindOf(provider string, headers Headers) Kind {
	switch provider {
	case ProviderGitLab:
		switch headers.Get(gitlabEventHeader) {
		case "Push Hook":
			return KindPush
		case "Merge Request Hook":
			return KindPullRequest
		case "Deployment Hook":
			return KindDeployment
		}
		return KindUnknown
	case ProviderBitbucket:
		switch headers.Get(bitbucketEventHeader) {
		case "repo:push":
			return KindPush
		case "pullrequest:created", "pullrequest:updated":
			return KindPullRequest
		}
		return KindUnknown
	default:
		switch headers.Get(githubEventHeader) {
		case "push":
			return KindPush
		case "delete":
			return KindDelete
		case "ping":
			return KindPing
		case "pull_request":
			return KindPullRequest
		case "deployment":
			return KindDeployment
		}
		return KindUnknown
	}
}

func pushRef(provider string, kind Kind, body map[string]interface{}) (RepositoryRef, error) {
	if body == nil {
		return RepositoryRef{}, fmt.Errorf("%w: missing body", ErrMalformedPayload)
	}

	switch provider {
	case ProviderGitLab:
		return gitlabPushRef(body)
	case ProviderBitbucket:
		return bitbucketPushRef(body)
	default:
		return githubPushRef(kind, body)
	}
}

func githubPushRef(kind Kind, body map[string]interface{}) (RepositoryRef, error) {
	repo, ok := mapAt(body, "repository")
	if !ok {
		return RepositoryRef{}, fmt.Errorf("%w: missing repository", ErrMalformedPayload)
	}

	ref := RepositoryRef{
		CloneURL:  stringAt(repo, "url"),
		RepoName:  stringAt(repo, "name"),
		Ref:       stringAt(body, "ref"),
		CommitSHA: stringAt(body, "after"),
	}
	ref.Organization = stringAt(repo, "organization")
	if ref.Organization == "" {
		if owner, ok := mapAt(repo, "owner"); ok {
			ref.Organization = firstNonEmpty(stringAt(owner, "login"), stringAt(owner, "name"))
		}
	}
	if ref.CloneURL == "" || ref.RepoName == "" || ref.Organization == "" || ref.Ref == "" {
		return RepositoryRef{}, fmt.Errorf("%w: incomplete repository fields", ErrMalformedPayload)
	}

	ref.Branch = BranchFromRef(ref.Ref)
	if deleted, _ := body["deleted"].(bool); deleted || kind == KindDelete || ref.CommitSHA == zeroSHA {
		ref.Deleted = true
		ref.CommitSHA = ""
		return ref, nil
	}
	if ref.CommitSHA == "" {
		return RepositoryRef{}, fmt.Errorf("%w: push without target commit", ErrMalformedPayload)
	}
	return ref, nil
}

func gitlabPushRef(body map[string]interface{}) (RepositoryRef, error) {
	project, ok := mapAt(body, "project")
	if !ok {
		return RepositoryRef{}, fmt.Errorf("%w: missing project", ErrMalformedPayload)
	}

	ref := RepositoryRef{
		CloneURL:  firstNonEmpty(stringAt(project, "git_http_url"), stringAt(project, "http_url")),
		RepoName:  stringAt(project, "name"),
		Ref:       stringAt(body, "ref"),
		CommitSHA: stringAt(body, "after"),
	}
	ref.Organization = stringAt(project, "namespace")
	if ref.Organization == "" {
		if full := stringAt(project, "path_with_namespace"); full != "" {
			ref.Organization, _, _ = strings.Cut(full, "/")
		}
	}
	if ref.CloneURL == "" || ref.RepoName == "" || ref.Organization == "" || ref.Ref == "" {
		return RepositoryRef{}, fmt.Errorf("%w: incomplete project fields", ErrMalformedPayload)
	}

	ref.Branch = BranchFromRef(ref.Ref)
	if ref.CommitSHA == "" || ref.CommitSHA == zeroSHA {
		ref.Deleted = true
		ref.CommitSHA = ""
	}
	return ref, nil
}

func bitbucketPushRef(body map[string]interface{}) (RepositoryRef, error) {
	repo, ok := mapAt(body, "repository")
	if !ok {
		return RepositoryRef{}, fmt.Errorf("%w: missing repository", ErrMalformedPayload)
	}

	ref := RepositoryRef{
		RepoName: stringAt(repo, "name"),
	}
	if full := stringAt(repo, "full_name"); full != "" {
		ref.Organization, _, _ = strings.Cut(full, "/")
	}
	if links, ok := mapAt(repo, "links"); ok {
		if html, ok := mapAt(links, "html"); ok {
			ref.CloneURL = stringAt(html, "href")
		}
	}

	// Bitbucket delivers pushes as a change list; the first change carries
	// the branch and target commit.
	if push, ok := mapAt(body, "push"); ok {
		if changes, ok := push["changes"].([]interface{}); ok && len(changes) > 0 {
			if change, ok := changes[0].(map[string]interface{}); ok {
				if next, ok := mapAt(change, "new"); ok {
					ref.Branch = stringAt(next, "name")
					ref.Ref = "refs/heads/" + ref.Branch
					if target, ok := mapAt(next, "target"); ok {
						ref.CommitSHA = stringAt(target, "hash")
					}
				} else {
					ref.Deleted = true
					if old, ok := mapAt(change, "old"); ok {
						ref.Branch = stringAt(old, "name")
						ref.Ref = "refs/heads/" + ref.Branch
					}
				}
			}
		}
	}
	if ref.CloneURL == "" || ref.RepoName == "" || ref.Organization == "" || ref.Ref == "" {
		return RepositoryRef{}, fmt.Errorf("%w: incomplete repository fields", ErrMalformedPayload)
	}
	if !ref.Deleted && ref.CommitSHA == "" {
		return RepositoryRef{}, fmt.Errorf("%w: push without target commit", ErrMalformedPayload)
	}
	return ref, nil
}

// partialRef extracts whatever repository identity the payload carries,
// without failing when fields are absent.
func partialRef(provider string, body map[string]interface{}) RepositoryRef {
	if body == nil {
		return RepositoryRef{}
	}
	key := "repository"
	if provider == ProviderGitLab {
		key = "project"
	}
	repo, ok := mapAt(body, key)
	if !ok {
		return RepositoryRef{}
	}
	ref := RepositoryRef{
		RepoName: stringAt(repo, "name"),
		CloneURL: firstNonEmpty(stringAt(repo, "url"), stringAt(repo, "git_http_url")),
	}
	if full := stringAt(repo, "full_name"); full != "" {
		ref.Organization, _, _ = strings.Cut(full, "/")
	}
	if ref.Organization == "" {
		if owner, ok := mapAt(repo, "owner"); ok {
			ref.Organization = firstNonEmpty(stringAt(owner, "login"), stringAt(owner, "name"))
		}
	}
	return ref
}

func mapAt(m map[string]interface{}, key string) (map[string]interface{}, bool) {
	child, ok := m[key].(map[string]interface{})
	return child, ok
}

func stringAt(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
