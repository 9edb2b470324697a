// Package event classifies raw webhook deliveries into structured events.
// Classification is pure: it reads headers and an already-decoded payload
// and performs no I/O.
package event

import (
	"errors"
	"strings"
)

// Kind identifies the webhook event variant.
type Kind string

const (
	KindPush        Kind = "push"
	KindDelete      Kind = "delete"
	KindPing        Kind = "ping"
	KindPullRequest Kind = "pull_request"
	KindDeployment  Kind = "deployment"
	KindUnknown     Kind = "unknown"
)

// ErrMalformedPayload is returned when a payload is missing the fields its
// event kind requires.
var ErrMalformedPayload = errors.New("malformed webhook payload")

// Headers is a header set with case-insensitive lookup.
type Headers map[string]string

// Get returns the value for name, matching header names case-insensitively.
func (h Headers) Get(name string) string {
	if v, ok := h[name]; ok {
		return v
	}
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// RepositoryRef identifies the repository and commit a delivery points at.
// CloneURL is the credential-free form and is the only URL safe to log.
type RepositoryRef struct {
	Organization string `json:"organization"`
	RepoName     string `json:"repo_name"`
	CloneURL     string `json:"clone_url"`
	Ref          string `json:"ref"`
	Branch       string `json:"branch"`
	CommitSHA    string `json:"commit_sha"`
	Deleted      bool   `json:"deleted"`
}

// FullName returns organization/repo.
func (r RepositoryRef) FullName() string {
	return r.Organization + "/" + r.RepoName
}

// Delivery is one classified webhook delivery. It is constructed once per
// inbound request and is immutable afterwards.
type Delivery struct {
	Provider string                 `json:"provider"`
	Kind     Kind                   `json:"kind"`
	Headers  Headers                `json:"headers"`
	Body     map[string]interface{} `json:"body"`
	Repo     RepositoryRef          `json:"repo"`
}

// BranchFromRef strips a single leading refs/heads/ prefix. Any other ref
// form is returned unchanged.
func BranchFromRef(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}
