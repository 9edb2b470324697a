package gitsync

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// ErrInvalidURL is returned when a repository URL cannot be parsed as an
// absolute URL.
var ErrInvalidURL = errors.New("invalid repository url")

// BuildAuthURL embeds token as the user-info component of baseURL in the
// token:x-oauth-basic form used for smart-protocol basic auth, and appends a
// .git suffix when absent. The result carries a credential and must never be
// logged; log the credential-free baseURL instead. The engine itself fetches
// the FetchURL form and carries the credential as a transport option, so the
// token never rides in a URL that transport errors echo back.
func BuildAuthURL(baseURL, token string) (string, error) {
	u, err := parseRepoURL(baseURL)
	if err != nil {
		return "", err
	}
	u.User = url.UserPassword(token, "x-oauth-basic")
	return withGitSuffix(u.String()), nil
}

// FetchURL is the credential-free companion of BuildAuthURL: the same
// endpoint, same .git suffix, no user info.
func FetchURL(baseURL string) (string, error) {
	u, err := parseRepoURL(baseURL)
	if err != nil {
		return "", err
	}
	return withGitSuffix(u.String()), nil
}

// BasicAuth is the transport-option equivalent of the token:x-oauth-basic
// user-info form.
func BasicAuth(token string) *githttp.BasicAuth {
	return &githttp.BasicAuth{Username: token, Password: "x-oauth-basic"}
}

func parseRepoURL(baseURL string) (*url.URL, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not absolute", ErrInvalidURL, baseURL)
	}
	return u, nil
}

func withGitSuffix(s string) string {
	if strings.HasSuffix(s, ".git") {
		return s
	}
	return s + ".git"
}
