// Package webhook holds the HTTP handlers that verify inbound platform
// deliveries and hand them to the transport. Signature verification happens
// here, at the boundary; the sync core receives pre-verified payloads.
package webhook

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net/http"

	"deployhook/internal"

	"github.com/go-playground/webhooks/v6/github"
)

// GitHubHandler verifies and forwards GitHub webhook deliveries.
type GitHubHandler struct {
	hook      *github.Webhook
	publisher internal.Publisher
	topic     string
	logger    *log.Logger
}

var githubEvents = []github.Event{
	github.PushEvent,
	github.DeleteEvent,
	github.PingEvent,
	github.PullRequestEvent,
	github.DeploymentEvent,
}

// NewGitHubHandler creates a handler. With an empty secret the signature
// check is skipped by the parser.
func NewGitHubHandler(secret, topic string, publisher internal.Publisher, logger *log.Logger) (*GitHubHandler, error) {
	var opts []github.Option
	if secret != "" {
		opts = append(opts, github.Options.Secret(secret))
	}
	hook, err := github.New(opts...)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &GitHubHandler{hook: hook, publisher: publisher, topic: topic, logger: logger}, nil
}

func (h *GitHubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	internal.IncRequest("github")

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(rawBody))

	if _, err := h.hook.Parse(r, githubEvents...); err != nil {
		if errors.Is(err, github.ErrEventNotFound) {
			// Unrecognized event kinds pass through unhandled.
			w.WriteHeader(http.StatusOK)
			return
		}
		h.logger.Printf("github parse failed: %v", err)
		internal.IncParseError("github")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	eventName := r.Header.Get("X-GitHub-Event")
	dlv := internal.Delivery{
		Provider: "github",
		Event:    eventName,
		Headers: map[string]string{
			"X-GitHub-Event":    eventName,
			"X-GitHub-Delivery": r.Header.Get("X-GitHub-Delivery"),
		},
		RawPayload: rawBody,
	}
	if err := h.publisher.Publish(r.Context(), h.topic, dlv); err != nil {
		h.logger.Printf("publish github %s failed: %v", eventName, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h.logger.Printf("delivery provider=github event=%s queued", eventName)
	w.WriteHeader(http.StatusOK)
}
