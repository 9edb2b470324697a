package webhook

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net/http"

	"deployhook/internal"

	"github.com/go-playground/webhooks/v6/gitlab"
)

// GitLabHandler verifies and forwards GitLab webhook deliveries.
type GitLabHandler struct {
	hook      *gitlab.Webhook
	publisher internal.Publisher
	topic     string
	logger    *log.Logger
}

var gitlabEvents = []gitlab.Event{
	gitlab.PushEvents,
	gitlab.MergeRequestEvents,
	gitlab.DeploymentEvents,
}

// NewGitLabHandler creates a handler. With an empty secret the token check
// is skipped by the parser.
func NewGitLabHandler(secret, topic string, publisher internal.Publisher, logger *log.Logger) (*GitLabHandler, error) {
	var opts []gitlab.Option
	if secret != "" {
		opts = append(opts, gitlab.Options.Secret(secret))
	}
	hook, err := gitlab.New(opts...)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &GitLabHandler{hook: hook, publisher: publisher, topic: topic, logger: logger}, nil
}

func (h *GitLabHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	internal.IncRequest("gitlab")

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(rawBody))

	if _, err := h.hook.Parse(r, gitlabEvents...); err != nil {
		if errors.Is(err, gitlab.ErrEventNotFound) {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.logger.Printf("gitlab parse failed: %v", err)
		internal.IncParseError("gitlab")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	eventName := r.Header.Get("X-Gitlab-Event")
	dlv := internal.Delivery{
		Provider: "gitlab",
		Event:    eventName,
		Headers: map[string]string{
			"X-Gitlab-Event": eventName,
		},
		RawPayload: rawBody,
	}
	if err := h.publisher.Publish(r.Context(), h.topic, dlv); err != nil {
		h.logger.Printf("publish gitlab %s failed: %v", eventName, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h.logger.Printf("delivery provider=gitlab event=%s queued", eventName)
	w.WriteHeader(http.StatusOK)
}
