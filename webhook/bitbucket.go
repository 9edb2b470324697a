package webhook

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net/http"

	"deployhook/internal"

	"github.com/go-playground/webhooks/v6/bitbucket"
)

// BitbucketHandler verifies and forwards Bitbucket webhook deliveries.
type BitbucketHandler struct {
	hook      *bitbucket.Webhook
	publisher internal.Publisher
	topic     string
	logger    *log.Logger
}

var bitbucketEvents = []bitbucket.Event{
	bitbucket.RepoPushEvent,
	bitbucket.PullRequestCreatedEvent,
	bitbucket.PullRequestUpdatedEvent,
}

// NewBitbucketHandler creates a handler. The secret is the expected UUID in
// the X-Hook-UUID header.
func NewBitbucketHandler(secret, topic string, publisher internal.Publisher, logger *log.Logger) (*BitbucketHandler, error) {
	var opts []bitbucket.Option
	if secret != "" {
		opts = append(opts, bitbucket.Options.UUID(secret))
	}
	hook, err := bitbucket.New(opts...)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &BitbucketHandler{hook: hook, publisher: publisher, topic: topic, logger: logger}, nil
}

func (h *BitbucketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	internal.IncRequest("bitbucket")

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(rawBody))

	if _, err := h.hook.Parse(r, bitbucketEvents...); err != nil {
		if errors.Is(err, bitbucket.ErrEventNotFound) {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.logger.Printf("bitbucket parse failed: %v", err)
		internal.IncParseError("bitbucket")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	eventName := r.Header.Get("X-Event-Key")
	dlv := internal.Delivery{
		Provider: "bitbucket",
		Event:    eventName,
		Headers: map[string]string{
			"X-Event-Key": eventName,
		},
		RawPayload: rawBody,
	}
	if err := h.publisher.Publish(r.Context(), h.topic, dlv); err != nil {
		h.logger.Printf("publish bitbucket %s failed: %v", eventName, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h.logger.Printf("delivery provider=bitbucket event=%s queued", eventName)
	w.WriteHeader(http.StatusOK)
}
