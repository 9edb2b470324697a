package webhook

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"

	"deployhook/internal"
)

type stubPublisher struct {
	published []internal.Delivery
	topics    []string
	err       error
}

func (s *stubPublisher) Publish(ctx context.Context, topic string, dlv internal.Delivery) error {
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, dlv)
	s.topics = append(s.topics, topic)
	return nil
}

func (s *stubPublisher) Close() error { return nil }

const githubPushJSON = `{
	"ref": "refs/heads/main",
	"before": "0000000000000000000000000000000000000000",
	"after": "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2",
	"repository": {
		"url": "https://github.com/acme/site",
		"name": "site",
		"full_name": "acme/site",
		"owner": {"login": "acme"}
	},
	"pusher": {"name": "acme", "email": "acme@example.com"},
	"commits": [],
	"head_commit": null
}`

// TestGitHubHandlerQueuesPush tests that a valid push is published to the delivery topic.
func TestGitHubHandlerQueuesPush(t *testing.T) {
	pub := &stubPublisher{}
	handler, err := NewGitHubHandler("", "test.deliveries", pub, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	req := httptest.NewRequest("POST", "/webhooks/github", strings.NewReader(githubPushJSON))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set("X-GitHub-Delivery", "d-1")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pub.published))
	}
	dlv := pub.published[0]
	if dlv.Provider != "github" || dlv.Event != "push" {
		t.Fatalf("unexpected envelope %+v", dlv)
	}
	if dlv.Headers["X-GitHub-Delivery"] != "d-1" {
		t.Fatalf("expected delivery id header, got %q", dlv.Headers["X-GitHub-Delivery"])
	}
	if pub.topics[0] != "test.deliveries" {
		t.Fatalf("unexpected topic %q", pub.topics[0])
	}
}

// TestGitHubHandlerUnknownEventPasses tests that unrecognized events return 200 without publishing.
func TestGitHubHandlerUnknownEventPasses(t *testing.T) {
	pub := &stubPublisher{}
	handler, err := NewGitHubHandler("", "test.deliveries", pub, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	req := httptest.NewRequest("POST", "/webhooks/github", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "star")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(pub.published) != 0 {
		t.Fatalf("unknown event must not be published")
	}
}

// TestGitHubHandlerBadSignature tests that a wrong signature is rejected without publishing.
func TestGitHubHandlerBadSignature(t *testing.T) {
	pub := &stubPublisher{}
	handler, err := NewGitHubHandler("sekrit", "test.deliveries", pub, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	req := httptest.NewRequest("POST", "/webhooks/github", strings.NewReader(githubPushJSON))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set("X-Hub-Signature", "sha1=deadbeef")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(pub.published) != 0 {
		t.Fatalf("invalid signature must not be published")
	}
}

// TestGitHubHandlerPublishFailure tests that a transport failure surfaces as a 500.
func TestGitHubHandlerPublishFailure(t *testing.T) {
	pub := &stubPublisher{err: errors.New("broker down")}
	handler, err := NewGitHubHandler("", "test.deliveries", pub, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	req := httptest.NewRequest("POST", "/webhooks/github", strings.NewReader(githubPushJSON))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "push")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != 500 {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
