package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestLoadConfigDefaults tests that the default values are applied correctly when loading a config.
func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "git:\n  token: tok\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Providers.GitHub.Path != "/webhooks/github" {
		t.Fatalf("expected default github path, got %q", cfg.Providers.GitHub.Path)
	}
	if cfg.Providers.GitLab.Path != "/webhooks/gitlab" {
		t.Fatalf("expected default gitlab path, got %q", cfg.Providers.GitLab.Path)
	}
	if cfg.Providers.Bitbucket.Path != "/webhooks/bitbucket" {
		t.Fatalf("expected default bitbucket path, got %q", cfg.Providers.Bitbucket.Path)
	}
	if cfg.Git.DeployRoot != "deploys" {
		t.Fatalf("expected default deploy root, got %q", cfg.Git.DeployRoot)
	}
	if cfg.Git.Topic != "deployhook.deliveries" {
		t.Fatalf("expected default topic, got %q", cfg.Git.Topic)
	}
	if cfg.Git.Concurrency != 4 {
		t.Fatalf("expected default concurrency 4, got %d", cfg.Git.Concurrency)
	}
	if cfg.Watermill.Driver != "gochannel" {
		t.Fatalf("expected default watermill driver, got %q", cfg.Watermill.Driver)
	}
	if cfg.Watermill.GoChannel.OutputChannelBuffer != 64 {
		t.Fatalf("expected default gochannel output buffer, got %d", cfg.Watermill.GoChannel.OutputChannelBuffer)
	}
	if cfg.Storage.Table != "sync_journal" {
		t.Fatalf("expected default journal table, got %q", cfg.Storage.Table)
	}
}

// TestLoadConfigMissingToken tests that a config without a git access token is rejected.
func TestLoadConfigMissingToken(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "{}\n"))
	if err == nil {
		t.Fatalf("expected error for missing token")
	}
	if !strings.Contains(err.Error(), "token") {
		t.Fatalf("expected token error, got %v", err)
	}
}

// TestLoadConfigGitHubTokenDefaultsToGitToken tests that the GitHub provider token falls back to the git token.
func TestLoadConfigGitHubTokenDefaultsToGitToken(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "git:\n  token: tok\nproviders:\n  gitlab:\n    token: gltok\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Providers.GitHub.Token != "tok" {
		t.Fatalf("expected github token fallback, got %q", cfg.Providers.GitHub.Token)
	}
	if cfg.Providers.GitLab.Token != "gltok" {
		t.Fatalf("expected explicit gitlab token, got %q", cfg.Providers.GitLab.Token)
	}
}

// TestLoadConfigExpandsEnv tests that environment variables are expanded before parsing.
func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("DEPLOYHOOK_TEST_TOKEN", "from-env")
	cfg, err := LoadConfig(writeConfig(t, "git:\n  token: ${DEPLOYHOOK_TEST_TOKEN}\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Git.Token != "from-env" {
		t.Fatalf("expected env expansion, got %q", cfg.Git.Token)
	}
}

// TestLoadConfigInvalidFilter tests that a filter rule with neither when nor path is rejected.
func TestLoadConfigInvalidFilter(t *testing.T) {
	content := "git:\n  token: tok\nfilters:\n  - equals: main\n"
	if _, err := LoadConfig(writeConfig(t, content)); err == nil {
		t.Fatalf("expected error for incomplete filter rule")
	}
}

// TestLoadConfigFilters tests that filter rules parse into the expected shape.
func TestLoadConfigFilters(t *testing.T) {
	content := "git:\n  token: tok\nfilters:\n  - when: ref == \"refs/heads/main\"\n  - path: $.repository.default_branch\n    equals: main\n"
	cfg, err := LoadConfig(writeConfig(t, content))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.Filters) != 2 {
		t.Fatalf("expected 2 filters, got %d", len(cfg.Filters))
	}
	if cfg.Filters[1].Path != "$.repository.default_branch" || cfg.Filters[1].Equals != "main" {
		t.Fatalf("unexpected second filter %+v", cfg.Filters[1])
	}
}
