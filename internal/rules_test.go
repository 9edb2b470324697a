package internal

import (
	"io"
	"log"
	"testing"
)

func testFilterEngine(t *testing.T, rules []Rule) *FilterEngine {
	t.Helper()
	engine, err := NewFilterEngine(rules, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new filter engine: %v", err)
	}
	return engine
}

// TestFilterNoRulesDeploysEverything tests that an empty rule set lets every push through.
func TestFilterNoRulesDeploysEverything(t *testing.T) {
	engine := testFilterEngine(t, nil)
	if !engine.ShouldDeploy(map[string]interface{}{"ref": "refs/heads/anything"}) {
		t.Fatalf("expected deploy with no rules")
	}
}

// TestFilterWhenExpression tests that a govaluate expression gates deployment.
func TestFilterWhenExpression(t *testing.T) {
	engine := testFilterEngine(t, []Rule{
		{When: "ref == \"refs/heads/main\""},
	})

	if !engine.ShouldDeploy(map[string]interface{}{"ref": "refs/heads/main"}) {
		t.Fatalf("expected main push to deploy")
	}
	if engine.ShouldDeploy(map[string]interface{}{"ref": "refs/heads/feature"}) {
		t.Fatalf("expected feature push to be filtered")
	}
}

// TestFilterWhenNestedField tests that expressions can reference flattened nested fields.
func TestFilterWhenNestedField(t *testing.T) {
	engine := testFilterEngine(t, []Rule{
		{When: "[repository.default_branch] == \"main\""},
	})

	body := map[string]interface{}{
		"repository": map[string]interface{}{"default_branch": "main"},
	}
	if !engine.ShouldDeploy(body) {
		t.Fatalf("expected nested field match")
	}
}

// TestFilterJSONPath tests that a jsonpath selector compared against a literal gates deployment.
func TestFilterJSONPath(t *testing.T) {
	engine := testFilterEngine(t, []Rule{
		{Path: "$.repository.default_branch", Equals: "main"},
	})

	match := map[string]interface{}{
		"repository": map[string]interface{}{"default_branch": "main"},
	}
	if !engine.ShouldDeploy(match) {
		t.Fatalf("expected jsonpath match")
	}

	miss := map[string]interface{}{
		"repository": map[string]interface{}{"default_branch": "develop"},
	}
	if engine.ShouldDeploy(miss) {
		t.Fatalf("expected jsonpath miss to be filtered")
	}
}

// TestFilterAnyRuleMatches tests that a push deploys when any one rule matches.
func TestFilterAnyRuleMatches(t *testing.T) {
	engine := testFilterEngine(t, []Rule{
		{When: "ref == \"refs/heads/main\""},
		{Path: "$.forced", Equals: "true"},
	})

	if !engine.ShouldDeploy(map[string]interface{}{"ref": "refs/heads/x", "forced": true}) {
		t.Fatalf("expected second rule to match")
	}
	if engine.ShouldDeploy(map[string]interface{}{"ref": "refs/heads/x"}) {
		t.Fatalf("expected no rule to match")
	}
}

// TestFilterInvalidRule tests that a rule with neither when nor path fails construction.
func TestFilterInvalidRule(t *testing.T) {
	if _, err := NewFilterEngine([]Rule{{Equals: "main"}}, nil); err == nil {
		t.Fatalf("expected construction error")
	}
}
