package internal

import (
	"fmt"
	"log"

	"github.com/Knetic/govaluate"
	"github.com/PaesslerAG/jsonpath"
)

// Rule decides whether a push delivery should be deployed. Either When (a
// govaluate expression over the flattened payload) or Path+Equals (a
// jsonpath selector compared against a literal) must be set.
type Rule struct {
	When   string `yaml:"when"`
	Path   string `yaml:"path"`
	Equals string `yaml:"equals"`
}

type compiledRule struct {
	expr   *govaluate.EvaluableExpression
	path   string
	equals string
}

// FilterEngine evaluates deploy-filter rules. With no rules configured
// every push deploys; otherwise a push deploys when any rule matches.
type FilterEngine struct {
	rules  []compiledRule
	logger *log.Logger
}

func NewFilterEngine(rules []Rule, logger *log.Logger) (*FilterEngine, error) {
	if logger == nil {
		logger = log.Default()
	}

	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		switch {
		case rule.When != "":
			expr, err := govaluate.NewEvaluableExpression(rule.When)
			if err != nil {
				return nil, fmt.Errorf("filter rule %d: %w", i, err)
			}
			compiled = append(compiled, compiledRule{expr: expr})
		case rule.Path != "":
			compiled = append(compiled, compiledRule{path: rule.Path, equals: rule.Equals})
		default:
			return nil, fmt.Errorf("filter rule %d: when or path is required", i)
		}
	}

	return &FilterEngine{rules: compiled, logger: logger}, nil
}

// ShouldDeploy reports whether the delivery passes the filter. body is the
// decoded payload; the flattened view feeds govaluate expressions and the
// raw view feeds jsonpath selectors.
func (f *FilterEngine) ShouldDeploy(body map[string]interface{}) bool {
	if len(f.rules) == 0 {
		return true
	}

	flat := Flatten(body)
	for _, rule := range f.rules {
		if rule.expr != nil {
			result, err := rule.expr.Evaluate(flat)
			if err != nil {
				f.logger.Printf("filter eval failed: %v", err)
				continue
			}
			if ok, _ := result.(bool); ok {
				return true
			}
			continue
		}

		value, err := jsonpath.Get(rule.path, interface{}(body))
		if err != nil {
			continue
		}
		if fmt.Sprint(value) == rule.equals {
			return true
		}
	}
	return false
}
