package entitlement

import (
	"context"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

// Default Rego policy carrying the plan feature matrix. Deployments can layer
// extra modules on top (e.g. per-customer overrides) via NewOPAEvaluator.
const defaultRegoPolicy = `package flowlytix.entitlement

default allow = false

features := {
	"trial": {"core", "export_basic"},
	"basic": {"core", "export_basic", "multi_currency"},
	"professional": {"core", "export_basic", "multi_currency", "analytics", "api_access"},
	"enterprise": {"core", "export_basic", "multi_currency", "analytics", "api_access", "custom_branding", "priority_support"},
}

allow if {
	features[input.plan][input.feature]
}

plan_features := features[input.plan]
`

// OPAEvaluator evaluates plan entitlement using OPA Rego.
type OPAEvaluator struct {
	compiler *ast.Compiler
}

// NewOPAEvaluator returns an OPA-based entitlement evaluator. extraModules are
// additional Rego sources compiled alongside the default feature matrix; pass
// none for the built-in policy only.
func NewOPAEvaluator(extraModules ...string) (*OPAEvaluator, error) {
	modules := map[string]string{"entitlement_0.rego": defaultRegoPolicy}
	for i, m := range extraModules {
		modules[fmt.Sprintf("entitlement_%d.rego", i+1)] = m
	}
	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return nil, fmt.Errorf("compile entitlement policy: %w", err)
	}
	return &OPAEvaluator{compiler: compiler}, nil
}

// HealthCheck verifies that the in-process OPA Rego engine can evaluate the
// compiled policy. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	ok, err := e.CheckFeature(ctx, "enterprise", "core")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("entitlement policy rejected a baseline feature")
	}
	return nil
}

// CheckFeature evaluates data.flowlytix.entitlement.allow for the plan/feature pair.
func (e *OPAEvaluator) CheckFeature(ctx context.Context, plan, feature string) (bool, error) {
	q := rego.New(
		rego.Query("data.flowlytix.entitlement.allow"),
		rego.Compiler(e.compiler),
		rego.Input(map[string]interface{}{"plan": plan, "feature": feature}),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return false, fmt.Errorf("eval entitlement policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, fmt.Errorf("entitlement query returned no result")
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("entitlement query returned non-boolean")
	}
	return allowed, nil
}

// ListFeatures evaluates the plan's feature set. An unknown plan yields an
// empty list, not an error.
func (e *OPAEvaluator) ListFeatures(ctx context.Context, plan string) ([]string, error) {
	q := rego.New(
		rego.Query("data.flowlytix.entitlement.plan_features"),
		rego.Compiler(e.compiler),
		rego.Input(map[string]interface{}{"plan": plan}),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("eval entitlement policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, nil
	}
	set, ok := rs[0].Expressions[0].Value.([]interface{})
	if !ok {
		return nil, nil
	}
	features := make([]string, 0, len(set))
	for _, v := range set {
		if s, ok := v.(string); ok {
			features = append(features, s)
		}
	}
	sort.Strings(features)
	return features, nil
}
