package entitlement

import (
	"context"
	"testing"
)

func TestCheckFeatureMatrix(t *testing.T) {
	e, err := NewOPAEvaluator()
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	ctx := context.Background()

	cases := []struct {
		plan    string
		feature string
		want    bool
	}{
		{"trial", "core", true},
		{"trial", "analytics", false},
		{"basic", "multi_currency", true},
		{"basic", "api_access", false},
		{"professional", "analytics", true},
		{"professional", "api_access", true},
		{"professional", "custom_branding", false},
		{"enterprise", "custom_branding", true},
		{"enterprise", "priority_support", true},
		{"gold", "core", false}, // unknown plan
		{"basic", "teleport", false},
	}
	for _, tc := range cases {
		got, err := e.CheckFeature(ctx, tc.plan, tc.feature)
		if err != nil {
			t.Fatalf("CheckFeature(%s, %s): %v", tc.plan, tc.feature, err)
		}
		if got != tc.want {
			t.Errorf("CheckFeature(%s, %s) = %v, want %v", tc.plan, tc.feature, got, tc.want)
		}
	}
}

func TestListFeatures(t *testing.T) {
	e, err := NewOPAEvaluator()
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	ctx := context.Background()

	features, err := e.ListFeatures(ctx, "professional")
	if err != nil {
		t.Fatalf("ListFeatures: %v", err)
	}
	if len(features) != 5 {
		t.Errorf("professional features want 5, got %d: %v", len(features), features)
	}

	none, err := e.ListFeatures(ctx, "gold")
	if err != nil {
		t.Fatalf("ListFeatures unknown plan: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("unknown plan should have no features, got %v", none)
	}
}

func TestExtraModuleOverlay(t *testing.T) {
	// A deployment overlay can grant features beyond the default matrix.
	overlay := `package flowlytix.entitlement

allow if {
	input.plan == "trial"
	input.feature == "beta_dashboard"
}
`
	e, err := NewOPAEvaluator(overlay)
	if err != nil {
		t.Fatalf("NewOPAEvaluator with overlay: %v", err)
	}
	ok, err := e.CheckFeature(context.Background(), "trial", "beta_dashboard")
	if err != nil {
		t.Fatalf("CheckFeature: %v", err)
	}
	if !ok {
		t.Error("overlay grant should allow the feature")
	}
}

func TestHealthCheck(t *testing.T) {
	e, err := NewOPAEvaluator()
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	if err := e.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}
