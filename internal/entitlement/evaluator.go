package entitlement

import "context"

// Evaluator answers plan/feature entitlement questions using OPA or other engines.
type Evaluator interface {
	// CheckFeature reports whether the plan tier includes the feature.
	CheckFeature(ctx context.Context, plan, feature string) (bool, error)
	// ListFeatures returns the features included in the plan tier.
	ListFeatures(ctx context.Context, plan string) ([]string, error)
}
