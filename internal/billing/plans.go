// Package billing provides plan management, checkout orchestration, and the
// shared cores used by the payment webhook handlers.
package billing

import "bannerly/internal/types"

// PlanBenefits defines what a plan tier grants its subscriber.
type PlanBenefits struct {
	// MonthlyCredits is the credit grant applied on each successful billing
	// cycle. Zero means the plan grants no credits.
	MonthlyCredits int
}

// PlanRegistry is the single source of truth for what each plan grants.
type PlanRegistry interface {
	// GetBenefits returns the benefits for the given plan tier. Unknown
	// tiers return the Free benefits to fail safely.
	GetBenefits(tier types.PlanTier) PlanBenefits
}

// staticPlanRegistry is a compile-time plan registry backed by an in-memory
// map. It is the standard implementation for production use.
type staticPlanRegistry struct {
	benefits map[types.PlanTier]PlanBenefits
}

var planDefaults = map[types.PlanTier]PlanBenefits{
	types.PlanFree:    {MonthlyCredits: 0},
	types.PlanStarter: {MonthlyCredits: 50},
	types.PlanPro:     {MonthlyCredits: 200},
	types.PlanAgency:  {MonthlyCredits: 1000},
}

// freeBenefits is cached for the unknown-tier fallback path.
var freeBenefits = planDefaults[types.PlanFree]

// NewStaticPlanRegistry returns a PlanRegistry backed by the hardcoded plan
// table. No database or external service is required.
func NewStaticPlanRegistry() PlanRegistry {
	// Copy the defaults so callers cannot mutate the package-level variable.
	m := make(map[types.PlanTier]PlanBenefits, len(planDefaults))
	for k, v := range planDefaults {
		m[k] = v
	}
	return &staticPlanRegistry{benefits: m}
}

// GetBenefits returns the benefits for the given plan tier, falling back to
// Free for unknown tiers.
func (r *staticPlanRegistry) GetBenefits(tier types.PlanTier) PlanBenefits {
	if b, ok := r.benefits[tier]; ok {
		return b
	}
	return freeBenefits
}

// PaidPlan reports whether the tier is a purchasable plan.
func PaidPlan(tier types.PlanTier) bool {
	_, ok := planDefaults[tier]
	return ok && tier != types.PlanFree
}
