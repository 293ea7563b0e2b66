package domain

import "fmt"

// Plan is the subscription tier governing library privileges.
type Plan string

const (
	PlanFree    Plan = "Free"
	PlanMoney   Plan = "Money"
	PlanPremium Plan = "Premium"
)

// Plans lists all tiers in display order.
func Plans() []Plan { return []Plan{PlanFree, PlanMoney, PlanPremium} }

// Valid reports whether p is a known tier.
func (p Plan) Valid() bool {
	return p == PlanFree || p == PlanMoney || p == PlanPremium
}

// Paid reports whether the tier carries an expiry date.
func (p Plan) Paid() bool { return p == PlanMoney || p == PlanPremium }

// ParsePlan validates user-supplied plan text. Matching is exact: tier names
// are part of the command surface ("/approve ID0001 Money").
func ParsePlan(raw string) (Plan, error) {
	p := Plan(raw)
	if !p.Valid() {
		return "", fmt.Errorf("unknown plan %q", raw)
	}
	return p, nil
}
