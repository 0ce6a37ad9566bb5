package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// PlanPicks chooses where to take need (inventory units) from. Candidates are
// ordered oldest stock first, ties broken by location id. The oldest location
// that can cover need on its own is preferred; otherwise stock is taken oldest
// first across locations. A positive shortfall means the candidates cannot
// cover need, and picks then hold everything available.
func PlanPicks(candidates []FIFOCandidate, need decimal.Decimal) (picks []FIFOPick, shortfall decimal.Decimal) {
	if !need.IsPositive() {
		return nil, decimal.Zero
	}

	ordered := make([]FIFOCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Quantity.IsPositive() {
			ordered = append(ordered, c)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].FirstStocked.Equal(ordered[j].FirstStocked) {
			return ordered[i].FirstStocked.Before(ordered[j].FirstStocked)
		}
		return ordered[i].LocationID < ordered[j].LocationID
	})

	for _, c := range ordered {
		if c.Quantity.GreaterThanOrEqual(need) {
			return []FIFOPick{{LocationID: c.LocationID, Quantity: need}}, decimal.Zero
		}
	}

	remaining := need
	for _, c := range ordered {
		take := decimal.Min(c.Quantity, remaining)
		picks = append(picks, FIFOPick{LocationID: c.LocationID, Quantity: take})
		remaining = remaining.Sub(take)
		if remaining.IsZero() {
			break
		}
	}
	return picks, remaining
}
