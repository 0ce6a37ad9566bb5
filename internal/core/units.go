package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// KgPerSack is the fill weight of one sack of milled rice. Milled rice is sold
// in sacks and stocked in kilograms; every other product uses one unit for both.
const KgPerSack = 50

var kgPerSack = decimal.NewFromInt(KgPerSack)

// ToInventoryUnits converts an order-unit quantity (sacks for milled rice) to
// the unit inventory and the ledger are kept in.
func ToInventoryUnits(isMilledRice bool, qty decimal.Decimal) decimal.Decimal {
	if isMilledRice {
		return qty.Mul(kgPerSack)
	}
	return qty
}

// ToOrderUnits is the inverse of ToInventoryUnits.
func ToOrderUnits(isMilledRice bool, qty decimal.Decimal) decimal.Decimal {
	if isMilledRice {
		return qty.Div(kgPerSack)
	}
	return qty
}

// QuantityScale is the number of fractional digits every quantity column keeps.
const QuantityScale = 4

// checkScale rejects quantities with more fractional digits than QuantityScale.
// Trailing zeros are fine: 1.50000 passes, 1.00001 does not.
func checkScale(q decimal.Decimal) error {
	if !q.Equal(q.Truncate(QuantityScale)) {
		return fmt.Errorf("quantity %s has more than %d decimal places: %w", q, QuantityScale, ErrInvalidQuantity)
	}
	return nil
}
