package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInventoryTransactionValidate(t *testing.T) {
	loc, po := 1, 9

	tests := []struct {
		name  string
		entry InventoryTransaction
		want  error
	}{
		{"stock in", InventoryTransaction{ProductID: 1, Kind: KindStockIn, Quantity: dec("5"), LocationID: &loc}, nil},
		{"negative adjustment", InventoryTransaction{ProductID: 1, Kind: KindAdjustment, Quantity: dec("-5"), LocationID: &loc}, nil},
		{"on order", InventoryTransaction{ProductID: 1, Kind: KindPOOnOrder, Quantity: dec("5"), PurchaseOrderID: &po}, nil},
		{"unknown kind", InventoryTransaction{ProductID: 1, Kind: "LOSS", Quantity: dec("-5"), LocationID: &loc}, ErrInvalidTransactionKind},
		{"zero", InventoryTransaction{ProductID: 1, Kind: KindAdjustment, Quantity: dec("0"), LocationID: &loc}, ErrInvalidQuantity},
		{"finer than stored scale", InventoryTransaction{ProductID: 1, Kind: KindStockIn, Quantity: dec("1.00001"), LocationID: &loc}, ErrInvalidQuantity},
		{"positive stock out", InventoryTransaction{ProductID: 1, Kind: KindStockOut, Quantity: dec("5"), LocationID: &loc}, ErrInvalidQuantity},
		{"negative return in", InventoryTransaction{ProductID: 1, Kind: KindReturnIn, Quantity: dec("-5"), LocationID: &loc}, ErrInvalidQuantity},
		{"no location", InventoryTransaction{ProductID: 1, Kind: KindReturnOut, Quantity: dec("-5")}, ErrLocationInactiveOrMissing},
		{"on order without PO", InventoryTransaction{ProductID: 1, Kind: KindPOOnOrder, Quantity: dec("5")}, ErrNotFound},
		{"no product", InventoryTransaction{Kind: KindStockIn, Quantity: dec("5"), LocationID: &loc}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
