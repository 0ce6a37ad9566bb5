package app

import "ricemill-inventory/internal/core"

// StockResult is returned by GetStockLevels.
type StockResult struct {
	ProductID int               `json:"product_id,omitempty"`
	Levels    []core.StockLevel `json:"levels"`
}

// LedgerResult is returned by ListLedger.
type LedgerResult struct {
	Entries []core.InventoryTransaction `json:"entries"`
	Count   int                         `json:"count"`
}

// ShipmentStatusResult is returned by AdvanceDeliveryShipmentStatus.
type ShipmentStatusResult struct {
	Accepted bool                 `json:"accepted"`
	Reason   string               `json:"reason,omitempty"`
	Update   *core.ShipmentUpdate `json:"update,omitempty"`
}
