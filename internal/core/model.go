package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type LocationType string

const (
	LocationWarehouse LocationType = "WAREHOUSE"
	LocationZone      LocationType = "ZONE"
	LocationShelf     LocationType = "SHELF"
	LocationBin       LocationType = "BIN"
)

// Product carries the cached stock projection. StockOnHand, StockAllocated and
// StockOnOrder are written only inside the transaction that appends the
// matching ledger entries.
type Product struct {
	ID               int             `json:"id"`
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	Category         string          `json:"category"`
	Price            decimal.Decimal `json:"price"`
	StockOnHand      decimal.Decimal `json:"stock_on_hand"`
	StockAllocated   decimal.Decimal `json:"stock_allocated"`
	StockOnOrder     decimal.Decimal `json:"stock_on_order"`
	ReorderPoint     decimal.Decimal `json:"reorder_point"`
	IsMilledRice     bool            `json:"is_milled_rice"`
	MillingYieldRate decimal.Decimal `json:"milling_yield_rate"`
	CreatedAt        time.Time       `json:"created_at"`
}

// InventoryUnits converts an order-unit quantity of this product to inventory units.
func (p Product) InventoryUnits(qty decimal.Decimal) decimal.Decimal {
	return ToInventoryUnits(p.IsMilledRice, qty)
}

// OrderUnits converts an inventory-unit quantity of this product to order units.
func (p Product) OrderUnits(qty decimal.Decimal) decimal.Decimal {
	return ToOrderUnits(p.IsMilledRice, qty)
}

type StorageLocation struct {
	ID        int          `json:"id"`
	Code      string       `json:"code"`
	Name      string       `json:"name"`
	Type      LocationType `json:"type"`
	ParentID  *int         `json:"parent_id,omitempty"`
	IsActive  bool         `json:"is_active"`
	CreatedAt time.Time    `json:"created_at"`
}

// StockChange describes the effect of one committed operation.
type StockChange struct {
	Operation  string                 `json:"operation"`
	ProductIDs []int                  `json:"product_ids"`
	Entries    []InventoryTransaction `json:"entries"`
}
