package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// InventoryItem is the materialized balance of one product at one location.
// CreatedAt is when the pair was first populated and orders FIFO picking.
type InventoryItem struct {
	ID         int             `json:"id"`
	ProductID  int             `json:"product_id"`
	LocationID int             `json:"location_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// StockLevel is a read view of an inventory_item joined with product and location info.
type StockLevel struct {
	ProductID    int             `json:"product_id"`
	ProductCode  string          `json:"product_code"`
	ProductName  string          `json:"product_name"`
	Category     string          `json:"category"`
	LocationID   int             `json:"location_id"`
	LocationCode string          `json:"location_code"`
	LocationName string          `json:"location_name"`
	Quantity     decimal.Decimal `json:"quantity"`
	FirstStocked time.Time       `json:"first_stocked"`
}

// ProductStock is the single read API for a product's stock figures.
// Available = OnHand - Allocated.
type ProductStock struct {
	ProductID    int             `json:"product_id"`
	ProductCode  string          `json:"product_code"`
	OnHand       decimal.Decimal `json:"on_hand"`
	Allocated    decimal.Decimal `json:"allocated"`
	OnOrder      decimal.Decimal `json:"on_order"`
	Available    decimal.Decimal `json:"available"`
	BelowReorder bool            `json:"below_reorder"`
	Locations    []StockLevel    `json:"locations"`
}

// FIFOCandidate is one location holding stock of a product.
type FIFOCandidate struct {
	LocationID   int
	Quantity     decimal.Decimal
	FirstStocked time.Time
}

// FIFOPick is a quantity to take from one location, in inventory units.
type FIFOPick struct {
	LocationID int             `json:"location_id"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// FIFOPlan answers where a quantity of a product should be picked from.
type FIFOPlan struct {
	ProductID int             `json:"product_id"`
	Requested decimal.Decimal `json:"requested"`
	Picks     []FIFOPick      `json:"picks"`
	Shortfall decimal.Decimal `json:"shortfall"`
}

type AdjustmentType string

const (
	AdjustAdd    AdjustmentType = "ADD"
	AdjustRemove AdjustmentType = "REMOVE"
	AdjustSet    AdjustmentType = "SET"
)

type AdjustmentInput struct {
	ProductID  int
	LocationID int
	Type       AdjustmentType
	Quantity   decimal.Decimal
	Reason     string
	CreatedBy  string
}

type AdjustmentResult struct {
	ProductID        int                   `json:"product_id"`
	LocationID       int                   `json:"location_id"`
	PreviousQuantity decimal.Decimal       `json:"previous_quantity"`
	NewQuantity      decimal.Decimal       `json:"new_quantity"`
	Entry            *InventoryTransaction `json:"entry,omitempty"`
}

type ReturnDirection string

const (
	// ReturnIn is a customer return coming back into stock.
	ReturnIn ReturnDirection = "IN"
	// ReturnOut is stock sent back to a supplier.
	ReturnOut ReturnDirection = "OUT"
)

type ReturnInput struct {
	ProductID  int
	LocationID int
	Direction  ReturnDirection
	Quantity   decimal.Decimal
	Note       string
	CreatedBy  string
}

type MoveInput struct {
	ProductID        int
	SourceLocationID int
	TargetLocationID int
	Quantity         decimal.Decimal
	CreatedBy        string
}

type MoveResult struct {
	Out InventoryTransaction `json:"out"`
	In  InventoryTransaction `json:"in"`
}

// ReconcileReport compares the materialized balances and the product cache
// against a replay of the ledger.
type ReconcileReport struct {
	Products  []ProductDrift  `json:"products"`
	Locations []LocationDrift `json:"locations"`
}

// Clean reports whether nothing drifted.
func (r *ReconcileReport) Clean() bool {
	return len(r.Products) == 0 && len(r.Locations) == 0
}

type ProductDrift struct {
	ProductID         int             `json:"product_id"`
	ProductCode       string          `json:"product_code"`
	CachedOnHand      decimal.Decimal `json:"cached_on_hand"`
	MaterializedTotal decimal.Decimal `json:"materialized_total"`
	LedgerOnHand      decimal.Decimal `json:"ledger_on_hand"`
	CachedOnOrder     decimal.Decimal `json:"cached_on_order"`
	LedgerOnOrder     decimal.Decimal `json:"ledger_on_order"`
	CachedAllocated   decimal.Decimal `json:"cached_allocated"`
	OpenAllocated     decimal.Decimal `json:"open_allocated"`
}

type LocationDrift struct {
	ProductID    int             `json:"product_id"`
	LocationID   int             `json:"location_id"`
	Materialized decimal.Decimal `json:"materialized"`
	Ledger       decimal.Decimal `json:"ledger"`
}
