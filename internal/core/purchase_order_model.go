package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Purchase order statuses:
//
//	Pending → Ordered → Partial → Received
//	Pending → Cancelled
const (
	POStatusPending   = "Pending"
	POStatusOrdered   = "Ordered"
	POStatusPartial   = "Partial"
	POStatusReceived  = "Received"
	POStatusCancelled = "Cancelled"
)

// Purchase order line statuses. A line becomes Backordered when the supplier
// has delivered against the order but nothing yet for this line.
const (
	LineStatusPending     = "Pending"
	LineStatusPartial     = "Partial"
	LineStatusBackordered = "Backordered"
	LineStatusReceived    = "Received"
)

type PurchaseOrder struct {
	ID           int                 `json:"id"`
	SupplierID   int                 `json:"supplier_id"`
	SupplierCode string              `json:"supplier_code"`
	SupplierName string              `json:"supplier_name"`
	Status       string              `json:"status"`
	OrderDate    time.Time           `json:"order_date"`
	Note         string              `json:"note"`
	OrderedAt    *time.Time          `json:"ordered_at,omitempty"`
	ReceivedAt   *time.Time          `json:"received_at,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	Items        []PurchaseOrderItem `json:"items"`
}

// PurchaseOrderItem is one ordered product. Quantities are in inventory units.
type PurchaseOrderItem struct {
	ID              int             `json:"id"`
	PurchaseOrderID int             `json:"purchase_order_id"`
	ProductID       int             `json:"product_id"`
	ProductCode     string          `json:"product_code"`
	OrderedQty      decimal.Decimal `json:"ordered_qty"`
	ReceivedQty     decimal.Decimal `json:"received_qty"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	LineStatus      string          `json:"line_status"`
}

// Outstanding is the quantity still to be received.
func (i PurchaseOrderItem) Outstanding() decimal.Decimal {
	return i.OrderedQty.Sub(i.ReceivedQty)
}

// Complete reports whether the line has been received in full.
func (i PurchaseOrderItem) Complete() bool {
	return i.ReceivedQty.GreaterThanOrEqual(i.OrderedQty)
}

// ReceiptLine records what arrived for one PO item and where it was put away.
type ReceiptLine struct {
	POItemID   int             `json:"po_item_id"`
	LocationID int             `json:"location_id"`
	Quantity   decimal.Decimal `json:"quantity"`
}

type ReceiptResult struct {
	PurchaseOrderID int                    `json:"purchase_order_id"`
	Status          string                 `json:"status"`
	Items           []PurchaseOrderItem    `json:"items"`
	Entries         []InventoryTransaction `json:"entries"`
}

type CreatePurchaseOrderInput struct {
	SupplierID int
	Note       string
	Items      []CreatePurchaseOrderItem
}

type CreatePurchaseOrderItem struct {
	ProductID int
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}
