package app

import (
	"ricemill-inventory/internal/core"

	"github.com/shopspring/decimal"
)

// CreatePurchaseOrderRequest is the input for creating a purchase order.
type CreatePurchaseOrderRequest struct {
	SupplierID int
	Note       string
	Lines      []POLineInput
}

// POLineInput is a single line within a CreatePurchaseOrderRequest.
// Quantity is in inventory units.
type POLineInput struct {
	ProductID int
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// ReceiveShipmentRequest is the input for receiving goods against a purchase order.
type ReceiveShipmentRequest struct {
	PurchaseOrderID int
	Lines           []core.ReceiptLine
	CreatedBy       string
}

type AdjustInventoryRequest struct {
	ProductID  int
	LocationID int
	Type       string // ADD, REMOVE or SET
	Quantity   decimal.Decimal
	Reason     string
	CreatedBy  string
}

type RecordReturnRequest struct {
	ProductID  int
	LocationID int
	Direction  string // IN or OUT
	Quantity   decimal.Decimal
	Note       string
	CreatedBy  string
}

type MoveStockRequest struct {
	ProductID        int
	SourceLocationID int
	TargetLocationID int
	Quantity         decimal.Decimal
	CreatedBy        string
}

// PlaceOrderRequest is the input from checkout. Quantities are in order units.
type PlaceOrderRequest struct {
	CustomerName  string
	CustomerEmail string
	Total         decimal.Decimal
	Lines         []OrderLineInput
}

type OrderLineInput struct {
	ProductID int
	Quantity  decimal.Decimal
}

// AllocateOrderRequest picks stock for an order from explicit locations.
type AllocateOrderRequest struct {
	OrderID   int
	Lines     []core.AllocationLine
	CreatedBy string
}
