package app

import (
	"context"

	"ricemill-inventory/internal/core"

	"github.com/shopspring/decimal"
)

// ApplicationService is the single interface all adapters (CLI, Web) call.
// It decouples presentation from business logic. Implementations must contain
// no fmt.Println, no ANSI codes, and no display logic of any kind.
type ApplicationService interface {
	// ── Purchasing ──────────────────────────────────────────────────────────

	// CreatePurchaseOrder records a Pending purchase order with a supplier.
	CreatePurchaseOrder(ctx context.Context, req CreatePurchaseOrderRequest) (*core.PurchaseOrder, error)

	// GetPurchaseOrder returns a purchase order with its lines.
	GetPurchaseOrder(ctx context.Context, id int) (*core.PurchaseOrder, error)

	// PlacePurchaseOrder sends a Pending PO to the supplier, booking its lines as on order.
	PlacePurchaseOrder(ctx context.Context, id int, createdBy string) (*core.PurchaseOrder, error)

	// ReceiveShipment puts received PO quantities away into storage locations.
	// Either every line is applied or none is.
	ReceiveShipment(ctx context.Context, req ReceiveShipmentRequest) (*core.ReceiptResult, error)

	// ── Inventory ───────────────────────────────────────────────────────────

	// GetLocations lists storage locations, active or not.
	GetLocations(ctx context.Context) ([]core.StorageLocation, error)

	// GetStockLevels lists per-location balances; productID 0 lists every product.
	GetStockLevels(ctx context.Context, productID int) (*StockResult, error)

	// GetProductStock returns on-hand, allocated, on-order and available figures.
	GetProductStock(ctx context.Context, productID int) (*core.ProductStock, error)

	// PlanFIFO answers where quantity (inventory units) would be picked from. Read only.
	PlanFIFO(ctx context.Context, productID int, quantity decimal.Decimal) (*core.FIFOPlan, error)

	// AdjustInventory applies an ADD, REMOVE or SET correction at one location.
	AdjustInventory(ctx context.Context, req AdjustInventoryRequest) (*core.AdjustmentResult, error)

	// RecordReturn books a customer return in or a supplier return out.
	RecordReturn(ctx context.Context, req RecordReturnRequest) (*core.InventoryTransaction, error)

	// MoveStock transfers stock between two locations.
	MoveStock(ctx context.Context, req MoveStockRequest) (*core.MoveResult, error)

	// ── Ledger ──────────────────────────────────────────────────────────────

	// ListLedger returns ledger entries, newest first.
	ListLedger(ctx context.Context, filter core.LedgerFilter) (*LedgerResult, error)

	// Reconcile compares balances and product figures with a ledger replay.
	Reconcile(ctx context.Context) (*core.ReconcileReport, error)

	// RebuildProjections recomputes balances and product figures from the ledger.
	RebuildProjections(ctx context.Context) (*core.ReconcileReport, error)

	// ── Orders and deliveries ───────────────────────────────────────────────

	// PlaceOrder records a customer order and reserves its stock.
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*core.Order, error)

	// GetOrder returns an order with its items and deliveries.
	GetOrder(ctx context.Context, id int) (*core.Order, error)

	// AllocateOrder takes stock for order items from chosen locations. Anything
	// left pending goes onto a backorder delivery.
	AllocateOrder(ctx context.Context, req AllocateOrderRequest) (*core.AllocationResult, error)

	// CreateBackorderDelivery opens a delivery for the order's unassigned pending quantity.
	CreateBackorderDelivery(ctx context.Context, orderID int) (*core.Delivery, error)

	// AdvanceDeliveryShipmentStatus moves a delivery's shipment status. A backorder
	// blocked by missing stock is answered with Accepted=false, not an error.
	AdvanceDeliveryShipmentStatus(ctx context.Context, deliveryID int, status string) (*ShipmentStatusResult, error)

	// FulfillDelivery debits a Delivered delivery's remaining quantity FIFO and closes it.
	FulfillDelivery(ctx context.Context, deliveryID int, fulfilledBy string) (*core.FulfillmentResult, error)

	// Ping checks the database connection.
	Ping(ctx context.Context) error
}
