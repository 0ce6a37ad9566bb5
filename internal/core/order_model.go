package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses:
//
//	Pending → Processing → Completed
//	Pending → Cancelled
const (
	OrderStatusPending    = "Pending"
	OrderStatusProcessing = "Processing"
	OrderStatusCompleted  = "Completed"
	OrderStatusCancelled  = "Cancelled"
)

const (
	FulfillmentUnfulfilled = "Unfulfilled"
	FulfillmentPartial     = "Partial"
	FulfillmentCompleted   = "Completed"
)

// Delivery states. fulfilled is terminal.
const (
	DeliveryPending   = "pending"
	DeliveryFulfilled = "fulfilled"
)

// ShipmentStatus is the courier-facing progress of a delivery.
type ShipmentStatus string

const (
	ShipmentProcessing ShipmentStatus = "Processing Order"
	ShipmentInTransit  ShipmentStatus = "In Transit"
	ShipmentDelivered  ShipmentStatus = "Delivered"
)

// Order quantities are in order units (sacks for milled rice).
type Order struct {
	ID                int             `json:"id"`
	CustomerName      string          `json:"customer_name"`
	CustomerEmail     string          `json:"customer_email"`
	Total             decimal.Decimal `json:"total"`
	Status            string          `json:"status"`
	ShipmentStatus    ShipmentStatus  `json:"shipment_status"`
	FulfillmentStatus string          `json:"fulfillment_status"`
	CreatedAt         time.Time       `json:"created_at"`
	Items             []OrderItem     `json:"items"`
	Deliveries        []Delivery      `json:"deliveries"`
}

// OrderItem holds QuantityFulfilled + QuantityPending = Quantity.
type OrderItem struct {
	ID                int             `json:"id"`
	OrderID           int             `json:"order_id"`
	ProductID         int             `json:"product_id"`
	ProductCode       string          `json:"product_code"`
	Quantity          decimal.Decimal `json:"quantity"`
	QuantityFulfilled decimal.Decimal `json:"quantity_fulfilled"`
	QuantityPending   decimal.Decimal `json:"quantity_pending"`
}

// Delivery 1 is the initial fulfillment attempt; higher numbers are backorders.
type Delivery struct {
	ID             int            `json:"id"`
	OrderID        int            `json:"order_id"`
	DeliveryNumber int            `json:"delivery_number"`
	Status         string         `json:"status"`
	ShipmentStatus ShipmentStatus `json:"shipment_status"`
	Note           string         `json:"note"`
	FulfilledAt    *time.Time     `json:"fulfilled_at,omitempty"`
	FulfilledBy    *string        `json:"fulfilled_by,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	Items          []DeliveryItem `json:"items"`
}

// IsBackorder reports whether the delivery is a follow-up to the initial one.
func (d Delivery) IsBackorder() bool { return d.DeliveryNumber > 1 }

// DeliveryItem is the quantity of one order item this delivery is to carry.
// QuantityAllocated of it has already left inventory.
type DeliveryItem struct {
	ID                int             `json:"id"`
	DeliveryID        int             `json:"delivery_id"`
	OrderItemID       int             `json:"order_item_id"`
	ProductID         int             `json:"product_id"`
	Quantity          decimal.Decimal `json:"quantity"`
	QuantityAllocated decimal.Decimal `json:"quantity_allocated"`
}

// Remaining is the quantity still to be allocated from inventory.
func (i DeliveryItem) Remaining() decimal.Decimal {
	return i.Quantity.Sub(i.QuantityAllocated)
}

type PlaceOrderInput struct {
	CustomerName  string
	CustomerEmail string
	Total         decimal.Decimal
	Items         []PlaceOrderItem
}

type PlaceOrderItem struct {
	ProductID int
	Quantity  decimal.Decimal
}

// AllocationLine takes Quantity (order units) of an order item from one location.
type AllocationLine struct {
	OrderItemID int             `json:"order_item_id"`
	ProductID   int             `json:"product_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	LocationID  int             `json:"location_id"`
}

type AllocatedLine struct {
	OrderItemID       int             `json:"order_item_id"`
	ProductID         int             `json:"product_id"`
	LocationID        int             `json:"location_id"`
	Quantity          decimal.Decimal `json:"quantity"`
	InventoryQuantity decimal.Decimal `json:"inventory_quantity"`
	EntryID           int             `json:"entry_id"`
}

type PendingLine struct {
	OrderItemID     int             `json:"order_item_id"`
	QuantityPending decimal.Decimal `json:"quantity_pending"`
}

type AllocationResult struct {
	OrderID           int             `json:"order_id"`
	DeliveryID        int             `json:"delivery_id"`
	Lines             []AllocatedLine `json:"lines"`
	Remaining         []PendingLine   `json:"remaining"`
	Backorder         *Delivery       `json:"backorder,omitempty"`
	Status            string          `json:"status"`
	FulfillmentStatus string          `json:"fulfillment_status"`
}

type ShipmentUpdate struct {
	DeliveryID          int            `json:"delivery_id"`
	OrderID             int            `json:"order_id"`
	ShipmentStatus      ShipmentStatus `json:"shipment_status"`
	OrderShipmentStatus ShipmentStatus `json:"order_shipment_status"`
}

type FulfillmentResult struct {
	DeliveryID        int                    `json:"delivery_id"`
	OrderID           int                    `json:"order_id"`
	Lines             []AllocatedLine        `json:"lines"`
	Status            string                 `json:"status"`
	FulfillmentStatus string                 `json:"fulfillment_status"`
	ShipmentStatus    ShipmentStatus         `json:"shipment_status"`
	Entries           []InventoryTransaction `json:"entries"`
}
