package core

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Pure state rules shared by the services. None of these touch the database.

// LineStatusFor derives a PO line status. poHasReceipts is true once anything
// on the purchase order has been received.
func LineStatusFor(item PurchaseOrderItem, poHasReceipts bool) string {
	switch {
	case item.Complete():
		return LineStatusReceived
	case item.ReceivedQty.IsPositive():
		return LineStatusPartial
	case poHasReceipts:
		return LineStatusBackordered
	default:
		return LineStatusPending
	}
}

// PurchaseOrderStatusFor derives the PO status after a receipt: Received when
// every line is complete, Partial when some but not all lines are complete,
// otherwise current.
func PurchaseOrderStatusFor(current string, items []PurchaseOrderItem) string {
	if len(items) == 0 {
		return current
	}
	complete := 0
	for _, it := range items {
		if it.Complete() {
			complete++
		}
	}
	switch {
	case complete == len(items):
		return POStatusReceived
	case complete > 0:
		return POStatusPartial
	default:
		return current
	}
}

// FulfillmentStatusFor is Completed when nothing is pending, Partial once
// anything has been fulfilled and Unfulfilled otherwise.
func FulfillmentStatusFor(items []OrderItem) string {
	allDone, anyFulfilled := true, false
	for _, it := range items {
		if it.QuantityPending.IsPositive() {
			allDone = false
		}
		if it.QuantityFulfilled.IsPositive() {
			anyFulfilled = true
		}
	}
	switch {
	case allDone && len(items) > 0:
		return FulfillmentCompleted
	case anyFulfilled:
		return FulfillmentPartial
	default:
		return FulfillmentUnfulfilled
	}
}

// OrderStatusFor is Completed when fulfillment is complete and every delivery
// is fulfilled. A cancelled order stays cancelled.
func OrderStatusFor(current, fulfillment string, deliveries []Delivery) string {
	if current == OrderStatusCancelled {
		return current
	}
	allDelivered := true
	for _, d := range deliveries {
		if d.Status != DeliveryFulfilled {
			allDelivered = false
		}
	}
	switch {
	case fulfillment == FulfillmentCompleted && allDelivered:
		return OrderStatusCompleted
	case fulfillment == FulfillmentUnfulfilled && len(deliveries) == 0:
		return OrderStatusPending
	default:
		return OrderStatusProcessing
	}
}

var shipmentRank = map[ShipmentStatus]int{
	ShipmentProcessing: 0,
	ShipmentInTransit:  1,
	ShipmentDelivered:  2,
}

// ParseShipmentStatus accepts exactly the three shipment status strings.
func ParseShipmentStatus(s string) (ShipmentStatus, error) {
	st := ShipmentStatus(s)
	if _, ok := shipmentRank[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidShipmentStatus, s)
	}
	return st, nil
}

// OrderShipmentStatusFor is the least advanced shipment status among pending
// deliveries, or Delivered when none are pending. An order with no deliveries
// is still being processed.
func OrderShipmentStatusFor(deliveries []Delivery) ShipmentStatus {
	if len(deliveries) == 0 {
		return ShipmentProcessing
	}
	var least ShipmentStatus
	for _, d := range deliveries {
		if d.Status != DeliveryPending {
			continue
		}
		if least == "" || shipmentRank[d.ShipmentStatus] < shipmentRank[least] {
			least = d.ShipmentStatus
		}
	}
	if least == "" {
		return ShipmentDelivered
	}
	return least
}

// UnassignedPending is, per order item, the pending quantity that no pending
// delivery still intends to carry.
func UnassignedPending(items []OrderItem, deliveries []Delivery) map[int]decimal.Decimal {
	out := make(map[int]decimal.Decimal, len(items))
	for _, it := range items {
		out[it.ID] = it.QuantityPending
	}
	for _, d := range deliveries {
		if d.Status != DeliveryPending {
			continue
		}
		for _, di := range d.Items {
			if cur, ok := out[di.OrderItemID]; ok {
				out[di.OrderItemID] = cur.Sub(di.Remaining())
			}
		}
	}
	for id, q := range out {
		if q.IsNegative() {
			out[id] = decimal.Zero
		}
	}
	return out
}

// ComputeAdjustment returns the new quantity and the signed delta an
// adjustment of type t by qty produces on current.
func ComputeAdjustment(t AdjustmentType, current, qty decimal.Decimal) (newQty, delta decimal.Decimal, err error) {
	switch t {
	case AdjustAdd:
		if !qty.IsPositive() {
			return decimal.Zero, decimal.Zero, fmt.Errorf("ADD quantity must be positive: %w", ErrInvalidQuantity)
		}
		newQty = current.Add(qty)
	case AdjustRemove:
		if !qty.IsPositive() {
			return decimal.Zero, decimal.Zero, fmt.Errorf("REMOVE quantity must be positive: %w", ErrInvalidQuantity)
		}
		newQty = current.Sub(qty)
		if newQty.IsNegative() {
			return decimal.Zero, decimal.Zero, fmt.Errorf("removing %s from %s: %w", qty, current, ErrNegativeResultNotAllowed)
		}
	case AdjustSet:
		if qty.IsNegative() {
			return decimal.Zero, decimal.Zero, fmt.Errorf("SET quantity must not be negative: %w", ErrInvalidQuantity)
		}
		newQty = qty
	default:
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAdjustmentType, t)
	}
	return newQty, newQty.Sub(current), nil
}

// CheckBackorderAvailability fails for the first category, in name order,
// whose available stock is below what the backorder needs.
func CheckBackorderAvailability(needed, available map[string]decimal.Decimal) error {
	categories := make([]string, 0, len(needed))
	for c := range needed {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	for _, c := range categories {
		avail := available[c]
		if avail.LessThan(needed[c]) {
			return &ShortfallError{
				Err:       ErrInsufficientBackorderStock,
				Category:  c,
				Needed:    needed[c],
				Available: avail,
			}
		}
	}
	return nil
}
