package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// DeliveryService drives deliveries through shipment to fulfillment. Stock
// leaves inventory for a delivery only once its shipment is Delivered.
//
//	pending ──(shipment Delivered, FulfillDelivery)──▶ fulfilled
type DeliveryService interface {
	// CreateBackorderDelivery opens a delivery for the order's unassigned pending quantity.
	CreateBackorderDelivery(ctx context.Context, orderID int) (*Delivery, error)
	// AdvanceShipmentStatus records courier progress. A backorder may only move
	// past "Processing Order" while its categories have enough stock on hand.
	AdvanceShipmentStatus(ctx context.Context, deliveryID int, status string) (*ShipmentUpdate, error)
	// FulfillDelivery allocates what the delivery still carries, oldest stock first.
	FulfillDelivery(ctx context.Context, deliveryID int, fulfilledBy string) (*FulfillmentResult, error)
}

type deliveryService struct {
	store    *Store
	ledger   *LedgerStore
	observer StockObserver
}

func NewDeliveryService(store *Store, ledger *LedgerStore, observer StockObserver) DeliveryService {
	return &deliveryService{store: store, ledger: ledger, observer: observer}
}

func (s *deliveryService) CreateBackorderDelivery(ctx context.Context, orderID int) (*Delivery, error) {
	var backorder *Delivery
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		status, err := lockOrderTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if status == OrderStatusCancelled {
			return fmt.Errorf("order %d is cancelled: %w", orderID, ErrInvalidStatusTransition)
		}
		items, err := loadOrderItems(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		deliveries, err := loadDeliveries(ctx, tx, orderID, true)
		if err != nil {
			return err
		}

		backorder, err = createBackorderTx(ctx, tx, orderID, items, deliveries)
		if err != nil {
			return err
		}
		_, _, _, err = refreshOrderTx(ctx, tx, orderID, status, items, append(deliveries, *backorder))
		return err
	})
	if err != nil {
		return nil, err
	}
	return backorder, nil
}

// deliveryOrderID resolves the order a delivery belongs to so the order row
// can be locked before the delivery row.
func (s *deliveryService) deliveryOrderID(ctx context.Context, tx pgx.Tx, deliveryID int) (int, error) {
	var orderID int
	err := tx.QueryRow(ctx, "SELECT order_id FROM deliveries WHERE id = $1", deliveryID).Scan(&orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("delivery %d: %w", deliveryID, ErrNotFound)
		}
		return 0, fmt.Errorf("failed to look up delivery: %w", err)
	}
	return orderID, nil
}

// orderState is an order locked for a delivery transition.
type orderState struct {
	orderID    int
	status     string
	items      []OrderItem
	deliveries []Delivery
	delivery   *Delivery
}

func (s *deliveryService) lockDeliveryTx(ctx context.Context, tx pgx.Tx, deliveryID int) (*orderState, error) {
	orderID, err := s.deliveryOrderID(ctx, tx, deliveryID)
	if err != nil {
		return nil, err
	}
	st := &orderState{orderID: orderID}
	if st.status, err = lockOrderTx(ctx, tx, orderID); err != nil {
		return nil, err
	}
	if st.items, err = loadOrderItems(ctx, tx, orderID, true); err != nil {
		return nil, err
	}
	if st.deliveries, err = loadDeliveries(ctx, tx, orderID, true); err != nil {
		return nil, err
	}
	for i := range st.deliveries {
		if st.deliveries[i].ID == deliveryID {
			st.delivery = &st.deliveries[i]
		}
	}
	if st.delivery == nil {
		return nil, fmt.Errorf("delivery %d: %w", deliveryID, ErrNotFound)
	}
	return st, nil
}

func (s *deliveryService) AdvanceShipmentStatus(ctx context.Context, deliveryID int, status string) (*ShipmentUpdate, error) {
	next, err := ParseShipmentStatus(status)
	if err != nil {
		return nil, err
	}

	var update *ShipmentUpdate
	err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
		st, err := s.lockDeliveryTx(ctx, tx, deliveryID)
		if err != nil {
			return err
		}
		d := st.delivery
		if d.Status == DeliveryFulfilled {
			return fmt.Errorf("delivery %d: %w", deliveryID, ErrAlreadyFulfilled)
		}

		if d.IsBackorder() && next != ShipmentProcessing {
			if err := s.checkBackorderStockTx(ctx, tx, d); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(ctx, "UPDATE deliveries SET shipment_status = $1 WHERE id = $2", string(next), d.ID); err != nil {
			return fmt.Errorf("failed to update delivery shipment status: %w", err)
		}
		d.ShipmentStatus = next

		_, _, orderShipment, err := refreshOrderTx(ctx, tx, st.orderID, st.status, st.items, st.deliveries)
		if err != nil {
			return err
		}
		update = &ShipmentUpdate{
			DeliveryID:          d.ID,
			OrderID:             st.orderID,
			ShipmentStatus:      next,
			OrderShipmentStatus: orderShipment,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return update, nil
}

// checkBackorderStockTx compares what the backorder still needs with the stock
// on hand at active locations, per product category. Nothing is reserved.
func (s *deliveryService) checkBackorderStockTx(ctx context.Context, tx pgx.Tx, d *Delivery) error {
	var productIDs []int
	for _, di := range d.Items {
		productIDs = append(productIDs, di.ProductID)
	}
	products, err := loadProductsTx(ctx, tx, productIDs)
	if err != nil {
		return err
	}

	needed := make(map[string]decimal.Decimal)
	var categories []string
	for _, di := range d.Items {
		rem := di.Remaining()
		if !rem.IsPositive() {
			continue
		}
		p := products[di.ProductID]
		if _, ok := needed[p.Category]; !ok {
			categories = append(categories, p.Category)
		}
		needed[p.Category] = needed[p.Category].Add(p.InventoryUnits(rem))
	}
	if len(needed) == 0 {
		return nil
	}

	rows, err := tx.Query(ctx, `
		SELECT p.category, COALESCE(SUM(ii.quantity), 0)
		FROM inventory_items ii
		JOIN products p ON p.id = ii.product_id
		JOIN storage_locations l ON l.id = ii.location_id
		WHERE p.category = ANY($1) AND l.is_active
		GROUP BY p.category
	`, categories)
	if err != nil {
		return fmt.Errorf("failed to total stock by category: %w", err)
	}
	defer rows.Close()

	available := make(map[string]decimal.Decimal)
	for rows.Next() {
		var category string
		var qty decimal.Decimal
		if err := rows.Scan(&category, &qty); err != nil {
			return fmt.Errorf("failed to scan category stock: %w", err)
		}
		available[category] = qty
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read category stock: %w", err)
	}

	if err := CheckBackorderAvailability(needed, available); err != nil {
		return fmt.Errorf("delivery %d: %w", d.ID, err)
	}
	return nil
}

func (s *deliveryService) FulfillDelivery(ctx context.Context, deliveryID int, fulfilledBy string) (*FulfillmentResult, error) {
	var result *FulfillmentResult
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		st, err := s.lockDeliveryTx(ctx, tx, deliveryID)
		if err != nil {
			return err
		}
		d := st.delivery
		if d.Status == DeliveryFulfilled {
			return fmt.Errorf("delivery %d: %w", deliveryID, ErrAlreadyFulfilled)
		}
		if d.ShipmentStatus != ShipmentDelivered {
			return fmt.Errorf("delivery %d is %q: %w", deliveryID, d.ShipmentStatus, ErrDeliveryNotReady)
		}

		byID := indexOrderItems(st.items)
		var open []DeliveryItem
		var productIDs []int
		for _, di := range d.Items {
			if di.Remaining().IsPositive() {
				open = append(open, di)
				productIDs = append(productIDs, di.ProductID)
			}
		}

		result = &FulfillmentResult{DeliveryID: d.ID, OrderID: st.orderID}
		if len(open) > 0 {
			products, err := loadProductsTx(ctx, tx, productIDs)
			if err != nil {
				return err
			}
			candidates, stock, err := lockFIFOCandidatesTx(ctx, tx, productIDs)
			if err != nil {
				return err
			}

			debits, err := planDeliveryDebits(open, byID, products, candidates)
			if err != nil {
				return err
			}
			result.Lines, result.Entries, err = debitOrderStockTx(ctx, tx, s.ledger, st.orderID, d.ID, debits, stock, fulfilledBy)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx,
				"UPDATE delivery_items SET quantity_allocated = quantity WHERE delivery_id = $1", d.ID); err != nil {
				return fmt.Errorf("failed to mark delivery items allocated: %w", err)
			}
		}

		if _, err := tx.Exec(ctx, `
			UPDATE deliveries
			SET status = $1, fulfilled_at = NOW(), fulfilled_by = $2
			WHERE id = $3
		`, DeliveryFulfilled, fulfilledBy, d.ID); err != nil {
			return fmt.Errorf("failed to mark delivery fulfilled: %w", err)
		}
		d.Status = DeliveryFulfilled

		result.Status, result.FulfillmentStatus, result.ShipmentStatus, err = refreshOrderTx(
			ctx, tx, st.orderID, st.status, st.items, st.deliveries)
		return err
	})
	if err != nil {
		return nil, err
	}

	notifyStockChanged(ctx, s.observer, "fulfill_delivery", result.Entries)
	return result, nil
}

// planDeliveryDebits turns each open delivery item into FIFO picks. Candidate
// quantities are drawn down as items are planned so two items of one product
// do not both count the same stock.
func planDeliveryDebits(open []DeliveryItem, items map[int]*OrderItem, products map[int]Product,
	candidates map[int][]FIFOCandidate) ([]stockDebit, error) {

	var debits []stockDebit
	for _, di := range open {
		it, ok := items[di.OrderItemID]
		if !ok {
			return nil, fmt.Errorf("order item %d: %w", di.OrderItemID, ErrNotFound)
		}
		rem := di.Remaining()
		if rem.GreaterThan(it.QuantityPending) {
			return nil, fmt.Errorf("delivery item %d carries %s but order item %d has %s pending: %w",
				di.ID, rem, it.ID, it.QuantityPending, ErrOverAllocation)
		}

		p := products[di.ProductID]
		need := p.InventoryUnits(rem)
		picks, short := PlanPicks(candidates[p.ID], need)
		if short.IsPositive() {
			return nil, &ShortfallError{
				Err:         ErrInsufficientStock,
				ProductID:   p.ID,
				ProductCode: p.Code,
				Needed:      need,
				Available:   need.Sub(short),
			}
		}

		// Order units per pick are truncated to storage precision; the last pick
		// takes the remainder so the item total stays exact.
		assigned := decimal.Zero
		for i, pick := range picks {
			qty := p.OrderUnits(pick.Quantity).Truncate(4)
			if i == len(picks)-1 {
				qty = rem.Sub(assigned)
			}
			assigned = assigned.Add(qty)
			debits = append(debits, stockDebit{
				Item:      it,
				Product:   p,
				Location:  pick.LocationID,
				Quantity:  qty,
				Inventory: pick.Quantity,
			})
			drawDown(candidates, p.ID, pick)
		}
	}
	return debits, nil
}

func drawDown(candidates map[int][]FIFOCandidate, productID int, pick FIFOPick) {
	list := candidates[productID]
	for i := range list {
		if list[i].LocationID == pick.LocationID {
			list[i].Quantity = list[i].Quantity.Sub(pick.Quantity)
			return
		}
	}
}
