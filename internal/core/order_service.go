package core

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// OrderService takes customer orders and allocates stock to them. Allocation
// is, with delivery fulfillment, the only writer that debits inventory.
type OrderService interface {
	// PlaceOrder records a checked-out order and reserves its stock.
	PlaceOrder(ctx context.Context, in PlaceOrderInput) (*Order, error)
	GetOrder(ctx context.Context, id int) (*Order, error)
	// AllocateOrder debits the requested lines from their locations. Pending
	// quantity left unassigned afterwards goes onto a new backorder delivery.
	AllocateOrder(ctx context.Context, orderID int, lines []AllocationLine, createdBy string) (*AllocationResult, error)
}

type orderService struct {
	store    *Store
	ledger   *LedgerStore
	observer StockObserver
}

func NewOrderService(store *Store, ledger *LedgerStore, observer StockObserver) OrderService {
	return &orderService{store: store, ledger: ledger, observer: observer}
}

func (s *orderService) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*Order, error) {
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("order needs at least one item: %w", ErrInvalidQuantity)
	}
	productIDs := make([]int, 0, len(in.Items))
	for i, it := range in.Items {
		if !it.Quantity.IsPositive() {
			return nil, fmt.Errorf("item %d: quantity must be positive: %w", i+1, ErrInvalidQuantity)
		}
		if err := checkScale(it.Quantity); err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		productIDs = append(productIDs, it.ProductID)
	}

	var orderID int
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		products, err := loadProductsTx(ctx, tx, productIDs)
		if err != nil {
			return err
		}

		if err := tx.QueryRow(ctx, `
			INSERT INTO orders (customer_name, customer_email, total, status, shipment_status, fulfillment_status)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, in.CustomerName, in.CustomerEmail, in.Total, OrderStatusPending, string(ShipmentProcessing),
			FulfillmentUnfulfilled).Scan(&orderID); err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		deltas := stockDeltas{}
		for _, it := range in.Items {
			if _, err := tx.Exec(ctx, `
				INSERT INTO order_items (order_id, product_id, quantity, quantity_fulfilled, quantity_pending)
				VALUES ($1, $2, $3, 0, $3)
			`, orderID, it.ProductID, it.Quantity); err != nil {
				return fmt.Errorf("failed to insert order item: %w", err)
			}
			deltas.allocated(it.ProductID, products[it.ProductID].InventoryUnits(it.Quantity))
		}
		return deltas.applyTx(ctx, tx)
	})
	if err != nil {
		return nil, err
	}

	notifyStockChanged(ctx, s.observer, "place_order", nil, productIDs...)
	return s.GetOrder(ctx, orderID)
}

func (s *orderService) GetOrder(ctx context.Context, id int) (*Order, error) {
	o := &Order{}
	var shipment string
	err := s.store.Pool().QueryRow(ctx, `
		SELECT id, customer_name, customer_email, total, status, shipment_status, fulfillment_status, created_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&o.ID, &o.CustomerName, &o.CustomerEmail, &o.Total, &o.Status, &shipment,
		&o.FulfillmentStatus, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	o.ShipmentStatus = ShipmentStatus(shipment)

	if o.Items, err = loadOrderItems(ctx, s.store.Pool(), id, false); err != nil {
		return nil, err
	}
	if o.Deliveries, err = loadDeliveries(ctx, s.store.Pool(), id, false); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *orderService) AllocateOrder(ctx context.Context, orderID int, lines []AllocationLine, createdBy string) (*AllocationResult, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("allocation has no lines: %w", ErrInvalidQuantity)
	}
	for i, l := range lines {
		if !l.Quantity.IsPositive() {
			return nil, fmt.Errorf("line %d: allocation quantity must be positive, got %s: %w", i+1, l.Quantity, ErrInvalidQuantity)
		}
		if err := checkScale(l.Quantity); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
	}

	var (
		result  *AllocationResult
		entries []InventoryTransaction
	)
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		entries = nil
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
		byID := indexOrderItems(items)

		// Validate every line before the first write.
		unassigned := UnassignedPending(items, deliveries)
		requested := make(map[int]decimal.Decimal)
		var productIDs, locationIDs []int
		for i, l := range lines {
			it, ok := byID[l.OrderItemID]
			if !ok {
				return fmt.Errorf("line %d: item %d is not on order %d: %w", i+1, l.OrderItemID, orderID, ErrNotFound)
			}
			if it.ProductID != l.ProductID {
				return fmt.Errorf("line %d: order item %d is for product %d, not %d: %w",
					i+1, it.ID, it.ProductID, l.ProductID, ErrNotFound)
			}
			total := requested[it.ID].Add(l.Quantity)
			if total.GreaterThan(unassigned[it.ID]) {
				return fmt.Errorf("line %d: allocating %s of order item %d with %s unassigned: %w",
					i+1, total, it.ID, unassigned[it.ID], ErrOverAllocation)
			}
			requested[it.ID] = total
			productIDs = append(productIDs, l.ProductID)
			locationIDs = append(locationIDs, l.LocationID)
		}
		if err := checkLocationsTx(ctx, tx, locationIDs); err != nil {
			return err
		}
		products, err := loadProductsTx(ctx, tx, productIDs)
		if err != nil {
			return err
		}

		debits := make([]stockDebit, 0, len(lines))
		needed := make(map[itemKey]decimal.Decimal)
		var keys []itemKey
		for _, l := range lines {
			p := products[l.ProductID]
			k := itemKey{ProductID: l.ProductID, LocationID: l.LocationID}
			inv := p.InventoryUnits(l.Quantity)
			needed[k] = needed[k].Add(inv)
			keys = append(keys, k)
			debits = append(debits, stockDebit{
				Item:      byID[l.OrderItemID],
				Product:   p,
				Location:  l.LocationID,
				Quantity:  l.Quantity,
				Inventory: inv,
			})
		}

		stock, err := lockInventoryItemsTx(ctx, tx, keys, false)
		if err != nil {
			return err
		}
		for _, k := range sortKeys(keys) {
			if avail := stock[k].Quantity; avail.LessThan(needed[k]) {
				return &ShortfallError{
					Err:         ErrInsufficientStock,
					ProductID:   k.ProductID,
					ProductCode: products[k.ProductID].Code,
					LocationID:  k.LocationID,
					Needed:      needed[k],
					Available:   avail,
				}
			}
		}

		deliveryID, err := allocationDeliveryTx(ctx, tx, orderID, deliveries)
		if err != nil {
			return err
		}

		allocated, written, err := debitOrderStockTx(ctx, tx, s.ledger, orderID, deliveryID, debits, stock, createdBy)
		if err != nil {
			return err
		}
		entries = written

		for _, it := range items {
			q, ok := requested[it.ID]
			if !ok {
				continue
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO delivery_items (delivery_id, order_item_id, quantity, quantity_allocated)
				VALUES ($1, $2, $3, $3)
				ON CONFLICT (delivery_id, order_item_id) DO UPDATE
				SET quantity = delivery_items.quantity + EXCLUDED.quantity,
				    quantity_allocated = delivery_items.quantity_allocated + EXCLUDED.quantity_allocated
			`, deliveryID, it.ID, q); err != nil {
				return fmt.Errorf("failed to record allocation on delivery %d: %w", deliveryID, err)
			}
		}

		if deliveries, err = loadDeliveries(ctx, tx, orderID, false); err != nil {
			return err
		}
		result = &AllocationResult{OrderID: orderID, DeliveryID: deliveryID, Lines: allocated}

		backorder, err := createBackorderTx(ctx, tx, orderID, items, deliveries)
		switch {
		case errors.Is(err, ErrNothingToBackorder):
		case err != nil:
			return err
		default:
			result.Backorder = backorder
			deliveries = append(deliveries, *backorder)
		}

		for _, it := range items {
			if it.QuantityPending.IsPositive() {
				result.Remaining = append(result.Remaining, PendingLine{OrderItemID: it.ID, QuantityPending: it.QuantityPending})
			}
		}
		result.Status, result.FulfillmentStatus, _, err = refreshOrderTx(ctx, tx, orderID, status, items, deliveries)
		return err
	})
	if err != nil {
		return nil, err
	}

	notifyStockChanged(ctx, s.observer, "allocate_order", entries)
	return result, nil
}

// ── TX helpers shared with DeliveryService ────────────────────────────────────

func lockOrderTx(ctx context.Context, tx pgx.Tx, orderID int) (string, error) {
	var status string
	err := tx.QueryRow(ctx, "SELECT status FROM orders WHERE id = $1 FOR UPDATE", orderID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("order %d: %w", orderID, ErrNotFound)
		}
		return "", fmt.Errorf("failed to lock order: %w", err)
	}
	return status, nil
}

func loadOrderItems(ctx context.Context, q dbtx, orderID int, forUpdate bool) ([]OrderItem, error) {
	query := `
		SELECT oi.id, oi.order_id, oi.product_id, p.code, oi.quantity, oi.quantity_fulfilled, oi.quantity_pending
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1
		ORDER BY oi.id`
	if forUpdate {
		query += " FOR UPDATE OF oi"
	}
	rows, err := q.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductCode, &it.Quantity,
			&it.QuantityFulfilled, &it.QuantityPending); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func indexOrderItems(items []OrderItem) map[int]*OrderItem {
	byID := make(map[int]*OrderItem, len(items))
	for i := range items {
		byID[items[i].ID] = &items[i]
	}
	return byID
}

func loadDeliveries(ctx context.Context, q dbtx, orderID int, forUpdate bool) ([]Delivery, error) {
	query := `
		SELECT id, order_id, delivery_number, status, shipment_status, note, fulfilled_at, fulfilled_by, created_at
		FROM deliveries
		WHERE order_id = $1
		ORDER BY delivery_number`
	if forUpdate {
		query += " FOR UPDATE"
	}
	rows, err := q.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	var deliveries []Delivery
	for rows.Next() {
		var d Delivery
		var shipment string
		if err := rows.Scan(&d.ID, &d.OrderID, &d.DeliveryNumber, &d.Status, &shipment, &d.Note,
			&d.FulfilledAt, &d.FulfilledBy, &d.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		d.ShipmentStatus = ShipmentStatus(shipment)
		deliveries = append(deliveries, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read deliveries: %w", err)
	}

	query = `
		SELECT di.id, di.delivery_id, di.order_item_id, oi.product_id, di.quantity, di.quantity_allocated
		FROM delivery_items di
		JOIN deliveries d ON d.id = di.delivery_id
		JOIN order_items oi ON oi.id = di.order_item_id
		WHERE d.order_id = $1
		ORDER BY di.id`
	if forUpdate {
		query += " FOR UPDATE OF di"
	}
	rows, err = q.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery items: %w", err)
	}
	defer rows.Close()

	index := make(map[int]int, len(deliveries))
	for i, d := range deliveries {
		index[d.ID] = i
	}
	for rows.Next() {
		var di DeliveryItem
		if err := rows.Scan(&di.ID, &di.DeliveryID, &di.OrderItemID, &di.ProductID, &di.Quantity, &di.QuantityAllocated); err != nil {
			return nil, fmt.Errorf("failed to scan delivery item: %w", err)
		}
		if i, ok := index[di.DeliveryID]; ok {
			deliveries[i].Items = append(deliveries[i].Items, di)
		}
	}
	return deliveries, rows.Err()
}

func nextDeliveryNumber(deliveries []Delivery) int {
	n := 0
	for _, d := range deliveries {
		if d.DeliveryNumber > n {
			n = d.DeliveryNumber
		}
	}
	return n + 1
}

func insertDeliveryTx(ctx context.Context, tx pgx.Tx, orderID, number int, note string) (*Delivery, error) {
	d := &Delivery{OrderID: orderID, DeliveryNumber: number, Note: note}
	var shipment string
	err := tx.QueryRow(ctx, `
		INSERT INTO deliveries (order_id, delivery_number, status, shipment_status, note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, status, shipment_status, created_at
	`, orderID, number, DeliveryPending, string(ShipmentProcessing), note).Scan(&d.ID, &d.Status, &shipment, &d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create delivery %d for order %d: %w", number, orderID, err)
	}
	d.ShipmentStatus = ShipmentStatus(shipment)
	return d, nil
}

// allocationDeliveryTx picks the delivery an allocation is recorded on:
// delivery 1 while it is still pending, otherwise a new one.
func allocationDeliveryTx(ctx context.Context, tx pgx.Tx, orderID int, deliveries []Delivery) (int, error) {
	for _, d := range deliveries {
		if d.DeliveryNumber == 1 && d.Status == DeliveryPending {
			return d.ID, nil
		}
	}
	d, err := insertDeliveryTx(ctx, tx, orderID, nextDeliveryNumber(deliveries), "allocated stock")
	if err != nil {
		return 0, err
	}
	return d.ID, nil
}

// createBackorderTx opens a delivery for every order item's unassigned pending
// quantity. The caller holds the order row lock, so max+1 numbering is safe.
func createBackorderTx(ctx context.Context, tx pgx.Tx, orderID int, items []OrderItem, deliveries []Delivery) (*Delivery, error) {
	unassigned := UnassignedPending(items, deliveries)
	var open []OrderItem
	for _, it := range items {
		if unassigned[it.ID].IsPositive() {
			open = append(open, it)
		}
	}
	if len(open) == 0 {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrNothingToBackorder)
	}

	number := nextDeliveryNumber(deliveries)
	note := "initial delivery"
	if number > 1 {
		note = fmt.Sprintf("backorder of order #%d", orderID)
	}
	d, err := insertDeliveryTx(ctx, tx, orderID, number, note)
	if err != nil {
		return nil, err
	}

	for _, it := range open {
		di := DeliveryItem{DeliveryID: d.ID, OrderItemID: it.ID, ProductID: it.ProductID, Quantity: unassigned[it.ID]}
		if err := tx.QueryRow(ctx, `
			INSERT INTO delivery_items (delivery_id, order_item_id, quantity, quantity_allocated)
			VALUES ($1, $2, $3, 0)
			RETURNING id
		`, d.ID, it.ID, di.Quantity).Scan(&di.ID); err != nil {
			return nil, fmt.Errorf("failed to insert delivery item: %w", err)
		}
		d.Items = append(d.Items, di)
	}
	return d, nil
}

// stockDebit takes Quantity (order units) of Item from Location. Inventory is
// the same quantity in inventory units.
type stockDebit struct {
	Item      *OrderItem
	Product   Product
	Location  int
	Quantity  decimal.Decimal
	Inventory decimal.Decimal
}

// debitOrderStockTx is the one debit path for order stock. stock must hold
// every debited row locked and already checked for sufficient quantity.
func debitOrderStockTx(ctx context.Context, tx pgx.Tx, ledger *LedgerStore, orderID, deliveryID int,
	debits []stockDebit, stock lockedItems, createdBy string) ([]AllocatedLine, []InventoryTransaction, error) {

	deltas := stockDeltas{}
	touched := make(map[int]*OrderItem)
	lines := make([]AllocatedLine, 0, len(debits))
	entries := make([]InventoryTransaction, 0, len(debits))

	for _, d := range debits {
		k := itemKey{ProductID: d.Product.ID, LocationID: d.Location}
		it, ok := stock[k]
		if !ok || it.Quantity.LessThan(d.Inventory) {
			return nil, nil, fmt.Errorf("product %d at location %d: %w", k.ProductID, k.LocationID, ErrInsufficientStock)
		}
		if d.Quantity.GreaterThan(d.Item.QuantityPending) {
			return nil, nil, fmt.Errorf("order item %d has %s pending: %w", d.Item.ID, d.Item.QuantityPending, ErrOverAllocation)
		}
		it.set(it.Quantity.Sub(d.Inventory))

		location := d.Location
		order := orderID
		delivery := deliveryID
		entry, err := ledger.AppendTx(ctx, tx, InventoryTransaction{
			ProductID:  d.Product.ID,
			Kind:       KindStockOut,
			Quantity:   d.Inventory.Neg(),
			LocationID: &location,
			OrderID:    &order,
			DeliveryID: &delivery,
			Note:       fmt.Sprintf("order #%d", orderID),
			CreatedBy:  createdBy,
		})
		if err != nil {
			return nil, nil, err
		}
		entries = append(entries, *entry)

		d.Item.QuantityFulfilled = d.Item.QuantityFulfilled.Add(d.Quantity)
		d.Item.QuantityPending = d.Item.QuantityPending.Sub(d.Quantity)
		touched[d.Item.ID] = d.Item

		deltas.onHand(d.Product.ID, d.Inventory.Neg())
		deltas.allocated(d.Product.ID, d.Inventory.Neg())

		lines = append(lines, AllocatedLine{
			OrderItemID:       d.Item.ID,
			ProductID:         d.Product.ID,
			LocationID:        d.Location,
			Quantity:          d.Quantity,
			InventoryQuantity: d.Inventory,
			EntryID:           entry.ID,
		})
	}

	if err := stock.saveTx(ctx, tx); err != nil {
		return nil, nil, err
	}

	ids := make([]int, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		it := touched[id]
		if _, err := tx.Exec(ctx,
			"UPDATE order_items SET quantity_fulfilled = $1, quantity_pending = $2 WHERE id = $3",
			it.QuantityFulfilled, it.QuantityPending, it.ID); err != nil {
			return nil, nil, fmt.Errorf("failed to update order item %d: %w", it.ID, err)
		}
	}

	if err := deltas.applyTx(ctx, tx); err != nil {
		return nil, nil, err
	}
	return lines, entries, nil
}

// refreshOrderTx recomputes and stores the order's derived statuses.
func refreshOrderTx(ctx context.Context, tx pgx.Tx, orderID int, current string, items []OrderItem,
	deliveries []Delivery) (status, fulfillment string, shipment ShipmentStatus, err error) {

	fulfillment = FulfillmentStatusFor(items)
	status = OrderStatusFor(current, fulfillment, deliveries)
	shipment = OrderShipmentStatusFor(deliveries)

	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET status = $1, fulfillment_status = $2, shipment_status = $3, updated_at = NOW()
		WHERE id = $4
	`, status, fulfillment, string(shipment), orderID)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to update order %d status: %w", orderID, err)
	}
	return status, fulfillment, shipment, nil
}
