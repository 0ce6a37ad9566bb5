package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// PurchaseOrderService reconciles supplier deliveries against purchase orders.
// Receiving is the main writer that credits inventory.
type PurchaseOrderService interface {
	CreatePurchaseOrder(ctx context.Context, in CreatePurchaseOrderInput) (*PurchaseOrder, error)
	GetPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error)
	// PlacePurchaseOrder sends a Pending order to the supplier and books the
	// outstanding quantities as on-order stock.
	PlacePurchaseOrder(ctx context.Context, id int, createdBy string) (*PurchaseOrder, error)
	// Receive records a delivery. Every line is validated before anything is
	// written; one bad line rejects the whole call.
	Receive(ctx context.Context, id int, lines []ReceiptLine, createdBy string) (*ReceiptResult, error)
}

type purchaseOrderService struct {
	store    *Store
	ledger   *LedgerStore
	observer StockObserver
}

func NewPurchaseOrderService(store *Store, ledger *LedgerStore, observer StockObserver) PurchaseOrderService {
	return &purchaseOrderService{store: store, ledger: ledger, observer: observer}
}

func (s *purchaseOrderService) CreatePurchaseOrder(ctx context.Context, in CreatePurchaseOrderInput) (*PurchaseOrder, error) {
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("purchase order needs at least one item: %w", ErrInvalidQuantity)
	}
	productIDs := make([]int, 0, len(in.Items))
	for i, it := range in.Items {
		if !it.Quantity.IsPositive() {
			return nil, fmt.Errorf("item %d: quantity must be positive: %w", i+1, ErrInvalidQuantity)
		}
		if err := checkScale(it.Quantity); err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		if it.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("item %d: unit price must not be negative: %w", i+1, ErrInvalidQuantity)
		}
		productIDs = append(productIDs, it.ProductID)
	}

	var id int
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM suppliers WHERE id = $1)", in.SupplierID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to look up supplier: %w", err)
		}
		if !exists {
			return fmt.Errorf("supplier %d: %w", in.SupplierID, ErrNotFound)
		}
		if _, err := loadProductsTx(ctx, tx, productIDs); err != nil {
			return err
		}

		if err := tx.QueryRow(ctx, `
			INSERT INTO purchase_orders (supplier_id, status, note)
			VALUES ($1, $2, $3)
			RETURNING id
		`, in.SupplierID, POStatusPending, in.Note).Scan(&id); err != nil {
			return fmt.Errorf("failed to insert purchase order: %w", err)
		}
		for _, it := range in.Items {
			if _, err := tx.Exec(ctx, `
				INSERT INTO purchase_order_items (purchase_order_id, product_id, ordered_qty, unit_price, line_status)
				VALUES ($1, $2, $3, $4, $5)
			`, id, it.ProductID, it.Quantity, it.UnitPrice, LineStatusPending); err != nil {
				return fmt.Errorf("failed to insert purchase order item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetPurchaseOrder(ctx, id)
}

func (s *purchaseOrderService) GetPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	po := &PurchaseOrder{}
	err := s.store.Pool().QueryRow(ctx, `
		SELECT po.id, po.supplier_id, s.code, s.name, po.status, po.order_date, po.note,
		       po.ordered_at, po.received_at, po.created_at
		FROM purchase_orders po
		JOIN suppliers s ON s.id = po.supplier_id
		WHERE po.id = $1
	`, id).Scan(&po.ID, &po.SupplierID, &po.SupplierCode, &po.SupplierName, &po.Status, &po.OrderDate,
		&po.Note, &po.OrderedAt, &po.ReceivedAt, &po.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("purchase order %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get purchase order: %w", err)
	}

	po.Items, err = loadPOItems(ctx, s.store.Pool(), id, false)
	if err != nil {
		return nil, err
	}
	return po, nil
}

func loadPOItems(ctx context.Context, q dbtx, poID int, forUpdate bool) ([]PurchaseOrderItem, error) {
	query := `
		SELECT poi.id, poi.purchase_order_id, poi.product_id, p.code, poi.ordered_qty,
		       poi.received_qty, poi.unit_price, poi.line_status
		FROM purchase_order_items poi
		JOIN products p ON p.id = poi.product_id
		WHERE poi.purchase_order_id = $1
		ORDER BY poi.id`
	if forUpdate {
		query += " FOR UPDATE OF poi"
	}
	rows, err := q.Query(ctx, query, poID)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchase order items: %w", err)
	}
	defer rows.Close()

	var items []PurchaseOrderItem
	for rows.Next() {
		var it PurchaseOrderItem
		if err := rows.Scan(&it.ID, &it.PurchaseOrderID, &it.ProductID, &it.ProductCode, &it.OrderedQty,
			&it.ReceivedQty, &it.UnitPrice, &it.LineStatus); err != nil {
			return nil, fmt.Errorf("failed to scan purchase order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func lockPurchaseOrderTx(ctx context.Context, tx pgx.Tx, id int) (string, error) {
	var status string
	err := tx.QueryRow(ctx, "SELECT status FROM purchase_orders WHERE id = $1 FOR UPDATE", id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("purchase order %d: %w", id, ErrNotFound)
		}
		return "", fmt.Errorf("failed to lock purchase order: %w", err)
	}
	return status, nil
}

// bookOnOrderTx appends one PO_ON_ORDER entry per line for its outstanding
// quantity and records the on-order increase in deltas.
func (s *purchaseOrderService) bookOnOrderTx(ctx context.Context, tx pgx.Tx, id int, items []PurchaseOrderItem, deltas stockDeltas, createdBy string) ([]InventoryTransaction, error) {
	var entries []InventoryTransaction
	for _, it := range items {
		outstanding := it.Outstanding()
		if !outstanding.IsPositive() {
			continue
		}
		price := it.UnitPrice
		entry, err := s.ledger.AppendTx(ctx, tx, InventoryTransaction{
			ProductID:       it.ProductID,
			Kind:            KindPOOnOrder,
			Quantity:        outstanding,
			UnitPrice:       &price,
			PurchaseOrderID: &id,
			Note:            fmt.Sprintf("purchase order #%d placed", id),
			CreatedBy:       createdBy,
		})
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
		deltas.onOrder(it.ProductID, outstanding)
	}
	return entries, nil
}

func (s *purchaseOrderService) PlacePurchaseOrder(ctx context.Context, id int, createdBy string) (*PurchaseOrder, error) {
	var entries []InventoryTransaction
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		entries = nil
		status, err := lockPurchaseOrderTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if status != POStatusPending {
			return fmt.Errorf("purchase order %d is %s, only Pending orders can be placed: %w", id, status, ErrInvalidStatusTransition)
		}

		items, err := loadPOItems(ctx, tx, id, true)
		if err != nil {
			return err
		}
		deltas := stockDeltas{}
		entries, err = s.bookOnOrderTx(ctx, tx, id, items, deltas, createdBy)
		if err != nil {
			return err
		}
		if err := deltas.applyTx(ctx, tx); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, "UPDATE purchase_orders SET status = $1, ordered_at = NOW() WHERE id = $2", POStatusOrdered, id)
		if err != nil {
			return fmt.Errorf("failed to update purchase order status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	notifyStockChanged(ctx, s.observer, "place_purchase_order", entries)
	return s.GetPurchaseOrder(ctx, id)
}

func (s *purchaseOrderService) Receive(ctx context.Context, id int, lines []ReceiptLine, createdBy string) (*ReceiptResult, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("receipt has no lines: %w", ErrInvalidQuantity)
	}
	for i, l := range lines {
		if !l.Quantity.IsPositive() {
			return nil, fmt.Errorf("line %d: received quantity must be positive, got %s: %w", i+1, l.Quantity, ErrInvalidQuantity)
		}
		if err := checkScale(l.Quantity); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
	}

	var result *ReceiptResult
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		status, err := lockPurchaseOrderTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if status == POStatusReceived || status == POStatusCancelled {
			return fmt.Errorf("purchase order %d is %s: %w", id, status, ErrPurchaseOrderNotOpen)
		}

		items, err := loadPOItems(ctx, tx, id, true)
		if err != nil {
			return err
		}
		byID := make(map[int]*PurchaseOrderItem, len(items))
		for i := range items {
			byID[items[i].ID] = &items[i]
		}

		// Validate every line against the cumulative quantity of this call.
		receiving := make(map[int]decimal.Decimal)
		var keys []itemKey
		var locationIDs []int
		for i, l := range lines {
			it, ok := byID[l.POItemID]
			if !ok {
				return fmt.Errorf("line %d: item %d is not on purchase order %d: %w", i+1, l.POItemID, id, ErrNotFound)
			}
			total := receiving[it.ID].Add(l.Quantity)
			if total.GreaterThan(it.Outstanding()) {
				return fmt.Errorf("line %d: receiving %s of %s against %s outstanding: %w",
					i+1, total, it.ProductCode, it.Outstanding(), ErrOverReceipt)
			}
			receiving[it.ID] = total
			keys = append(keys, itemKey{ProductID: it.ProductID, LocationID: l.LocationID})
			locationIDs = append(locationIDs, l.LocationID)
		}
		if err := checkLocationsTx(ctx, tx, locationIDs); err != nil {
			return err
		}

		stock, err := lockInventoryItemsTx(ctx, tx, keys, true)
		if err != nil {
			return err
		}

		result = &ReceiptResult{PurchaseOrderID: id}
		deltas := stockDeltas{}

		// Goods arriving against an order nobody placed: book it as ordered
		// first so on-order stays consistent with the ledger.
		if status == POStatusPending {
			booked, err := s.bookOnOrderTx(ctx, tx, id, items, deltas, createdBy)
			if err != nil {
				return err
			}
			result.Entries = append(result.Entries, booked...)
			if _, err := tx.Exec(ctx, "UPDATE purchase_orders SET status = $1, ordered_at = NOW() WHERE id = $2", POStatusOrdered, id); err != nil {
				return fmt.Errorf("failed to update purchase order status: %w", err)
			}
			status = POStatusOrdered
		}
		for _, l := range lines {
			it := byID[l.POItemID]
			k := itemKey{ProductID: it.ProductID, LocationID: l.LocationID}
			stock[k].set(stock[k].Quantity.Add(l.Quantity))
			it.ReceivedQty = it.ReceivedQty.Add(l.Quantity)

			price := it.UnitPrice
			locationID := l.LocationID
			entry, err := s.ledger.AppendTx(ctx, tx, InventoryTransaction{
				ProductID:       it.ProductID,
				Kind:            KindStockIn,
				Quantity:        l.Quantity,
				UnitPrice:       &price,
				LocationID:      &locationID,
				PurchaseOrderID: &id,
				Note:            fmt.Sprintf("received against purchase order #%d", id),
				CreatedBy:       createdBy,
			})
			if err != nil {
				return err
			}
			result.Entries = append(result.Entries, *entry)
			deltas.onHand(it.ProductID, l.Quantity)
			deltas.onOrder(it.ProductID, l.Quantity.Neg())
		}
		if err := stock.saveTx(ctx, tx); err != nil {
			return err
		}

		newStatus := PurchaseOrderStatusFor(status, items)
		hasReceipts := false
		for _, it := range items {
			if it.ReceivedQty.IsPositive() {
				hasReceipts = true
				break
			}
		}
		for i := range items {
			it := &items[i]
			lineStatus := LineStatusFor(*it, hasReceipts)
			if _, touched := receiving[it.ID]; !touched && lineStatus == it.LineStatus {
				continue
			}
			it.LineStatus = lineStatus
			if _, err := tx.Exec(ctx,
				"UPDATE purchase_order_items SET received_qty = $1, line_status = $2 WHERE id = $3",
				it.ReceivedQty, it.LineStatus, it.ID); err != nil {
				return fmt.Errorf("failed to update purchase order item %d: %w", it.ID, err)
			}
		}

		if newStatus == POStatusReceived {
			_, err = tx.Exec(ctx, "UPDATE purchase_orders SET status = $1, received_at = NOW() WHERE id = $2", newStatus, id)
		} else {
			_, err = tx.Exec(ctx, "UPDATE purchase_orders SET status = $1 WHERE id = $2", newStatus, id)
		}
		if err != nil {
			return fmt.Errorf("failed to update purchase order status: %w", err)
		}

		if err := deltas.applyTx(ctx, tx); err != nil {
			return err
		}
		result.Status = newStatus
		result.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}

	notifyStockChanged(ctx, s.observer, "receive_purchase_order", result.Entries)
	return result, nil
}
