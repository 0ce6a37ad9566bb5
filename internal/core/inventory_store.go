package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// itemKey identifies one inventory_items row.
type itemKey struct {
	ProductID  int
	LocationID int
}

// sortKeys dedupes keys and orders them by (product_id, location_id). Every
// writer locks inventory rows in this order so two transactions touching the
// same rows cannot deadlock on each other.
func sortKeys(keys []itemKey) []itemKey {
	seen := make(map[itemKey]bool, len(keys))
	out := make([]itemKey, 0, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].LocationID < out[j].LocationID
	})
	return out
}

// lockedItem is an inventory row held under FOR UPDATE. Exists is false when
// no row exists and none was created; Quantity is then zero.
type lockedItem struct {
	ID           int
	Quantity     decimal.Decimal
	FirstStocked time.Time
	Exists       bool
	dirty        bool
}

func (it *lockedItem) set(qty decimal.Decimal) {
	it.Quantity = qty
	it.dirty = true
}

type lockedItems map[itemKey]*lockedItem

// lockInventoryItemsTx locks the rows for keys in sorted order. With create
// set, missing rows are inserted at zero first so the credit has a row to land on.
func lockInventoryItemsTx(ctx context.Context, tx pgx.Tx, keys []itemKey, create bool) (lockedItems, error) {
	items := make(lockedItems, len(keys))
	for _, k := range sortKeys(keys) {
		if create {
			_, err := tx.Exec(ctx, `
				INSERT INTO inventory_items (product_id, location_id, quantity)
				VALUES ($1, $2, 0)
				ON CONFLICT (product_id, location_id) DO NOTHING
			`, k.ProductID, k.LocationID)
			if err != nil {
				return nil, fmt.Errorf("failed to create inventory item for product %d at location %d: %w", k.ProductID, k.LocationID, err)
			}
		}

		it := &lockedItem{Exists: true}
		err := tx.QueryRow(ctx, `
			SELECT id, quantity, created_at
			FROM inventory_items
			WHERE product_id = $1 AND location_id = $2
			FOR UPDATE
		`, k.ProductID, k.LocationID).Scan(&it.ID, &it.Quantity, &it.FirstStocked)
		if errors.Is(err, pgx.ErrNoRows) {
			it = &lockedItem{Quantity: decimal.Zero}
		} else if err != nil {
			return nil, fmt.Errorf("failed to lock inventory item for product %d at location %d: %w", k.ProductID, k.LocationID, err)
		}
		items[k] = it
	}
	return items, nil
}

// saveTx writes back every changed row, in lock order.
func (items lockedItems) saveTx(ctx context.Context, tx pgx.Tx) error {
	keys := make([]itemKey, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	for _, k := range sortKeys(keys) {
		it := items[k]
		if !it.dirty {
			continue
		}
		if !it.Exists {
			return fmt.Errorf("inventory item for product %d at location %d was not locked for writing", k.ProductID, k.LocationID)
		}
		if it.Quantity.IsNegative() {
			return fmt.Errorf("inventory item for product %d at location %d would go negative: %w", k.ProductID, k.LocationID, ErrInsufficientStock)
		}
		if _, err := tx.Exec(ctx,
			"UPDATE inventory_items SET quantity = $1, updated_at = NOW() WHERE id = $2",
			it.Quantity, it.ID); err != nil {
			return fmt.Errorf("failed to update inventory item %d: %w", it.ID, err)
		}
		it.dirty = false
	}
	return nil
}

// loadProductsTx loads products by id. Any missing id is ErrNotFound.
func loadProductsTx(ctx context.Context, q dbtx, ids []int) (map[int]Product, error) {
	products := make(map[int]Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}
	rows, err := q.Query(ctx, `
		SELECT id, code, name, category, price, stock_on_hand, stock_allocated, stock_on_order,
		       reorder_point, is_milled_rice, milling_yield_rate, created_at
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Category, &p.Price, &p.StockOnHand,
			&p.StockAllocated, &p.StockOnOrder, &p.ReorderPoint, &p.IsMilledRice,
			&p.MillingYieldRate, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}

	for _, id := range ids {
		if _, ok := products[id]; !ok {
			return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
		}
	}
	return products, nil
}

// checkLocationsTx fails with ErrLocationInactiveOrMissing for the first id
// that is not an active storage location.
func checkLocationsTx(ctx context.Context, q dbtx, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := q.Query(ctx, "SELECT id FROM storage_locations WHERE id = ANY($1) AND is_active", ids)
	if err != nil {
		return fmt.Errorf("failed to query storage locations: %w", err)
	}
	defer rows.Close()

	active := make(map[int]bool, len(ids))
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan storage location: %w", err)
		}
		active[id] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read storage locations: %w", err)
	}

	for _, id := range ids {
		if !active[id] {
			return fmt.Errorf("location %d: %w", id, ErrLocationInactiveOrMissing)
		}
	}
	return nil
}

// stockDelta is a pending change to a product's cached stock fields.
type stockDelta struct {
	OnHand    decimal.Decimal
	Allocated decimal.Decimal
	OnOrder   decimal.Decimal
}

type stockDeltas map[int]*stockDelta

func (d stockDeltas) get(productID int) *stockDelta {
	sd, ok := d[productID]
	if !ok {
		sd = &stockDelta{}
		d[productID] = sd
	}
	return sd
}

func (d stockDeltas) onHand(productID int, qty decimal.Decimal) {
	sd := d.get(productID)
	sd.OnHand = sd.OnHand.Add(qty)
}

func (d stockDeltas) allocated(productID int, qty decimal.Decimal) {
	sd := d.get(productID)
	sd.Allocated = sd.Allocated.Add(qty)
}

func (d stockDeltas) onOrder(productID int, qty decimal.Decimal) {
	sd := d.get(productID)
	sd.OnOrder = sd.OnOrder.Add(qty)
}

// productIDs returns the touched products in ascending order.
func (d stockDeltas) productIDs() []int {
	ids := make([]int, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// applyTx moves the cached product stock fields, ascending by product id.
func (d stockDeltas) applyTx(ctx context.Context, tx pgx.Tx) error {
	for _, id := range d.productIDs() {
		sd := d[id]
		if sd.OnHand.IsZero() && sd.Allocated.IsZero() && sd.OnOrder.IsZero() {
			continue
		}
		tag, err := tx.Exec(ctx, `
			UPDATE products
			SET stock_on_hand = stock_on_hand + $1,
			    stock_allocated = stock_allocated + $2,
			    stock_on_order = stock_on_order + $3
			WHERE id = $4
		`, sd.OnHand, sd.Allocated, sd.OnOrder, id)
		if err != nil {
			return fmt.Errorf("failed to update stock of product %d: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("product %d: %w", id, ErrNotFound)
		}
	}
	return nil
}

// lockFIFOCandidatesTx locks every stocked row of the given products at active
// locations, in (product_id, location_id) order, and returns them grouped by product.
func lockFIFOCandidatesTx(ctx context.Context, tx pgx.Tx, productIDs []int) (map[int][]FIFOCandidate, lockedItems, error) {
	rows, err := tx.Query(ctx, `
		SELECT ii.id, ii.product_id, ii.location_id, ii.quantity, ii.created_at
		FROM inventory_items ii
		JOIN storage_locations l ON l.id = ii.location_id
		WHERE ii.product_id = ANY($1) AND l.is_active AND ii.quantity > 0
		ORDER BY ii.product_id, ii.location_id
		FOR UPDATE OF ii
	`, productIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock stock for FIFO picking: %w", err)
	}
	defer rows.Close()

	candidates := make(map[int][]FIFOCandidate)
	items := make(lockedItems)
	for rows.Next() {
		var k itemKey
		it := &lockedItem{Exists: true}
		if err := rows.Scan(&it.ID, &k.ProductID, &k.LocationID, &it.Quantity, &it.FirstStocked); err != nil {
			return nil, nil, fmt.Errorf("failed to scan FIFO candidate: %w", err)
		}
		items[k] = it
		candidates[k.ProductID] = append(candidates[k.ProductID], FIFOCandidate{
			LocationID:   k.LocationID,
			Quantity:     it.Quantity,
			FirstStocked: it.FirstStocked,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read FIFO candidates: %w", err)
	}
	return candidates, items, nil
}
