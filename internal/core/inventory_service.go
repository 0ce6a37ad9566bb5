package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// InventoryService serves the per-location stock store: read views, FIFO
// planning, transfers between locations, and the repair path that compares and
// rebuilds the materialized balances from the ledger.
type InventoryService interface {
	GetLocations(ctx context.Context) ([]StorageLocation, error)
	// GetStockLevels lists stock per location; productID 0 lists every product.
	GetStockLevels(ctx context.Context, productID int) ([]StockLevel, error)
	GetProductStock(ctx context.Context, productID int) (*ProductStock, error)
	// PlanFIFO proposes picks for quantity (inventory units) without locking or writing.
	PlanFIFO(ctx context.Context, productID int, quantity decimal.Decimal) (*FIFOPlan, error)
	MoveStock(ctx context.Context, in MoveInput) (*MoveResult, error)
	Reconcile(ctx context.Context) (*ReconcileReport, error)
	// RebuildProjections recomputes inventory_items and the product stock fields
	// from the ledger and returns the drift it repaired.
	RebuildProjections(ctx context.Context) (*ReconcileReport, error)
}

type inventoryService struct {
	store    *Store
	ledger   *LedgerStore
	observer StockObserver
}

func NewInventoryService(store *Store, ledger *LedgerStore, observer StockObserver) InventoryService {
	return &inventoryService{store: store, ledger: ledger, observer: observer}
}

// ── Read views ────────────────────────────────────────────────────────────────

func (s *inventoryService) GetLocations(ctx context.Context) ([]StorageLocation, error) {
	rows, err := s.store.Pool().Query(ctx, `
		SELECT id, code, name, type, parent_id, is_active, created_at
		FROM storage_locations
		ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query storage locations: %w", err)
	}
	defer rows.Close()

	var locations []StorageLocation
	for rows.Next() {
		var l StorageLocation
		var typ string
		if err := rows.Scan(&l.ID, &l.Code, &l.Name, &typ, &l.ParentID, &l.IsActive, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan storage location: %w", err)
		}
		l.Type = LocationType(typ)
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

func (s *inventoryService) GetStockLevels(ctx context.Context, productID int) ([]StockLevel, error) {
	return queryStockLevels(ctx, s.store.Pool(), productID)
}

func queryStockLevels(ctx context.Context, q dbtx, productID int) ([]StockLevel, error) {
	rows, err := q.Query(ctx, `
		SELECT p.id, p.code, p.name, p.category, l.id, l.code, l.name, ii.quantity, ii.created_at
		FROM inventory_items ii
		JOIN products p ON p.id = ii.product_id
		JOIN storage_locations l ON l.id = ii.location_id
		WHERE ($1 = 0 OR ii.product_id = $1)
		ORDER BY p.code, ii.created_at, l.id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock levels: %w", err)
	}
	defer rows.Close()

	var levels []StockLevel
	for rows.Next() {
		var sl StockLevel
		if err := rows.Scan(&sl.ProductID, &sl.ProductCode, &sl.ProductName, &sl.Category,
			&sl.LocationID, &sl.LocationCode, &sl.LocationName, &sl.Quantity, &sl.FirstStocked); err != nil {
			return nil, fmt.Errorf("failed to scan stock level: %w", err)
		}
		levels = append(levels, sl)
	}
	return levels, rows.Err()
}

func (s *inventoryService) GetProductStock(ctx context.Context, productID int) (*ProductStock, error) {
	products, err := loadProductsTx(ctx, s.store.Pool(), []int{productID})
	if err != nil {
		return nil, err
	}
	p := products[productID]

	levels, err := queryStockLevels(ctx, s.store.Pool(), productID)
	if err != nil {
		return nil, err
	}

	available := p.StockOnHand.Sub(p.StockAllocated)
	return &ProductStock{
		ProductID:    p.ID,
		ProductCode:  p.Code,
		OnHand:       p.StockOnHand,
		Allocated:    p.StockAllocated,
		OnOrder:      p.StockOnOrder,
		Available:    available,
		BelowReorder: p.ReorderPoint.IsPositive() && available.LessThanOrEqual(p.ReorderPoint),
		Locations:    levels,
	}, nil
}

func (s *inventoryService) PlanFIFO(ctx context.Context, productID int, quantity decimal.Decimal) (*FIFOPlan, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("FIFO plan quantity must be positive: %w", ErrInvalidQuantity)
	}
	if err := checkScale(quantity); err != nil {
		return nil, err
	}
	if _, err := loadProductsTx(ctx, s.store.Pool(), []int{productID}); err != nil {
		return nil, err
	}

	rows, err := s.store.Pool().Query(ctx, `
		SELECT ii.location_id, ii.quantity, ii.created_at
		FROM inventory_items ii
		JOIN storage_locations l ON l.id = ii.location_id
		WHERE ii.product_id = $1 AND l.is_active AND ii.quantity > 0
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query FIFO candidates: %w", err)
	}
	defer rows.Close()

	var candidates []FIFOCandidate
	for rows.Next() {
		var c FIFOCandidate
		if err := rows.Scan(&c.LocationID, &c.Quantity, &c.FirstStocked); err != nil {
			return nil, fmt.Errorf("failed to scan FIFO candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read FIFO candidates: %w", err)
	}

	picks, shortfall := PlanPicks(candidates, quantity)
	return &FIFOPlan{ProductID: productID, Requested: quantity, Picks: picks, Shortfall: shortfall}, nil
}

// ── Stock movement ────────────────────────────────────────────────────────────

// MoveStock transfers quantity between two locations as a STOCK_OUT / STOCK_IN
// pair. Product totals do not change.
func (s *inventoryService) MoveStock(ctx context.Context, in MoveInput) (*MoveResult, error) {
	if !in.Quantity.IsPositive() {
		return nil, fmt.Errorf("move quantity must be positive: %w", ErrInvalidQuantity)
	}
	if err := checkScale(in.Quantity); err != nil {
		return nil, err
	}
	if in.SourceLocationID == in.TargetLocationID {
		return nil, fmt.Errorf("source and target location are both %d: %w", in.SourceLocationID, ErrInvalidQuantity)
	}

	var result *MoveResult
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		products, err := loadProductsTx(ctx, tx, []int{in.ProductID})
		if err != nil {
			return err
		}
		if err := checkLocationsTx(ctx, tx, []int{in.SourceLocationID, in.TargetLocationID}); err != nil {
			return err
		}

		src := itemKey{ProductID: in.ProductID, LocationID: in.SourceLocationID}
		dst := itemKey{ProductID: in.ProductID, LocationID: in.TargetLocationID}
		items, err := lockInventoryItemsTx(ctx, tx, []itemKey{src, dst}, true)
		if err != nil {
			return err
		}
		if items[src].Quantity.LessThan(in.Quantity) {
			return &ShortfallError{
				Err:         ErrInsufficientStock,
				ProductID:   in.ProductID,
				ProductCode: products[in.ProductID].Code,
				LocationID:  in.SourceLocationID,
				Needed:      in.Quantity,
				Available:   items[src].Quantity,
			}
		}

		items[src].set(items[src].Quantity.Sub(in.Quantity))
		items[dst].set(items[dst].Quantity.Add(in.Quantity))
		if err := items.saveTx(ctx, tx); err != nil {
			return err
		}

		note := fmt.Sprintf("move from location %d to %d", in.SourceLocationID, in.TargetLocationID)
		out, err := s.ledger.AppendTx(ctx, tx, InventoryTransaction{
			ProductID:  in.ProductID,
			Kind:       KindStockOut,
			Quantity:   in.Quantity.Neg(),
			LocationID: &in.SourceLocationID,
			Note:       note,
			CreatedBy:  in.CreatedBy,
		})
		if err != nil {
			return err
		}
		inEntry, err := s.ledger.AppendTx(ctx, tx, InventoryTransaction{
			ProductID:  in.ProductID,
			Kind:       KindStockIn,
			Quantity:   in.Quantity,
			LocationID: &in.TargetLocationID,
			Note:       note,
			CreatedBy:  in.CreatedBy,
		})
		if err != nil {
			return err
		}
		result = &MoveResult{Out: *out, In: *inEntry}
		return nil
	})
	if err != nil {
		return nil, err
	}

	notifyStockChanged(ctx, s.observer, "move_stock", []InventoryTransaction{result.Out, result.In})
	return result, nil
}

// ── Reconciliation ────────────────────────────────────────────────────────────

func (s *inventoryService) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	return reconcile(ctx, s.store.Pool())
}

func (s *inventoryService) RebuildProjections(ctx context.Context) (*ReconcileReport, error) {
	var report *ReconcileReport
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		// Writers lock rows; the table locks keep them out for the whole rebuild.
		if _, err := tx.Exec(ctx, "LOCK TABLE products, inventory_items IN SHARE ROW EXCLUSIVE MODE"); err != nil {
			return fmt.Errorf("failed to lock projections: %w", err)
		}

		var err error
		report, err = reconcile(ctx, tx)
		if err != nil {
			return err
		}
		if report.Clean() {
			return nil
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO inventory_items (product_id, location_id, quantity, created_at)
			SELECT product_id, location_id, SUM(quantity), MIN(created_at)
			FROM inventory_transactions
			WHERE location_id IS NOT NULL
			GROUP BY product_id, location_id
			ON CONFLICT (product_id, location_id)
			DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = NOW()
			WHERE inventory_items.quantity <> EXCLUDED.quantity
		`)
		if err != nil {
			return fmt.Errorf("failed to rebuild inventory items: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE inventory_items ii
			SET quantity = 0, updated_at = NOW()
			WHERE ii.quantity <> 0
			  AND NOT EXISTS (
				SELECT 1 FROM inventory_transactions t
				WHERE t.product_id = ii.product_id AND t.location_id = ii.location_id
			  )
		`)
		if err != nil {
			return fmt.Errorf("failed to clear unbacked inventory items: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE products p
			SET stock_on_hand = x.ledger_on_hand,
			    stock_on_order = x.ledger_on_order,
			    stock_allocated = x.open_allocated
			FROM (`+productTotalsSQL+`) x
			WHERE x.id = p.id
		`, KgPerSack)
		if err != nil {
			return fmt.Errorf("failed to rebuild product stock: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !report.Clean() {
		var ids []int
		for _, d := range report.Products {
			ids = append(ids, d.ProductID)
		}
		for _, d := range report.Locations {
			ids = append(ids, d.ProductID)
		}
		notifyStockChanged(ctx, s.observer, "rebuild_projections", nil, ids...)
	}
	return report, nil
}

// productTotalsSQL derives every product figure from its sources: on-hand and
// on-order from the ledger, allocated from open order items. $1 is KgPerSack.
const productTotalsSQL = `
	SELECT p.id, p.code, p.stock_on_hand, p.stock_on_order, p.stock_allocated,
		COALESCE((SELECT SUM(ii.quantity) FROM inventory_items ii WHERE ii.product_id = p.id), 0) AS materialized,
		COALESCE((SELECT SUM(t.quantity) FROM inventory_transactions t
			WHERE t.product_id = p.id AND t.location_id IS NOT NULL), 0) AS ledger_on_hand,
		COALESCE((SELECT SUM(t.quantity) FROM inventory_transactions t
			WHERE t.product_id = p.id AND t.kind = 'PO_ON_ORDER'), 0)
		- COALESCE((SELECT SUM(t.quantity) FROM inventory_transactions t
			WHERE t.product_id = p.id AND t.kind = 'STOCK_IN' AND t.purchase_order_id IS NOT NULL), 0) AS ledger_on_order,
		COALESCE((SELECT SUM(oi.quantity_pending) FROM order_items oi
			JOIN orders o ON o.id = oi.order_id
			WHERE oi.product_id = p.id AND o.status <> 'Cancelled'), 0)
		* CASE WHEN p.is_milled_rice THEN $1::numeric ELSE 1 END AS open_allocated
	FROM products p`

func reconcile(ctx context.Context, q dbtx) (*ReconcileReport, error) {
	report := &ReconcileReport{}

	rows, err := q.Query(ctx, productTotalsSQL+" ORDER BY p.id", KgPerSack)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile products: %w", err)
	}
	for rows.Next() {
		var d ProductDrift
		if err := rows.Scan(&d.ProductID, &d.ProductCode, &d.CachedOnHand, &d.CachedOnOrder, &d.CachedAllocated,
			&d.MaterializedTotal, &d.LedgerOnHand, &d.LedgerOnOrder, &d.OpenAllocated); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan product totals: %w", err)
		}
		if !d.CachedOnHand.Equal(d.LedgerOnHand) || !d.MaterializedTotal.Equal(d.LedgerOnHand) ||
			!d.CachedOnOrder.Equal(d.LedgerOnOrder) || !d.CachedAllocated.Equal(d.OpenAllocated) {
			report.Products = append(report.Products, d)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read product totals: %w", err)
	}

	rows, err = q.Query(ctx, `
		SELECT COALESCE(ii.product_id, l.product_id), COALESCE(ii.location_id, l.location_id),
		       COALESCE(ii.quantity, 0), COALESCE(l.total, 0)
		FROM inventory_items ii
		FULL OUTER JOIN (
			SELECT product_id, location_id, SUM(quantity) AS total
			FROM inventory_transactions
			WHERE location_id IS NOT NULL
			GROUP BY product_id, location_id
		) l ON l.product_id = ii.product_id AND l.location_id = ii.location_id
		WHERE COALESCE(ii.quantity, 0) <> COALESCE(l.total, 0)
		ORDER BY 1, 2
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile locations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var d LocationDrift
		if err := rows.Scan(&d.ProductID, &d.LocationID, &d.Materialized, &d.Ledger); err != nil {
			return nil, fmt.Errorf("failed to scan location drift: %w", err)
		}
		report.Locations = append(report.Locations, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read location drift: %w", err)
	}
	return report, nil
}
