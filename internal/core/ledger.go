package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	KindStockIn    TransactionKind = "STOCK_IN"
	KindStockOut   TransactionKind = "STOCK_OUT"
	KindAdjustment TransactionKind = "ADJUSTMENT"
	KindReturnIn   TransactionKind = "RETURN_IN"
	KindReturnOut  TransactionKind = "RETURN_OUT"
	KindPOOnOrder  TransactionKind = "PO_ON_ORDER"
)

// Valid reports whether k is one of the six ledger kinds.
func (k TransactionKind) Valid() bool {
	switch k {
	case KindStockIn, KindStockOut, KindAdjustment, KindReturnIn, KindReturnOut, KindPOOnOrder:
		return true
	}
	return false
}

// InventoryTransaction is one immutable ledger row. Quantity is signed and in
// inventory units. LocationID is nil only for PO_ON_ORDER entries, which move
// on-order stock rather than stock at a location.
type InventoryTransaction struct {
	ID              int              `json:"id"`
	ProductID       int              `json:"product_id"`
	Kind            TransactionKind  `json:"kind"`
	Quantity        decimal.Decimal  `json:"quantity"`
	UnitPrice       *decimal.Decimal `json:"unit_price,omitempty"`
	LocationID      *int             `json:"location_id,omitempty"`
	PurchaseOrderID *int             `json:"purchase_order_id,omitempty"`
	OrderID         *int             `json:"order_id,omitempty"`
	DeliveryID      *int             `json:"delivery_id,omitempty"`
	Note            string           `json:"note"`
	CreatedBy       string           `json:"created_by"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Validate checks kind, sign discipline and the location / purchase order
// references before an entry is appended.
func (e InventoryTransaction) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTransactionKind, e.Kind)
	}
	if e.ProductID <= 0 {
		return fmt.Errorf("ledger entry has no product: %w", ErrNotFound)
	}
	if e.Quantity.IsZero() {
		return fmt.Errorf("%s entry with zero quantity: %w", e.Kind, ErrInvalidQuantity)
	}
	if err := checkScale(e.Quantity); err != nil {
		return err
	}
	switch e.Kind {
	case KindStockIn, KindReturnIn, KindPOOnOrder:
		if !e.Quantity.IsPositive() {
			return fmt.Errorf("%s entry must be positive, got %s: %w", e.Kind, e.Quantity, ErrInvalidQuantity)
		}
	case KindStockOut, KindReturnOut:
		if !e.Quantity.IsNegative() {
			return fmt.Errorf("%s entry must be negative, got %s: %w", e.Kind, e.Quantity, ErrInvalidQuantity)
		}
	}
	if e.Kind == KindPOOnOrder {
		if e.PurchaseOrderID == nil {
			return fmt.Errorf("PO_ON_ORDER entry requires a purchase order: %w", ErrNotFound)
		}
	} else if e.LocationID == nil {
		return fmt.Errorf("%s entry requires a location: %w", e.Kind, ErrLocationInactiveOrMissing)
	}
	return nil
}

// LedgerFilter narrows ListEntries. Zero values mean no filter.
type LedgerFilter struct {
	ProductID       int
	LocationID      int
	OrderID         int
	PurchaseOrderID int
	Kind            TransactionKind
	Limit           int
}

// LedgerTotals are product figures derived purely from the ledger.
type LedgerTotals struct {
	ProductID int             `json:"product_id"`
	OnHand    decimal.Decimal `json:"on_hand"`
	OnOrder   decimal.Decimal `json:"on_order"`
}

// LedgerStore is the append-only inventory transaction ledger. It exposes no
// update or delete; corrections are offsetting entries.
type LedgerStore struct {
	pool *pgxpool.Pool
}

func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

const ledgerColumns = `id, product_id, kind, quantity, unit_price, location_id,
	purchase_order_id, order_id, delivery_id, note, created_by, created_at`

// AppendTx validates and inserts entry within the caller's TX. The balance
// change the entry records must be written in the same TX.
func (l *LedgerStore) AppendTx(ctx context.Context, tx pgx.Tx, entry InventoryTransaction) (*InventoryTransaction, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO inventory_transactions
			(product_id, kind, quantity, unit_price, location_id, purchase_order_id, order_id, delivery_id, note, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+ledgerColumns,
		entry.ProductID, string(entry.Kind), entry.Quantity, entry.UnitPrice, entry.LocationID,
		entry.PurchaseOrderID, entry.OrderID, entry.DeliveryID, entry.Note, entry.CreatedBy,
	)
	saved, err := scanLedgerEntry(row)
	if err != nil {
		return nil, fmt.Errorf("failed to append %s entry for product %d: %w", entry.Kind, entry.ProductID, err)
	}
	return saved, nil
}

// ListEntries returns entries newest first.
func (l *LedgerStore) ListEntries(ctx context.Context, f LedgerFilter) ([]InventoryTransaction, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ProductID != 0 {
		add("product_id = $%d", f.ProductID)
	}
	if f.LocationID != 0 {
		add("location_id = $%d", f.LocationID)
	}
	if f.OrderID != 0 {
		add("order_id = $%d", f.OrderID)
	}
	if f.PurchaseOrderID != 0 {
		add("purchase_order_id = $%d", f.PurchaseOrderID)
	}
	if f.Kind != "" {
		if !f.Kind.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTransactionKind, f.Kind)
		}
		add("kind = $%d", string(f.Kind))
	}

	query := "SELECT " + ledgerColumns + " FROM inventory_transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []InventoryTransaction
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// ReplayBalances sums the located entries of a product per location. The
// result is what inventory_items must hold for that product.
func (l *LedgerStore) ReplayBalances(ctx context.Context, productID int) (map[int]decimal.Decimal, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT location_id, SUM(quantity)
		FROM inventory_transactions
		WHERE product_id = $1 AND location_id IS NOT NULL
		GROUP BY location_id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to replay ledger for product %d: %w", productID, err)
	}
	defer rows.Close()

	balances := make(map[int]decimal.Decimal)
	for rows.Next() {
		var locationID int
		var qty decimal.Decimal
		if err := rows.Scan(&locationID, &qty); err != nil {
			return nil, fmt.Errorf("failed to scan replayed balance: %w", err)
		}
		balances[locationID] = qty
	}
	return balances, rows.Err()
}

// ProductTotals derives on-hand and on-order for a product from the ledger.
// On-order is what purchase orders announced minus what was received against them.
func (l *LedgerStore) ProductTotals(ctx context.Context, productID int) (*LedgerTotals, error) {
	t := &LedgerTotals{ProductID: productID}
	err := l.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(quantity) FILTER (WHERE location_id IS NOT NULL), 0),
			COALESCE(SUM(quantity) FILTER (WHERE kind = 'PO_ON_ORDER'), 0)
			- COALESCE(SUM(quantity) FILTER (WHERE kind = 'STOCK_IN' AND purchase_order_id IS NOT NULL), 0)
		FROM inventory_transactions
		WHERE product_id = $1
	`, productID).Scan(&t.OnHand, &t.OnOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to total ledger for product %d: %w", productID, err)
	}
	return t, nil
}

func scanLedgerEntry(row pgx.Row) (*InventoryTransaction, error) {
	var e InventoryTransaction
	var kind string
	err := row.Scan(&e.ID, &e.ProductID, &kind, &e.Quantity, &e.UnitPrice, &e.LocationID,
		&e.PurchaseOrderID, &e.OrderID, &e.DeliveryID, &e.Note, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Kind = TransactionKind(kind)
	return &e, nil
}
