package core_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"ricemill-inventory/internal/core"
	"ricemill-inventory/internal/db"
	"ricemill-inventory/migrations"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Seeded ids (identities restart on every setup).
const (
	riceID  = 1 // milled rice, sold in sacks, stocked in kg
	palayID = 2 // unmilled paddy, kg both ways
	branID  = 3

	locA        = 1
	locB        = 2
	locInactive = 3
	locC        = 4

	supplierID = 1
)

type testEnv struct {
	ctx        context.Context
	pool       *pgxpool.Pool
	ledger     *core.LedgerStore
	inventory  core.InventoryService
	purchasing core.PurchaseOrderService
	orders     core.OrderService
	deliveries core.DeliveryService
	adjust     core.AdjustmentService
	observed   *recordingObserver
}

type recordingObserver struct {
	mu      sync.Mutex
	changes []core.StockChange
}

func (r *recordingObserver) StockChanged(_ context.Context, c core.StockChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func setupTestDB(t *testing.T) *testEnv {
	t.Helper()
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.Migrate(ctx, pool, migrations.FS, zap.NewNop()); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE inventory_transactions, delivery_items, deliveries, order_items, orders,
			purchase_order_items, purchase_orders, suppliers, inventory_items, storage_locations, products
			RESTART IDENTITY CASCADE;

		INSERT INTO products (code, name, category, price, is_milled_rice, milling_yield_rate, reorder_point) VALUES
		('RICE-DINORADO', 'Dinorado milled rice', 'Milled Rice', 2600.00, true, 0.65, 100),
		('PALAY-RC222',   'RC222 palay',          'Palay',        22.00, false, 0, 0),
		('BRAN-D1',       'Rice bran D1',         'By-product',   15.00, false, 0, 0);

		INSERT INTO storage_locations (code, name, type, is_active) VALUES
		('WH-A',   'Warehouse A',      'WAREHOUSE', true),
		('WH-B',   'Warehouse B',      'WAREHOUSE', true),
		('WH-OLD', 'Closed warehouse', 'WAREHOUSE', false),
		('ZN-C',   'Drying zone C',    'ZONE',      true);

		INSERT INTO suppliers (code, name) VALUES ('SUP-NE', 'Nueva Ecija Farmers Coop');
	`)
	if err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	store := core.NewStore(pool, 3)
	ledger := core.NewLedgerStore(pool)
	obs := &recordingObserver{}
	return &testEnv{
		ctx:        ctx,
		pool:       pool,
		ledger:     ledger,
		inventory:  core.NewInventoryService(store, ledger, obs),
		purchasing: core.NewPurchaseOrderService(store, ledger, obs),
		orders:     core.NewOrderService(store, ledger, obs),
		deliveries: core.NewDeliveryService(store, ledger, obs),
		adjust:     core.NewAdjustmentService(store, ledger, obs),
		observed:   obs,
	}
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// stockUp puts qty (inventory units) of a product at a location through the
// purchasing path: create, place and receive a purchase order.
func stockUp(t *testing.T, env *testEnv, productID, locationID int, qty string) *core.PurchaseOrder {
	t.Helper()
	po, err := env.purchasing.CreatePurchaseOrder(env.ctx, core.CreatePurchaseOrderInput{
		SupplierID: supplierID,
		Items:      []core.CreatePurchaseOrderItem{{ProductID: productID, Quantity: d(qty), UnitPrice: d("20")}},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseOrder failed: %v", err)
	}
	if _, err := env.purchasing.PlacePurchaseOrder(env.ctx, po.ID, "test"); err != nil {
		t.Fatalf("PlacePurchaseOrder failed: %v", err)
	}
	if _, err := env.purchasing.Receive(env.ctx, po.ID, []core.ReceiptLine{
		{POItemID: po.Items[0].ID, LocationID: locationID, Quantity: d(qty)},
	}, "test"); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	return po
}

// itemQty reads inventory_items directly; a missing row reads as zero.
func itemQty(t *testing.T, env *testEnv, productID, locationID int) decimal.Decimal {
	t.Helper()
	var q decimal.Decimal
	err := env.pool.QueryRow(env.ctx,
		"SELECT quantity FROM inventory_items WHERE product_id = $1 AND location_id = $2",
		productID, locationID).Scan(&q)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero
	}
	if err != nil {
		t.Fatalf("read inventory item: %v", err)
	}
	return q
}

func ledgerCount(t *testing.T, env *testEnv) int {
	t.Helper()
	var n int
	if err := env.pool.QueryRow(env.ctx, "SELECT COUNT(*) FROM inventory_transactions").Scan(&n); err != nil {
		t.Fatalf("count ledger: %v", err)
	}
	return n
}

// assertReconciled checks that replaying the ledger reproduces every
// materialized balance and product figure.
func assertReconciled(t *testing.T, env *testEnv) {
	t.Helper()
	report, err := env.inventory.Reconcile(env.ctx)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !report.Clean() {
		t.Fatalf("ledger and projections drifted: products=%+v locations=%+v", report.Products, report.Locations)
	}
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestLedger_AppendValidatesBeforeInsert(t *testing.T) {
	env := setupTestDB(t)

	tx, err := env.pool.Begin(env.ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(env.ctx)

	loc := locA
	_, err = env.ledger.AppendTx(env.ctx, tx, core.InventoryTransaction{
		ProductID: riceID, Kind: core.KindStockOut, Quantity: d("5"), LocationID: &loc,
	})
	if !errors.Is(err, core.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity for positive STOCK_OUT, got %v", err)
	}

	_, err = env.ledger.AppendTx(env.ctx, tx, core.InventoryTransaction{
		ProductID: riceID, Kind: "SPILLAGE", Quantity: d("-5"), LocationID: &loc,
	})
	if !errors.Is(err, core.ErrInvalidTransactionKind) {
		t.Fatalf("expected ErrInvalidTransactionKind, got %v", err)
	}

	saved, err := env.ledger.AppendTx(env.ctx, tx, core.InventoryTransaction{
		ProductID: riceID, Kind: core.KindAdjustment, Quantity: d("-2.5"), LocationID: &loc, Note: "spillage", CreatedBy: "qa",
	})
	if err != nil {
		t.Fatalf("AppendTx failed: %v", err)
	}
	if saved.ID == 0 || saved.CreatedAt.IsZero() || saved.Kind != core.KindAdjustment {
		t.Errorf("unexpected saved entry: %+v", saved)
	}
}

func TestLedger_ListReplayAndTotals(t *testing.T) {
	env := setupTestDB(t)

	stockUp(t, env, palayID, locA, "1000")
	stockUp(t, env, palayID, locB, "250")
	if _, err := env.inventory.MoveStock(env.ctx, core.MoveInput{
		ProductID: palayID, SourceLocationID: locA, TargetLocationID: locB, Quantity: d("100"), CreatedBy: "qa",
	}); err != nil {
		t.Fatalf("MoveStock failed: %v", err)
	}

	balances, err := env.ledger.ReplayBalances(env.ctx, palayID)
	if err != nil {
		t.Fatalf("ReplayBalances failed: %v", err)
	}
	if !balances[locA].Equal(d("900")) || !balances[locB].Equal(d("350")) {
		t.Errorf("unexpected replayed balances: %v", balances)
	}

	totals, err := env.ledger.ProductTotals(env.ctx, palayID)
	if err != nil {
		t.Fatalf("ProductTotals failed: %v", err)
	}
	if !totals.OnHand.Equal(d("1250")) {
		t.Errorf("expected ledger on-hand 1250, got %s", totals.OnHand)
	}
	if !totals.OnOrder.IsZero() {
		t.Errorf("expected nothing on order after full receipts, got %s", totals.OnOrder)
	}

	entries, err := env.ledger.ListEntries(env.ctx, core.LedgerFilter{ProductID: palayID, Kind: core.KindPOOnOrder})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 PO_ON_ORDER entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.LocationID != nil || e.PurchaseOrderID == nil {
			t.Errorf("PO_ON_ORDER entry should carry a PO and no location: %+v", e)
		}
	}

	recent, err := env.ledger.ListEntries(env.ctx, core.LedgerFilter{Limit: 2})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(recent) != 2 || recent[0].ID < recent[1].ID {
		t.Errorf("expected the 2 newest entries newest first, got %+v", recent)
	}

	assertReconciled(t, env)
}

func TestInventory_ReconcileDetectsAndRebuildRepairs(t *testing.T) {
	env := setupTestDB(t)
	stockUp(t, env, branID, locC, "80")

	// Corrupt both projections behind the services' back.
	if _, err := env.pool.Exec(env.ctx, `
		UPDATE inventory_items SET quantity = 70 WHERE product_id = 3;
		UPDATE products SET stock_on_hand = 10 WHERE id = 3;
	`); err != nil {
		t.Fatalf("corrupt projections: %v", err)
	}

	report, err := env.inventory.Reconcile(env.ctx)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(report.Products) != 1 || report.Products[0].ProductID != branID {
		t.Fatalf("expected product drift for bran, got %+v", report.Products)
	}
	if len(report.Locations) != 1 || !report.Locations[0].Ledger.Equal(d("80")) {
		t.Fatalf("expected location drift with ledger 80, got %+v", report.Locations)
	}

	repaired, err := env.inventory.RebuildProjections(env.ctx)
	if err != nil {
		t.Fatalf("RebuildProjections failed: %v", err)
	}
	if repaired.Clean() {
		t.Error("RebuildProjections should report the drift it repaired")
	}
	if got := itemQty(t, env, branID, locC); !got.Equal(d("80")) {
		t.Errorf("expected rebuilt quantity 80, got %s", got)
	}
	assertReconciled(t, env)
}
