package core_test

import (
	"errors"
	"testing"

	"ricemill-inventory/internal/core"
)

func createPO(t *testing.T, env *testEnv, items ...core.CreatePurchaseOrderItem) *core.PurchaseOrder {
	t.Helper()
	po, err := env.purchasing.CreatePurchaseOrder(env.ctx, core.CreatePurchaseOrderInput{SupplierID: supplierID, Items: items})
	if err != nil {
		t.Fatalf("CreatePurchaseOrder failed: %v", err)
	}
	return po
}

func TestPurchaseOrder_PlaceBooksOnOrder(t *testing.T) {
	env := setupTestDB(t)
	po := createPO(t, env,
		core.CreatePurchaseOrderItem{ProductID: palayID, Quantity: d("5000"), UnitPrice: d("21.50")},
		core.CreatePurchaseOrderItem{ProductID: branID, Quantity: d("300"), UnitPrice: d("12")},
	)
	if po.Status != core.POStatusPending {
		t.Fatalf("expected Pending, got %s", po.Status)
	}

	placed, err := env.purchasing.PlacePurchaseOrder(env.ctx, po.ID, "buyer")
	if err != nil {
		t.Fatalf("PlacePurchaseOrder failed: %v", err)
	}
	if placed.Status != core.POStatusOrdered || placed.OrderedAt == nil {
		t.Errorf("expected Ordered with ordered_at, got %s %v", placed.Status, placed.OrderedAt)
	}

	stock, err := env.inventory.GetProductStock(env.ctx, palayID)
	if err != nil {
		t.Fatalf("GetProductStock failed: %v", err)
	}
	if !stock.OnOrder.Equal(d("5000")) || !stock.OnHand.IsZero() {
		t.Errorf("expected 5000 on order and nothing on hand, got %+v", stock)
	}

	if _, err := env.purchasing.PlacePurchaseOrder(env.ctx, po.ID, "buyer"); !errors.Is(err, core.ErrInvalidStatusTransition) {
		t.Errorf("placing twice should fail with ErrInvalidStatusTransition, got %v", err)
	}
	assertReconciled(t, env)
}

// Scenario A.
func TestPurchaseOrder_PartialReceipt(t *testing.T) {
	env := setupTestDB(t)
	po := createPO(t, env,
		core.CreatePurchaseOrderItem{ProductID: palayID, Quantity: d("100"), UnitPrice: d("20")},
		core.CreatePurchaseOrderItem{ProductID: branID, Quantity: d("40"), UnitPrice: d("10")},
	)
	if _, err := env.purchasing.PlacePurchaseOrder(env.ctx, po.ID, "buyer"); err != nil {
		t.Fatalf("PlacePurchaseOrder failed: %v", err)
	}
	before := ledgerCount(t, env)

	res, err := env.purchasing.Receive(env.ctx, po.ID, []core.ReceiptLine{
		{POItemID: po.Items[0].ID, LocationID: locA, Quantity: d("60")},
	}, "receiver")
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	line := res.Items[0]
	if !line.ReceivedQty.Equal(d("60")) || line.LineStatus != core.LineStatusPartial {
		t.Errorf("expected received 60 / Partial, got %s / %s", line.ReceivedQty, line.LineStatus)
	}
	if res.Items[1].LineStatus != core.LineStatusBackordered {
		t.Errorf("untouched line should be Backordered, got %s", res.Items[1].LineStatus)
	}
	// No line is complete yet, so the order keeps its status.
	if res.Status != core.POStatusOrdered {
		t.Errorf("expected PO still Ordered, got %s", res.Status)
	}
	if got := itemQty(t, env, palayID, locA); !got.Equal(d("60")) {
		t.Errorf("expected 60 at location A, got %s", got)
	}
	if n := ledgerCount(t, env) - before; n != 1 {
		t.Fatalf("expected exactly one ledger entry, got %d", n)
	}
	e := res.Entries[0]
	if e.Kind != core.KindStockIn || !e.Quantity.Equal(d("60")) || e.PurchaseOrderID == nil || *e.PurchaseOrderID != po.ID {
		t.Errorf("unexpected entry: %+v", e)
	}

	stock, _ := env.inventory.GetProductStock(env.ctx, palayID)
	if !stock.OnHand.Equal(d("60")) || !stock.OnOrder.Equal(d("40")) {
		t.Errorf("expected on hand 60 / on order 40, got %s / %s", stock.OnHand, stock.OnOrder)
	}
	assertReconciled(t, env)
}

func TestPurchaseOrder_ReceiveCompletes(t *testing.T) {
	env := setupTestDB(t)
	po := createPO(t, env, core.CreatePurchaseOrderItem{ProductID: palayID, Quantity: d("100"), UnitPrice: d("20")})
	if _, err := env.purchasing.PlacePurchaseOrder(env.ctx, po.ID, "buyer"); err != nil {
		t.Fatalf("PlacePurchaseOrder failed: %v", err)
	}

	item := po.Items[0].ID
	if _, err := env.purchasing.Receive(env.ctx, po.ID, []core.ReceiptLine{
		{POItemID: item, LocationID: locA, Quantity: d("30")},
		{POItemID: item, LocationID: locB, Quantity: d("30")},
	}, "receiver"); err != nil {
		t.Fatalf("first Receive failed: %v", err)
	}
	res, err := env.purchasing.Receive(env.ctx, po.ID, []core.ReceiptLine{
		{POItemID: item, LocationID: locB, Quantity: d("40")},
	}, "receiver")
	if err != nil {
		t.Fatalf("second Receive failed: %v", err)
	}
	if res.Status != core.POStatusReceived || res.Items[0].LineStatus != core.LineStatusReceived {
		t.Errorf("expected Received / Received, got %s / %s", res.Status, res.Items[0].LineStatus)
	}

	got, err := env.purchasing.GetPurchaseOrder(env.ctx, po.ID)
	if err != nil {
		t.Fatalf("GetPurchaseOrder failed: %v", err)
	}
	if got.ReceivedAt == nil {
		t.Error("received_at should be set once the PO is fully received")
	}
	if q := itemQty(t, env, palayID, locB); !q.Equal(d("70")) {
		t.Errorf("expected 70 at location B, got %s", q)
	}

	if _, err := env.purchasing.Receive(env.ctx, po.ID, []core.ReceiptLine{
		{POItemID: item, LocationID: locA, Quantity: d("1")},
	}, "receiver"); !errors.Is(err, core.ErrPurchaseOrderNotOpen) {
		t.Errorf("receiving against a closed PO should fail with ErrPurchaseOrderNotOpen, got %v", err)
	}
	assertReconciled(t, env)
}

func TestPurchaseOrder_ReceiveRejectsWholeCall(t *testing.T) {
	env := setupTestDB(t)
	po := createPO(t, env,
		core.CreatePurchaseOrderItem{ProductID: palayID, Quantity: d("100"), UnitPrice: d("20")},
		core.CreatePurchaseOrderItem{ProductID: branID, Quantity: d("50"), UnitPrice: d("10")},
	)
	if _, err := env.purchasing.PlacePurchaseOrder(env.ctx, po.ID, "buyer"); err != nil {
		t.Fatalf("PlacePurchaseOrder failed: %v", err)
	}
	palayLine, branLine := po.Items[0].ID, po.Items[1].ID

	tests := []struct {
		name  string
		lines []core.ReceiptLine
		want  error
	}{
		{"over receipt across lines of one call", []core.ReceiptLine{
			{POItemID: palayLine, LocationID: locA, Quantity: d("60")},
			{POItemID: palayLine, LocationID: locB, Quantity: d("41")},
		}, core.ErrOverReceipt},
		{"zero quantity", []core.ReceiptLine{
			{POItemID: palayLine, LocationID: locA, Quantity: d("10")},
			{POItemID: branLine, LocationID: locA, Quantity: d("0")},
		}, core.ErrInvalidQuantity},
		{"more than four decimal places", []core.ReceiptLine{
			{POItemID: palayLine, LocationID: locA, Quantity: d("10")},
			{POItemID: branLine, LocationID: locA, Quantity: d("1.00001")},
		}, core.ErrInvalidQuantity},
		{"inactive location", []core.ReceiptLine{
			{POItemID: palayLine, LocationID: locA, Quantity: d("10")},
			{POItemID: branLine, LocationID: locInactive, Quantity: d("5")},
		}, core.ErrLocationInactiveOrMissing},
		{"unknown location", []core.ReceiptLine{
			{POItemID: branLine, LocationID: 999, Quantity: d("5")},
		}, core.ErrLocationInactiveOrMissing},
		{"item from another PO", []core.ReceiptLine{
			{POItemID: 999, LocationID: locA, Quantity: d("5")},
		}, core.ErrNotFound},
	}

	before := ledgerCount(t, env)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.purchasing.Receive(env.ctx, po.ID, tt.lines, "receiver")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if n := ledgerCount(t, env); n != before {
		t.Errorf("rejected receipts wrote %d ledger entries", n-before)
	}
	if q := itemQty(t, env, palayID, locA); !q.IsZero() {
		t.Errorf("rejected receipts changed stock at A to %s", q)
	}
	got, _ := env.purchasing.GetPurchaseOrder(env.ctx, po.ID)
	for _, it := range got.Items {
		if !it.ReceivedQty.IsZero() {
			t.Errorf("received_qty moved on a rejected call: %+v", it)
		}
	}
	if got.Status != core.POStatusOrdered {
		t.Errorf("PO status changed on rejected calls: %s", got.Status)
	}
}

func TestPurchaseOrder_ReceiveUnplacedOrderBooksOnOrder(t *testing.T) {
	env := setupTestDB(t)
	po := createPO(t, env,
		core.CreatePurchaseOrderItem{ProductID: palayID, Quantity: d("10"), UnitPrice: d("20")},
		core.CreatePurchaseOrderItem{ProductID: branID, Quantity: d("20"), UnitPrice: d("10")},
	)
	before := ledgerCount(t, env)

	res, err := env.purchasing.Receive(env.ctx, po.ID, []core.ReceiptLine{
		{POItemID: po.Items[0].ID, LocationID: locA, Quantity: d("10")},
	}, "receiver")
	if err != nil {
		t.Fatalf("Receive against a Pending PO failed: %v", err)
	}
	if res.Status != core.POStatusPartial {
		t.Errorf("expected Partial with one of two lines complete, got %s", res.Status)
	}

	// Two PO_ON_ORDER entries for the lines, one STOCK_IN for the receipt.
	if n := ledgerCount(t, env) - before; n != 3 {
		t.Fatalf("expected 3 ledger entries, got %d", n)
	}
	kinds := map[core.TransactionKind]int{}
	for _, e := range res.Entries {
		kinds[e.Kind]++
	}
	if kinds[core.KindPOOnOrder] != 2 || kinds[core.KindStockIn] != 1 {
		t.Errorf("unexpected entry kinds: %v", kinds)
	}

	palay, _ := env.inventory.GetProductStock(env.ctx, palayID)
	if !palay.OnHand.Equal(d("10")) || !palay.OnOrder.IsZero() {
		t.Errorf("palay: expected on hand 10 / on order 0, got %s / %s", palay.OnHand, palay.OnOrder)
	}
	bran, _ := env.inventory.GetProductStock(env.ctx, branID)
	if !bran.OnOrder.Equal(d("20")) {
		t.Errorf("bran: expected 20 still on order, got %s", bran.OnOrder)
	}

	got, err := env.purchasing.GetPurchaseOrder(env.ctx, po.ID)
	if err != nil {
		t.Fatalf("GetPurchaseOrder failed: %v", err)
	}
	if got.OrderedAt == nil {
		t.Errorf("expected ordered_at to be set by the receipt")
	}
	if _, err := env.purchasing.PlacePurchaseOrder(env.ctx, po.ID, "buyer"); !errors.Is(err, core.ErrInvalidStatusTransition) {
		t.Errorf("placing an already received-against PO should fail, got %v", err)
	}
	assertReconciled(t, env)

	if _, err := env.purchasing.Receive(env.ctx, 4242, []core.ReceiptLine{
		{POItemID: 1, LocationID: locA, Quantity: d("1")},
	}, "receiver"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound for a missing PO, got %v", err)
	}
}
