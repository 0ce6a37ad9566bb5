package core_test

import (
	"errors"
	"testing"

	"ricemill-inventory/internal/core"
)

// Scenario E.
func TestInventory_MoveStock(t *testing.T) {
	env := setupTestDB(t)
	stockUp(t, env, palayID, locA, "20")
	env.observed.changes = nil

	res, err := env.inventory.MoveStock(env.ctx, core.MoveInput{
		ProductID: palayID, SourceLocationID: locA, TargetLocationID: locB, Quantity: d("20"), CreatedBy: "forklift",
	})
	if err != nil {
		t.Fatalf("MoveStock failed: %v", err)
	}
	if res.Out.Kind != core.KindStockOut || !res.Out.Quantity.Equal(d("-20")) || *res.Out.LocationID != locA {
		t.Errorf("unexpected outbound entry: %+v", res.Out)
	}
	if res.In.Kind != core.KindStockIn || !res.In.Quantity.Equal(d("20")) || *res.In.LocationID != locB {
		t.Errorf("unexpected inbound entry: %+v", res.In)
	}
	if a, b := itemQty(t, env, palayID, locA), itemQty(t, env, palayID, locB); !a.IsZero() || !b.Equal(d("20")) {
		t.Errorf("expected A=0 B=20, got A=%s B=%s", a, b)
	}

	stock, _ := env.inventory.GetProductStock(env.ctx, palayID)
	if !stock.OnHand.Equal(d("20")) || !stock.OnOrder.IsZero() {
		t.Errorf("a move should not change product totals, got on hand %s on order %s", stock.OnHand, stock.OnOrder)
	}

	if len(env.observed.changes) != 1 {
		t.Fatalf("expected one stock change notification, got %d", len(env.observed.changes))
	}
	ch := env.observed.changes[0]
	if ch.Operation != "move_stock" || len(ch.ProductIDs) != 1 || ch.ProductIDs[0] != palayID || len(ch.Entries) != 2 {
		t.Errorf("unexpected notification: %+v", ch)
	}
	assertReconciled(t, env)
}

func TestInventory_MoveStockRejects(t *testing.T) {
	env := setupTestDB(t)
	stockUp(t, env, palayID, locA, "20")
	before := ledgerCount(t, env)

	_, err := env.inventory.MoveStock(env.ctx, core.MoveInput{
		ProductID: palayID, SourceLocationID: locA, TargetLocationID: locB, Quantity: d("20.5"),
	})
	var short *core.ShortfallError
	if !errors.As(err, &short) || short.LocationID != locA || !short.Available.Equal(d("20")) {
		t.Fatalf("expected a shortfall at A, got %v", err)
	}

	tests := []struct {
		name     string
		src, dst int
		qty      string
		want     error
	}{
		{"same location", locA, locA, "1", core.ErrInvalidQuantity},
		{"zero quantity", locA, locB, "0", core.ErrInvalidQuantity},
		{"more than four decimal places", locA, locB, "1.12345", core.ErrInvalidQuantity},
		{"inactive target", locA, locInactive, "1", core.ErrLocationInactiveOrMissing},
		{"missing source", 77, locB, "1", core.ErrLocationInactiveOrMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.inventory.MoveStock(env.ctx, core.MoveInput{
				ProductID: palayID, SourceLocationID: tt.src, TargetLocationID: tt.dst, Quantity: d(tt.qty),
			})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if n := ledgerCount(t, env); n != before {
		t.Errorf("rejected moves wrote %d entries", n-before)
	}
	if q := itemQty(t, env, palayID, locA); !q.Equal(d("20")) {
		t.Errorf("expected 20 untouched at A, got %s", q)
	}
}

func TestInventory_ReadViews(t *testing.T) {
	env := setupTestDB(t)
	stockUp(t, env, riceID, locB, "100")
	stockUp(t, env, riceID, locA, "400")
	stockUp(t, env, branID, locC, "10")

	locations, err := env.inventory.GetLocations(env.ctx)
	if err != nil {
		t.Fatalf("GetLocations failed: %v", err)
	}
	if len(locations) != 4 {
		t.Errorf("expected 4 locations including the inactive one, got %d", len(locations))
	}

	levels, err := env.inventory.GetStockLevels(env.ctx, riceID)
	if err != nil {
		t.Fatalf("GetStockLevels failed: %v", err)
	}
	if len(levels) != 2 || levels[0].LocationID != locB {
		t.Fatalf("expected rice at B then A (oldest first), got %+v", levels)
	}
	all, _ := env.inventory.GetStockLevels(env.ctx, 0)
	if len(all) != 3 {
		t.Errorf("expected 3 stock levels across products, got %d", len(all))
	}

	plan, err := env.inventory.PlanFIFO(env.ctx, riceID, d("250"))
	if err != nil {
		t.Fatalf("PlanFIFO failed: %v", err)
	}
	if len(plan.Picks) != 1 || plan.Picks[0].LocationID != locA || !plan.Shortfall.IsZero() {
		t.Errorf("expected a single pick from A, got %+v", plan)
	}

	plan, err = env.inventory.PlanFIFO(env.ctx, riceID, d("600"))
	if err != nil {
		t.Fatalf("PlanFIFO failed: %v", err)
	}
	if len(plan.Picks) != 2 || plan.Picks[0].LocationID != locB || !plan.Shortfall.Equal(d("100")) {
		t.Errorf("expected both locations and a 100 kg shortfall, got %+v", plan)
	}

	if _, err := env.inventory.PlanFIFO(env.ctx, 99, d("1")); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound for an unknown product, got %v", err)
	}
	if _, err := env.inventory.GetProductStock(env.ctx, 99); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound for an unknown product, got %v", err)
	}
}
