package core

import (
	"context"
	"sort"
)

// StockObserver is told about every committed stock change. It runs after the
// commit, so it cannot fail the operation.
type StockObserver interface {
	StockChanged(ctx context.Context, change StockChange)
}

// Observers fans a change out to each non-nil observer in order.
type Observers []StockObserver

func (o Observers) StockChanged(ctx context.Context, change StockChange) {
	for _, obs := range o {
		if obs != nil {
			obs.StockChanged(ctx, change)
		}
	}
}

// notifyStockChanged reports the products named by entries plus extra, which
// covers changes to cached stock fields that write no ledger entry.
func notifyStockChanged(ctx context.Context, obs StockObserver, operation string, entries []InventoryTransaction, extra ...int) {
	if obs == nil {
		return
	}
	seen := make(map[int]bool)
	var ids []int
	for _, e := range entries {
		extra = append(extra, e.ProductID)
	}
	for _, id := range extra {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return
	}
	sort.Ints(ids)
	obs.StockChanged(ctx, StockChange{Operation: operation, ProductIDs: ids, Entries: entries})
}
