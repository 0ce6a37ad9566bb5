package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"ricemill-inventory/internal/app"
	"ricemill-inventory/internal/core"

	"github.com/shopspring/decimal"
)

// ErrUsage is returned for unknown commands or missing arguments.
var ErrUsage = errors.New("usage")

const usage = `Available commands:
  locations                     list storage locations
  stock [product-id]            per-location stock levels
  product <product-id>          on-hand, allocated, on-order and available
  fifo <product-id> <quantity>  where a pick would come from (inventory units)
  ledger [product-id] [limit]   recent ledger entries, newest first
  po <id>                       purchase order with its lines (JSON)
  order <id>                    order with items and deliveries (JSON)
  reconcile                     compare projections with a ledger replay
  rebuild                       recompute projections from the ledger`

// Run executes a one-shot CLI command and writes its output to out.
// args is os.Args[1:]: the first element is the subcommand name.
func Run(ctx context.Context, svc app.ApplicationService, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w\n%s", ErrUsage, usage)
	}

	switch args[0] {
	case "locations", "loc":
		locations, err := svc.GetLocations(ctx)
		if err != nil {
			return fmt.Errorf("get locations: %w", err)
		}
		printLocations(out, locations)

	case "stock", "s":
		productID, err := optionalInt(args, 1, "product-id")
		if err != nil {
			return err
		}
		result, err := svc.GetStockLevels(ctx, productID)
		if err != nil {
			return fmt.Errorf("get stock levels: %w", err)
		}
		printStockLevels(out, result.Levels)

	case "product", "p":
		productID, err := requiredInt(args, 1, "product-id")
		if err != nil {
			return err
		}
		stock, err := svc.GetProductStock(ctx, productID)
		if err != nil {
			return fmt.Errorf("get product stock: %w", err)
		}
		printProductStock(out, stock)

	case "fifo":
		productID, err := requiredInt(args, 1, "product-id")
		if err != nil {
			return err
		}
		if len(args) < 3 {
			return fmt.Errorf("%w: app fifo <product-id> <quantity>", ErrUsage)
		}
		qty, err := decimal.NewFromString(args[2])
		if err != nil {
			return fmt.Errorf("%w: quantity %q is not a number", ErrUsage, args[2])
		}
		plan, err := svc.PlanFIFO(ctx, productID, qty)
		if err != nil {
			return fmt.Errorf("plan fifo: %w", err)
		}
		printFIFOPlan(out, plan)

	case "ledger", "l":
		productID, err := optionalInt(args, 1, "product-id")
		if err != nil {
			return err
		}
		limit, err := optionalInt(args, 2, "limit")
		if err != nil {
			return err
		}
		if limit == 0 {
			limit = 50
		}
		result, err := svc.ListLedger(ctx, core.LedgerFilter{ProductID: productID, Limit: limit})
		if err != nil {
			return fmt.Errorf("list ledger: %w", err)
		}
		printLedger(out, result.Entries)

	case "po":
		id, err := requiredInt(args, 1, "id")
		if err != nil {
			return err
		}
		po, err := svc.GetPurchaseOrder(ctx, id)
		if err != nil {
			return fmt.Errorf("get purchase order: %w", err)
		}
		return encodeJSON(out, po)

	case "order", "o":
		id, err := requiredInt(args, 1, "id")
		if err != nil {
			return err
		}
		order, err := svc.GetOrder(ctx, id)
		if err != nil {
			return fmt.Errorf("get order: %w", err)
		}
		return encodeJSON(out, order)

	case "reconcile", "rec":
		report, err := svc.Reconcile(ctx)
		if err != nil {
			return fmt.Errorf("reconcile: %w", err)
		}
		printReconcile(out, report)

	case "rebuild":
		report, err := svc.RebuildProjections(ctx)
		if err != nil {
			return fmt.Errorf("rebuild projections: %w", err)
		}
		fmt.Fprintln(out, "Projections rebuilt from the ledger.")
		printReconcile(out, report)

	case "help", "h":
		fmt.Fprintln(out, usage)

	default:
		return fmt.Errorf("%w: unknown command %s\n%s", ErrUsage, args[0], usage)
	}
	return nil
}

func requiredInt(args []string, i int, name string) (int, error) {
	if len(args) <= i {
		return 0, fmt.Errorf("%w: app %s <%s>", ErrUsage, args[0], name)
	}
	n, err := strconv.Atoi(args[i])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", ErrUsage, name, args[i])
	}
	return n, nil
}

func optionalInt(args []string, i int, name string) (int, error) {
	if len(args) <= i {
		return 0, nil
	}
	return requiredInt(args, i, name)
}

func encodeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func rule(out io.Writer, ch string, width int) {
	fmt.Fprintln(out, strings.Repeat(ch, width))
}

func printLocations(out io.Writer, locations []core.StorageLocation) {
	fmt.Fprintln(out)
	rule(out, "=", 62)
	fmt.Fprintf(out, "  %-5s %-12s %-28s %s\n", "ID", "CODE", "NAME", "ACTIVE")
	rule(out, "-", 62)
	for _, l := range locations {
		active := "yes"
		if !l.IsActive {
			active = "no"
		}
		fmt.Fprintf(out, "  %-5d %-12s %-28s %s\n", l.ID, l.Code, l.Name, active)
	}
	rule(out, "=", 62)
}

func printStockLevels(out io.Writer, levels []core.StockLevel) {
	fmt.Fprintln(out)
	rule(out, "=", 72)
	if len(levels) == 0 {
		fmt.Fprintln(out, "  No stock on hand.")
		rule(out, "=", 72)
		return
	}
	fmt.Fprintf(out, "  %-14s %-12s %14s  %s\n", "PRODUCT", "LOCATION", "QUANTITY", "FIRST STOCKED")
	rule(out, "-", 72)
	for _, l := range levels {
		fmt.Fprintf(out, "  %-14s %-12s %14s  %s\n",
			l.ProductCode, l.LocationCode, l.Quantity.StringFixed(2), l.FirstStocked.Format("2006-01-02 15:04"))
	}
	rule(out, "=", 72)
}

func printProductStock(out io.Writer, s *core.ProductStock) {
	fmt.Fprintf(out, "\nPRODUCT:    %s (#%d)\n", s.ProductCode, s.ProductID)
	fmt.Fprintf(out, "ON HAND:    %s\n", s.OnHand.StringFixed(2))
	fmt.Fprintf(out, "ALLOCATED:  %s\n", s.Allocated.StringFixed(2))
	fmt.Fprintf(out, "ON ORDER:   %s\n", s.OnOrder.StringFixed(2))
	fmt.Fprintf(out, "AVAILABLE:  %s\n", s.Available.StringFixed(2))
	if s.BelowReorder {
		fmt.Fprintln(out, "WARNING: below reorder level.")
	}
	if len(s.Locations) > 0 {
		printStockLevels(out, s.Locations)
	}
}

func printFIFOPlan(out io.Writer, plan *core.FIFOPlan) {
	fmt.Fprintf(out, "\nFIFO plan for product #%d, %s requested\n", plan.ProductID, plan.Requested.String())
	for _, p := range plan.Picks {
		fmt.Fprintf(out, "  location %-5d %14s\n", p.LocationID, p.Quantity.StringFixed(4))
	}
	if plan.Shortfall.IsPositive() {
		fmt.Fprintf(out, "SHORTFALL: %s\n", plan.Shortfall.String())
	}
}

func printLedger(out io.Writer, entries []core.InventoryTransaction) {
	fmt.Fprintln(out)
	rule(out, "=", 90)
	fmt.Fprintf(out, "  %-7s %-16s %-8s %-9s %14s  %s\n", "ID", "WHEN", "PRODUCT", "KIND", "QUANTITY", "NOTE")
	rule(out, "-", 90)
	for _, e := range entries {
		fmt.Fprintf(out, "  %-7d %-16s %-8d %-9s %14s  %s\n",
			e.ID, e.CreatedAt.Format("2006-01-02 15:04"), e.ProductID, shortKind(e.Kind), e.Quantity.StringFixed(2), e.Note)
	}
	rule(out, "=", 90)
}

func shortKind(k core.TransactionKind) string {
	if len(k) > 9 {
		return string(k[:9])
	}
	return string(k)
}

func printReconcile(out io.Writer, r *core.ReconcileReport) {
	if r.Clean() {
		fmt.Fprintln(out, "Ledger and projections agree.")
		return
	}
	for _, p := range r.Products {
		fmt.Fprintf(out, "PRODUCT %s: on hand cached %s, ledger %s; on order cached %s, ledger %s; allocated cached %s, open %s\n",
			p.ProductCode, p.CachedOnHand, p.LedgerOnHand, p.CachedOnOrder, p.LedgerOnOrder, p.CachedAllocated, p.OpenAllocated)
	}
	for _, l := range r.Locations {
		fmt.Fprintf(out, "PRODUCT #%d AT LOCATION %d: balance %s, ledger %s\n", l.ProductID, l.LocationID, l.Materialized, l.Ledger)
	}
}
