package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"ricemill-inventory/internal/app"
	"ricemill-inventory/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	app.ApplicationService

	stockProduct int
	ledgerFilter core.LedgerFilter
	report       *core.ReconcileReport
}

func (f *fakeService) GetStockLevels(ctx context.Context, productID int) (*app.StockResult, error) {
	f.stockProduct = productID
	return &app.StockResult{ProductID: productID, Levels: []core.StockLevel{{
		ProductCode:  "RICE-DINORADO",
		LocationCode: "WH-A",
		Quantity:     decimal.NewFromInt(1500),
		FirstStocked: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}}}, nil
}

func (f *fakeService) PlanFIFO(ctx context.Context, productID int, qty decimal.Decimal) (*core.FIFOPlan, error) {
	return &core.FIFOPlan{
		ProductID: productID,
		Requested: qty,
		Picks:     []core.FIFOPick{{LocationID: 2, Quantity: decimal.NewFromInt(100)}},
		Shortfall: qty.Sub(decimal.NewFromInt(100)),
	}, nil
}

func (f *fakeService) ListLedger(ctx context.Context, filter core.LedgerFilter) (*app.LedgerResult, error) {
	f.ledgerFilter = filter
	return &app.LedgerResult{}, nil
}

func (f *fakeService) Reconcile(ctx context.Context) (*core.ReconcileReport, error) {
	return f.report, nil
}

func (f *fakeService) GetOrder(ctx context.Context, id int) (*core.Order, error) {
	return nil, core.ErrNotFound
}

func TestRunStock(t *testing.T) {
	svc := &fakeService{}
	var out bytes.Buffer

	require.NoError(t, Run(context.Background(), svc, []string{"stock", "1"}, &out))
	assert.Equal(t, 1, svc.stockProduct)
	assert.Contains(t, out.String(), "RICE-DINORADO")
	assert.Contains(t, out.String(), "1500.00")
}

func TestRunFIFOShowsShortfall(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), &fakeService{}, []string{"fifo", "1", "250"}, &out))
	assert.Contains(t, out.String(), "SHORTFALL: 150")
}

func TestRunLedgerDefaultsLimit(t *testing.T) {
	svc := &fakeService{}
	require.NoError(t, Run(context.Background(), svc, []string{"ledger"}, &bytes.Buffer{}))
	assert.Equal(t, 50, svc.ledgerFilter.Limit)
	assert.Zero(t, svc.ledgerFilter.ProductID)
}

func TestRunReconcile(t *testing.T) {
	svc := &fakeService{report: &core.ReconcileReport{}}
	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), svc, []string{"reconcile"}, &out))
	assert.Contains(t, out.String(), "agree")

	svc.report = &core.ReconcileReport{Locations: []core.LocationDrift{{
		ProductID: 1, LocationID: 2, Materialized: decimal.NewFromInt(10), Ledger: decimal.NewFromInt(8),
	}}}
	out.Reset()
	require.NoError(t, Run(context.Background(), svc, []string{"reconcile"}, &out))
	assert.Contains(t, out.String(), "PRODUCT #1 AT LOCATION 2: balance 10, ledger 8")
}

func TestRunErrors(t *testing.T) {
	ctx := context.Background()
	svc := &fakeService{}

	for _, args := range [][]string{nil, {"bogus"}, {"product"}, {"product", "x"}, {"fifo", "1"}, {"fifo", "1", "lots"}} {
		err := Run(ctx, svc, args, &bytes.Buffer{})
		assert.ErrorIs(t, err, ErrUsage, "%v", args)
	}

	err := Run(ctx, svc, []string{"order", "9"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, core.ErrNotFound)
}
