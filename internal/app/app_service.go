package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"ricemill-inventory/internal/cache"
	"ricemill-inventory/internal/core"
	"ricemill-inventory/internal/events"
	"ricemill-inventory/internal/metrics"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Deps are the optional collaborators of the application service. Any of them
// may be nil.
type Deps struct {
	Cache     *cache.StockCache
	Publisher *events.Publisher
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

type appService struct {
	pool        *pgxpool.Pool
	ledger      *core.LedgerStore
	inventory   core.InventoryService
	purchasing  core.PurchaseOrderService
	orders      core.OrderService
	deliveries  core.DeliveryService
	adjustments core.AdjustmentService
	cache       *cache.StockCache
	metrics     *metrics.Metrics
	log         *zap.Logger
}

// NewAppService wires the core services over pool and returns an
// ApplicationService. Committed stock changes fan out to the cache, the event
// publisher and the metrics, in that order.
func NewAppService(pool *pgxpool.Pool, maxTxRetries int, deps Deps) ApplicationService {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	store := core.NewStore(pool, maxTxRetries)
	ledger := core.NewLedgerStore(pool)
	observers := core.Observers{deps.Cache, deps.Publisher, deps.Metrics}

	return &appService{
		pool:        pool,
		ledger:      ledger,
		inventory:   core.NewInventoryService(store, ledger, observers),
		purchasing:  core.NewPurchaseOrderService(store, ledger, observers),
		orders:      core.NewOrderService(store, ledger, observers),
		deliveries:  core.NewDeliveryService(store, ledger, observers),
		adjustments: core.NewAdjustmentService(store, ledger, observers),
		cache:       deps.Cache,
		metrics:     deps.Metrics,
		log:         log,
	}
}

// observe records metrics and logs the outcome of one operation. Domain
// rejections log at info; anything unclassified is an error.
func (s *appService) observe(op string, start time.Time, errp *error, fields ...zap.Field) {
	err := *errp
	s.metrics.Observe(op, start, err)

	fields = append(fields, zap.String("operation", op), zap.Duration("elapsed", time.Since(start)))
	if err == nil {
		s.log.Debug("inventory operation done", fields...)
		return
	}
	code := core.ErrorCode(err)
	fields = append(fields, zap.String("code", code), zap.Error(err))
	if code == "INTERNAL_ERROR" {
		s.log.Error("inventory operation failed", fields...)
		return
	}
	s.log.Info("inventory operation rejected", fields...)
}

func (s *appService) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ── Purchasing ────────────────────────────────────────────────────────────────

func (s *appService) CreatePurchaseOrder(ctx context.Context, req CreatePurchaseOrderRequest) (po *core.PurchaseOrder, err error) {
	defer s.observe("create_purchase_order", time.Now(), &err, zap.Int("supplier_id", req.SupplierID))

	items := make([]core.CreatePurchaseOrderItem, len(req.Lines))
	for i, l := range req.Lines {
		items[i] = core.CreatePurchaseOrderItem{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	return s.purchasing.CreatePurchaseOrder(ctx, core.CreatePurchaseOrderInput{
		SupplierID: req.SupplierID,
		Note:       req.Note,
		Items:      items,
	})
}

func (s *appService) GetPurchaseOrder(ctx context.Context, id int) (*core.PurchaseOrder, error) {
	return s.purchasing.GetPurchaseOrder(ctx, id)
}

func (s *appService) PlacePurchaseOrder(ctx context.Context, id int, createdBy string) (po *core.PurchaseOrder, err error) {
	defer s.observe("place_purchase_order", time.Now(), &err, zap.Int("purchase_order_id", id))
	return s.purchasing.PlacePurchaseOrder(ctx, id, createdBy)
}

func (s *appService) ReceiveShipment(ctx context.Context, req ReceiveShipmentRequest) (res *core.ReceiptResult, err error) {
	defer s.observe("receive_shipment", time.Now(), &err,
		zap.Int("purchase_order_id", req.PurchaseOrderID), zap.Int("lines", len(req.Lines)))
	return s.purchasing.Receive(ctx, req.PurchaseOrderID, req.Lines, req.CreatedBy)
}

// ── Inventory ─────────────────────────────────────────────────────────────────

func (s *appService) GetLocations(ctx context.Context) ([]core.StorageLocation, error) {
	return s.inventory.GetLocations(ctx)
}

func (s *appService) GetStockLevels(ctx context.Context, productID int) (*StockResult, error) {
	if levels, ok := s.cache.GetStockLevels(ctx, productID); ok {
		return &StockResult{ProductID: productID, Levels: levels}, nil
	}
	levels, err := s.inventory.GetStockLevels(ctx, productID)
	if err != nil {
		return nil, err
	}
	s.cache.SetStockLevels(ctx, productID, levels)
	return &StockResult{ProductID: productID, Levels: levels}, nil
}

func (s *appService) GetProductStock(ctx context.Context, productID int) (*core.ProductStock, error) {
	if ps, ok := s.cache.GetProductStock(ctx, productID); ok {
		return ps, nil
	}
	ps, err := s.inventory.GetProductStock(ctx, productID)
	if err != nil {
		return nil, err
	}
	s.cache.SetProductStock(ctx, ps)
	return ps, nil
}

func (s *appService) PlanFIFO(ctx context.Context, productID int, quantity decimal.Decimal) (*core.FIFOPlan, error) {
	return s.inventory.PlanFIFO(ctx, productID, quantity)
}

func (s *appService) AdjustInventory(ctx context.Context, req AdjustInventoryRequest) (res *core.AdjustmentResult, err error) {
	defer s.observe("adjust_inventory", time.Now(), &err,
		zap.Int("product_id", req.ProductID), zap.Int("location_id", req.LocationID))
	return s.adjustments.Adjust(ctx, core.AdjustmentInput{
		ProductID:  req.ProductID,
		LocationID: req.LocationID,
		Type:       core.AdjustmentType(strings.ToUpper(strings.TrimSpace(req.Type))),
		Quantity:   req.Quantity,
		Reason:     req.Reason,
		CreatedBy:  req.CreatedBy,
	})
}

func (s *appService) RecordReturn(ctx context.Context, req RecordReturnRequest) (e *core.InventoryTransaction, err error) {
	defer s.observe("record_return", time.Now(), &err,
		zap.Int("product_id", req.ProductID), zap.Int("location_id", req.LocationID))
	return s.adjustments.RecordReturn(ctx, core.ReturnInput{
		ProductID:  req.ProductID,
		LocationID: req.LocationID,
		Direction:  core.ReturnDirection(strings.ToUpper(strings.TrimSpace(req.Direction))),
		Quantity:   req.Quantity,
		Note:       req.Note,
		CreatedBy:  req.CreatedBy,
	})
}

func (s *appService) MoveStock(ctx context.Context, req MoveStockRequest) (res *core.MoveResult, err error) {
	defer s.observe("move_stock", time.Now(), &err, zap.Int("product_id", req.ProductID))
	return s.inventory.MoveStock(ctx, core.MoveInput{
		ProductID:        req.ProductID,
		SourceLocationID: req.SourceLocationID,
		TargetLocationID: req.TargetLocationID,
		Quantity:         req.Quantity,
		CreatedBy:        req.CreatedBy,
	})
}

// ── Ledger ────────────────────────────────────────────────────────────────────

func (s *appService) ListLedger(ctx context.Context, filter core.LedgerFilter) (*LedgerResult, error) {
	entries, err := s.ledger.ListEntries(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &LedgerResult{Entries: entries, Count: len(entries)}, nil
}

func (s *appService) Reconcile(ctx context.Context) (report *core.ReconcileReport, err error) {
	defer s.observe("reconcile", time.Now(), &err)
	report, err = s.inventory.Reconcile(ctx)
	if err == nil && !report.Clean() {
		s.log.Warn("ledger and projections drifted",
			zap.Int("products", len(report.Products)), zap.Int("locations", len(report.Locations)))
	}
	return report, err
}

func (s *appService) RebuildProjections(ctx context.Context) (report *core.ReconcileReport, err error) {
	defer s.observe("rebuild_projections", time.Now(), &err)
	report, err = s.inventory.RebuildProjections(ctx)
	if err != nil {
		return nil, err
	}
	if ferr := s.cache.Flush(ctx); ferr != nil {
		s.log.Warn("stock cache flush after rebuild failed", zap.Error(ferr))
	}
	return report, nil
}

// ── Orders and deliveries ─────────────────────────────────────────────────────

func (s *appService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (o *core.Order, err error) {
	defer s.observe("place_order", time.Now(), &err)

	items := make([]core.PlaceOrderItem, len(req.Lines))
	for i, l := range req.Lines {
		items[i] = core.PlaceOrderItem{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return s.orders.PlaceOrder(ctx, core.PlaceOrderInput{
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		Total:         req.Total,
		Items:         items,
	})
}

func (s *appService) GetOrder(ctx context.Context, id int) (*core.Order, error) {
	return s.orders.GetOrder(ctx, id)
}

func (s *appService) AllocateOrder(ctx context.Context, req AllocateOrderRequest) (res *core.AllocationResult, err error) {
	defer s.observe("allocate_order", time.Now(), &err, zap.Int("order_id", req.OrderID))
	return s.orders.AllocateOrder(ctx, req.OrderID, req.Lines, req.CreatedBy)
}

func (s *appService) CreateBackorderDelivery(ctx context.Context, orderID int) (d *core.Delivery, err error) {
	defer s.observe("create_backorder_delivery", time.Now(), &err, zap.Int("order_id", orderID))
	return s.deliveries.CreateBackorderDelivery(ctx, orderID)
}

func (s *appService) AdvanceDeliveryShipmentStatus(ctx context.Context, deliveryID int, status string) (*ShipmentStatusResult, error) {
	start := time.Now()
	update, err := s.deliveries.AdvanceShipmentStatus(ctx, deliveryID, status)
	s.observe("advance_shipment_status", start, &err,
		zap.Int("delivery_id", deliveryID), zap.String("shipment_status", status))

	if errors.Is(err, core.ErrInsufficientBackorderStock) {
		return &ShipmentStatusResult{Accepted: false, Reason: err.Error()}, nil
	}
	if err != nil {
		return nil, err
	}
	return &ShipmentStatusResult{Accepted: true, Update: update}, nil
}

func (s *appService) FulfillDelivery(ctx context.Context, deliveryID int, fulfilledBy string) (res *core.FulfillmentResult, err error) {
	defer s.observe("fulfill_delivery", time.Now(), &err, zap.Int("delivery_id", deliveryID))
	return s.deliveries.FulfillDelivery(ctx, deliveryID, fulfilledBy)
}
