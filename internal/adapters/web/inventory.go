package web

import (
	"net/http"
	"strings"

	"ricemill-inventory/internal/app"
	"ricemill-inventory/internal/core"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type adjustmentBody struct {
	ProductID  int             `json:"product_id" jsonschema:"minimum=1"`
	LocationID int             `json:"location_id" jsonschema:"minimum=1"`
	Type       string          `json:"type" jsonschema:"enum=ADD,enum=REMOVE,enum=SET"`
	Quantity   decimal.Decimal `json:"quantity"`
	Reason     string          `json:"reason" jsonschema:"minLength=1"`
}

type returnBody struct {
	ProductID  int             `json:"product_id" jsonschema:"minimum=1"`
	LocationID int             `json:"location_id" jsonschema:"minimum=1"`
	Direction  string          `json:"direction" jsonschema:"enum=IN,enum=OUT"`
	Quantity   decimal.Decimal `json:"quantity"`
	Note       string          `json:"note,omitempty"`
}

type moveBody struct {
	ProductID        int             `json:"product_id" jsonschema:"minimum=1"`
	SourceLocationID int             `json:"source_location_id" jsonschema:"minimum=1"`
	TargetLocationID int             `json:"target_location_id" jsonschema:"minimum=1"`
	Quantity         decimal.Decimal `json:"quantity"`
}

// apiListLocations handles GET /api/locations.
func (h *Handler) apiListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.svc.GetLocations(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if locations == nil {
		locations = []core.StorageLocation{}
	}
	writeJSON(w, map[string]any{"locations": locations})
}

// apiStockLevels handles GET /api/inventory/stock?product_id=.
func (h *Handler) apiStockLevels(w http.ResponseWriter, r *http.Request) {
	productID, err := queryInt(r, "product_id")
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	result, err := h.svc.GetStockLevels(r.Context(), productID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiProductStock handles GET /api/products/{id}/stock.
func (h *Handler) apiProductStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	stock, err := h.svc.GetProductStock(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, stock)
}

// apiPlanFIFO handles GET /api/products/{id}/fifo?quantity=.
func (h *Handler) apiPlanFIFO(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	qty, err := decimal.NewFromString(r.URL.Query().Get("quantity"))
	if err != nil {
		writeError(w, r, "quantity must be a decimal number", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	plan, err := h.svc.PlanFIFO(r.Context(), id, qty)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, plan)
}

// apiAdjustInventory handles POST /api/inventory/adjustments.
func (h *Handler) apiAdjustInventory(w http.ResponseWriter, r *http.Request) {
	var body adjustmentBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.ProductID <= 0 || body.LocationID <= 0 {
		writeError(w, r, "product_id and location_id are required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.svc.AdjustInventory(r.Context(), app.AdjustInventoryRequest{
		ProductID:  body.ProductID,
		LocationID: body.LocationID,
		Type:       body.Type,
		Quantity:   body.Quantity,
		Reason:     body.Reason,
		CreatedBy:  actor(r),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Entry == nil {
		status = http.StatusOK
	}
	writeJSONStatus(w, status, result)
}

// apiRecordReturn handles POST /api/inventory/returns.
func (h *Handler) apiRecordReturn(w http.ResponseWriter, r *http.Request) {
	var body returnBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.ProductID <= 0 || body.LocationID <= 0 {
		writeError(w, r, "product_id and location_id are required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	entry, err := h.svc.RecordReturn(r.Context(), app.RecordReturnRequest{
		ProductID:  body.ProductID,
		LocationID: body.LocationID,
		Direction:  body.Direction,
		Quantity:   body.Quantity,
		Note:       strings.TrimSpace(body.Note),
		CreatedBy:  actor(r),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, entry)
}

// apiMoveStock handles POST /api/inventory/moves.
func (h *Handler) apiMoveStock(w http.ResponseWriter, r *http.Request) {
	var body moveBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.ProductID <= 0 || body.SourceLocationID <= 0 || body.TargetLocationID <= 0 {
		writeError(w, r, "product_id, source_location_id and target_location_id are required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.svc.MoveStock(r.Context(), app.MoveStockRequest{
		ProductID:        body.ProductID,
		SourceLocationID: body.SourceLocationID,
		TargetLocationID: body.TargetLocationID,
		Quantity:         body.Quantity,
		CreatedBy:        actor(r),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result)
}

// apiListLedger handles GET /api/ledger.
func (h *Handler) apiListLedger(w http.ResponseWriter, r *http.Request) {
	var filter core.LedgerFilter
	for name, dst := range map[string]*int{
		"product_id":        &filter.ProductID,
		"location_id":       &filter.LocationID,
		"order_id":          &filter.OrderID,
		"purchase_order_id": &filter.PurchaseOrderID,
		"limit":             &filter.Limit,
	} {
		n, err := queryInt(r, name)
		if err != nil {
			writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		*dst = n
	}
	if kind := r.URL.Query().Get("kind"); kind != "" {
		filter.Kind = core.TransactionKind(strings.ToUpper(kind))
		if !filter.Kind.Valid() {
			writeError(w, r, "unknown transaction kind "+kind, core.ErrorCode(core.ErrInvalidTransactionKind), http.StatusBadRequest)
			return
		}
	}

	result, err := h.svc.ListLedger(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiReconcile handles GET /api/ledger/reconcile.
func (h *Handler) apiReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Reconcile(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, report)
}

// apiRebuildProjections handles POST /api/ledger/rebuild.
func (h *Handler) apiRebuildProjections(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.RebuildProjections(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.log.Info("projections rebuilt", zap.String("actor", actor(r)), zap.Bool("clean", report.Clean()))
	writeJSON(w, report)
}
