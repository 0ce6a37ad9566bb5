package web

import (
	"net/http"

	"ricemill-inventory/internal/app"
	"ricemill-inventory/internal/core"

	"github.com/shopspring/decimal"
)

// createPurchaseOrderBody is the JSON body for POST /api/purchase-orders.
// Quantities are in inventory units.
type createPurchaseOrderBody struct {
	SupplierID int    `json:"supplier_id" jsonschema:"minimum=1"`
	Note       string `json:"note,omitempty"`
	Lines      []struct {
		ProductID int             `json:"product_id" jsonschema:"minimum=1"`
		Quantity  decimal.Decimal `json:"quantity"`
		UnitPrice decimal.Decimal `json:"unit_price"`
	} `json:"lines" jsonschema:"minItems=1"`
}

// receiveShipmentBody is the JSON body for POST /api/purchase-orders/{id}/receive.
type receiveShipmentBody struct {
	Lines []core.ReceiptLine `json:"lines" jsonschema:"minItems=1"`
}

// apiCreatePurchaseOrder handles POST /api/purchase-orders.
func (h *Handler) apiCreatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var body createPurchaseOrderBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.SupplierID <= 0 {
		writeError(w, r, "supplier_id is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if len(body.Lines) == 0 {
		writeError(w, r, "at least one line is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	req := app.CreatePurchaseOrderRequest{SupplierID: body.SupplierID, Note: body.Note}
	for _, l := range body.Lines {
		req.Lines = append(req.Lines, app.POLineInput{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}

	po, err := h.svc.CreatePurchaseOrder(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, po)
}

// apiGetPurchaseOrder handles GET /api/purchase-orders/{id}.
func (h *Handler) apiGetPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	po, err := h.svc.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, po)
}

// apiPlacePurchaseOrder handles POST /api/purchase-orders/{id}/place.
func (h *Handler) apiPlacePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	po, err := h.svc.PlacePurchaseOrder(r.Context(), id, actor(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, po)
}

// apiReceiveShipment handles POST /api/purchase-orders/{id}/receive.
func (h *Handler) apiReceiveShipment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body receiveShipmentBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if len(body.Lines) == 0 {
		writeError(w, r, "at least one line is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.svc.ReceiveShipment(r.Context(), app.ReceiveShipmentRequest{
		PurchaseOrderID: id,
		Lines:           body.Lines,
		CreatedBy:       actor(r),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}
