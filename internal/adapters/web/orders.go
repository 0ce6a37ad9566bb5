package web

import (
	"net/http"
	"strings"

	"ricemill-inventory/internal/app"
	"ricemill-inventory/internal/core"

	"github.com/shopspring/decimal"
)

// placeOrderBody is the JSON body for POST /api/orders. Quantities are in
// order units (sacks for milled rice, kilograms otherwise).
type placeOrderBody struct {
	CustomerName  string          `json:"customer_name" jsonschema:"minLength=1"`
	CustomerEmail string          `json:"customer_email,omitempty"`
	Total         decimal.Decimal `json:"total"`
	Lines         []struct {
		ProductID int             `json:"product_id" jsonschema:"minimum=1"`
		Quantity  decimal.Decimal `json:"quantity"`
	} `json:"lines" jsonschema:"minItems=1"`
}

type allocateOrderBody struct {
	Lines []core.AllocationLine `json:"lines" jsonschema:"minItems=1"`
}

type shipmentStatusBody struct {
	Status string `json:"status" jsonschema:"enum=Processing Order,enum=In Transit,enum=Delivered"`
}

// apiPlaceOrder handles POST /api/orders.
func (h *Handler) apiPlaceOrder(w http.ResponseWriter, r *http.Request) {
	var body placeOrderBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.CustomerName) == "" {
		writeError(w, r, "customer_name is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if len(body.Lines) == 0 {
		writeError(w, r, "at least one line is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	req := app.PlaceOrderRequest{
		CustomerName:  strings.TrimSpace(body.CustomerName),
		CustomerEmail: strings.TrimSpace(body.CustomerEmail),
		Total:         body.Total,
	}
	for _, l := range body.Lines {
		req.Lines = append(req.Lines, app.OrderLineInput{ProductID: l.ProductID, Quantity: l.Quantity})
	}

	order, err := h.svc.PlaceOrder(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, order)
}

// apiGetOrder handles GET /api/orders/{id}.
func (h *Handler) apiGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	order, err := h.svc.GetOrder(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, order)
}

// apiAllocateOrder handles POST /api/orders/{id}/allocate.
func (h *Handler) apiAllocateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body allocateOrderBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if len(body.Lines) == 0 {
		writeError(w, r, "at least one line is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.svc.AllocateOrder(r.Context(), app.AllocateOrderRequest{
		OrderID:   id,
		Lines:     body.Lines,
		CreatedBy: actor(r),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiCreateBackorder handles POST /api/orders/{id}/backorders.
func (h *Handler) apiCreateBackorder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	delivery, err := h.svc.CreateBackorderDelivery(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, delivery)
}

// apiAdvanceShipmentStatus handles POST /api/deliveries/{id}/shipment-status.
// A backorder held back for lack of stock answers 409 with accepted=false.
func (h *Handler) apiAdvanceShipmentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body shipmentStatusBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Status) == "" {
		writeError(w, r, "status is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.svc.AdvanceDeliveryShipmentStatus(r.Context(), id, strings.TrimSpace(body.Status))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if !result.Accepted {
		writeJSONStatus(w, http.StatusConflict, result)
		return
	}
	writeJSON(w, result)
}

// apiFulfillDelivery handles POST /api/deliveries/{id}/fulfill.
func (h *Handler) apiFulfillDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.FulfillDelivery(r.Context(), id, actor(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}
