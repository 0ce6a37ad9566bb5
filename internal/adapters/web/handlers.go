package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"ricemill-inventory/internal/app"
	"ricemill-inventory/internal/config"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc       app.ApplicationService
	router    chi.Router
	jwtSecret string
	log       *zap.Logger
}

// NewHandler creates and wires the chi router with all routes.
// metricsHandler may be nil, in which case /metrics is not mounted.
func NewHandler(svc app.ApplicationService, cfg config.ServerConfig, jwtSecret string, metricsHandler http.Handler, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	h := &Handler{
		svc:       svc,
		jwtSecret: jwtSecret,
		log:       log,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	r.Use(CORS(cfg.AllowedOrigins))

	// ── Operational (public) ──────────────────────────────────────────────────
	r.Get("/api/health", h.health)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}
	r.Get("/api/schemas", h.listSchemas)
	r.Get("/api/schemas/{name}", h.getSchema)

	// ── Reads (public) ────────────────────────────────────────────────────────
	r.Get("/api/locations", h.apiListLocations)
	r.Get("/api/inventory/stock", h.apiStockLevels)
	r.Get("/api/products/{id}/stock", h.apiProductStock)
	r.Get("/api/products/{id}/fifo", h.apiPlanFIFO)
	r.Get("/api/purchase-orders/{id}", h.apiGetPurchaseOrder)
	r.Get("/api/orders/{id}", h.apiGetOrder)
	r.Get("/api/ledger", h.apiListLedger)
	r.Get("/api/ledger/reconcile", h.apiReconcile)

	// ── Protected API routes (return 401 JSON if unauthenticated) ────────────
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Use(RequestBodyLimit(maxBody))

		r.Get("/api/auth/me", h.me)

		// Purchasing
		r.Post("/api/purchase-orders", h.apiCreatePurchaseOrder)
		r.Post("/api/purchase-orders/{id}/place", h.apiPlacePurchaseOrder)
		r.Post("/api/purchase-orders/{id}/receive", h.apiReceiveShipment)

		// Inventory
		r.Post("/api/inventory/adjustments", h.apiAdjustInventory)
		r.Post("/api/inventory/returns", h.apiRecordReturn)
		r.Post("/api/inventory/moves", h.apiMoveStock)
		r.Post("/api/ledger/rebuild", h.apiRebuildProjections)

		// Orders and deliveries
		r.Post("/api/orders", h.apiPlaceOrder)
		r.Post("/api/orders/{id}/allocate", h.apiAllocateOrder)
		r.Post("/api/orders/{id}/backorders", h.apiCreateBackorder)
		r.Post("/api/deliveries/{id}/shipment-status", h.apiAdvanceShipmentStatus)
		r.Post("/api/deliveries/{id}/fulfill", h.apiFulfillDelivery)
	})

	h.router = r
	return r
}

// health reports whether the database answers.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}
	if err := h.svc.Ping(r.Context()); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		writeJSONStatus(w, http.StatusServiceUnavailable, response{Status: "degraded", Database: "unreachable"})
		return
	}
	writeJSON(w, response{Status: "ok", Database: "ok"})
}

// pathID parses the {id} URL parameter. Writes a 400 and returns false when
// it is not a positive integer.
func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, r, "invalid id", "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// queryInt parses an optional integer query parameter. Missing means 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
