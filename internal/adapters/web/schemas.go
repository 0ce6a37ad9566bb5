package web

import (
	"encoding/json"
	"net/http"
	"reflect"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/invopop/jsonschema"
	"github.com/shopspring/decimal"
)

var decimalType = reflect.TypeOf(decimal.Decimal{})

// requestBodies are the request bodies published under /api/schemas/{name}.
var requestBodies = map[string]any{
	"create_purchase_order": createPurchaseOrderBody{},
	"receive_shipment":      receiveShipmentBody{},
	"adjustment":            adjustmentBody{},
	"return":                returnBody{},
	"move":                  moveBody{},
	"place_order":           placeOrderBody{},
	"allocate_order":        allocateOrderBody{},
	"shipment_status":       shipmentStatusBody{},
}

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
)

// generateSchema reflects v into an inline JSON schema. Decimals travel as
// strings so no precision is lost on the wire.
func generateSchema(v any) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == decimalType {
				return &jsonschema.Schema{Type: "string", Pattern: `^-?[0-9]+(\.[0-9]+)?$`}
			}
			return nil
		},
	}
	return reflector.Reflect(v)
}

func loadSchemas() map[string]*jsonschema.Schema {
	schemasOnce.Do(func() {
		schemas = make(map[string]*jsonschema.Schema, len(requestBodies))
		for name, body := range requestBodies {
			schemas[name] = generateSchema(body)
		}
	})
	return schemas
}

// listSchemas handles GET /api/schemas.
func (h *Handler) listSchemas(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(requestBodies))
	for name := range loadSchemas() {
		names = append(names, name)
	}
	sort.Strings(names)
	writeJSON(w, map[string]any{"schemas": names})
}

// getSchema handles GET /api/schemas/{name}.
func (h *Handler) getSchema(w http.ResponseWriter, r *http.Request) {
	s, ok := loadSchemas()[chi.URLParam(r, "name")]
	if !ok {
		writeError(w, r, "unknown schema", "NOT_FOUND", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(s)
}
