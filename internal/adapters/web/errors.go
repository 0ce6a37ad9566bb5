package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"ricemill-inventory/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a core error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidQuantity),
		errors.Is(err, core.ErrInvalidTransactionKind),
		errors.Is(err, core.ErrInvalidAdjustmentType),
		errors.Is(err, core.ErrReasonRequired),
		errors.Is(err, core.ErrInvalidShipmentStatus):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrLocationInactiveOrMissing),
		errors.Is(err, core.ErrOverReceipt),
		errors.Is(err, core.ErrOverAllocation),
		errors.Is(err, core.ErrNegativeResultNotAllowed),
		errors.Is(err, core.ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrPurchaseOrderNotOpen),
		errors.Is(err, core.ErrInvalidStatusTransition),
		errors.Is(err, core.ErrInsufficientBackorderStock),
		errors.Is(err, core.ErrDeliveryNotReady),
		errors.Is(err, core.ErrAlreadyFulfilled),
		errors.Is(err, core.ErrNothingToBackorder):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err from the application service. Internal errors
// are logged and not echoed to the client.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", requestFields(r, err)...)
		writeError(w, r, "internal server error", "INTERNAL_ERROR", status)
		return
	}
	writeError(w, r, err.Error(), core.ErrorCode(err), status)
}
