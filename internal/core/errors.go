package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound                   = errors.New("not found")
	ErrInvalidQuantity            = errors.New("invalid quantity")
	ErrInvalidTransactionKind     = errors.New("invalid transaction kind")
	ErrLocationInactiveOrMissing  = errors.New("storage location inactive or missing")
	ErrOverReceipt                = errors.New("received quantity exceeds outstanding purchase order quantity")
	ErrPurchaseOrderNotOpen       = errors.New("purchase order is not open for receiving")
	ErrInvalidStatusTransition    = errors.New("invalid status transition")
	ErrInsufficientStock          = errors.New("insufficient stock")
	ErrInsufficientBackorderStock = errors.New("insufficient stock to ship backorder")
	ErrOverAllocation             = errors.New("allocation exceeds unassigned pending quantity")
	ErrNegativeResultNotAllowed   = errors.New("adjustment would make stock negative")
	ErrInvalidAdjustmentType      = errors.New("invalid adjustment type")
	ErrReasonRequired             = errors.New("adjustment reason is required")
	ErrDeliveryNotReady           = errors.New("delivery has not been delivered yet")
	ErrAlreadyFulfilled           = errors.New("delivery already fulfilled")
	ErrNothingToBackorder         = errors.New("order has no unassigned pending quantity")
	ErrInvalidShipmentStatus      = errors.New("invalid shipment status")
)

// ShortfallError reports which stock check failed and by how much. Err is
// ErrInsufficientStock or ErrInsufficientBackorderStock. Quantities are in
// inventory units.
type ShortfallError struct {
	Err         error
	ProductID   int
	ProductCode string
	LocationID  int
	Category    string
	Needed      decimal.Decimal
	Available   decimal.Decimal
}

func (e *ShortfallError) Error() string {
	switch {
	case e.Category != "":
		return fmt.Sprintf("%v: category %s: needed %s, available %s", e.Err, e.Category, e.Needed, e.Available)
	case e.LocationID != 0:
		return fmt.Sprintf("%v: product %s at location %d: needed %s, available %s",
			e.Err, e.productLabel(), e.LocationID, e.Needed, e.Available)
	default:
		return fmt.Sprintf("%v: product %s: needed %s, available %s", e.Err, e.productLabel(), e.Needed, e.Available)
	}
}

func (e *ShortfallError) Unwrap() error { return e.Err }

// Shortfall is the missing quantity.
func (e *ShortfallError) Shortfall() decimal.Decimal { return e.Needed.Sub(e.Available) }

func (e *ShortfallError) productLabel() string {
	if e.ProductCode != "" {
		return e.ProductCode
	}
	return fmt.Sprintf("#%d", e.ProductID)
}

// ErrorCode maps an error to the machine-readable code used by the API and metrics.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return "OK"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidQuantity):
		return "INVALID_QUANTITY"
	case errors.Is(err, ErrInvalidTransactionKind):
		return "INVALID_TRANSACTION_KIND"
	case errors.Is(err, ErrLocationInactiveOrMissing):
		return "LOCATION_INACTIVE_OR_MISSING"
	case errors.Is(err, ErrOverReceipt):
		return "OVER_RECEIPT"
	case errors.Is(err, ErrPurchaseOrderNotOpen):
		return "PURCHASE_ORDER_NOT_OPEN"
	case errors.Is(err, ErrInvalidStatusTransition):
		return "INVALID_STATUS_TRANSITION"
	case errors.Is(err, ErrInsufficientBackorderStock):
		return "INSUFFICIENT_BACKORDER_STOCK"
	case errors.Is(err, ErrInsufficientStock):
		return "INSUFFICIENT_STOCK"
	case errors.Is(err, ErrOverAllocation):
		return "OVER_ALLOCATION"
	case errors.Is(err, ErrNegativeResultNotAllowed):
		return "NEGATIVE_RESULT_NOT_ALLOWED"
	case errors.Is(err, ErrInvalidAdjustmentType):
		return "INVALID_ADJUSTMENT_TYPE"
	case errors.Is(err, ErrReasonRequired):
		return "REASON_REQUIRED"
	case errors.Is(err, ErrDeliveryNotReady):
		return "DELIVERY_NOT_READY"
	case errors.Is(err, ErrAlreadyFulfilled):
		return "ALREADY_FULFILLED"
	case errors.Is(err, ErrNothingToBackorder):
		return "NOTHING_TO_BACKORDER"
	case errors.Is(err, ErrInvalidShipmentStatus):
		return "INVALID_SHIPMENT_STATUS"
	default:
		return "INTERNAL_ERROR"
	}
}
