package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// AdjustmentService applies manual stock corrections and returns. Each call
// writes one ledger entry, the location balance and the product on-hand figure
// in a single transaction.
type AdjustmentService interface {
	Adjust(ctx context.Context, in AdjustmentInput) (*AdjustmentResult, error)
	RecordReturn(ctx context.Context, in ReturnInput) (*InventoryTransaction, error)
}

type adjustmentService struct {
	store    *Store
	ledger   *LedgerStore
	observer StockObserver
}

func NewAdjustmentService(store *Store, ledger *LedgerStore, observer StockObserver) AdjustmentService {
	return &adjustmentService{store: store, ledger: ledger, observer: observer}
}

func validateAdjustment(in AdjustmentInput) error {
	if err := checkScale(in.Quantity); err != nil {
		return err
	}
	switch in.Type {
	case AdjustAdd, AdjustRemove:
		if !in.Quantity.IsPositive() {
			return fmt.Errorf("%s quantity must be positive: %w", in.Type, ErrInvalidQuantity)
		}
	case AdjustSet:
		if in.Quantity.IsNegative() {
			return fmt.Errorf("SET quantity must not be negative: %w", ErrInvalidQuantity)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAdjustmentType, in.Type)
	}
	if strings.TrimSpace(in.Reason) == "" {
		return ErrReasonRequired
	}
	return nil
}

// Adjust sets a location balance by ADD, REMOVE or SET. The ledger records the
// signed difference; a SET to the current quantity writes nothing.
func (s *adjustmentService) Adjust(ctx context.Context, in AdjustmentInput) (*AdjustmentResult, error) {
	if err := validateAdjustment(in); err != nil {
		return nil, err
	}

	var result *AdjustmentResult
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := loadProductsTx(ctx, tx, []int{in.ProductID}); err != nil {
			return err
		}
		if err := checkLocationsTx(ctx, tx, []int{in.LocationID}); err != nil {
			return err
		}

		key := itemKey{ProductID: in.ProductID, LocationID: in.LocationID}
		items, err := lockInventoryItemsTx(ctx, tx, []itemKey{key}, false)
		if err != nil {
			return err
		}
		current := items[key].Quantity

		newQty, delta, err := ComputeAdjustment(in.Type, current, in.Quantity)
		if err != nil {
			return err
		}
		result = &AdjustmentResult{
			ProductID:        in.ProductID,
			LocationID:       in.LocationID,
			PreviousQuantity: current,
			NewQuantity:      newQty,
		}
		if delta.IsZero() {
			return nil
		}

		if !items[key].Exists {
			// Only ADD and SET reach here, so the row is about to hold stock.
			if items, err = lockInventoryItemsTx(ctx, tx, []itemKey{key}, true); err != nil {
				return err
			}
		}
		items[key].set(newQty)
		if err := items.saveTx(ctx, tx); err != nil {
			return err
		}

		entry, err := s.ledger.AppendTx(ctx, tx, InventoryTransaction{
			ProductID:  in.ProductID,
			Kind:       KindAdjustment,
			Quantity:   delta,
			LocationID: &in.LocationID,
			Note:       fmt.Sprintf("%s: %s", in.Type, strings.TrimSpace(in.Reason)),
			CreatedBy:  in.CreatedBy,
		})
		if err != nil {
			return err
		}
		result.Entry = entry

		deltas := stockDeltas{}
		deltas.onHand(in.ProductID, delta)
		return deltas.applyTx(ctx, tx)
	})
	if err != nil {
		return nil, err
	}

	if result.Entry != nil {
		notifyStockChanged(ctx, s.observer, "adjust", []InventoryTransaction{*result.Entry})
	}
	return result, nil
}

// RecordReturn books a customer return into a location (RETURN_IN) or stock
// sent back to a supplier (RETURN_OUT).
func (s *adjustmentService) RecordReturn(ctx context.Context, in ReturnInput) (*InventoryTransaction, error) {
	if !in.Quantity.IsPositive() {
		return nil, fmt.Errorf("return quantity must be positive: %w", ErrInvalidQuantity)
	}
	if err := checkScale(in.Quantity); err != nil {
		return nil, err
	}
	var kind TransactionKind
	switch in.Direction {
	case ReturnIn:
		kind = KindReturnIn
	case ReturnOut:
		kind = KindReturnOut
	default:
		return nil, fmt.Errorf("%w: return direction %q", ErrInvalidTransactionKind, in.Direction)
	}

	var entry *InventoryTransaction
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		products, err := loadProductsTx(ctx, tx, []int{in.ProductID})
		if err != nil {
			return err
		}
		if err := checkLocationsTx(ctx, tx, []int{in.LocationID}); err != nil {
			return err
		}

		key := itemKey{ProductID: in.ProductID, LocationID: in.LocationID}
		items, err := lockInventoryItemsTx(ctx, tx, []itemKey{key}, kind == KindReturnIn)
		if err != nil {
			return err
		}

		signed := in.Quantity
		if kind == KindReturnOut {
			if items[key].Quantity.LessThan(in.Quantity) {
				return &ShortfallError{
					Err:         ErrInsufficientStock,
					ProductID:   in.ProductID,
					ProductCode: products[in.ProductID].Code,
					LocationID:  in.LocationID,
					Needed:      in.Quantity,
					Available:   items[key].Quantity,
				}
			}
			signed = in.Quantity.Neg()
		}

		items[key].set(items[key].Quantity.Add(signed))
		if err := items.saveTx(ctx, tx); err != nil {
			return err
		}

		entry, err = s.ledger.AppendTx(ctx, tx, InventoryTransaction{
			ProductID:  in.ProductID,
			Kind:       kind,
			Quantity:   signed,
			LocationID: &in.LocationID,
			Note:       in.Note,
			CreatedBy:  in.CreatedBy,
		})
		if err != nil {
			return err
		}

		deltas := stockDeltas{}
		deltas.onHand(in.ProductID, signed)
		return deltas.applyTx(ctx, tx)
	})
	if err != nil {
		return nil, err
	}

	notifyStockChanged(ctx, s.observer, "record_return", []InventoryTransaction{*entry})
	return entry, nil
}
