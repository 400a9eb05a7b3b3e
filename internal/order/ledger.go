package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/sfm-portal/testportal/internal/food"
)

// Ledger holds the single-row operations on standard food orders. Absence of
// a row reads as zero quantities.
type Ledger struct {
	store Store
	menu  *food.Generator
}

func NewLedger(store Store, menu *food.Generator) *Ledger {
	return &Ledger{store: store, menu: menu}
}

// With returns a ledger working on store, typically a transaction.
func (l *Ledger) With(store Store) *Ledger {
	return &Ledger{store: store, menu: l.menu}
}

func (l *Ledger) current(ctx context.Context, foodID, userID int64) (Quantities, error) {
	row, err := l.store.Get(ctx, foodID, userID)
	if err != nil {
		if errors.Is(err, ErrRowNotFound) {
			return Quantities{}, nil
		}
		return Quantities{}, err
	}
	return row.Quantities(), nil
}

func (l *Ledger) ReservedQuantity(ctx context.Context, foodID, userID int64) (int, error) {
	q, err := l.current(ctx, foodID, userID)
	return q.Reserved, err
}

func (l *Ledger) OfferedQuantity(ctx context.Context, foodID, userID int64) (int, error) {
	q, err := l.current(ctx, foodID, userID)
	return q.Offered, err
}

// RemainingInFoodStock sums what users other than excludeUserID offer.
func (l *Ledger) RemainingInFoodStock(ctx context.Context, foodID, excludeUserID int64) (int, error) {
	return l.store.SumOffered(ctx, foodID, excludeUserID)
}

// DeleteFoodOrder succeeds when there was nothing to delete.
func (l *Ledger) DeleteFoodOrder(ctx context.Context, foodID, userID int64) error {
	return l.store.Delete(ctx, foodID, userID)
}

// deleteDayGroup removes the user's orders for every variant of the meal.
func (l *Ledger) deleteDayGroup(ctx context.Context, id food.ID, userID int64) error {
	return l.store.DeleteDayGroup(ctx, id.DayGroup(), userID)
}

// InsertOrUpdateFoodOrder replaces the user's row with q, deleting it when q
// is all zeros. The row is stamped with today's price and time.
func (l *Ledger) InsertOrUpdateFoodOrder(ctx context.Context, foodID, userID int64, q Quantities) error {
	if err := q.Validate(); err != nil {
		return err
	}

	id, err := food.ParseID(foodID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	entry, err := l.menu.Generate(id, userID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if err := l.store.Delete(ctx, foodID, userID); err != nil {
		return err
	}
	if q.IsZero() {
		return nil
	}

	row := &Row{
		FoodID:   int64Ptr(foodID),
		Type:     TypeStandard,
		Reserved: q.Reserved,
		Offered:  q.Offered,
		Taken:    q.Taken,
		Price:    entry.Price,
		UserID:   userID,
		Date:     l.menu.Now().Unix(),
	}
	return l.store.Insert(ctx, row)
}

func (l *Ledger) offeredRows(ctx context.Context, foodID int64) ([]Row, error) {
	return l.store.OfferedRows(ctx, foodID)
}
