package order

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// memoryTable mirrors the food_orders table, including its capacity check and
// the unique standard row per (food, user).
type memoryTable struct {
	rows   map[int64]Row
	nextID int64
}

func newMemoryTable() *memoryTable {
	return &memoryTable{rows: make(map[int64]Row), nextID: 1}
}

func (t *memoryTable) clone() *memoryTable {
	c := &memoryTable{rows: make(map[int64]Row, len(t.rows)), nextID: t.nextID}
	for id, r := range t.rows {
		c.rows[id] = r
	}
	return c
}

func (t *memoryTable) sorted(keep func(Row) bool) []Row {
	result := make([]Row, 0)
	for _, r := range t.rows {
		if keep(r) {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func isStandardOf(r Row, foodID int64) bool {
	return r.Type == TypeStandard && r.FoodID != nil && *r.FoodID == foodID
}

func (t *memoryTable) Get(ctx context.Context, foodID, userID int64) (*Row, error) {
	for _, r := range t.rows {
		if isStandardOf(r, foodID) && r.UserID == userID {
			found := r
			return &found, nil
		}
	}
	return nil, ErrRowNotFound
}

func (t *memoryTable) SumOffered(ctx context.Context, foodID, excludeUserID int64) (int, error) {
	sum := 0
	for _, r := range t.rows {
		if isStandardOf(r, foodID) && r.UserID != excludeUserID {
			sum += r.Offered
		}
	}
	return sum, nil
}

func (t *memoryTable) OfferedRows(ctx context.Context, foodID int64) ([]Row, error) {
	return t.sorted(func(r Row) bool { return isStandardOf(r, foodID) && r.Offered > 0 }), nil
}

func (t *memoryTable) Delete(ctx context.Context, foodID, userID int64) error {
	for id, r := range t.rows {
		if isStandardOf(r, foodID) && r.UserID == userID {
			delete(t.rows, id)
		}
	}
	return nil
}

func (t *memoryTable) DeleteDayGroup(ctx context.Context, dayGroupID, userID int64) error {
	for id, r := range t.rows {
		if r.Type == TypeStandard && r.FoodID != nil && *r.FoodID/10 == dayGroupID && r.UserID == userID {
			delete(t.rows, id)
		}
	}
	return nil
}

func (t *memoryTable) Insert(ctx context.Context, r *Row) error {
	if r.Type == TypeStandard {
		if r.FoodID == nil {
			return fmt.Errorf("%w: repository: standard food order without food id", ErrPersistence)
		}
		if err := r.Quantities().Validate(); err != nil {
			return fmt.Errorf("%w: repository: insert food order rejected by food_orders_capacity", ErrCapacity)
		}
		if _, err := t.Get(ctx, *r.FoodID, r.UserID); err == nil {
			return fmt.Errorf("%w: repository: duplicate standard order for food %d of user %d", ErrPersistence, *r.FoodID, r.UserID)
		}
	}

	r.ID = t.nextID
	t.nextID++
	t.rows[r.ID] = *r
	return nil
}

type memoryRepository struct {
	mu    sync.Mutex
	table *memoryTable
}

// NewMemoryRepository keeps food orders in process memory. Transactions are
// serialized by a single lock and applied copy-on-write.
func NewMemoryRepository() Repository {
	return &memoryRepository{table: newMemoryTable()}
}

func (r *memoryRepository) Get(ctx context.Context, foodID, userID int64) (*Row, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table.Get(ctx, foodID, userID)
}

func (r *memoryRepository) SumOffered(ctx context.Context, foodID, excludeUserID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table.SumOffered(ctx, foodID, excludeUserID)
}

func (r *memoryRepository) OfferedRows(ctx context.Context, foodID int64) ([]Row, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table.OfferedRows(ctx, foodID)
}

func (r *memoryRepository) Delete(ctx context.Context, foodID, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table.Delete(ctx, foodID, userID)
}

func (r *memoryRepository) DeleteDayGroup(ctx context.Context, dayGroupID, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table.DeleteDayGroup(ctx, dayGroupID, userID)
}

func (r *memoryRepository) Insert(ctx context.Context, row *Row) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table.Insert(ctx, row)
}

func (r *memoryRepository) InTx(ctx context.Context, lockKey int64, fn func(Store) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: repository: failed to begin transaction: %w", ErrPersistence, err)
	}

	staged := r.table.clone()
	if err := fn(staged); err != nil {
		return err
	}
	r.table = staged
	return nil
}

func (r *memoryRepository) ListByUser(ctx context.Context, userID int64) ([]Row, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := r.table.sorted(func(row Row) bool { return row.UserID == userID })
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].FoodID, rows[j].FoodID
		switch {
		case a == nil || b == nil:
			return a == nil && b != nil
		default:
			return *a < *b
		}
	})
	return rows, nil
}

func (r *memoryRepository) ListUpcoming(ctx context.Context, userID, fromDay int64) ([]Row, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := r.table.sorted(func(row Row) bool {
		return row.UserID == userID && row.FoodID != nil && *row.FoodID/100 >= fromDay
	})
	sort.SliceStable(rows, func(i, j int) bool { return *rows[i].FoodID < *rows[j].FoodID })
	return rows, nil
}
