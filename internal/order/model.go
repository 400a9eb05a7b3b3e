package order

import (
	"fmt"
)

type Type string

const (
	TypeStandard Type = "standard"
	TypePayment  Type = "payment"
)

func (t Type) String() string {
	return string(t)
}

// Row is one line of the food_orders table. FoodID is nil for free-form
// history entries such as payments.
type Row struct {
	ID          int64   `json:"id" db:"id"`
	FoodID      *int64  `json:"food_id" db:"food_id"`
	Type        Type    `json:"type" db:"order_type"`
	Reserved    int     `json:"reserved" db:"reserved"`
	Offered     int     `json:"offered" db:"offered"`
	Taken       int     `json:"taken" db:"taken"`
	Price       int     `json:"price" db:"price"`
	Description *string `json:"description" db:"description"`
	UserID      int64   `json:"user_id" db:"user_id"`
	Date        int64   `json:"date" db:"created_at"` // seconds since epoch
}

func (r Row) Quantities() Quantities {
	return Quantities{Reserved: r.Reserved, Offered: r.Offered, Taken: r.Taken}
}

// Quantities is the reserved/offered/taken triple of a standard order.
type Quantities struct {
	Reserved int `json:"reserved"`
	Offered  int `json:"offered"`
	Taken    int `json:"taken"`
}

func (q Quantities) IsZero() bool {
	return q.Reserved == 0 && q.Offered == 0 && q.Taken == 0
}

// Validate checks non-negativity and offered + taken <= reserved.
func (q Quantities) Validate() error {
	if q.Reserved < 0 || q.Offered < 0 || q.Taken < 0 {
		return fmt.Errorf("%w: quantities must be non-negative (reserved=%d offered=%d taken=%d)",
			ErrCapacity, q.Reserved, q.Offered, q.Taken)
	}
	if exceedsReserved(q.Reserved, q.Offered, q.Taken) {
		return fmt.Errorf("%w: offered (%d) + taken (%d) exceeds reserved (%d)",
			ErrCapacity, q.Offered, q.Taken, q.Reserved)
	}
	return nil
}

// exceedsReserved reports offered + taken > reserved for non-negative
// quantities without computing the sum.
func exceedsReserved(reserved, offered, taken int) bool {
	return offered > reserved || taken > reserved-offered
}

// Request asks the engine to bring a user's order for a food to the given
// quantities. Dev bypasses the ordering window.
type Request struct {
	FoodID int64
	UserID int64
	Quantities
	Dev bool
}

// Result is what the portal reports back to the client app.
type Result struct {
	OK  bool   `json:"ok"`
	Msg string `json:"msg"`
}

// Payment is a free-form history entry.
type Payment struct {
	UserID      int64
	Quantity    int
	Price       int
	Description string
	Date        int64
}

func int64Ptr(v int64) *int64 { return &v }

func stringPtr(v string) *string { return &v }
