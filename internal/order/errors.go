package order

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var (
	ErrRowNotFound       = errors.New("food order not found")
	ErrValidation        = errors.New("invalid food order")
	ErrCapacity          = errors.New("insufficient food")
	ErrInsufficientStock = errors.New("insufficient food in food stock")
	ErrPersistence       = errors.New("error when updating food order")
)

// InsufficientStockError reports how much of a food stock draw could not be
// found among other users' offers.
type InsufficientStockError struct {
	Missing int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient food in food stock (cannot find last %d)", e.Missing)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// joinMessages renders accumulated issues as one line for Result.Msg.
func joinMessages(es []error) string {
	msgs := make([]string, 0, len(es))
	for _, e := range es {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func newIssues() *multierror.Error {
	return &multierror.Error{ErrorFormat: joinMessages}
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
