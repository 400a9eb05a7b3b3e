package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sfm-portal/testportal/internal/food"
)

type Service interface {
	// Order brings the user's order for a food to the requested quantities,
	// drawing from other users' food stock when the ordering window is closed.
	// The returned error aggregates every issue; Result mirrors it for clients.
	Order(ctx context.Context, req Request) (Result, error)

	ReservedQuantity(ctx context.Context, foodID, userID int64) (int, error)
	OfferedQuantity(ctx context.Context, foodID, userID int64) (int, error)
	RemainingInFoodStock(ctx context.Context, foodID, excludeUserID int64) (int, error)
	CurrentOrder(ctx context.Context, foodID, userID int64) (Quantities, error)
	DeleteFoodOrder(ctx context.Context, foodID, userID int64) error
	InsertOrUpdateFoodOrder(ctx context.Context, foodID, userID int64, q Quantities) error

	UpcomingOrders(ctx context.Context, userID int64) ([]Row, error)
	History(ctx context.Context, userID int64) ([]Row, error)
	AddPayment(ctx context.Context, p Payment) (*Row, error)
}

type service struct {
	repo   Repository
	ledger *Ledger
	menu   *food.Generator
}

func NewService(repo Repository, menu *food.Generator) Service {
	return &service{
		repo:   repo,
		ledger: NewLedger(repo, menu),
		menu:   menu,
	}
}

// Branches of the order workflow, used in logs.
const (
	branchDirect    = "direct"
	branchFoodStock = "food_stock"
	branchRejected  = "rejected"
)

func (s *service) Order(ctx context.Context, req Request) (Result, error) {
	logger := s.workflowLogger(req)

	issues := newIssues()
	id, err := food.ParseID(req.FoodID)
	if err != nil {
		issues = multierror.Append(issues, fmt.Errorf("%w: %w", ErrValidation, err))
	}
	if req.Reserved < 0 || req.Offered < 0 || req.Taken < 0 {
		issues = multierror.Append(issues, validationError("quantities must be non-negative"))
	}
	if req.Offered > req.Reserved {
		issues = multierror.Append(issues, validationError("offered (%d) exceeds reserved (%d)", req.Offered, req.Reserved))
	}
	if exceedsReserved(req.Reserved, req.Offered, req.Taken) {
		issues = multierror.Append(issues, validationError("offered (%d) + taken (%d) exceeds reserved (%d)", req.Offered, req.Taken, req.Reserved))
	}
	if err := issues.ErrorOrNil(); err != nil {
		logger.Warn().Err(err).Msg("service: food order rejected before any change")
		return resultOf(issues), err
	}

	entry, err := s.menu.Generate(id, req.UserID)
	if err != nil {
		issues = multierror.Append(issues, fmt.Errorf("%w: %w", ErrValidation, err))
		return resultOf(issues), issues.ErrorOrNil()
	}

	branch := branchRejected
	txErr := s.repo.InTx(ctx, id.DayGroup(), func(tx Store) error {
		ledger := s.ledger.With(tx)

		oldReserved, err := ledger.ReservedQuantity(ctx, req.FoodID, req.UserID)
		if err != nil {
			return err
		}

		switch {
		case entry.Features.Orders || oldReserved == req.Reserved || req.Dev:
			branch = branchDirect
			return s.updateDirectly(ctx, ledger, id, req)
		case oldReserved > req.Reserved:
			return validationError("cannot lower reserved amount if entry is disabled; offer to food stock instead")
		case req.Offered > 0:
			return validationError("cannot order from food stock while offering the same food in it")
		default:
			branch = branchFoodStock
			shortfall, err := s.increaseOrderedFromFoodStock(ctx, ledger, req, oldReserved)
			if shortfall != nil {
				issues = multierror.Append(issues, shortfall)
			}
			return err
		}
	})
	if txErr != nil {
		issues = multierror.Append(issues, txErr)
	}

	err = issues.ErrorOrNil()
	event := logger.Info()
	if err != nil {
		event = logger.Warn().Err(err)
	}
	event.Str("branch", branch).
		Int("reserved", req.Reserved).
		Int("offered", req.Offered).
		Int("taken", req.Taken).
		Bool("dev", req.Dev).
		Msg("service: food order processed")

	return resultOf(issues), err
}

func (s *service) workflowLogger(req Request) zerolog.Logger {
	fields := log.With().Int64("food_id", req.FoodID).Int64("user_id", req.UserID)
	opID, err := uuid.NewV4()
	if err != nil {
		log.Warn().Err(err).Msg("service: failed to generate workflow id")
		return fields.Logger()
	}
	return fields.Stringer("op_id", opID).Logger()
}

func (s *service) updateDirectly(ctx context.Context, ledger *Ledger, id food.ID, req Request) error {
	if req.Reserved == 0 {
		return ledger.DeleteFoodOrder(ctx, req.FoodID, req.UserID)
	}

	// One variant per meal and day.
	if err := ledger.deleteDayGroup(ctx, id, req.UserID); err != nil {
		return err
	}
	return ledger.InsertOrUpdateFoodOrder(ctx, req.FoodID, req.UserID, req.Quantities)
}

// increaseOrderedFromFoodStock moves offered food of other users into the
// caller's reservation, oldest offers first. A shortfall is reported but the
// caller still gets whatever was found. The shortfall is returned even when
// the caller's own write fails.
func (s *service) increaseOrderedFromFoodStock(ctx context.Context, ledger *Ledger, req Request, oldReserved int) (*InsufficientStockError, error) {
	remaining := req.Reserved - oldReserved

	offers, err := ledger.offeredRows(ctx, req.FoodID)
	if err != nil {
		return nil, err
	}

	for _, offer := range offers {
		if remaining <= 0 {
			break
		}
		if offer.UserID == req.UserID {
			continue
		}

		moved := min(remaining, offer.Offered)
		left := Quantities{
			Reserved: offer.Reserved - moved,
			Offered:  offer.Offered - moved,
			Taken:    offer.Taken,
		}
		if err := ledger.InsertOrUpdateFoodOrder(ctx, req.FoodID, offer.UserID, left); err != nil {
			return nil, fmt.Errorf("moving %d from user %d: %w", moved, offer.UserID, err)
		}
		remaining -= moved
	}

	var shortfall *InsufficientStockError
	if remaining > 0 {
		shortfall = &InsufficientStockError{Missing: remaining}
	}

	own := Quantities{
		Reserved: req.Reserved - remaining,
		Offered:  0,
		Taken:    req.Taken,
	}
	if err := ledger.InsertOrUpdateFoodOrder(ctx, req.FoodID, req.UserID, own); err != nil {
		return shortfall, err
	}

	return shortfall, nil
}

// resultOf renders issues for the client. Storage details stay in the logs.
func resultOf(issues *multierror.Error) Result {
	if issues == nil || len(issues.Errors) == 0 {
		return Result{OK: true}
	}

	msgs := make([]string, 0, len(issues.Errors))
	for _, e := range issues.Errors {
		if errors.Is(e, ErrPersistence) {
			msgs = append(msgs, ErrPersistence.Error())
			continue
		}
		msgs = append(msgs, e.Error())
	}
	return Result{OK: false, Msg: strings.Join(msgs, "; ")}
}

func (s *service) ReservedQuantity(ctx context.Context, foodID, userID int64) (int, error) {
	n, err := s.ledger.ReservedQuantity(ctx, foodID, userID)
	if err != nil {
		log.Error().Err(err).Int64("food_id", foodID).Int64("user_id", userID).Msg("service: failed to read reserved quantity")
		return 0, fmt.Errorf("service: failed to read reserved quantity: %w", err)
	}
	return n, nil
}

func (s *service) OfferedQuantity(ctx context.Context, foodID, userID int64) (int, error) {
	n, err := s.ledger.OfferedQuantity(ctx, foodID, userID)
	if err != nil {
		log.Error().Err(err).Int64("food_id", foodID).Int64("user_id", userID).Msg("service: failed to read offered quantity")
		return 0, fmt.Errorf("service: failed to read offered quantity: %w", err)
	}
	return n, nil
}

func (s *service) RemainingInFoodStock(ctx context.Context, foodID, excludeUserID int64) (int, error) {
	n, err := s.ledger.RemainingInFoodStock(ctx, foodID, excludeUserID)
	if err != nil {
		log.Error().Err(err).Int64("food_id", foodID).Msg("service: failed to sum food stock")
		return 0, fmt.Errorf("service: failed to sum food stock: %w", err)
	}
	return n, nil
}

func (s *service) CurrentOrder(ctx context.Context, foodID, userID int64) (Quantities, error) {
	q, err := s.ledger.current(ctx, foodID, userID)
	if err != nil {
		return Quantities{}, fmt.Errorf("service: failed to read food order: %w", err)
	}
	return q, nil
}

func (s *service) DeleteFoodOrder(ctx context.Context, foodID, userID int64) error {
	err := s.repo.InTx(ctx, foodID/10, func(tx Store) error {
		return s.ledger.With(tx).DeleteFoodOrder(ctx, foodID, userID)
	})
	if err != nil {
		return fmt.Errorf("service: failed to delete food order: %w", err)
	}
	return nil
}

func (s *service) InsertOrUpdateFoodOrder(ctx context.Context, foodID, userID int64, q Quantities) error {
	err := s.repo.InTx(ctx, foodID/10, func(tx Store) error {
		return s.ledger.With(tx).InsertOrUpdateFoodOrder(ctx, foodID, userID, q)
	})
	if err != nil {
		return fmt.Errorf("service: failed to store food order: %w", err)
	}
	return nil
}

func (s *service) UpcomingOrders(ctx context.Context, userID int64) ([]Row, error) {
	rows, err := s.repo.ListUpcoming(ctx, userID, s.menu.Today())
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("service: failed to fetch user orders in repository")
		return nil, fmt.Errorf("service: failed to fetch user orders: %w", err)
	}
	return rows, nil
}

// History lists free-form entries and orders of food served today or earlier.
func (s *service) History(ctx context.Context, userID int64) ([]Row, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("service: failed to fetch user history in repository")
		return nil, fmt.Errorf("service: failed to fetch user history: %w", err)
	}

	today := s.menu.Today()
	history := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.FoodID == nil || food.ID(*r.FoodID).Day() <= today {
			history = append(history, r)
		}
	}
	return history, nil
}

func (s *service) AddPayment(ctx context.Context, p Payment) (*Row, error) {
	if p.Quantity < 0 {
		return nil, validationError("payment quantity must be non-negative, got %d", p.Quantity)
	}

	row := &Row{
		Type:        TypePayment,
		Reserved:    p.Quantity,
		Taken:       p.Quantity,
		Price:       p.Price,
		Description: stringPtr(p.Description),
		UserID:      p.UserID,
		Date:        p.Date,
	}
	if err := s.repo.Insert(ctx, row); err != nil {
		log.Error().Err(err).Int64("user_id", p.UserID).Msg("service: failed to add payment")
		return nil, fmt.Errorf("service: failed to add payment: %w", err)
	}

	log.Info().Int64("user_id", p.UserID).Int64("row_id", row.ID).Msg("service: payment added")
	return row, nil
}
