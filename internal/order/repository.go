package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// Store is row-level access to food_orders. Every method only touches
// standard rows unless stated otherwise.
type Store interface {
	Get(ctx context.Context, foodID, userID int64) (*Row, error)
	SumOffered(ctx context.Context, foodID, excludeUserID int64) (int, error)
	// OfferedRows returns rows of foodID with offered > 0 in ascending id order.
	OfferedRows(ctx context.Context, foodID int64) ([]Row, error)
	Delete(ctx context.Context, foodID, userID int64) error
	DeleteDayGroup(ctx context.Context, dayGroupID, userID int64) error
	// Insert stores a row of any type and sets row.ID.
	Insert(ctx context.Context, row *Row) error
}

type Repository interface {
	Store
	// InTx runs fn in one transaction serialized with every other InTx call
	// sharing lockKey. fn's error rolls the transaction back.
	InTx(ctx context.Context, lockKey int64, fn func(Store) error) error
	// ListByUser returns all rows of a user, free-form rows first, then by food id.
	ListByUser(ctx context.Context, userID int64) ([]Row, error)
	// ListUpcoming returns a user's rows for food served on fromDay or later.
	ListUpcoming(ctx context.Context, userID, fromDay int64) ([]Row, error)
}

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const rowColumns = `id, food_id, order_type, reserved, offered, taken, price, description, user_id, created_at`

type pgStore struct {
	q Querier
}

type postgresRepository struct {
	*pgStore
	pool   *pgxpool.Pool
	reader *sqlx.DB
}

// NewRepository builds the Postgres repository. Writes and locks go through
// pool, list queries through reader.
func NewRepository(pool *pgxpool.Pool, reader *sqlx.DB) Repository {
	return &postgresRepository{
		pgStore: &pgStore{q: pool},
		pool:    pool,
		reader:  reader,
	}
}

func scanRow(row pgx.Row, r *Row) error {
	return row.Scan(
		&r.ID,
		&r.FoodID,
		&r.Type,
		&r.Reserved,
		&r.Offered,
		&r.Taken,
		&r.Price,
		&r.Description,
		&r.UserID,
		&r.Date,
	)
}

func mapPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.CheckViolation:
			return fmt.Errorf("%w: repository: %s rejected by %s", ErrCapacity, op, pgErr.ConstraintName)
		case pgerrcode.UniqueViolation:
			return fmt.Errorf("%w: repository: %s: duplicate standard order (%s)", ErrPersistence, op, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%w: repository: failed to %s: %w", ErrPersistence, op, err)
}

func (s *pgStore) Get(ctx context.Context, foodID, userID int64) (*Row, error) {
	query := `
		SELECT ` + rowColumns + `
		FROM food_orders
		WHERE food_id = $1 AND user_id = $2 AND order_type = 'standard'
	`

	var r Row
	err := scanRow(s.q.QueryRow(ctx, query, foodID, userID), &r)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRowNotFound
		}
		return nil, mapPgError(fmt.Sprintf("select food order %d of user %d", foodID, userID), err)
	}

	return &r, nil
}

func (s *pgStore) SumOffered(ctx context.Context, foodID, excludeUserID int64) (int, error) {
	query := `
		SELECT COALESCE(SUM(offered), 0)
		FROM food_orders
		WHERE food_id = $1 AND order_type = 'standard' AND user_id <> $2
	`

	var sum int64
	if err := s.q.QueryRow(ctx, query, foodID, excludeUserID).Scan(&sum); err != nil {
		return 0, mapPgError(fmt.Sprintf("sum offered food %d", foodID), err)
	}

	return int(sum), nil
}

func (s *pgStore) OfferedRows(ctx context.Context, foodID int64) ([]Row, error) {
	query := `
		SELECT ` + rowColumns + `
		FROM food_orders
		WHERE food_id = $1 AND offered > 0 AND order_type = 'standard'
		ORDER BY id ASC
	`

	rows, err := s.q.Query(ctx, query, foodID)
	if err != nil {
		return nil, mapPgError(fmt.Sprintf("query food stock of %d", foodID), err)
	}
	defer rows.Close()

	result := make([]Row, 0)
	for rows.Next() {
		var r Row
		if err := scanRow(rows, &r); err != nil {
			return nil, mapPgError(fmt.Sprintf("scan food stock of %d", foodID), err)
		}
		result = append(result, r)
	}

	if err := rows.Err(); err != nil {
		return nil, mapPgError(fmt.Sprintf("iterate food stock of %d", foodID), err)
	}

	return result, nil
}

func (s *pgStore) Delete(ctx context.Context, foodID, userID int64) error {
	query := `DELETE FROM food_orders WHERE food_id = $1 AND order_type = 'standard' AND user_id = $2`

	if _, err := s.q.Exec(ctx, query, foodID, userID); err != nil {
		log.Error().Err(err).Int64("food_id", foodID).Int64("user_id", userID).Msg("repository: failed to delete food order")
		return mapPgError(fmt.Sprintf("delete food order %d of user %d", foodID, userID), err)
	}

	return nil
}

func (s *pgStore) DeleteDayGroup(ctx context.Context, dayGroupID, userID int64) error {
	query := `DELETE FROM food_orders WHERE user_id = $1 AND food_id / 10 = $2 AND order_type = 'standard'`

	if _, err := s.q.Exec(ctx, query, userID, dayGroupID); err != nil {
		log.Error().Err(err).Int64("day_group_id", dayGroupID).Int64("user_id", userID).Msg("repository: failed to delete day group")
		return mapPgError(fmt.Sprintf("delete day group %d of user %d", dayGroupID, userID), err)
	}

	return nil
}

func (s *pgStore) Insert(ctx context.Context, r *Row) error {
	query := `
		INSERT INTO food_orders (food_id, order_type, reserved, offered, taken, price, description, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := s.q.QueryRow(ctx, query,
		r.FoodID,
		string(r.Type),
		r.Reserved,
		r.Offered,
		r.Taken,
		r.Price,
		r.Description,
		r.UserID,
		r.Date,
	).Scan(&r.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", r.UserID).Str("type", r.Type.String()).Msg("repository: failed to insert food order")
		return mapPgError("insert food order", err)
	}

	return nil
}

func (r *postgresRepository) InTx(ctx context.Context, lockKey int64, fn func(Store) error) (err error) {
	tx, beginErr := r.pool.Begin(ctx)
	if beginErr != nil {
		return mapPgError("begin transaction", beginErr)
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic_value", p).Int64("lock_key", lockKey).Msg("Panic recovered during food order transaction, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Int64("lock_key", lockKey).Msg("Failed to rollback transaction after panic")
			}
			panic(p)
		} else if err != nil {
			log.Warn().Err(err).Int64("lock_key", lockKey).Msg("Food order transaction failed, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Int64("lock_key", lockKey).Msg("Failed to rollback transaction")
			}
		} else {
			if commitErr := tx.Commit(ctx); commitErr != nil {
				log.Error().Err(commitErr).Int64("lock_key", lockKey).Msg("Failed to commit transaction")
				err = mapPgError("commit transaction", commitErr)
			}
		}
	}()

	// Held until commit or rollback.
	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); err != nil {
		return mapPgError(fmt.Sprintf("lock day group %d", lockKey), err)
	}

	return fn(&pgStore{q: tx})
}

func (r *postgresRepository) ListByUser(ctx context.Context, userID int64) ([]Row, error) {
	query := `
		SELECT ` + rowColumns + `
		FROM food_orders
		WHERE user_id = $1
		ORDER BY food_id ASC NULLS FIRST, id ASC
	`

	rows := make([]Row, 0)
	if err := r.reader.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("repository: failed to query food orders for user id %d: %w", userID, err)
	}

	return rows, nil
}

func (r *postgresRepository) ListUpcoming(ctx context.Context, userID, fromDay int64) ([]Row, error) {
	query := `
		SELECT ` + rowColumns + `
		FROM food_orders
		WHERE food_id IS NOT NULL AND user_id = $1 AND food_id / 100 >= $2
		ORDER BY food_id ASC, id ASC
	`

	rows := make([]Row, 0)
	if err := r.reader.SelectContext(ctx, &rows, query, userID, fromDay); err != nil {
		return nil, fmt.Errorf("repository: failed to query upcoming food orders for user id %d: %w", userID, err)
	}

	return rows, nil
}
