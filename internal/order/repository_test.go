package order_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sfm-portal/testportal/internal/config"
	"github.com/sfm-portal/testportal/internal/db"
	"github.com/sfm-portal/testportal/internal/food"
	"github.com/sfm-portal/testportal/internal/order"
)

var (
	testDB     *db.Postgres
	testReader *sqlx.DB
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// TestMain connects to the database named by DB_*_TEST. Without DB_HOST_TEST
// the Postgres tests are skipped and the rest run against memory.
func TestMain(m *testing.M) {
	host := os.Getenv("DB_HOST_TEST")
	if host == "" {
		os.Exit(m.Run())
	}

	cfg := config.PostgresConfig{
		Host:            host,
		Port:            envOr("DB_PORT_TEST", "5432"),
		User:            envOr("DB_USER_TEST", "postgres"),
		Password:        envOr("DB_PASSWORD_TEST", "123456"),
		DBName:          envOr("DB_NAME_TEST", "testportal"),
		SSLMode:         envOr("DB_SSLMODE_TEST", "disable"),
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
		MigrationsPath:  "../../migrations",
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pg, err := db.New(connectCtx, cfg)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("db_host", cfg.Host).Str("db_port", cfg.Port).Msg("Failed to connect to test database")
	}
	if err := pg.Migrate(); err != nil {
		pg.Close()
		log.Fatal().Err(err).Msg("Failed to migrate test database")
	}

	testDB = pg
	testReader = pg.SQLX()

	exitCode := m.Run()

	testReader.Close()
	testDB.Close()
	os.Exit(exitCode)
}

func setupPostgres(t *testing.T) order.Repository {
	t.Helper()
	if testDB == nil {
		t.Skip("DB_HOST_TEST is not set")
	}

	truncate := func() {
		_, err := testDB.Pool.Exec(context.Background(), "TRUNCATE TABLE food_orders RESTART IDENTITY")
		require.NoError(t, err, "Failed to truncate food_orders")
	}
	truncate()
	t.Cleanup(truncate)

	return order.NewRepository(testDB.Pool, testReader)
}

func standardRow(foodID, userID int64, q order.Quantities) *order.Row {
	return &order.Row{
		FoodID:   ptr(foodID),
		Type:     order.TypeStandard,
		Reserved: q.Reserved,
		Offered:  q.Offered,
		Taken:    q.Taken,
		Price:    31,
		UserID:   userID,
		Date:     today,
	}
}

func TestPostgresRepository_InsertAndGet(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()

	row := standardRow(1231, 4, order.Quantities{Reserved: 3, Offered: 1, Taken: 1})
	require.NoError(t, repo.Insert(ctx, row))
	assert.NotZero(t, row.ID)

	got, err := repo.Get(ctx, 1231, 4)
	require.NoError(t, err)
	assert.Equal(t, *row, *got)

	_, err = repo.Get(ctx, 1231, 5)
	assert.ErrorIs(t, err, order.ErrRowNotFound)
}

func TestPostgresRepository_Insert_CapacityCheck(t *testing.T) {
	repo := setupPostgres(t)

	err := repo.Insert(context.Background(), standardRow(1231, 4, order.Quantities{Reserved: 1, Offered: 1, Taken: 1}))
	assert.ErrorIs(t, err, order.ErrCapacity)
}

func TestPostgresRepository_Insert_DuplicateStandardRow(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, standardRow(1231, 4, order.Quantities{Reserved: 1})))
	err := repo.Insert(ctx, standardRow(1231, 4, order.Quantities{Reserved: 2}))
	assert.ErrorIs(t, err, order.ErrPersistence)
}

func TestPostgresRepository_SumAndOfferedRows(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, standardRow(1221, 1, order.Quantities{Reserved: 3, Offered: 2})))
	require.NoError(t, repo.Insert(ctx, standardRow(1221, 2, order.Quantities{Reserved: 1})))
	require.NoError(t, repo.Insert(ctx, standardRow(1221, 3, order.Quantities{Reserved: 4, Offered: 4})))

	sum, err := repo.SumOffered(ctx, 1221, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, sum)

	rows, err := repo.OfferedRows(ctx, 1221)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].UserID)
	assert.Equal(t, int64(3), rows[1].UserID)
}

func TestPostgresRepository_DeleteDayGroup(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, standardRow(1231, 1, order.Quantities{Reserved: 1})))
	require.NoError(t, repo.Insert(ctx, standardRow(1232, 1, order.Quantities{Reserved: 1})))
	require.NoError(t, repo.Insert(ctx, standardRow(1221, 1, order.Quantities{Reserved: 1})))
	require.NoError(t, repo.Insert(ctx, standardRow(1231, 2, order.Quantities{Reserved: 1})))

	require.NoError(t, repo.DeleteDayGroup(ctx, 123, 1))

	rows, err := repo.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1221), *rows[0].FoodID)

	_, err = repo.Get(ctx, 1231, 2)
	assert.NoError(t, err)
}

func TestPostgresRepository_InTx_RollsBackOnError(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()

	err := repo.InTx(ctx, 123, func(tx order.Store) error {
		if err := tx.Insert(ctx, standardRow(1231, 1, order.Quantities{Reserved: 1})); err != nil {
			return err
		}
		return tx.Insert(ctx, standardRow(1231, 2, order.Quantities{Reserved: 1, Taken: 2}))
	})
	require.ErrorIs(t, err, order.ErrCapacity)

	_, err = repo.Get(ctx, 1231, 1)
	assert.ErrorIs(t, err, order.ErrRowNotFound)
}

func TestPostgresRepository_ListByUserAndUpcoming(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()

	tomorrow := tomorrowLunch(1)
	require.NoError(t, repo.Insert(ctx, standardRow(tomorrow, 1, order.Quantities{Reserved: 1})))
	require.NoError(t, repo.Insert(ctx, standardRow(1231, 1, order.Quantities{Reserved: 1})))
	require.NoError(t, repo.Insert(ctx, &order.Row{
		Type:        order.TypePayment,
		Reserved:    1,
		Taken:       1,
		Price:       -50,
		Description: ptr("top up"),
		UserID:      1,
		Date:        today,
	}))

	all, err := repo.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Nil(t, all[0].FoodID)
	assert.Equal(t, "top up", *all[0].Description)
	assert.Equal(t, int64(1231), *all[1].FoodID)
	assert.Equal(t, tomorrow, *all[2].FoodID)

	upcoming, err := repo.ListUpcoming(ctx, 1, today)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, tomorrow, *upcoming[0].FoodID)
}

func TestPostgresService_Order_FoodStockDraw(t *testing.T) {
	repo := setupPostgres(t)
	svc := order.NewService(repo, food.NewGenerator(testClock()))
	ctx := context.Background()
	foodID := todayLunch(1)

	require.NoError(t, svc.InsertOrUpdateFoodOrder(ctx, foodID, 1, order.Quantities{Reserved: 3, Offered: 3}))

	res, err := svc.Order(ctx, request(foodID, 2, 5, 0, 0))
	require.ErrorIs(t, err, order.ErrInsufficientStock)
	assert.Equal(t, "insufficient food in food stock (cannot find last 2)", res.Msg)

	reserved, err := svc.ReservedQuantity(ctx, foodID, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, reserved)
}
