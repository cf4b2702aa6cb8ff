package order_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/cropcarry/marketplace/internal/order"
)

var testDB *pgxpool.Pool

func TestMain(m *testing.M) {
	// Repository tests need a real database. They are skipped unless
	// DB_HOST_TEST is set, so the mock-based tests above still run anywhere.
	dbHost := os.Getenv("DB_HOST_TEST")
	if dbHost == "" {
		os.Exit(m.Run())
	}

	dbPort := os.Getenv("DB_PORT_TEST")
	if dbPort == "" {
		dbPort = "5432"
	}
	dbUser := os.Getenv("DB_USER_TEST")
	if dbUser == "" {
		dbUser = "postgres"
	}
	dbPassword := os.Getenv("DB_PASSWORD_TEST")
	if dbPassword == "" {
		dbPassword = "postgres"
	}
	dbName := os.Getenv("DB_NAME_TEST")
	if dbName == "" {
		dbName = "marketplace_test"
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		dbHost, dbPort, dbUser, dbPassword, dbName)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse test database config: %v\n", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 10

	connectCtx, connectCancel := context.WithTimeout(context.Background(), 10*time.Second)
	testDB, err = pgxpool.NewWithConfig(connectCtx, poolConfig)
	connectCancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to test database: %v\n", err)
		os.Exit(1)
	}

	exitCode := m.Run()

	testDB.Close()
	os.Exit(exitCode)
}

func requireDB(t *testing.T) {
	t.Helper()
	if testDB == nil {
		t.Skip("DB_HOST_TEST not set, skipping database test")
	}
}

func truncateAll(tb testing.TB) {
	tb.Helper()
	_, err := testDB.Exec(context.Background(),
		"TRUNCATE TABLE inventory_audits, transactions, order_items, orders, products, users RESTART IDENTITY CASCADE")
	require.NoError(tb, err, "failed to truncate tables")
}

func seedUser(tb testing.TB, role string) uuid.UUID {
	tb.Helper()
	var id uuid.UUID
	err := testDB.QueryRow(context.Background(),
		`INSERT INTO users (email, password_hash, role, is_verified, name)
		 VALUES ($1, 'x', $2, TRUE, 'Test User') RETURNING id`,
		fmt.Sprintf("%s.%s@example.com", role, uuid.Must(uuid.NewV4())), role,
	).Scan(&id)
	require.NoError(tb, err, "failed to seed user")
	return id
}

func seedProduct(tb testing.TB, farmerID uuid.UUID, price float64, stock int) uuid.UUID {
	tb.Helper()
	var id uuid.UUID
	err := testDB.QueryRow(context.Background(),
		`INSERT INTO products (farmer_id, name, price, stock, unit)
		 VALUES ($1, 'Tomatoes', $2, $3, 'Kg') RETURNING id`,
		farmerID, price, stock,
	).Scan(&id)
	require.NoError(tb, err, "failed to seed product")
	return id
}

func placeTestOrder(tb testing.TB, repo order.Repository, consumerID, productID uuid.UUID, quantity int) *order.Order {
	tb.Helper()
	o := &order.Order{
		ConsumerID:    consumerID,
		PaymentMethod: order.PaymentUPI,
	}
	_, err := repo.PlaceOrder(context.Background(), o, []order.Line{{ProductID: productID, Quantity: quantity}})
	require.NoError(tb, err, "failed to place order")
	return o
}

func TestOrderRepository_PlaceOrder_DecrementsStock(t *testing.T) {
	requireDB(t)
	t.Cleanup(func() { truncateAll(t) })

	repo := order.NewRepository(testDB)
	consumerID := seedUser(t, "consumer")
	farmerID := seedUser(t, "farmer")
	productID := seedProduct(t, farmerID, 40, 10)

	o := &order.Order{ConsumerID: consumerID, PaymentMethod: order.PaymentUPI}
	placed, err := repo.PlaceOrder(context.Background(), o, []order.Line{{ProductID: productID, Quantity: 3}})

	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, o.ID)
	require.Equal(t, order.StatusPending, o.Status)
	require.Equal(t, 120.0, o.TotalAmount)
	require.Len(t, placed, 1)
	require.Equal(t, "Tomatoes", placed[0].Name)

	var stock, totalSales int
	err = testDB.QueryRow(context.Background(),
		"SELECT stock, total_sales FROM products WHERE id = $1", productID).Scan(&stock, &totalSales)
	require.NoError(t, err)
	require.Equal(t, 7, stock)
	require.Equal(t, 3, totalSales)
}

func TestOrderRepository_PlaceOrder_InsufficientStock(t *testing.T) {
	requireDB(t)
	t.Cleanup(func() { truncateAll(t) })

	repo := order.NewRepository(testDB)
	consumerID := seedUser(t, "consumer")
	farmerID := seedUser(t, "farmer")
	productID := seedProduct(t, farmerID, 40, 2)

	o := &order.Order{ConsumerID: consumerID, PaymentMethod: order.PaymentUPI}
	_, err := repo.PlaceOrder(context.Background(), o, []order.Line{{ProductID: productID, Quantity: 5}})

	require.Error(t, err)

	var stockErr *order.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, 2, stockErr.Available)
	require.Equal(t, 5, stockErr.Requested)

	// The failed order must leave no trace.
	var orderCount int
	require.NoError(t, testDB.QueryRow(context.Background(),
		"SELECT COUNT(*) FROM orders").Scan(&orderCount))
	require.Equal(t, 0, orderCount)

	var stock int
	require.NoError(t, testDB.QueryRow(context.Background(),
		"SELECT stock FROM products WHERE id = $1", productID).Scan(&stock))
	require.Equal(t, 2, stock)
}

func TestOrderRepository_PlaceOrder_ConcurrentCheckouts(t *testing.T) {
	requireDB(t)
	t.Cleanup(func() { truncateAll(t) })

	repo := order.NewRepository(testDB)
	farmerID := seedUser(t, "farmer")
	productID := seedProduct(t, farmerID, 40, 10)

	// 8 buyers racing for 10 units at 3 apiece: the row lock serializes the
	// checkouts, so exactly 3 succeed and one unit stays on the shelf.
	const buyers = 8
	const quantity = 3
	consumerIDs := make([]uuid.UUID, buyers)
	for i := range consumerIDs {
		consumerIDs[i] = seedUser(t, "consumer")
	}

	results := make([]error, buyers)
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o := &order.Order{ConsumerID: consumerIDs[i], PaymentMethod: order.PaymentUPI}
			_, results[i] = repo.PlaceOrder(context.Background(), o,
				[]order.Line{{ProductID: productID, Quantity: quantity}})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
			continue
		}
		var stockErr *order.InsufficientStockError
		require.ErrorAs(t, err, &stockErr, "unexpected checkout error: %v", err)
		require.Equal(t, quantity, stockErr.Requested)
	}
	require.Equal(t, 3, winners)

	var stock, totalSales int
	require.NoError(t, testDB.QueryRow(context.Background(),
		"SELECT stock, total_sales FROM products WHERE id = $1", productID).Scan(&stock, &totalSales))
	require.Equal(t, 1, stock)
	require.Equal(t, 9, totalSales)

	var orderCount int
	require.NoError(t, testDB.QueryRow(context.Background(),
		"SELECT COUNT(*) FROM orders").Scan(&orderCount))
	require.Equal(t, winners, orderCount)
}

func TestOrderRepository_Cancel_RestoresStock(t *testing.T) {
	requireDB(t)
	t.Cleanup(func() { truncateAll(t) })

	repo := order.NewRepository(testDB)
	consumerID := seedUser(t, "consumer")
	farmerID := seedUser(t, "farmer")
	productID := seedProduct(t, farmerID, 40, 10)

	o := placeTestOrder(t, repo, consumerID, productID, 3)

	err := repo.Cancel(context.Background(), o.ID)
	require.NoError(t, err)

	var stock, totalSales int
	require.NoError(t, testDB.QueryRow(context.Background(),
		"SELECT stock, total_sales FROM products WHERE id = $1", productID).Scan(&stock, &totalSales))
	require.Equal(t, 10, stock)
	require.Equal(t, 0, totalSales)

	cancelled, err := repo.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusCancelled, cancelled.Status)
}

func TestOrderRepository_Cancel_Twice(t *testing.T) {
	requireDB(t)
	t.Cleanup(func() { truncateAll(t) })

	repo := order.NewRepository(testDB)
	consumerID := seedUser(t, "consumer")
	farmerID := seedUser(t, "farmer")
	productID := seedProduct(t, farmerID, 40, 10)

	o := placeTestOrder(t, repo, consumerID, productID, 3)

	require.NoError(t, repo.Cancel(context.Background(), o.ID))

	// A second cancel must not restore stock again.
	err := repo.Cancel(context.Background(), o.ID)
	require.Error(t, err)

	var transitionErr *order.InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)

	var stock int
	require.NoError(t, testDB.QueryRow(context.Background(),
		"SELECT stock FROM products WHERE id = $1", productID).Scan(&stock))
	require.Equal(t, 10, stock)
}

func TestOrderRepository_Claim_FirstCommitterWins(t *testing.T) {
	requireDB(t)
	t.Cleanup(func() { truncateAll(t) })

	repo := order.NewRepository(testDB)
	consumerID := seedUser(t, "consumer")
	farmerID := seedUser(t, "farmer")
	productID := seedProduct(t, farmerID, 40, 100)

	o := placeTestOrder(t, repo, consumerID, productID, 1)

	const partners = 8
	partnerIDs := make([]uuid.UUID, partners)
	for i := range partnerIDs {
		partnerIDs[i] = seedUser(t, "delivery")
	}

	results := make([]error, partners)
	var wg sync.WaitGroup
	for i := 0; i < partners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = repo.Claim(context.Background(), o.ID, partnerIDs[i])
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
			continue
		}
		require.True(t, errors.Is(err, order.ErrAlreadyClaimed), "unexpected claim error: %v", err)
	}
	require.Equal(t, 1, winners, "exactly one partner must win the claim")

	claimed, err := repo.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusOutForDelivery, claimed.Status)
	require.NotNil(t, claimed.DeliveryPartnerID)
}

func TestOrderRepository_Complete_WrongPartner(t *testing.T) {
	requireDB(t)
	t.Cleanup(func() { truncateAll(t) })

	repo := order.NewRepository(testDB)
	consumerID := seedUser(t, "consumer")
	farmerID := seedUser(t, "farmer")
	productID := seedProduct(t, farmerID, 40, 10)
	partnerID := seedUser(t, "delivery")
	otherPartnerID := seedUser(t, "delivery")

	o := placeTestOrder(t, repo, consumerID, productID, 1)
	require.NoError(t, repo.Claim(context.Background(), o.ID, partnerID))

	err := repo.Complete(context.Background(), o.ID, otherPartnerID)
	require.Error(t, err)
	require.ErrorIs(t, err, order.ErrUnauthorized)

	require.NoError(t, repo.Complete(context.Background(), o.ID, partnerID))

	delivered, err := repo.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusDelivered, delivered.Status)
}

func TestOrderRepository_ListClaimable_ExcludesClaimed(t *testing.T) {
	requireDB(t)
	t.Cleanup(func() { truncateAll(t) })

	repo := order.NewRepository(testDB)
	consumerID := seedUser(t, "consumer")
	farmerID := seedUser(t, "farmer")
	productID := seedProduct(t, farmerID, 40, 100)
	partnerID := seedUser(t, "delivery")

	first := placeTestOrder(t, repo, consumerID, productID, 1)
	second := placeTestOrder(t, repo, consumerID, productID, 1)

	require.NoError(t, repo.Claim(context.Background(), first.ID, partnerID))

	claimable, err := repo.ListClaimable(context.Background())
	require.NoError(t, err)
	require.Len(t, claimable, 1)
	require.Equal(t, second.ID, claimable[0].ID)

	count, err := repo.CountClaimable(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
