package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) (*PostgresRepository, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cred := &Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: "./migrations",
	}

	repo, err := NewPostgresRepository(cred)
	require.NoError(t, err)

	err = repo.RunMigrations(cred)
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func TestUpsertItem_CreatesHeaderAndDetail(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	header, detail, err := repo.UpsertItem(ctx, "u1", 7, 2)
	require.NoError(t, err)

	assert.NotZero(t, header.ID)
	assert.Equal(t, "u1", header.UserID)
	assert.Equal(t, header.ID, detail.CartHeaderID)
	assert.Equal(t, int64(7), detail.ProductID)
	assert.Equal(t, 2, detail.Quantity)

	fetched, err := repo.GetHeaderByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, header.ID, fetched.ID)

	details, err := repo.GetDetails(ctx, header.ID)
	require.NoError(t, err)
	require.Len(t, details, 1)
}

func TestUpsertItem_AccumulatesQuantity(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	_, _, err := repo.UpsertItem(ctx, "u1", 7, 2)
	require.NoError(t, err)

	header, detail, err := repo.UpsertItem(ctx, "u1", 7, 3)
	require.NoError(t, err)

	assert.Equal(t, 5, detail.Quantity)

	details, err := repo.GetDetails(ctx, header.ID)
	require.NoError(t, err)
	require.Len(t, details, 1, "repeated upserts of the same product merge into one line")
	assert.Equal(t, 5, details[0].Quantity)
}

func TestUpsertItem_NewProductAddsLine(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	header1, _, err := repo.UpsertItem(ctx, "u1", 7, 2)
	require.NoError(t, err)

	header2, _, err := repo.UpsertItem(ctx, "u1", 8, 1)
	require.NoError(t, err)
	assert.Equal(t, header1.ID, header2.ID, "same user keeps one header")

	details, err := repo.GetDetails(ctx, header1.ID)
	require.NoError(t, err)
	assert.Len(t, details, 2)
}

func TestUpsertItem_ConcurrentMergesLoseNothing(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := repo.UpsertItem(ctx, "u1", 7, 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	header, err := repo.GetHeaderByUserID(ctx, "u1")
	require.NoError(t, err)

	details, err := repo.GetDetails(ctx, header.ID)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, workers, details[0].Quantity, "no increment may be lost")
}

func TestUpsertItem_ConcurrentFirstInsertsMintOneHeader(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	// both writers race on an empty cart, so header creation itself
	// must serialize on the unique user_id row
	const workers = 8
	var wg sync.WaitGroup
	headerIDs := make(chan int64, workers)
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			header, _, err := repo.UpsertItem(ctx, "u1", 7, 1)
			errs <- err
			if err == nil {
				headerIDs <- header.ID
			}
		}()
	}
	wg.Wait()
	close(errs)
	close(headerIDs)

	for err := range errs {
		require.NoError(t, err)
	}

	first := int64(0)
	for id := range headerIDs {
		if first == 0 {
			first = id
		}
		assert.Equal(t, first, id, "every writer must land on the same header")
	}

	var headerCount int
	require.NoError(t, repo.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cart_headers WHERE user_id = $1`, "u1",
	).Scan(&headerCount))
	assert.Equal(t, 1, headerCount)

	details, err := repo.GetDetails(ctx, first)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, workers, details[0].Quantity, "no increment may be lost")
}

func TestRemoveDetail_LastLineRemovesHeader(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	_, detail, err := repo.UpsertItem(ctx, "u1", 7, 2)
	require.NoError(t, err)

	require.NoError(t, repo.RemoveDetail(ctx, detail.ID))

	_, err = repo.GetHeaderByUserID(ctx, "u1")
	assert.ErrorIs(t, err, ErrCartNotFound, "empty cart disappears entirely")
}

func TestRemoveDetail_OtherLinesKeepHeader(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	header, detail1, err := repo.UpsertItem(ctx, "u1", 7, 2)
	require.NoError(t, err)
	_, _, err = repo.UpsertItem(ctx, "u1", 8, 1)
	require.NoError(t, err)

	require.NoError(t, repo.RemoveDetail(ctx, detail1.ID))

	fetched, err := repo.GetHeaderByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, header.ID, fetched.ID)

	details, err := repo.GetDetails(ctx, header.ID)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, int64(8), details[0].ProductID)
}

func TestRemoveDetail_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	err := repo.RemoveDetail(context.Background(), 12345)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestSetCouponCode_SetAndClear(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	_, _, err := repo.UpsertItem(ctx, "u1", 7, 1)
	require.NoError(t, err)

	require.NoError(t, repo.SetCouponCode(ctx, "u1", "SAVE10"))

	header, err := repo.GetHeaderByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", header.CouponCode)

	require.NoError(t, repo.SetCouponCode(ctx, "u1", ""))

	header, err = repo.GetHeaderByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "", header.CouponCode)
}

func TestSetCouponCode_NoHeader(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	err := repo.SetCouponCode(context.Background(), "nobody", "SAVE10")
	assert.ErrorIs(t, err, ErrCartNotFound)
}

func TestGetHeaderByUserID_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.GetHeaderByUserID(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrCartNotFound)
}
