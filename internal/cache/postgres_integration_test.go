//go:build integration

package cache_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"govwatch/discovery-service/internal/cache"
	"govwatch/discovery-service/internal/db"
	"govwatch/discovery-service/internal/model"
)

// These tests require a running PostgreSQL database.
// Set TEST_DATABASE_URL to run them.

func getTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := db.NewPostgresPool(ctx, dsn, db.PoolOptions{})
	require.NoError(t, err)
	require.NoError(t, db.MigratePostgres(ctx, pool))

	_, _ = pool.Exec(ctx, "DELETE FROM cached_opportunities WHERE notice_id LIKE 'ITEST-%'")
	t.Cleanup(pool.Close)
	return pool
}

func TestIntegration_PostgresIngest(t *testing.T) {
	pool := getTestPool(t)
	ctx := context.Background()

	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	now := t0
	store := cache.NewStore(cache.NewPostgresBackend(pool), cache.WithClock(func() time.Time { return now }))

	res, err := store.Ingest(ctx, []model.RawRecord{
		{"noticeId": "ITEST-1", "title": "first", "postedDate": "2024-03-01"},
		{"noticeId": "ITEST-2", "title": "second"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.New)

	now = t0.Add(time.Hour)
	res, err = store.Ingest(ctx, []model.RawRecord{{"noticeId": "ITEST-1", "title": "amended"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Existing)
	assert.Equal(t, 2, res.ExistingItems[0].SeenCount)
	assert.True(t, res.ExistingItems[0].FirstSeenAt.Equal(t0))

	got, err := store.Get(ctx, "ITEST-1")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Title)
	assert.True(t, got.LastSeenAt.Equal(now))

	raw, err := got.RawPayload.Record()
	require.NoError(t, err)
	assert.Equal(t, "amended", raw["title"])
}

func TestIntegration_PostgresConcurrentIngest(t *testing.T) {
	pool := getTestPool(t)
	ctx := context.Background()
	store := cache.NewStore(cache.NewPostgresBackend(pool))

	const n = 20
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := store.Ingest(ctx, []model.RawRecord{{"noticeId": "ITEST-RACE", "title": "race"}})
			return err
		})
	}
	require.NoError(t, g.Wait())

	got, err := store.Get(ctx, "ITEST-RACE")
	require.NoError(t, err)
	assert.Equal(t, n, got.SeenCount)
}
