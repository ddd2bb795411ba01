package cache_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"govwatch/discovery-service/internal/cache"
	"govwatch/discovery-service/internal/db"
	"govwatch/discovery-service/internal/model"
)

func newSQLiteStore(t *testing.T, now *time.Time) (*cache.Store, *cache.SQLiteBackend) {
	t.Helper()
	conn, err := db.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	backend := cache.NewSQLiteBackend(conn)
	store := cache.NewStore(backend, cache.WithClock(func() time.Time { return *now }))
	return store, backend
}

func rec(id, title string) model.RawRecord {
	return model.RawRecord{
		"noticeId":   id,
		"title":      title,
		"postedDate": "2024-03-01",
		"naicsCode":  "541512",
	}
}

// ── Dedup ─────────────────────────────────────────────────────────────────────

func TestIngest_NewThenExisting(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	now := t0
	store, _ := newSQLiteStore(t, &now)

	res, err := store.Ingest(ctx, []model.RawRecord{rec("X1", "Cloud")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.New)
	assert.Equal(t, 0, res.Existing)
	require.Len(t, res.NewItems, 1)
	assert.Equal(t, cache.StatusNew, res.NewItems[0].Status)
	assert.Equal(t, 1, res.NewItems[0].SeenCount)

	now = t0.Add(2 * time.Hour)
	res, err = store.Ingest(ctx, []model.RawRecord{rec("X1", "Cloud")})
	require.NoError(t, err)
	assert.Equal(t, 0, res.New)
	assert.Equal(t, 1, res.Existing)
	require.Len(t, res.ExistingItems, 1)
	e := res.ExistingItems[0]
	assert.Equal(t, cache.StatusExisting, e.Status)
	assert.Equal(t, 2, e.SeenCount)
	assert.True(t, e.FirstSeenAt.Equal(t0), "firstSeenAt must not move, got %s", e.FirstSeenAt)

	got, err := store.Get(ctx, "X1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.SeenCount)
	assert.True(t, got.FirstSeenAt.Equal(t0))
	assert.True(t, got.LastSeenAt.Equal(now))
}

func TestIngest_OneRowPerNoticeID(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	store, _ := newSQLiteStore(t, &now)

	for i := 0; i < 3; i++ {
		_, err := store.Ingest(ctx, []model.RawRecord{rec("A", "a"), rec("B", "b")})
		require.NoError(t, err)
	}

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := store.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 3, got.SeenCount)
}

func TestIngest_ConcurrentSameNoticeKeepsEveryIncrement(t *testing.T) {
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	store := cache.NewStore(cache.NewSQLiteBackend(conn), cache.WithClock(func() time.Time { return now }))

	const n = 20
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := store.Ingest(ctx, []model.RawRecord{rec("C1", "concurrent")})
			return err
		})
	}
	require.NoError(t, g.Wait())

	got, err := store.Get(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, n, got.SeenCount)
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIngest_DuplicateWithinBatch(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	store, _ := newSQLiteStore(t, &now)

	res, err := store.Ingest(ctx, []model.RawRecord{rec("A", "a"), rec("A", "a")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.New)
	assert.Equal(t, 1, res.Existing)
	assert.Equal(t, 2, res.ExistingItems[0].SeenCount)
}

func TestIngest_MixedBatch(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	store, _ := newSQLiteStore(t, &now)

	_, err := store.Ingest(ctx, []model.RawRecord{rec("A", "a")})
	require.NoError(t, err)

	res, err := store.Ingest(ctx, []model.RawRecord{
		rec("A", "a"),
		rec("B", "b"),
		{"title": "no identifier"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.New)
	assert.Equal(t, 1, res.Existing)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, "B", res.NewItems[0].NoticeID)
	assert.Equal(t, "A", res.ExistingItems[0].NoticeID)
}

func TestIngest_EmptyAndAllSkipped(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	store, _ := newSQLiteStore(t, &now)

	res, err := store.Ingest(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, cache.IngestResult{}, res)

	res, err = store.Ingest(ctx, []model.RawRecord{{"title": "x"}, {"noticeId": "  "}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.Zero(t, res.New+res.Existing)
}

// ── Snapshot semantics ────────────────────────────────────────────────────────

func TestIngest_KeepsFirstProjectionButReplacesPayload(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	store, _ := newSQLiteStore(t, &now)

	_, err := store.Ingest(ctx, []model.RawRecord{rec("A", "Original title")})
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = store.Ingest(ctx, []model.RawRecord{rec("A", "Amended title")})
	require.NoError(t, err)

	got, err := store.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "Original title", got.Title)

	raw, err := got.RawPayload.Record()
	require.NoError(t, err)
	assert.Equal(t, "Amended title", raw["title"])
}

// ── Atomicity ─────────────────────────────────────────────────────────────────

// failingBackend wraps a real backend and fails the nth upsert of a batch.
type failingBackend struct {
	cache.Backend
	failAt int
}

type failingWriter struct {
	w      cache.Writer
	calls  *int
	failAt int
}

func (f failingWriter) Upsert(ctx context.Context, opp model.Opportunity, p model.RawPayload, now time.Time) (cache.Row, error) {
	*f.calls++
	if *f.calls == f.failAt {
		return cache.Row{}, errors.New("disk full")
	}
	return f.w.Upsert(ctx, opp, p, now)
}

func (b failingBackend) InTx(ctx context.Context, fn func(w cache.Writer) error) error {
	calls := 0
	return b.Backend.InTx(ctx, func(w cache.Writer) error {
		return fn(failingWriter{w: w, calls: &calls, failAt: b.failAt})
	})
}

func TestIngest_FailureRollsBackWholeBatch(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, backend := newSQLiteStore(t, &now)

	store := cache.NewStore(failingBackend{Backend: backend, failAt: 3},
		cache.WithClock(func() time.Time { return now }))

	_, err := store.Ingest(ctx, []model.RawRecord{rec("A", "a"), rec("B", "b"), rec("C", "c")})
	require.Error(t, err)
	var se *cache.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "ingest", se.Op)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "no record from a failed batch may be committed")
}

// ── Reads ─────────────────────────────────────────────────────────────────────

func TestStore_ReadQueries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	store, _ := newSQLiteStore(t, &now)

	old := model.RawRecord{"noticeId": "OLD", "postedDate": "2024-01-01"}
	recent := model.RawRecord{"noticeId": "NEW", "postedDate": "2024-03-09"}
	undated := model.RawRecord{"noticeId": "NODATE"}
	_, err := store.Ingest(ctx, []model.RawRecord{old, recent, undated})
	require.NoError(t, err)

	posted, err := store.PostedSince(ctx, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, posted, 1)
	assert.Equal(t, "NEW", posted[0].NoticeID)

	seen, err := store.FirstSeenSince(ctx, now)
	require.NoError(t, err)
	assert.Len(t, seen, 3)

	seen, err = store.FirstSeenSince(ctx, now.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, seen)

	_, err = store.Get(ctx, "MISSING")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestStore_LinkTracked(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	store, _ := newSQLiteStore(t, &now)

	_, err := store.Ingest(ctx, []model.RawRecord{rec("A", "a")})
	require.NoError(t, err)

	require.NoError(t, store.LinkTracked(ctx, "A", "trk-1"))
	got, err := store.Get(ctx, "A")
	require.NoError(t, err)
	require.NotNil(t, got.LinkedTrackedID)
	assert.Equal(t, "trk-1", *got.LinkedTrackedID)

	assert.ErrorIs(t, store.LinkTracked(ctx, "B", "trk-2"), cache.ErrNotFound)
}
