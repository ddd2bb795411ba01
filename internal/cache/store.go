// Package cache is the deduplicating persistence layer for opportunity
// records. One row exists per notice id; re-observations bump visibility
// metadata instead of inserting.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"govwatch/discovery-service/internal/model"
	"govwatch/discovery-service/internal/opportunity"
)

// Entry statuses.
const (
	StatusNew      = "new"
	StatusExisting = "existing"
)

// Entry is one ingested record annotated with its cache metadata.
type Entry struct {
	ID          int64             `json:"id"`
	NoticeID    string            `json:"noticeId"`
	FirstSeenAt time.Time         `json:"firstSeenAt"`
	SeenCount   int               `json:"seenCount"`
	Status      string            `json:"status"`
	Opportunity model.Opportunity `json:"opportunity"`
}

// IngestResult summarises one batch.
type IngestResult struct {
	New           int     `json:"new"`
	Existing      int     `json:"existing"`
	Skipped       int     `json:"skipped"`
	NewItems      []Entry `json:"newItems"`
	ExistingItems []Entry `json:"existingItems"`
}

// Row is what a backend reports back after an upsert.
type Row struct {
	ID          int64
	FirstSeenAt time.Time
	SeenCount   int
}

// Writer performs upserts inside a batch transaction.
type Writer interface {
	// Upsert inserts opp with seen_count 1, or on a notice id conflict bumps
	// last_seen_at and seen_count and replaces the raw payload. The normalised
	// columns of an existing row are left untouched.
	Upsert(ctx context.Context, opp model.Opportunity, payload model.RawPayload, now time.Time) (Row, error)
}

// Backend is the durable store behind a Store.
type Backend interface {
	// InTx runs fn in one transaction; any error rolls everything back.
	InTx(ctx context.Context, fn func(w Writer) error) error
	Count(ctx context.Context) (int, error)
	Get(ctx context.Context, noticeID string) (*model.CachedOpportunity, error)
	PostedSince(ctx context.Context, since time.Time) ([]model.CachedOpportunity, error)
	FirstSeenSince(ctx context.Context, since time.Time) ([]model.CachedOpportunity, error)
	LinkTracked(ctx context.Context, noticeID, trackedID string) error
}

// ErrNotFound is returned when a notice id is not cached.
var ErrNotFound = errors.New("opportunity not cached")

// StorageError wraps any failure of the durable store. A batch that fails
// with a StorageError has been rolled back as a whole.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("cache %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// Store is the CacheStore.
type Store struct {
	backend Backend
	now     func() time.Time
	log     *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for skipped records.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// NewStore returns a Store over backend.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		now:     func() time.Time { return time.Now().UTC() },
		log:     slog.Default().With("component", "cache"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type prepared struct {
	opp     model.Opportunity
	payload model.RawPayload
}

// Ingest deduplicates a batch of raw records into the cache. Records without
// an identifier are skipped and logged. All writes share one transaction:
// on error nothing from the batch is committed and the error is a
// *StorageError.
func (s *Store) Ingest(ctx context.Context, records []model.RawRecord) (IngestResult, error) {
	var res IngestResult

	batch := make([]prepared, 0, len(records))
	for i, rec := range records {
		opp, err := opportunity.Normalize(rec)
		if err != nil {
			res.Skipped++
			s.log.Warn("skipping record", "index", i, "err", err)
			continue
		}
		payload, err := model.NewRawPayload(rec)
		if err != nil {
			res.Skipped++
			s.log.Warn("skipping record", "index", i, "noticeId", opp.NoticeID, "err", err)
			continue
		}
		batch = append(batch, prepared{opp: opp, payload: payload})
	}

	if len(batch) == 0 {
		return res, nil
	}

	now := s.now()
	var newItems, existingItems []Entry
	err := s.backend.InTx(ctx, func(w Writer) error {
		for _, p := range batch {
			row, err := w.Upsert(ctx, p.opp, p.payload, now)
			if err != nil {
				return fmt.Errorf("upsert %s: %w", p.opp.NoticeID, err)
			}
			e := Entry{
				ID:          row.ID,
				NoticeID:    p.opp.NoticeID,
				FirstSeenAt: row.FirstSeenAt,
				SeenCount:   row.SeenCount,
				Opportunity: p.opp,
			}
			if row.SeenCount == 1 {
				e.Status = StatusNew
				newItems = append(newItems, e)
			} else {
				e.Status = StatusExisting
				existingItems = append(existingItems, e)
			}
		}
		return nil
	})
	if err != nil {
		return IngestResult{}, &StorageError{Op: "ingest", Err: err}
	}

	res.New, res.NewItems = len(newItems), newItems
	res.Existing, res.ExistingItems = len(existingItems), existingItems
	return res, nil
}

// Count returns the number of cached opportunities.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.backend.Count(ctx)
	if err != nil {
		return 0, &StorageError{Op: "count", Err: err}
	}
	return n, nil
}

// Get returns one cached opportunity or ErrNotFound.
func (s *Store) Get(ctx context.Context, noticeID string) (*model.CachedOpportunity, error) {
	o, err := s.backend.Get(ctx, noticeID)
	if err != nil {
		return nil, &StorageError{Op: "get", Err: err}
	}
	if o == nil {
		return nil, ErrNotFound
	}
	return o, nil
}

// PostedSince lists opportunities whose posted date is at or after since.
func (s *Store) PostedSince(ctx context.Context, since time.Time) ([]model.CachedOpportunity, error) {
	out, err := s.backend.PostedSince(ctx, since)
	if err != nil {
		return nil, &StorageError{Op: "posted since", Err: err}
	}
	return out, nil
}

// FirstSeenSince lists opportunities first cached at or after since.
func (s *Store) FirstSeenSince(ctx context.Context, since time.Time) ([]model.CachedOpportunity, error) {
	out, err := s.backend.FirstSeenSince(ctx, since)
	if err != nil {
		return nil, &StorageError{Op: "first seen since", Err: err}
	}
	return out, nil
}

// LinkTracked points a cached opportunity at a manually tracked record.
func (s *Store) LinkTracked(ctx context.Context, noticeID, trackedID string) error {
	if err := s.backend.LinkTracked(ctx, noticeID, trackedID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return &StorageError{Op: "link tracked", Err: err}
	}
	return nil
}
