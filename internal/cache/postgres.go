package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"govwatch/discovery-service/internal/model"
)

const cachedColumns = `id, notice_id, title, type, posted_date, response_deadline,
	naics_code, psc_code, set_aside_type, contracting_office, place_of_performance,
	description, raw_payload, first_seen_at, last_seen_at, seen_count, linked_tracked_id`

const pgUpsert = `
	INSERT INTO cached_opportunities (
		notice_id, title, type, posted_date, response_deadline,
		naics_code, psc_code, set_aside_type, contracting_office, place_of_performance,
		description, raw_payload, first_seen_at, last_seen_at, seen_count
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb, $13, $13, 1)
	ON CONFLICT (notice_id) DO UPDATE SET
		last_seen_at = EXCLUDED.last_seen_at,
		seen_count   = cached_opportunities.seen_count + 1,
		raw_payload  = EXCLUDED.raw_payload
	RETURNING id, first_seen_at, seen_count`

// PostgresBackend stores the cache in Postgres.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend returns a Backend over pool.
func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

type pgWriter struct {
	tx pgx.Tx
}

func (w pgWriter) Upsert(ctx context.Context, opp model.Opportunity, payload model.RawPayload, now time.Time) (Row, error) {
	var r Row
	err := w.tx.QueryRow(ctx, pgUpsert,
		opp.NoticeID, opp.Title, opp.Type, opp.PostedDate, opp.ResponseDeadline,
		opp.NAICSCode, opp.PSCCode, opp.SetAsideType, opp.ContractingOffice, opp.PlaceOfPerformance,
		opp.Description, string(payload.Bytes()), now,
	).Scan(&r.ID, &r.FirstSeenAt, &r.SeenCount)
	if err != nil {
		return Row{}, err
	}
	r.FirstSeenAt = r.FirstSeenAt.UTC()
	return r, nil
}

// InTx runs fn inside a single Postgres transaction.
func (b *PostgresBackend) InTx(ctx context.Context, fn func(w Writer) error) error {
	return pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		return fn(pgWriter{tx: tx})
	})
}

func (b *PostgresBackend) Count(ctx context.Context) (int, error) {
	var n int
	if err := b.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cached_opportunities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func (b *PostgresBackend) Get(ctx context.Context, noticeID string) (*model.CachedOpportunity, error) {
	row := b.pool.QueryRow(ctx, `SELECT `+cachedColumns+` FROM cached_opportunities WHERE notice_id = $1`, noticeID)
	o, err := scanPgCached(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (b *PostgresBackend) PostedSince(ctx context.Context, since time.Time) ([]model.CachedOpportunity, error) {
	return b.list(ctx, `SELECT `+cachedColumns+` FROM cached_opportunities
		WHERE posted_date >= $1 ORDER BY posted_date DESC, notice_id`, since)
}

func (b *PostgresBackend) FirstSeenSince(ctx context.Context, since time.Time) ([]model.CachedOpportunity, error) {
	return b.list(ctx, `SELECT `+cachedColumns+` FROM cached_opportunities
		WHERE first_seen_at >= $1 ORDER BY first_seen_at DESC, notice_id`, since)
}

func (b *PostgresBackend) LinkTracked(ctx context.Context, noticeID, trackedID string) error {
	tag, err := b.pool.Exec(ctx,
		`UPDATE cached_opportunities SET linked_tracked_id = $2 WHERE notice_id = $1`, noticeID, trackedID)
	if err != nil {
		return fmt.Errorf("link tracked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (b *PostgresBackend) list(ctx context.Context, q string, since time.Time) ([]model.CachedOpportunity, error) {
	rows, err := b.pool.Query(ctx, q, since)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []model.CachedOpportunity
	for rows.Next() {
		o, err := scanPgCached(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanPgCached(row pgx.Row) (model.CachedOpportunity, error) {
	var (
		o   model.CachedOpportunity
		raw []byte
	)
	err := row.Scan(
		&o.ID, &o.NoticeID, &o.Title, &o.Type, &o.PostedDate, &o.ResponseDeadline,
		&o.NAICSCode, &o.PSCCode, &o.SetAsideType, &o.ContractingOffice, &o.PlaceOfPerformance,
		&o.Description, &raw, &o.FirstSeenAt, &o.LastSeenAt, &o.SeenCount, &o.LinkedTrackedID,
	)
	if err != nil {
		return model.CachedOpportunity{}, err
	}
	o.RawPayload = model.RawPayload(raw)
	return o, nil
}
