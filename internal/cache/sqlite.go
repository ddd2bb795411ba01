package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"govwatch/discovery-service/internal/model"
)

// Fixed width so that TEXT comparison orders the same as time.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

const sqliteUpsert = `
	INSERT INTO cached_opportunities (
		notice_id, title, type, posted_date, response_deadline,
		naics_code, psc_code, set_aside_type, contracting_office, place_of_performance,
		description, raw_payload, first_seen_at, last_seen_at, seen_count
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
	ON CONFLICT (notice_id) DO UPDATE SET
		last_seen_at = excluded.last_seen_at,
		seen_count   = cached_opportunities.seen_count + 1,
		raw_payload  = excluded.raw_payload
	RETURNING id, first_seen_at, seen_count`

// SQLiteBackend stores the cache in a local SQLite database. It backs the
// single-binary CLI mode and the package tests.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend returns a Backend over an opened, migrated database.
func NewSQLiteBackend(db *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

type sqliteWriter struct {
	tx *sql.Tx
}

func (w sqliteWriter) Upsert(ctx context.Context, opp model.Opportunity, payload model.RawPayload, now time.Time) (Row, error) {
	var (
		r     Row
		first string
	)
	ts := formatSQLiteTime(now)
	err := w.tx.QueryRowContext(ctx, sqliteUpsert,
		opp.NoticeID, opp.Title, opp.Type, nullableTime(opp.PostedDate), nullableTime(opp.ResponseDeadline),
		opp.NAICSCode, opp.PSCCode, opp.SetAsideType, opp.ContractingOffice, opp.PlaceOfPerformance,
		opp.Description, string(payload.Bytes()), ts, ts,
	).Scan(&r.ID, &first, &r.SeenCount)
	if err != nil {
		return Row{}, err
	}
	if r.FirstSeenAt, err = parseSQLiteTime(first); err != nil {
		return Row{}, err
	}
	return r, nil
}

// InTx runs fn inside a single SQLite transaction.
func (b *SQLiteBackend) InTx(ctx context.Context, fn func(w Writer) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(sqliteWriter{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Count(ctx context.Context) (int, error) {
	var n int
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cached_opportunities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func (b *SQLiteBackend) Get(ctx context.Context, noticeID string) (*model.CachedOpportunity, error) {
	row := b.db.QueryRowContext(ctx, `SELECT `+cachedColumns+` FROM cached_opportunities WHERE notice_id = ?`, noticeID)
	o, err := scanSQLiteCached(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (b *SQLiteBackend) PostedSince(ctx context.Context, since time.Time) ([]model.CachedOpportunity, error) {
	return b.list(ctx, `SELECT `+cachedColumns+` FROM cached_opportunities
		WHERE posted_date >= ? ORDER BY posted_date DESC, notice_id`, since)
}

func (b *SQLiteBackend) FirstSeenSince(ctx context.Context, since time.Time) ([]model.CachedOpportunity, error) {
	return b.list(ctx, `SELECT `+cachedColumns+` FROM cached_opportunities
		WHERE first_seen_at >= ? ORDER BY first_seen_at DESC, notice_id`, since)
}

func (b *SQLiteBackend) LinkTracked(ctx context.Context, noticeID, trackedID string) error {
	res, err := b.db.ExecContext(ctx,
		`UPDATE cached_opportunities SET linked_tracked_id = ? WHERE notice_id = ?`, trackedID, noticeID)
	if err != nil {
		return fmt.Errorf("link tracked: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("link tracked: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (b *SQLiteBackend) list(ctx context.Context, q string, since time.Time) ([]model.CachedOpportunity, error) {
	rows, err := b.db.QueryContext(ctx, q, formatSQLiteTime(since))
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []model.CachedOpportunity
	for rows.Next() {
		o, err := scanSQLiteCached(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type sqliteScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteCached(row sqliteScanner) (model.CachedOpportunity, error) {
	var (
		o                 model.CachedOpportunity
		posted, deadline  sql.NullString
		raw               string
		firstSeen, lastSn string
		linked            sql.NullString
	)
	err := row.Scan(
		&o.ID, &o.NoticeID, &o.Title, &o.Type, &posted, &deadline,
		&o.NAICSCode, &o.PSCCode, &o.SetAsideType, &o.ContractingOffice, &o.PlaceOfPerformance,
		&o.Description, &raw, &firstSeen, &lastSn, &o.SeenCount, &linked,
	)
	if err != nil {
		return model.CachedOpportunity{}, err
	}
	if o.PostedDate, err = parseNullableTime(posted); err != nil {
		return model.CachedOpportunity{}, err
	}
	if o.ResponseDeadline, err = parseNullableTime(deadline); err != nil {
		return model.CachedOpportunity{}, err
	}
	if o.FirstSeenAt, err = parseSQLiteTime(firstSeen); err != nil {
		return model.CachedOpportunity{}, err
	}
	if o.LastSeenAt, err = parseSQLiteTime(lastSn); err != nil {
		return model.CachedOpportunity{}, err
	}
	if linked.Valid {
		o.LinkedTrackedID = &linked.String
	}
	o.RawPayload = model.RawPayload(raw)
	return o, nil
}

func formatSQLiteTime(t time.Time) string { return t.UTC().Format(sqliteTimeLayout) }

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatSQLiteTime(*t)
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseSQLiteTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
