// Package history persists the append-only audit trail of sync calls and
// match sweeps.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"govwatch/discovery-service/internal/model"
)

// Postgres stores history rows through pgx.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres { return &Postgres{pool: pool} }

// RecordSearch inserts rec, assigning an ID and timestamp when missing.
func (p *Postgres) RecordSearch(ctx context.Context, rec model.SearchHistoryRecord) (model.SearchHistoryRecord, error) {
	rec = withDefaults(rec)
	params, err := json.Marshal(rec.Params)
	if err != nil {
		return rec, fmt.Errorf("encode params: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO search_history (id, params, total_available, fetched, new_count,
			existing_count, skipped_count, error, initiated_by, created_at)
		VALUES ($1, $2::jsonb, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, string(params), rec.TotalAvailable, rec.Fetched, rec.New,
		rec.Existing, rec.Skipped, rec.Error, rec.InitiatedBy, rec.CreatedAt,
	)
	if err != nil {
		return rec, fmt.Errorf("insert search_history: %w", err)
	}
	return rec, nil
}

// RecentSearches returns up to limit records, newest first.
func (p *Postgres) RecentSearches(ctx context.Context, limit int) ([]model.SearchHistoryRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, params, total_available, fetched, new_count, existing_count,
			skipped_count, error, initiated_by, created_at
		FROM search_history ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent searches: %w", err)
	}
	defer rows.Close()

	out := make([]model.SearchHistoryRecord, 0)
	for rows.Next() {
		var (
			r      model.SearchHistoryRecord
			params []byte
		)
		if err := rows.Scan(&r.ID, &params, &r.TotalAvailable, &r.Fetched, &r.New, &r.Existing,
			&r.Skipped, &r.Error, &r.InitiatedBy, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("recent searches scan: %w", err)
		}
		if err := json.Unmarshal(params, &r.Params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordMatch inserts the aggregate counts of one scoring pass.
func (p *Postgres) RecordMatch(ctx context.Context, rec model.MatchHistoryRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO match_history (id, profile_id, matched, near_match, stretch, total_analyzed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.ProfileID, rec.Matched, rec.NearMatch, rec.Stretch, rec.TotalAnalyzed, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert match_history: %w", err)
	}
	return nil
}

// SQLite stores history rows in the local database.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLite { return &SQLite{db: db} }

const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func (s *SQLite) RecordSearch(ctx context.Context, rec model.SearchHistoryRecord) (model.SearchHistoryRecord, error) {
	rec = withDefaults(rec)
	params, err := json.Marshal(rec.Params)
	if err != nil {
		return rec, fmt.Errorf("encode params: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO search_history (id, params, total_available, fetched, new_count,
			existing_count, skipped_count, error, initiated_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), string(params), rec.TotalAvailable, rec.Fetched, rec.New,
		rec.Existing, rec.Skipped, rec.Error, rec.InitiatedBy, rec.CreatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return rec, fmt.Errorf("insert search_history: %w", err)
	}
	return rec, nil
}

func (s *SQLite) RecentSearches(ctx context.Context, limit int) ([]model.SearchHistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, params, total_available, fetched, new_count, existing_count,
			skipped_count, error, initiated_by, created_at
		FROM search_history ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent searches: %w", err)
	}
	defer rows.Close()

	out := make([]model.SearchHistoryRecord, 0)
	for rows.Next() {
		var (
			r                   model.SearchHistoryRecord
			id, params, created string
			errMsg, initiatedBy sql.NullString
		)
		if err := rows.Scan(&id, &params, &r.TotalAvailable, &r.Fetched, &r.New, &r.Existing,
			&r.Skipped, &errMsg, &initiatedBy, &created); err != nil {
			return nil, fmt.Errorf("recent searches scan: %w", err)
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse id: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if errMsg.Valid {
			r.Error = &errMsg.String
		}
		if initiatedBy.Valid {
			r.InitiatedBy = &initiatedBy.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) RecordMatch(ctx context.Context, rec model.MatchHistoryRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO match_history (id, profile_id, matched, near_match, stretch, total_analyzed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.ProfileID, rec.Matched, rec.NearMatch, rec.Stretch, rec.TotalAnalyzed,
		rec.CreatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert match_history: %w", err)
	}
	return nil
}

func withDefaults(rec model.SearchHistoryRecord) model.SearchHistoryRecord {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return rec
}
