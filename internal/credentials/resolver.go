// Package credentials resolves which API key a sync runs under.
package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"govwatch/discovery-service/internal/model"
)

// Identity is the execution identity of one sync call. A zero Identity means
// nothing could be resolved.
type Identity struct {
	APIKey         string
	OrganizationID *string
}

// Lookup reads stored credentials. Both methods return (nil, nil) when
// nothing matches.
type Lookup interface {
	SystemCredential(ctx context.Context) (*model.Credential, error)
	AnyOrganizationCredential(ctx context.Context) (*model.Credential, error)
}

// Resolver applies the lookup order: the system key from the environment,
// then a stored system-wide credential, then any active organization
// credential.
type Resolver struct {
	envKey string
	lookup Lookup
}

// NewResolver returns a Resolver. lookup may be nil when only the
// environment key is available.
func NewResolver(envKey string, lookup Lookup) *Resolver {
	return &Resolver{envKey: strings.TrimSpace(envKey), lookup: lookup}
}

// Resolve returns the identity to run under. It only errors when the
// credential store itself fails; "no credential" is a zero Identity.
func (r *Resolver) Resolve(ctx context.Context) (Identity, error) {
	if r.envKey != "" {
		return Identity{APIKey: r.envKey}, nil
	}
	if r.lookup == nil {
		return Identity{}, nil
	}

	c, err := r.lookup.SystemCredential(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("system credential: %w", err)
	}
	if c != nil {
		return Identity{APIKey: c.APIKey}, nil
	}

	c, err = r.lookup.AnyOrganizationCredential(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("organization credential: %w", err)
	}
	if c != nil {
		return Identity{APIKey: c.APIKey, OrganizationID: c.OrganizationID}, nil
	}
	return Identity{}, nil
}

const (
	systemQuery = `SELECT id, organization_id, api_key FROM api_credentials
		WHERE organization_id IS NULL AND is_active ORDER BY created_at DESC LIMIT 1`
	orgQuery = `SELECT id, organization_id, api_key FROM api_credentials
		WHERE organization_id IS NOT NULL AND is_active ORDER BY created_at ASC LIMIT 1`
)

// PostgresLookup reads api_credentials through pgx.
type PostgresLookup struct {
	pool *pgxpool.Pool
}

func NewPostgresLookup(pool *pgxpool.Pool) *PostgresLookup { return &PostgresLookup{pool: pool} }

func (l *PostgresLookup) SystemCredential(ctx context.Context) (*model.Credential, error) {
	return l.one(ctx, systemQuery)
}

func (l *PostgresLookup) AnyOrganizationCredential(ctx context.Context) (*model.Credential, error) {
	return l.one(ctx, orgQuery)
}

func (l *PostgresLookup) one(ctx context.Context, q string) (*model.Credential, error) {
	var c model.Credential
	err := l.pool.QueryRow(ctx, q).Scan(&c.ID, &c.OrganizationID, &c.APIKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SQLiteLookup reads api_credentials from the local database.
type SQLiteLookup struct {
	db *sql.DB
}

func NewSQLiteLookup(db *sql.DB) *SQLiteLookup { return &SQLiteLookup{db: db} }

func (l *SQLiteLookup) SystemCredential(ctx context.Context) (*model.Credential, error) {
	return l.one(ctx, systemQuery)
}

func (l *SQLiteLookup) AnyOrganizationCredential(ctx context.Context) (*model.Credential, error) {
	return l.one(ctx, orgQuery)
}

func (l *SQLiteLookup) one(ctx context.Context, q string) (*model.Credential, error) {
	var (
		c   model.Credential
		org sql.NullString
	)
	err := l.db.QueryRowContext(ctx, q).Scan(&c.ID, &org, &c.APIKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if org.Valid {
		c.OrganizationID = &org.String
	}
	return &c, nil
}
