package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the generations table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS generations (
    id         TEXT PRIMARY KEY,
    model_id   TEXT NOT NULL,
    status     TEXT NOT NULL DEFAULT 'processing',
    images     JSONB NOT NULL DEFAULT '[]',
    metadata   JSONB NOT NULL DEFAULT '{}',
    error      TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_generations_status ON generations(status);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database. Images and
// metadata are serialised as JSONB.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store over the given connection or pool. The
// caller is responsible for calling [PostgresStore.Migrate] before issuing
// queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL, creating the generations table and
// index if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Put upserts the record keyed by gen.ID.
func (s *PostgresStore) Put(ctx context.Context, gen *Generation) error {
	imagesJSON, err := json.Marshal(emptySlice(gen.Images))
	if err != nil {
		return fmt.Errorf("store: marshal images: %w", err)
	}
	metaJSON, err := json.Marshal(emptyMap(gen.Metadata))
	if err != nil {
		return fmt.Errorf("store: marshal metadata: %w", err)
	}

	createdAt := gen.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO generations (id, model_id, status, images, metadata, error, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			images = EXCLUDED.images,
			metadata = EXCLUDED.metadata,
			error = EXCLUDED.error,
			updated_at = now()`

	if _, err := s.db.Exec(ctx, query,
		gen.ID, gen.ModelID, gen.Status, imagesJSON, metaJSON, gen.Error, createdAt,
	); err != nil {
		return fmt.Errorf("store: put generation %q: %w", gen.ID, err)
	}
	return nil
}

// Get returns the record with the given id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Generation, error) {
	const query = `
		SELECT id, model_id, status, images, metadata, error, created_at, updated_at
		FROM generations WHERE id = $1`

	var (
		gen        Generation
		imagesJSON []byte
		metaJSON   []byte
	)
	err := s.db.QueryRow(ctx, query, id).Scan(
		&gen.ID, &gen.ModelID, &gen.Status, &imagesJSON, &metaJSON,
		&gen.Error, &gen.CreatedAt, &gen.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("store: generation %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get generation %q: %w", id, err)
	}

	if err := json.Unmarshal(imagesJSON, &gen.Images); err != nil {
		return nil, fmt.Errorf("store: unmarshal images for %q: %w", id, err)
	}
	if err := json.Unmarshal(metaJSON, &gen.Metadata); err != nil {
		return nil, fmt.Errorf("store: unmarshal metadata for %q: %w", id, err)
	}
	return &gen, nil
}

// emptySlice substitutes an empty slice for nil so that JSONB columns store
// [] rather than null.
func emptySlice(imgs []Image) []Image {
	if imgs == nil {
		return []Image{}
	}
	return imgs
}

// emptyMap substitutes an empty map for nil.
func emptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
