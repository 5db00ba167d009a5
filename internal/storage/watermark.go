package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// The watermark table is created lazily on first use; creation is idempotent
// and rows are never deleted.
const createWatermarkTableSQL = `
CREATE TABLE IF NOT EXISTS ingestion_watermarks (
    source TEXT PRIMARY KEY,
    last_seen TEXT,
    updated_at TIMESTAMPTZ DEFAULT now()
)`

const selectWatermarkSQL = `
SELECT last_seen
FROM ingestion_watermarks
WHERE source = $1`

const upsertWatermarkSQL = `
INSERT INTO ingestion_watermarks (source, last_seen)
VALUES ($1, $2)
ON CONFLICT (source) DO UPDATE
SET last_seen = EXCLUDED.last_seen,
    updated_at = now()`

func (s *PostgresStore) ensureWatermarkTable(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createWatermarkTableSQL); err != nil {
		return fmt.Errorf("create watermark table: %w", err)
	}
	return nil
}

// LastSeen returns the current ingestion watermark for a source, or nil when
// no run has recorded one yet.
func (s *PostgresStore) LastSeen(ctx context.Context, source string) (*string, error) {
	if err := s.ensureWatermarkTable(ctx); err != nil {
		return nil, err
	}

	var lastSeen *string
	err := s.db.QueryRow(ctx, selectWatermarkSQL, source).Scan(&lastSeen)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch watermark for %s: %w", source, err)
	}
	return lastSeen, nil
}

// SetLastSeen upserts the watermark for a source outside of a load
// transaction. The pipeline itself advances watermarks through LoadPlan; this
// exists for operational backfills and tests.
func (s *PostgresStore) SetLastSeen(ctx context.Context, source, lastSeen string) error {
	if err := s.ensureWatermarkTable(ctx); err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, upsertWatermarkSQL, source, lastSeen); err != nil {
		return fmt.Errorf("upsert watermark for %s: %w", source, err)
	}
	return nil
}
