package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetCacheEntry returns the stored pipeline result for fingerprint.
func (s *Store) GetCacheEntry(ctx context.Context, fingerprint string) ([]byte, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT result_json FROM pipeline_cache WHERE fingerprint = ?`, fingerprint).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}
	return []byte(raw), true, nil
}

// PutCacheEntry stores a pipeline result under fingerprint. Entries are
// immutable: if the fingerprint already exists the call is a no-op and
// reports inserted=false.
func (s *Store) PutCacheEntry(ctx context.Context, fingerprint, componentID string, result []byte) (bool, error) {
	var inserted bool
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO pipeline_cache (fingerprint, component_id, result_json, created_at)
			VALUES (?, ?, ?, ?)`,
			fingerprint, componentID, string(result), time.Now().UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("writing cache entry: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n == 1
		return nil
	})
	return inserted, err
}

// CountCacheEntries returns the number of cached pipeline results.
func (s *Store) CountCacheEntries(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pipeline_cache`).Scan(&n)
	return n, err
}
