package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SaveRun records a finished batch.
func (s *Store) SaveRun(ctx context.Context, r Run) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (id, started_at, finished_at, total, succeeded, failed, cache_hits, summary_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.StartedAt.UTC().Format(time.RFC3339Nano), r.FinishedAt.UTC().Format(time.RFC3339Nano),
			r.Total, r.Succeeded, r.Failed, r.CacheHits, r.SummaryJSON,
		)
		if err != nil {
			return fmt.Errorf("saving run %s: %w", r.ID, err)
		}
		return nil
	})
}

// RecentRuns returns the newest batches first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, total, succeeded, failed, cache_hits, summary_json
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &started, &finished, &r.Total, &r.Succeeded, &r.Failed, &r.CacheHits, &r.SummaryJSON); err != nil {
			return nil, err
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parsing started_at for run %s: %w", r.ID, err)
		}
		if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("parsing finished_at for run %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
