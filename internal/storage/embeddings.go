package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"
)

// AttachEmbedding stores vector as the kind embedding of componentID,
// replacing any previous embedding of that kind for the component.
//
// Every embedding of one kind must share a dimensionality; a vector that
// disagrees with the rest of the store yields *DimensionMismatchError.
func (s *Store) AttachEmbedding(ctx context.Context, componentID string, kind Kind, vector []float32, modelName string) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown embedding kind %q", kind)
	}
	if len(vector) == 0 {
		return fmt.Errorf("empty %s embedding for %s", kind, componentID)
	}

	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM components WHERE id = ?`, componentID).Scan(&exists); err != nil {
			return fmt.Errorf("checking component %s: %w", componentID, err)
		}
		if exists == 0 {
			return ErrNotFound
		}

		var dims int
		err := tx.QueryRowContext(ctx, `
			SELECT dimensions FROM embeddings
			WHERE kind = ? AND component_id != ? LIMIT 1`, string(kind), componentID,
		).Scan(&dims)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("checking %s dimensions: %w", kind, err)
		case dims != len(vector):
			return &DimensionMismatchError{Kind: kind, Expected: dims, Got: len(vector)}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO embeddings (component_id, kind, vector, dimensions, model_name, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(component_id, kind) DO UPDATE SET
				vector = excluded.vector,
				dimensions = excluded.dimensions,
				model_name = excluded.model_name,
				created_at = excluded.created_at`,
			componentID, string(kind), encodeFloat32s(vector), len(vector), modelName,
			time.Now().UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("storing %s embedding for %s: %w", kind, componentID, err)
		}
		return nil
	})
}

// GetEmbeddings returns every embedding attached to componentID, keyed by kind.
func (s *Store) GetEmbeddings(ctx context.Context, componentID string) (map[Kind]Embedding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT component_id, kind, vector, dimensions, model_name, created_at
		FROM embeddings WHERE component_id = ?`, componentID)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings of %s: %w", componentID, err)
	}
	defer rows.Close()

	out := make(map[Kind]Embedding, 2)
	for rows.Next() {
		var e Embedding
		var kind, createdAt string
		var blob []byte
		if err := rows.Scan(&e.ComponentID, &kind, &blob, &e.Dimensions, &e.ModelName, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}
		e.Kind = Kind(kind)
		if e.Vector, err = decodeFloat32s(blob); err != nil {
			return nil, fmt.Errorf("decoding %s embedding for %s: %w", kind, componentID, err)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		out[e.Kind] = e
	}
	return out, rows.Err()
}

// KindDimensions returns the dimensionality shared by stored embeddings of
// kind, or 0 when none are stored.
func (s *Store) KindDimensions(ctx context.Context, kind Kind) (int, error) {
	var dims int
	err := s.db.QueryRowContext(ctx, `SELECT dimensions FROM embeddings WHERE kind = ? LIMIT 1`, string(kind)).Scan(&dims)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return dims, err
}

// AllEmbeddings yields every embedding of kind in component insertion order.
// The sequence is lazy and restartable: each range issues a fresh query.
//
// The store's only connection is held while ranging, so the loop body must
// not call back into the Store.
func (s *Store) AllEmbeddings(ctx context.Context, kind Kind) iter.Seq2[StoredEmbedding, error] {
	return func(yield func(StoredEmbedding, error) bool) {
		rows, err := s.db.QueryContext(ctx, `
			SELECT e.component_id, e.vector
			FROM embeddings e JOIN components c ON c.id = e.component_id
			WHERE e.kind = ?
			ORDER BY c.seq ASC`, string(kind))
		if err != nil {
			yield(StoredEmbedding{}, fmt.Errorf("querying %s embeddings: %w", kind, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var se StoredEmbedding
			var blob []byte
			if err := rows.Scan(&se.ComponentID, &blob); err != nil {
				yield(StoredEmbedding{}, fmt.Errorf("scanning embedding: %w", err))
				return
			}
			if se.Vector, err = decodeFloat32s(blob); err != nil {
				yield(StoredEmbedding{}, fmt.Errorf("decoding embedding for %s: %w", se.ComponentID, err))
				return
			}
			if !yield(se, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(StoredEmbedding{}, fmt.Errorf("iterating %s embeddings: %w", kind, err))
		}
	}
}
