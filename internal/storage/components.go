package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const componentColumns = `id, base_id, version, name, component_type, source_path, metadata, content_hash, created_at`

// InsertComponent stores a new component and returns its id. Components are
// never updated in place; a taken id yields *DuplicateIDError.
func (s *Store) InsertComponent(ctx context.Context, c Component) (string, error) {
	if strings.TrimSpace(c.ID) == "" {
		return "", fmt.Errorf("component id is required")
	}
	if c.BaseID == "" {
		c.BaseID = c.ID
	}
	if c.Version <= 0 {
		c.Version = 1
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	meta, err := marshalMetadata(c.Metadata)
	if err != nil {
		return "", err
	}

	err = s.withWriteTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM components WHERE id = ?`, c.ID).Scan(&exists); err != nil {
			return fmt.Errorf("checking component %s: %w", c.ID, err)
		}
		if exists > 0 {
			return &DuplicateIDError{ID: c.ID}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO components (`+componentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.BaseID, c.Version, c.Name, c.ComponentType, c.SourcePath, meta, c.ContentHash,
			c.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("inserting component %s: %w", c.ID, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// GetComponent returns the component with the given id or ErrNotFound.
func (s *Store) GetComponent(ctx context.Context, id string) (Component, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+componentColumns+` FROM components WHERE id = ?`, id)
	c, err := scanComponent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Component{}, ErrNotFound
	}
	return c, err
}

// LatestVersion returns the newest version of a base id, or ErrNotFound.
func (s *Store) LatestVersion(ctx context.Context, baseID string) (Component, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+componentColumns+`
		FROM components WHERE base_id = ? ORDER BY version DESC LIMIT 1`, baseID)
	c, err := scanComponent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Component{}, ErrNotFound
	}
	return c, err
}

// ListComponents returns components in insertion order, optionally filtered by type.
func (s *Store) ListComponents(ctx context.Context, f ListFilter) ([]Component, error) {
	query := `SELECT ` + componentColumns + ` FROM components`
	var where []string
	var args []any
	if f.Type != "" {
		where = append(where, "component_type = ?")
		args = append(args, f.Type)
	}
	if f.BaseID != "" {
		where = append(where, "base_id = ?")
		args = append(args, f.BaseID)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing components: %w", err)
	}
	defer rows.Close()

	var out []Component
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountComponents returns the number of stored components.
func (s *Store) CountComponents(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM components`).Scan(&n)
	return n, err
}

// DeleteComponent removes a component and, by cascade, its embeddings.
func (s *Store) DeleteComponent(ctx context.Context, id string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		// Explicit delete keeps the cascade even if foreign keys were left off.
		if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE component_id = ?`, id); err != nil {
			return fmt.Errorf("deleting embeddings of %s: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM components WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("deleting component %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComponent(r rowScanner) (Component, error) {
	var c Component
	var meta, createdAt string
	if err := r.Scan(&c.ID, &c.BaseID, &c.Version, &c.Name, &c.ComponentType, &c.SourcePath, &meta, &c.ContentHash, &createdAt); err != nil {
		return Component{}, err
	}
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
			return Component{}, fmt.Errorf("decoding metadata for %s: %w", c.ID, err)
		}
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Component{}, fmt.Errorf("parsing created_at for %s: %w", c.ID, err)
	}
	c.CreatedAt = t
	return c, nil
}

func marshalMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding metadata: %w", err)
	}
	return string(b), nil
}
