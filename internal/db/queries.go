package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
)

var (
	// ErrUniqueConstraint is returned when an insert hits an existing key.
	ErrUniqueConstraint = stderrors.New("unique constraint violation")
	// ErrNoObject is returned when a key has no row.
	ErrNoObject = stderrors.New("object not found")
)

// Object is one row of the objects table.
type Object struct {
	Key         string
	ContentType string
	Data        []byte
	Size        int64
	CreatedAt   int64 // Unix milliseconds
	UpdatedAt   int64 // Unix milliseconds
}

// InsertObject stores a new object. A taken key gives ErrUniqueConstraint.
func InsertObject(ctx context.Context, db *sql.DB, o *Object) error {
	query := `
		INSERT INTO objects (key, content_type, data, size, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		o.Key, o.ContentType, o.Data, o.Size, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return fmt.Errorf("insert object %s: %w", o.Key, err)
	}

	return nil
}

// UpsertObject stores or replaces an object. created_at survives replacement.
func UpsertObject(ctx context.Context, db *sql.DB, o *Object) error {
	query := `
		INSERT INTO objects (key, content_type, data, size, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			content_type = excluded.content_type,
			data = excluded.data,
			size = excluded.size,
			updated_at = excluded.updated_at
	`

	_, err := db.ExecContext(ctx, query,
		o.Key, o.ContentType, o.Data, o.Size, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert object %s: %w", o.Key, err)
	}
	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetObject retrieves an object by key.
func GetObject(ctx context.Context, db *sql.DB, key string) (*Object, error) {
	query := `
		SELECT key, content_type, data, size, created_at, updated_at
		FROM objects
		WHERE key = ?
	`

	o := &Object{}
	err := db.QueryRowContext(ctx, query, key).Scan(
		&o.Key, &o.ContentType, &o.Data, &o.Size, &o.CreatedAt, &o.UpdatedAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoObject
	}
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	return o, nil
}

// ListObjects returns objects whose key starts with prefix, ordered by key.
// Data is not loaded.
func ListObjects(ctx context.Context, db *sql.DB, prefix string) ([]Object, error) {
	// substr instead of LIKE so '%' and '_' in keys need no escaping
	query := `
		SELECT key, content_type, size, created_at, updated_at
		FROM objects
		WHERE substr(key, 1, length(?)) = ?
		ORDER BY key
	`

	rows, err := db.QueryContext(ctx, query, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()

	var out []Object
	for rows.Next() {
		var o Object
		if err := rows.Scan(&o.Key, &o.ContentType, &o.Size, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	return out, nil
}

// DeleteObjects removes the given keys in one transaction. Missing keys are
// not an error.
func DeleteObjects(ctx context.Context, db *sql.DB, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM objects WHERE key = ?`, key); err != nil {
			return fmt.Errorf("delete object %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}
