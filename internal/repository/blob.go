// Package repository provides a PostgreSQL-backed blob store for the vault.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/GophOTP/internal/blob"
)

// PostgresBlobRepository keeps vault blobs in the blobs table. Each overwrite
// archives the previous content into blob_history.
type PostgresBlobRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB  *sql.DB
	now func() time.Time
}

// NewPostgresBlobRepository creates a repository over db, which must be a
// PostgreSQL connection with the schema from db.InitPostgres.
func NewPostgresBlobRepository(db *sql.DB) *PostgresBlobRepository {
	return &PostgresBlobRepository{DB: db, now: time.Now}
}

// Read returns the current content of name, or blob.ErrNotFound.
func (r *PostgresBlobRepository) Read(ctx context.Context, name string) ([]byte, error) {
	name, err := blob.CleanName(name)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = r.DB.QueryRowContext(ctx, `
		SELECT data FROM blobs WHERE name = $1
	`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", name, err)
	}
	return data, nil
}

// Write archives the current row of name, if any, and upserts data in a
// single transaction.
func (r *PostgresBlobRepository) Write(ctx context.Context, name string, data []byte) error {
	name, err := blob.CleanName(name)
	if err != nil {
		return err
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := r.now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO blob_history (name, data, archived_at)
		SELECT name, data, $2 FROM blobs WHERE name = $1
	`, name, now)
	if err != nil {
		return fmt.Errorf("archive blob %s: %w", name, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO blobs (name, data, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`, name, data, now)
	if err != nil {
		return fmt.Errorf("upsert blob %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// BlobVersion is an archived copy of a blob.
type BlobVersion struct {
	ID         int64
	Name       string
	Data       []byte
	ArchivedAt time.Time
}

// History lists archived versions of name, newest first.
func (r *PostgresBlobRepository) History(ctx context.Context, name string) ([]BlobVersion, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, name, data, archived_at FROM blob_history
		WHERE name = $1 ORDER BY archived_at DESC, id DESC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("History: %w", err)
	}
	defer rows.Close()

	var versions []BlobVersion
	for rows.Next() {
		var v BlobVersion
		if err := rows.Scan(&v.ID, &v.Name, &v.Data, &v.ArchivedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// Restore makes the archived version id current again. The content being
// replaced is archived like any other write.
func (r *PostgresBlobRepository) Restore(ctx context.Context, id int64) error {
	var (
		name string
		data []byte
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT name, data FROM blob_history WHERE id = $1
	`, id).Scan(&name, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: history %d", blob.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("read history %d: %w", id, err)
	}
	return r.Write(ctx, name, data)
}
