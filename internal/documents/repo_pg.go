package documents

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements DocumentsRepo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const documentColumns = `id, user_id, file_name, mime_type, size_bytes, storage_provider, storage_key, created_at`

// Create inserts a new document.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (` + documentColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	provider := doc.StorageProvider
	if provider == "" {
		provider = "local"
	}
	_, err := r.DB.ExecContext(ctx, query,
		doc.ID,
		doc.UserID,
		doc.FileName,
		doc.MimeType,
		doc.SizeBytes,
		provider,
		doc.StorageKey,
		doc.CreatedAt,
	)
	return err
}

// GetCurrentByUser returns the latest document for a user.
func (r *PGRepo) GetCurrentByUser(ctx context.Context, userID string) (Document, error) {
	const query = `
SELECT ` + documentColumns + `
FROM documents
WHERE user_id = $1 AND deleted_at IS NULL
ORDER BY created_at DESC
LIMIT 1`
	return scanOne(r.DB.QueryRowContext(ctx, query, userID))
}

// GetByID fetches a document by ID for a user.
func (r *PGRepo) GetByID(ctx context.Context, userID, documentID string) (Document, error) {
	const query = `
SELECT ` + documentColumns + `
FROM documents
WHERE user_id = $1 AND id = $2 AND deleted_at IS NULL
LIMIT 1`
	return scanOne(r.DB.QueryRowContext(ctx, query, userID, documentID))
}

// ListByUser lists documents ordered newest-first.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Document, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
SELECT ` + documentColumns + `
FROM documents
WHERE user_id = $1 AND deleted_at IS NULL
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

	rows, err := r.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row scanner) (Document, error) {
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

func scanDocument(row scanner) (Document, error) {
	var doc Document
	err := row.Scan(
		&doc.ID,
		&doc.UserID,
		&doc.FileName,
		&doc.MimeType,
		&doc.SizeBytes,
		&doc.StorageProvider,
		&doc.StorageKey,
		&doc.CreatedAt,
	)
	return doc, err
}

var _ DocumentsRepo = (*PGRepo)(nil)
