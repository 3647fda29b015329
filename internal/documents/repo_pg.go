package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PGRepo implements DocumentsRepo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const selectColumns = `id, original_filename, stored_filename, mime_type, size_bytes, storage_path, owner_id, container_id, checksum, uploaded_at, processing_state, extracted_text, processed_at, error_message, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var state string
	var extractedText sql.NullString
	var processedAt sql.NullTime
	var errorMessage sql.NullString
	if err := row.Scan(
		&doc.ID,
		&doc.OriginalFilename,
		&doc.StoredFilename,
		&doc.MimeType,
		&doc.SizeBytes,
		&doc.StoragePath,
		&doc.OwnerID,
		&doc.ContainerID,
		&doc.Checksum,
		&doc.UploadedAt,
		&state,
		&extractedText,
		&processedAt,
		&errorMessage,
		&doc.Version,
	); err != nil {
		return Document{}, err
	}
	doc.State = State(state)
	doc.UploadedAt = doc.UploadedAt.UTC()
	if extractedText.Valid {
		doc.ExtractedText = &extractedText.String
	}
	if processedAt.Valid {
		t := processedAt.Time.UTC()
		doc.ProcessedAt = &t
	}
	if errorMessage.Valid {
		doc.ErrorMessage = &errorMessage.String
	}
	return doc, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Create inserts a new document.
func (r *PGRepo) Create(ctx context.Context, doc Document) (Document, error) {
	const query = `
INSERT INTO documents (
    id,
    original_filename,
    stored_filename,
    mime_type,
    size_bytes,
    storage_path,
    owner_id,
    container_id,
    checksum,
    uploaded_at,
    processing_state,
    extracted_text,
    processed_at,
    error_message,
    version
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	if doc.Version == 0 {
		doc.Version = 1
	}
	if err := doc.CheckInvariants(); err != nil {
		return Document{}, err
	}

	_, err := r.DB.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.OriginalFilename,
		doc.StoredFilename,
		doc.MimeType,
		doc.SizeBytes,
		doc.StoragePath,
		doc.OwnerID,
		doc.ContainerID,
		doc.Checksum,
		doc.UploadedAt,
		string(doc.State),
		nullString(doc.ExtractedText),
		nullTime(doc.ProcessedAt),
		nullString(doc.ErrorMessage),
		doc.Version,
	)
	if err != nil {
		return Document{}, fmt.Errorf("insert document %s: %w", doc.ID, err)
	}
	return doc, nil
}

// GetByID fetches a document by ID.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Document, error) {
	// ids are uuid columns; anything else cannot exist and would fail the cast.
	if _, err := uuid.Parse(id); err != nil {
		return Document{}, ErrNotFound
	}
	query := `SELECT ` + selectColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

// Update writes the mutable fields of doc if the stored version still matches.
func (r *PGRepo) Update(ctx context.Context, doc Document) (Document, error) {
	const query = `
UPDATE documents
SET processing_state = $1,
    extracted_text = $2,
    processed_at = $3,
    error_message = $4,
    version = version + 1
WHERE id = $5 AND version = $6`

	if err := doc.CheckInvariants(); err != nil {
		return Document{}, err
	}

	res, err := r.DB.ExecContext(
		ctx,
		query,
		string(doc.State),
		nullString(doc.ExtractedText),
		nullTime(doc.ProcessedAt),
		nullString(doc.ErrorMessage),
		doc.ID,
		doc.Version,
	)
	if err != nil {
		return Document{}, fmt.Errorf("update document %s: %w", doc.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Document{}, fmt.Errorf("update document %s rows affected: %w", doc.ID, err)
	}
	if affected == 0 {
		var exists bool
		if err := r.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, doc.ID).Scan(&exists); err != nil {
			return Document{}, fmt.Errorf("check document %s: %w", doc.ID, err)
		}
		if !exists {
			return Document{}, ErrNotFound
		}
		return Document{}, ErrVersionConflict
	}
	doc.Version++
	return doc, nil
}

// ListByContainer lists documents of a container ordered newest-first.
func (r *PGRepo) ListByContainer(ctx context.Context, containerID string, limit, offset int) ([]Document, error) {
	limit, offset = clampPage(limit, offset)
	query := `SELECT ` + selectColumns + `
FROM documents
WHERE container_id = $1
ORDER BY uploaded_at DESC, id
LIMIT $2 OFFSET $3`
	return r.queryMany(ctx, query, containerID, limit, offset)
}

// ListStalePending lists pending documents uploaded before olderThan, oldest first.
func (r *PGRepo) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = maxListLimit
	}
	query := `SELECT ` + selectColumns + `
FROM documents
WHERE processing_state = 'pending' AND uploaded_at < $1
ORDER BY uploaded_at
LIMIT $2`
	return r.queryMany(ctx, query, olderThan, limit)
}

// FindByChecksum returns the oldest non-failed document in the container with the checksum.
func (r *PGRepo) FindByChecksum(ctx context.Context, containerID, checksum string) (Document, error) {
	query := `SELECT ` + selectColumns + `
FROM documents
WHERE container_id = $1 AND checksum = $2 AND processing_state <> 'failed'
ORDER BY uploaded_at
LIMIT 1`
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, containerID, checksum))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("find document by checksum: %w", err)
	}
	return doc, nil
}

func (r *PGRepo) queryMany(ctx context.Context, query string, args ...any) ([]Document, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

var _ DocumentsRepo = (*PGRepo)(nil)
