package documents

import (
	"context"
	"time"
)

// DocumentsRepo defines persistence operations for documents.
type DocumentsRepo interface {
	Create(ctx context.Context, doc Document) (Document, error)
	GetByID(ctx context.Context, id string) (Document, error)
	// Update replaces the whole record if its stored version still equals doc.Version,
	// and returns the record with the incremented version.
	Update(ctx context.Context, doc Document) (Document, error)
	ListByContainer(ctx context.Context, containerID string, limit, offset int) ([]Document, error)
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]Document, error)
	FindByChecksum(ctx context.Context, containerID, checksum string) (Document, error)
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
