package documents

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of DocumentsRepo.
type MemoryRepo struct {
	mu       sync.RWMutex
	data     map[string]Document // id -> document
	byStored map[string]string   // stored filename -> id
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data:     make(map[string]Document),
		byStored: make(map[string]string),
	}
}

// Create stores a new document. The stored filename must be unique.
func (r *MemoryRepo) Create(ctx context.Context, doc Document) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if doc.Version == 0 {
		doc.Version = 1
	}
	if err := doc.CheckInvariants(); err != nil {
		return Document{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[doc.ID]; exists {
		return Document{}, fmt.Errorf("document %s already exists", doc.ID)
	}
	if _, exists := r.byStored[doc.StoredFilename]; exists {
		return Document{}, fmt.Errorf("stored filename %s already exists", doc.StoredFilename)
	}
	r.data[doc.ID] = doc
	r.byStored[doc.StoredFilename] = doc.ID
	return doc, nil
}

// GetByID returns a document by ID.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.data[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

// Update replaces the record when the stored version matches doc.Version.
func (r *MemoryRepo) Update(ctx context.Context, doc Document) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if err := doc.CheckInvariants(); err != nil {
		return Document{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.data[doc.ID]
	if !ok {
		return Document{}, ErrNotFound
	}
	if current.Version != doc.Version {
		return Document{}, ErrVersionConflict
	}
	doc.Version++
	r.data[doc.ID] = doc
	return doc, nil
}

// ListByContainer returns documents for a container, newest first, honoring limit/offset.
func (r *MemoryRepo) ListByContainer(ctx context.Context, containerID string, limit, offset int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit, offset = clampPage(limit, offset)

	r.mu.RLock()
	docs := make([]Document, 0)
	for _, doc := range r.data {
		if doc.ContainerID == containerID {
			docs = append(docs, doc)
		}
	}
	r.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].UploadedAt.Equal(docs[j].UploadedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].UploadedAt.After(docs[j].UploadedAt)
	})

	if offset >= len(docs) {
		return []Document{}, nil
	}
	end := len(docs)
	if offset+limit < end {
		end = offset + limit
	}
	return docs[offset:end], nil
}

// ListStalePending returns pending documents uploaded before olderThan, oldest first.
func (r *MemoryRepo) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var docs []Document
	for _, doc := range r.data {
		if doc.State == StatePending && doc.UploadedAt.Before(olderThan) {
			docs = append(docs, doc)
		}
	}
	r.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].UploadedAt.Before(docs[j].UploadedAt)
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// FindByChecksum returns the oldest non-failed document in the container with the checksum.
func (r *MemoryRepo) FindByChecksum(ctx context.Context, containerID, checksum string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		found Document
		ok    bool
	)
	for _, doc := range r.data {
		if doc.ContainerID != containerID || doc.Checksum != checksum || doc.State == StateFailed {
			continue
		}
		if !ok || doc.UploadedAt.Before(found.UploadedAt) {
			found, ok = doc, true
		}
	}
	if !ok {
		return Document{}, ErrNotFound
	}
	return found, nil
}

// Len returns the number of stored records.
func (r *MemoryRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

var _ DocumentsRepo = (*MemoryRepo)(nil)
