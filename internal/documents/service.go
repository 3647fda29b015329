package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"coursedocs-backend/internal/queue"
	"coursedocs-backend/internal/shared/metrics"
	"coursedocs-backend/internal/shared/storage/object"
	"coursedocs-backend/internal/shared/telemetry"
	"coursedocs-backend/internal/shared/util"
)

// Duplicate upload policies.
const (
	DedupOff       = "off"
	DedupContainer = "container"
)

// DefaultMaxUploadSize is used when Options.MaxUploadSize is not positive.
const DefaultMaxUploadSize int64 = 10 << 20

// maxStoredNameBytes caps the sanitized part of the stored filename so that
// "<32 hex>_<name>" fits the usual 255-byte filename limit.
const maxStoredNameBytes = 200

// Options tunes intake behavior.
type Options struct {
	MaxUploadSize int64
	// VerifyContent rejects files whose sniffed type disagrees with the declared one.
	VerifyContent bool
	DedupMode     string
}

// UploadInput is one upload request as seen by the gateway.
type UploadInput struct {
	Body         io.Reader
	DeclaredMime string
	DeclaredSize int64
	OwnerID      string
	ContainerID  string
	FileName     string
}

// Service contains business logic for documents.
type Service struct {
	Store object.ObjectStore
	Repo  DocumentsRepo
	Queue queue.Producer
	Opts  Options

	now   func() time.Time
	newID func() string
}

// NewService constructs a Service.
func NewService(store object.ObjectStore, repo DocumentsRepo, producer queue.Producer, opts Options) *Service {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = DefaultMaxUploadSize
	}
	if opts.DedupMode != DedupContainer {
		opts.DedupMode = DedupOff
	}
	return &Service{
		Store: store,
		Repo:  repo,
		Queue: producer,
		Opts:  opts,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Upload validates the file, stores it, records a pending document and enqueues extraction.
// Nothing is written when validation fails.
func (s *Service) Upload(ctx context.Context, in UploadInput) (Document, error) {
	mimeType, name, data, err := s.validate(in)
	if err != nil {
		metrics.IncUploadsRejected()
		telemetry.Info("document.upload_rejected", map[string]any{
			"request_id":   requestIDFromContext(ctx),
			"container_id": in.ContainerID,
			"error":        err.Error(),
		})
		return Document{}, err
	}

	checksum := util.Checksum(data)
	if s.Opts.DedupMode == DedupContainer {
		existing, err := s.Repo.FindByChecksum(ctx, in.ContainerID, checksum)
		switch {
		case err == nil:
			metrics.IncUploadsDeduped()
			telemetry.Info("document.upload_deduplicated", map[string]any{
				"request_id":   requestIDFromContext(ctx),
				"document_id":  existing.ID,
				"container_id": in.ContainerID,
			})
			return existing, nil
		case !errors.Is(err, ErrNotFound):
			return Document{}, &MetadataPersistError{Err: fmt.Errorf("lookup checksum: %w", err)}
		}
	}

	storedName := util.RandomToken() + "_" + util.TruncateFileName(name, maxStoredNameBytes)
	key := path.Join(util.HashKey(in.ContainerID), storedName)

	written, err := s.Store.Put(ctx, key, mimeType, bytes.NewReader(data))
	if err != nil {
		return Document{}, &StorageWriteError{Key: key, Err: err}
	}

	doc := Document{
		ID:               s.newID(),
		OriginalFilename: name,
		StoredFilename:   storedName,
		MimeType:         mimeType,
		SizeBytes:        written,
		StoragePath:      key,
		OwnerID:          in.OwnerID,
		ContainerID:      in.ContainerID,
		Checksum:         checksum,
		UploadedAt:       s.now(),
		State:            StatePending,
		Version:          1,
	}

	created, err := s.Repo.Create(ctx, doc)
	if err != nil {
		persistErr := &MetadataPersistError{Err: err}
		// Detached so the blob is removed even if the caller has gone away.
		if cleanupErr := s.Store.Delete(context.WithoutCancel(ctx), key); cleanupErr != nil {
			persistErr.CleanupErr = cleanupErr
			telemetry.Error("document.blob_cleanup_failed", map[string]any{
				"request_id": requestIDFromContext(ctx),
				"key":        key,
				"error":      cleanupErr.Error(),
			})
		}
		return Document{}, persistErr
	}

	metrics.IncUploadsAccepted()
	telemetry.Info("document.uploaded", map[string]any{
		"request_id":   requestIDFromContext(ctx),
		"document_id":  created.ID,
		"container_id": created.ContainerID,
		"mime_type":    created.MimeType,
		"size_bytes":   created.SizeBytes,
	})

	s.enqueue(ctx, created.ID)
	return created, nil
}

// enqueue never fails the upload: a record whose job was lost stays pending and is
// picked up by the reconciler.
func (s *Service) enqueue(ctx context.Context, documentID string) {
	if s.Queue == nil {
		return
	}
	msg := queue.NewMessage(documentID, requestIDFromContext(ctx), s.now())
	if err := s.Queue.Enqueue(ctx, msg); err != nil {
		metrics.IncEnqueueFailed()
		telemetry.Error("document.enqueue_failed", map[string]any{
			"request_id":  msg.RequestID,
			"document_id": documentID,
			"error":       err.Error(),
		})
	}
}

// Requeue enqueues extraction for an existing pending document.
func (s *Service) Requeue(ctx context.Context, id string) (Document, error) {
	doc, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if doc.State.IsTerminal() {
		return doc, fmt.Errorf("%w: %s", ErrTerminalState, doc.State)
	}
	if s.Queue == nil {
		return doc, fmt.Errorf("job queue not configured")
	}
	if err := s.Queue.Enqueue(ctx, queue.NewMessage(doc.ID, requestIDFromContext(ctx), s.now())); err != nil {
		metrics.IncEnqueueFailed()
		return doc, fmt.Errorf("enqueue %s: %w", doc.ID, err)
	}
	return doc, nil
}

// Get returns a document by id.
func (s *Service) Get(ctx context.Context, id string) (Document, error) {
	if strings.TrimSpace(id) == "" {
		return Document{}, ErrInvalidInput
	}
	return s.Repo.GetByID(ctx, id)
}

// ListByContainer lists a container's documents newest first.
func (s *Service) ListByContainer(ctx context.Context, containerID string, limit, offset int) ([]Document, error) {
	if strings.TrimSpace(containerID) == "" {
		return nil, ErrInvalidInput
	}
	return s.Repo.ListByContainer(ctx, containerID, limit, offset)
}

func (s *Service) validate(in UploadInput) (string, string, []byte, error) {
	if in.Body == nil {
		return "", "", nil, newValidationError(CodeMissingFile, "no file provided")
	}

	mimeType := NormalizeMime(in.DeclaredMime)
	if !IsSupportedMime(mimeType) {
		return "", "", nil, newValidationError(CodeUnsupportedMime, "unsupported mime type %q", in.DeclaredMime)
	}

	if in.DeclaredSize > s.Opts.MaxUploadSize {
		return "", "", nil, newValidationError(CodeSizeExceeded, "declared size %d exceeds limit %d", in.DeclaredSize, s.Opts.MaxUploadSize)
	}

	name, err := util.SanitizeFileName(in.FileName)
	if err != nil {
		return "", "", nil, newValidationError(CodeMissingFile, "file name is empty after sanitization")
	}

	// Read one byte past the limit so oversized bodies are detected without trusting DeclaredSize.
	data, err := io.ReadAll(io.LimitReader(in.Body, s.Opts.MaxUploadSize+1))
	if err != nil {
		return "", "", nil, newValidationError(CodeMissingFile, "read file: %v", err)
	}
	if int64(len(data)) > s.Opts.MaxUploadSize {
		return "", "", nil, newValidationError(CodeSizeExceeded, "file exceeds limit %d", s.Opts.MaxUploadSize)
	}
	if len(data) == 0 {
		return "", "", nil, newValidationError(CodeMissingFile, "file is empty")
	}

	if s.Opts.VerifyContent {
		detected := mimetype.Detect(data)
		if !sniffMatches(detected, mimeType) {
			return "", "", nil, newValidationError(CodeUnsupportedMime, "content looks like %s, declared %s", detected.String(), mimeType)
		}
	}

	return mimeType, name, data, nil
}

// sniffMatches walks up the detected type's hierarchy, so e.g. JSON counts as text/plain.
func sniffMatches(detected *mimetype.MIME, declared string) bool {
	for m := detected; m != nil; m = m.Parent() {
		if m.Is(declared) {
			return true
		}
	}
	return false
}

// NormalizeMime lowercases a media type and strips its parameters.
func NormalizeMime(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(raw); err == nil {
		return strings.ToLower(mt)
	}
	if i := strings.IndexByte(raw, ';'); i >= 0 {
		raw = raw[:i]
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

// IsSupportedMime reports whether an extractor exists for the normalized type.
func IsSupportedMime(mimeType string) bool {
	return mimeType == MimePDF || mimeType == MimeText
}
