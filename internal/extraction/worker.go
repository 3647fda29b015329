package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"coursedocs-backend/internal/documents"
	"coursedocs-backend/internal/extract"
	"coursedocs-backend/internal/shared/metrics"
	"coursedocs-backend/internal/shared/storage/object"
	"coursedocs-backend/internal/shared/telemetry"
)

// Outcome is the result of one job that finished without an infrastructure error.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeFailed    Outcome = "failed"
	// OutcomeSkipped covers a missing record and a record that is already terminal.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeConflict means another worker wrote the terminal state first.
	OutcomeConflict Outcome = "conflict"
)

// DefaultTimeout bounds a single extraction when none is configured.
const DefaultTimeout = 2 * time.Minute

const maxErrorMessageLen = 500

// Worker moves one pending document to a terminal state.
type Worker struct {
	Repo     documents.DocumentsRepo
	Store    object.ObjectStore
	Registry *extract.Registry
	Timeout  time.Duration

	now func() time.Time
}

// NewWorker constructs a Worker. A nil registry means extract.DefaultRegistry.
func NewWorker(repo documents.DocumentsRepo, store object.ObjectStore, registry *extract.Registry, timeout time.Duration) *Worker {
	if registry == nil {
		registry = extract.DefaultRegistry()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Worker{
		Repo:     repo,
		Store:    store,
		Registry: registry,
		Timeout:  timeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Process runs extraction for documentID. The error is non-nil only when the
// metadata store could not be read or written, or ctx was cancelled; the
// caller must then leave the job for redelivery.
func (w *Worker) Process(ctx context.Context, documentID string) (Outcome, error) {
	doc, err := w.Repo.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			metrics.IncExtractionSkipped()
			telemetry.Warn("extraction.record_missing", map[string]any{"document_id": documentID})
			return OutcomeSkipped, nil
		}
		metrics.IncExtractionInfraError()
		return "", fmt.Errorf("load document %s: %w", documentID, err)
	}
	if doc.State.IsTerminal() {
		metrics.IncExtractionSkipped()
		telemetry.Info("extraction.already_terminal", map[string]any{
			"document_id": doc.ID,
			"status":      string(doc.State),
		})
		return OutcomeSkipped, nil
	}

	startedAt := w.now()
	text, extractErr := w.extract(ctx, doc)
	if ctxErr := ctx.Err(); ctxErr != nil {
		// Shutdown, not a verdict on the document.
		return "", ctxErr
	}
	finishedAt := w.now()

	var next documents.Document
	if extractErr == nil {
		next, err = doc.MarkProcessed(text, finishedAt)
	} else {
		next, err = doc.MarkFailed(sanitizeError(extractErr), finishedAt)
	}
	if err != nil {
		return "", fmt.Errorf("transition document %s: %w", doc.ID, err)
	}

	if _, err := w.Repo.Update(ctx, next); err != nil {
		switch {
		case errors.Is(err, documents.ErrVersionConflict):
			metrics.IncExtractionConflict()
			telemetry.Info("extraction.conflict", map[string]any{"document_id": doc.ID, "version": doc.Version})
			return OutcomeConflict, nil
		case errors.Is(err, documents.ErrNotFound):
			metrics.IncExtractionSkipped()
			return OutcomeSkipped, nil
		default:
			metrics.IncExtractionInfraError()
			return "", fmt.Errorf("update document %s: %w", doc.ID, err)
		}
	}

	duration := durationMs(startedAt, finishedAt)
	metrics.ObserveExtractionDurationMs(duration)
	fields := map[string]any{
		"document_id":  doc.ID,
		"container_id": doc.ContainerID,
		"mime_type":    doc.MimeType,
		"status":       string(next.State),
		"duration_ms":  duration,
	}
	if extractErr != nil {
		metrics.IncExtractionFailed()
		fields["status_transition"] = "pending->failed"
		fields["error"] = *next.ErrorMessage
		telemetry.Info("extraction.status", fields)
		return OutcomeFailed, nil
	}
	metrics.IncExtractionProcessed()
	fields["status_transition"] = "pending->processed"
	fields["text_len"] = len(text)
	telemetry.Info("extraction.status", fields)
	return OutcomeProcessed, nil
}

type result struct {
	text string
	err  error
}

// extract runs the extractor in its own goroutine so a parser that ignores ctx
// cannot hold the job past the timeout. Such a goroutine is abandoned, not killed.
func (w *Worker) extract(ctx context.Context, doc documents.Document) (string, error) {
	jobCtx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: fmt.Errorf("extractor panic: %v", rec)}
			}
		}()
		text, err := w.Registry.Extract(jobCtx, w.Store, doc.StoragePath, doc.MimeType)
		done <- result{text: text, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", w.timeoutError()
		}
		return r.text, r.err
	case <-jobCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", w.timeoutError()
	}
}

func (w *Worker) timeoutError() error {
	return fmt.Errorf("extraction timed out after %s", w.Timeout)
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.ReplaceAll(msg, "\x00", "")
	msg = strings.TrimSpace(msg)
	if len(msg) > maxErrorMessageLen {
		cut := maxErrorMessageLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	if msg == "" {
		msg = "extraction failed"
	}
	return msg
}

func durationMs(startedAt, finishedAt time.Time) float64 {
	return float64(finishedAt.Sub(startedAt).Microseconds()) / 1000.0
}
