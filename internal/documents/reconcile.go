package documents

import (
	"context"
	"sync"
	"time"

	"coursedocs-backend/internal/queue"
	"coursedocs-backend/internal/shared/metrics"
	"coursedocs-backend/internal/shared/telemetry"
)

// ReconcilerOptions controls the pending sweep.
type ReconcilerOptions struct {
	StaleAfter time.Duration
	Interval   time.Duration
	BatchSize  int
}

// Reconciler re-enqueues documents that stayed pending longer than StaleAfter,
// covering jobs lost between record creation and queue delivery. Each id is
// re-enqueued at most once per StaleAfter by a given Reconciler.
type Reconciler struct {
	Repo  DocumentsRepo
	Queue queue.Producer
	Opts  ReconcilerOptions

	now func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewReconciler constructs a Reconciler, filling zero options with defaults.
func NewReconciler(repo DocumentsRepo, producer queue.Producer, opts ReconcilerOptions) *Reconciler {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 10 * time.Minute
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Reconciler{
		Repo:     repo,
		Queue:    producer,
		Opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
		lastSent: make(map[string]time.Time),
	}
}

// SweepOnce re-enqueues one batch of stale pending documents and returns how many were sent.
func (r *Reconciler) SweepOnce(ctx context.Context) (int, error) {
	now := r.now()
	cutoff := now.Add(-r.Opts.StaleAfter)
	docs, err := r.Repo.ListStalePending(ctx, cutoff, r.Opts.BatchSize)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastSent == nil {
		r.lastSent = make(map[string]time.Time)
	}
	for id, at := range r.lastSent {
		if now.Sub(at) >= r.Opts.StaleAfter {
			delete(r.lastSent, id)
		}
	}

	sent, skipped := 0, 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if _, recent := r.lastSent[doc.ID]; recent {
			skipped++
			continue
		}
		if err := r.Queue.Enqueue(ctx, queue.NewMessage(doc.ID, "", now)); err != nil {
			metrics.IncEnqueueFailed()
			telemetry.Error("reconciler.enqueue_failed", map[string]any{
				"document_id": doc.ID,
				"error":       err.Error(),
			})
			continue
		}
		r.lastSent[doc.ID] = now
		metrics.IncJobsRequeued()
		sent++
	}

	if len(docs) > 0 {
		telemetry.Info("reconciler.sweep", map[string]any{
			"stale":     len(docs),
			"requeued":  sent,
			"skipped":   skipped,
			"cutoff":    cutoff.Format(time.RFC3339),
			"batchSize": r.Opts.BatchSize,
		})
	}
	return sent, nil
}

// Run sweeps every Interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Opts.Interval)
	defer ticker.Stop()
	for {
		if _, err := r.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			telemetry.Error("reconciler.sweep_failed", map[string]any{"error": err.Error()})
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
