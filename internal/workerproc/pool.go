package workerproc

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"coursedocs-backend/internal/queue"
	"coursedocs-backend/internal/shared/metrics"
	"coursedocs-backend/internal/shared/telemetry"
)

const (
	defaultConcurrency     = 4
	defaultShutdownTimeout = 30 * time.Second
	receiveErrorBackoff    = time.Second
)

// Pool consumes deliveries and runs them with bounded concurrency.
type Pool struct {
	Consumer        queue.Consumer
	Processor       Processor
	Concurrency     int
	ShutdownTimeout time.Duration
}

// Run polls until ctx is cancelled or the queue is closed, then waits up to
// ShutdownTimeout for in-flight jobs. Jobs keep running after ctx is cancelled
// and are only cancelled once the shutdown timeout expires.
func (p *Pool) Run(ctx context.Context) error {
	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	shutdownTimeout := p.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	jobCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelJobs()

	var g errgroup.Group
	g.SetLimit(concurrency)

	telemetry.Info("worker.started", map[string]any{"concurrency": concurrency})

	var runErr error
pollLoop:
	for {
		if ctx.Err() != nil {
			break
		}
		deliveries, err := p.Consumer.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, queue.ErrQueueClosed) {
				break
			}
			telemetry.Error("worker.receive_failed", map[string]any{"error": err.Error()})
			select {
			case <-ctx.Done():
				break pollLoop
			case <-time.After(receiveErrorBackoff):
			}
			continue
		}

		for _, d := range deliveries {
			d := d
			metrics.IncJobsReceived()
			// Go blocks while the pool is full, which stops polling.
			g.Go(func() error {
				p.HandleDelivery(jobCtx, d)
				return nil
			})
		}
	}

	telemetry.Info("worker.shutdown_requested", map[string]any{"timeout": shutdownTimeout.String()})
	waitDone := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		telemetry.Warn("worker.shutdown_timeout", map[string]any{"timeout": shutdownTimeout.String()})
		cancelJobs()
		runErr = errors.New("shutdown timeout reached with in-flight jobs")
	}
	return runErr
}

// HandleDelivery runs one delivery and acks it unless an infrastructure error occurred.
// It reports whether the delivery was acked.
func (p *Pool) HandleDelivery(ctx context.Context, d queue.Delivery) bool {
	body := string(d.Body)
	msg, outcome, err := HandleMessage(ctx, p.Processor, body)
	if err != nil {
		if IsUnrecoverable(err) {
			meta := ComputeMeta(body)
			fields := baseFields(d, msg.DocumentID, msg.RequestID)
			fields["body_len"] = meta.BodyLen
			if meta.BodySHA != "" {
				fields["body_sha256"] = meta.BodySHA
			}
			fields["error"] = err.Error()
			telemetry.Error("worker.job.dropped", fields)
			if ack(ctx, d, fields) {
				metrics.IncJobsDropped()
			}
			return true
		}

		fields := baseFields(d, msg.DocumentID, msg.RequestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.job.retry", fields)
		return false
	}

	fields := baseFields(d, msg.DocumentID, msg.RequestID)
	fields["outcome"] = string(outcome)
	if !ack(ctx, d, fields) {
		return false
	}
	telemetry.Info("worker.job.completed", fields)
	return true
}

func ack(ctx context.Context, d queue.Delivery, fields map[string]any) bool {
	if err := d.Ack(ctx); err != nil {
		fields["error"] = err.Error()
		telemetry.Error("worker.job.ack_failed", fields)
		return false
	}
	return true
}

func baseFields(d queue.Delivery, documentID, requestID string) map[string]any {
	fields := map[string]any{
		"document_id":   documentID,
		"delivery_id":   d.ID,
		"receive_count": d.ReceiveCount,
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
	}
	return fields
}
