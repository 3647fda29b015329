package queue

import (
	"context"
	"strconv"
	"sync"
	"time"
)

const defaultMemoryWait = time.Second

// MemoryQueue is a bounded in-process queue. Received jobs stay in flight until acked
// and Recover puts unacked jobs back.
type MemoryQueue struct {
	ch       chan []byte
	wait     time.Duration
	batch    int
	mu       sync.Mutex
	closed   bool
	seq      uint64
	inflight map[string][]byte
}

// NewMemoryQueue constructs a queue holding at most size pending jobs.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1024
	}
	return &MemoryQueue{
		ch:       make(chan []byte, size),
		wait:     defaultMemoryWait,
		batch:    10,
		inflight: make(map[string][]byte),
	}
}

// WithWait sets how long Receive blocks when the queue is empty.
func (q *MemoryQueue) WithWait(d time.Duration) *MemoryQueue {
	if d > 0 {
		q.wait = d
	}
	return q
}

// Enqueue adds a job without blocking.
func (q *MemoryQueue) Enqueue(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := EncodeMessage(msg)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- payload:
		return nil
	default:
		return ErrQueueFull
	}
}

// Receive waits up to the configured wait for a job and then drains up to a batch.
func (q *MemoryQueue) Receive(ctx context.Context) ([]Delivery, error) {
	timer := time.NewTimer(q.wait)
	defer timer.Stop()

	var first []byte
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case payload, ok := <-q.ch:
		if !ok {
			return nil, ErrQueueClosed
		}
		first = payload
	}

	out := []Delivery{q.track(first)}
	for len(out) < q.batch {
		select {
		case payload, ok := <-q.ch:
			if !ok {
				return out, nil
			}
			out = append(out, q.track(payload))
		default:
			return out, nil
		}
	}
	return out, nil
}

func (q *MemoryQueue) track(payload []byte) Delivery {
	q.mu.Lock()
	q.seq++
	id := strconv.FormatUint(q.seq, 10)
	q.inflight[id] = payload
	q.mu.Unlock()

	return NewDelivery(id, payload, 1, func(context.Context) error {
		q.mu.Lock()
		delete(q.inflight, id)
		q.mu.Unlock()
		return nil
	})
}

// Recover moves unacked in-flight jobs back onto the queue.
func (q *MemoryQueue) Recover(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, ErrQueueClosed
	}
	moved := 0
	for id, payload := range q.inflight {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		select {
		case q.ch <- payload:
			delete(q.inflight, id)
			moved++
		default:
			return moved, ErrQueueFull
		}
	}
	return moved, nil
}

// Pending returns the number of queued and in-flight jobs.
func (q *MemoryQueue) Pending() (queued, inflight int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ch), len(q.inflight)
}

// Close stops accepting jobs. Already queued jobs can still be received.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}

var (
	_ Queue     = (*MemoryQueue)(nil)
	_ Recoverer = (*MemoryQueue)(nil)
)
