package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisQueue keeps jobs in a Redis list. Receive atomically moves a job onto a
// processing list; Ack removes it from there. Jobs left on the processing list by a
// crashed worker are handed back by Recover.
type RedisQueue struct {
	client     *redis.Client
	key        string
	processing string
	wait       time.Duration
}

// NewRedisQueue constructs a queue on the given client and list key.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{
		client:     client,
		key:        key,
		processing: key + ":processing",
		wait:       time.Second,
	}
}

// WithWait sets the blocking pop timeout.
func (q *RedisQueue) WithWait(d time.Duration) *RedisQueue {
	if d > 0 {
		q.wait = d
	}
	return q
}

// Enqueue pushes a job onto the list.
func (q *RedisQueue) Enqueue(ctx context.Context, msg Message) error {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode redis message: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("redis lpush %s: %w", q.key, err)
	}
	return nil
}

// Receive blocks up to the wait window for one job.
func (q *RedisQueue) Receive(ctx context.Context) ([]Delivery, error) {
	payload, err := q.client.BRPopLPush(ctx, q.key, q.processing, q.wait).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("redis brpoplpush %s: %w", q.key, err)
	}

	body := []byte(payload)
	return []Delivery{NewDelivery(payload, body, 1, func(ctx context.Context) error {
		if err := q.client.LRem(ctx, q.processing, 1, payload).Err(); err != nil {
			return fmt.Errorf("redis lrem %s: %w", q.processing, err)
		}
		return nil
	})}, nil
}

// Recover moves every job from the processing list back onto the queue.
// Call it before consumers start; jobs still running elsewhere would be duplicated.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.RPopLPush(ctx, q.processing, q.key).Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("redis rpoplpush %s: %w", q.processing, err)
		}
		moved++
	}
}

// Depth returns the queued and in-flight job counts.
func (q *RedisQueue) Depth(ctx context.Context) (queued, inflight int64, err error) {
	queued, err = q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis llen %s: %w", q.key, err)
	}
	inflight, err = q.client.LLen(ctx, q.processing).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis llen %s: %w", q.processing, err)
	}
	return queued, inflight, nil
}

// Close releases the Redis client.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

var (
	_ Queue     = (*RedisQueue)(nil)
	_ Recoverer = (*RedisQueue)(nil)
)
