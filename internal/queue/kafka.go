package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaOptions configures the Kafka backend.
type KafkaOptions struct {
	Brokers []string
	Topic   string
	GroupID string
	Wait    time.Duration
}

// KafkaQueue produces jobs keyed by document id and consumes them through a consumer
// group. An Ack commits only once every earlier fetched offset on the same partition
// is acked too, so an unacked job is fetched again after a restart or rebalance.
type KafkaQueue struct {
	writer  *kafka.Writer
	reader  *kafka.Reader
	wait    time.Duration
	offsets *offsetTracker
}

// NewKafkaQueue builds a writer and a group reader for the topic.
func NewKafkaQueue(opts KafkaOptions) (*KafkaQueue, error) {
	if len(opts.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if opts.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	if opts.Wait <= 0 {
		opts.Wait = time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Topic:        opts.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}

	var reader *kafka.Reader
	if opts.GroupID != "" {
		reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  opts.Brokers,
			GroupID:  opts.GroupID,
			Topic:    opts.Topic,
			MinBytes: 1,
			MaxBytes: 10e6,
		})
	}

	q := &KafkaQueue{writer: writer, reader: reader, wait: opts.Wait}
	if reader != nil {
		q.offsets = newOffsetTracker(reader)
	}
	return q, nil
}

// Enqueue writes the job with the document id as the partition key.
func (q *KafkaQueue) Enqueue(ctx context.Context, msg Message) error {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode kafka message: %w", err)
	}
	if err := q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.DocumentID),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("kafka write %s: %w", q.writer.Topic, err)
	}
	return nil
}

// Receive fetches one message, waiting at most the configured window.
func (q *KafkaQueue) Receive(ctx context.Context) ([]Delivery, error) {
	if q.reader == nil {
		return nil, fmt.Errorf("kafka consumer group is not configured")
	}
	fetchCtx, cancel := context.WithTimeout(ctx, q.wait)
	defer cancel()

	m, err := q.reader.FetchMessage(fetchCtx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("kafka fetch: %w", err)
	}
	q.offsets.track(m)
	return []Delivery{q.offsets.delivery(m)}, nil
}

type committer interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// offsetTracker remembers fetched offsets per partition in fetch order and
// commits the highest offset below which everything has been acked.
type offsetTracker struct {
	mu        sync.Mutex
	committer committer
	fetched   map[int][]kafka.Message
	acked     map[int]map[int64]bool
}

func newOffsetTracker(c committer) *offsetTracker {
	return &offsetTracker{
		committer: c,
		fetched:   make(map[int][]kafka.Message),
		acked:     make(map[int]map[int64]bool),
	}
}

func (t *offsetTracker) track(m kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.fetched[m.Partition]
	// An offset at or below the last fetched one means the partition was reassigned
	// and is being read again from its committed offset.
	if n := len(list); n > 0 && m.Offset <= list[n-1].Offset {
		list = nil
		delete(t.acked, m.Partition)
	}
	t.fetched[m.Partition] = append(list, m)
}

func (t *offsetTracker) delivery(m kafka.Message) Delivery {
	return NewDelivery(deliveryID(m), m.Value, 1, func(ctx context.Context) error {
		return t.ack(ctx, m)
	})
}

func (t *offsetTracker) ack(ctx context.Context, m kafka.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	acked := t.acked[m.Partition]
	if acked == nil {
		acked = make(map[int64]bool)
		t.acked[m.Partition] = acked
	}
	acked[m.Offset] = true

	list := t.fetched[m.Partition]
	n := 0
	for n < len(list) && acked[list[n].Offset] {
		n++
	}
	if n == 0 {
		return nil
	}
	if err := t.committer.CommitMessages(ctx, list[n-1]); err != nil {
		return fmt.Errorf("kafka commit %s: %w", deliveryID(list[n-1]), err)
	}
	for _, done := range list[:n] {
		delete(acked, done.Offset)
	}
	t.fetched[m.Partition] = list[n:]
	return nil
}

func deliveryID(m kafka.Message) string {
	return m.Topic + "/" + strconv.Itoa(m.Partition) + "/" + strconv.FormatInt(m.Offset, 10)
}

// Close flushes the writer and leaves the consumer group.
func (q *KafkaQueue) Close() error {
	var errs []error
	if err := q.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close kafka writer: %w", err))
	}
	if q.reader != nil {
		if err := q.reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka reader: %w", err))
		}
	}
	return errors.Join(errs...)
}

var _ Queue = (*KafkaQueue)(nil)
