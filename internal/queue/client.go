package queue

import (
	"context"
	"errors"
)

var (
	// ErrQueueFull is returned when a bounded backend cannot accept more jobs.
	ErrQueueFull = errors.New("queue full")
	// ErrQueueClosed is returned after Close.
	ErrQueueClosed = errors.New("queue closed")
)

// Producer hands extraction jobs to a queue backend.
type Producer interface {
	Enqueue(ctx context.Context, msg Message) error
}

// Consumer pulls deliveries from a queue backend. Receive returns an empty slice
// when nothing arrived within the backend's wait window.
type Consumer interface {
	Receive(ctx context.Context) ([]Delivery, error)
}

// Queue is a backend that can both produce and consume.
type Queue interface {
	Producer
	Consumer
	Close() error
}

// Recoverer is implemented by backends that park in-flight jobs and can hand them back
// after a consumer crash.
type Recoverer interface {
	Recover(ctx context.Context) (int, error)
}

// Delivery is one received job. A delivery that is never acked is redelivered
// by backends that support it.
type Delivery struct {
	ID           string
	Body         []byte
	ReceiveCount int
	ack          func(ctx context.Context) error
}

// NewDelivery builds a delivery around an ack callback. A nil ack is a no-op.
func NewDelivery(id string, body []byte, receiveCount int, ack func(ctx context.Context) error) Delivery {
	return Delivery{ID: id, Body: body, ReceiveCount: receiveCount, ack: ack}
}

// Ack confirms the job is finished and must not be delivered again.
func (d Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}
