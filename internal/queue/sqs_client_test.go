package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type fakeSQS struct {
	sent      []string
	received  []sqstypes.Message
	deleted   []string
	sendErr   error
	lastInput *sqs.ReceiveMessageInput
}

func (f *fakeSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, aws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.lastInput = in
	return &sqs.ReceiveMessageOutput{Messages: f.received}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSClientEnqueueAndReceive(t *testing.T) {
	api := &fakeSQS{}
	client := NewSQSClientWithAPI(api, "https://sqs.local/q", 120)
	ctx := context.Background()

	if err := client.Enqueue(ctx, NewMessage("doc-1", "req", time.Now())); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(api.sent) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(api.sent))
	}

	api.received = []sqstypes.Message{{
		MessageId:     aws.String("m-1"),
		ReceiptHandle: aws.String("rh-1"),
		Body:          aws.String(api.sent[0]),
		Attributes:    map[string]string{"ApproximateReceiveCount": "3"},
	}}
	deliveries, err := client.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(deliveries) != 1 || deliveries[0].ID != "m-1" || deliveries[0].ReceiveCount != 3 {
		t.Fatalf("unexpected deliveries: %+v", deliveries)
	}
	if api.lastInput.VisibilityTimeout != 120 {
		t.Fatalf("expected visibility timeout 120, got %d", api.lastInput.VisibilityTimeout)
	}
	if err := deliveries[0].Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if len(api.deleted) != 1 || api.deleted[0] != "rh-1" {
		t.Fatalf("expected receipt rh-1 deleted, got %v", api.deleted)
	}
}

func TestSQSClientEnqueueWrapsError(t *testing.T) {
	boom := errors.New("throttled")
	client := NewSQSClientWithAPI(&fakeSQS{sendErr: boom}, "https://sqs.local/q", 0)
	if err := client.Enqueue(context.Background(), NewMessage("doc-1", "", time.Now())); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
