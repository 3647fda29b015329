package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"coursedocs-backend/internal/extraction"
	"coursedocs-backend/internal/queue"
)

type fakeProcessor struct {
	failFor map[string]bool
}

func (f fakeProcessor) Process(ctx context.Context, documentID string) (extraction.Outcome, error) {
	if f.failFor[documentID] {
		return "", errors.New("database unavailable")
	}
	return extraction.OutcomeProcessed, nil
}

func record(id, body string) events.SQSMessage {
	return events.SQSMessage{MessageId: id, Body: body}
}

func encoded(t *testing.T, documentID string) string {
	t.Helper()
	body, err := queue.EncodeMessage(queue.Message{DocumentID: documentID, RequestID: "req-" + documentID})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return string(body)
}

func TestHandleEventReportsOnlyInfraFailures(t *testing.T) {
	event := events.SQSEvent{Records: []events.SQSMessage{
		record("m1", encoded(t, "doc-ok")),
		record("m2", encoded(t, "doc-down")),
		record("m3", "{not json"),
		record("m4", ""),
	}}

	resp := handleEvent(context.Background(), fakeProcessor{failFor: map[string]bool{"doc-down": true}}, event)

	if len(resp.BatchItemFailures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(resp.BatchItemFailures))
	}
	if resp.BatchItemFailures[0].ItemIdentifier != "m2" {
		t.Fatalf("expected m2 to be retried, got %s", resp.BatchItemFailures[0].ItemIdentifier)
	}
}
