package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"log"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"coursedocs-backend/internal/bootstrap"
	"coursedocs-backend/internal/shared/config"
	"coursedocs-backend/internal/shared/metrics"
	"coursedocs-backend/internal/shared/telemetry"
	"coursedocs-backend/internal/workerproc"
)

var (
	initOnce sync.Once
	initErr  error
	app      *bootstrap.App
)

func initApp() {
	cfg := config.Load()
	telemetry.Setup(cfg.LogLevel, "")
	// The SQS event source owns delivery; the app queue is only used by the reconciler.
	built, err := bootstrap.Build(context.Background(), cfg, bootstrap.RoleAPI)
	if err != nil {
		initErr = err
		return
	}
	app = built
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		log.Printf("bootstrap error: %v", initErr)
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, initErr
	}
	return handleEvent(ctx, app.Worker, event), nil
}

// handleEvent reports infrastructure failures as batch item failures so SQS redelivers
// only those records. Poison messages are dropped.
func handleEvent(ctx context.Context, processor workerproc.Processor, event events.SQSEvent) events.SQSEventResponse {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range event.Records {
		metrics.IncJobsReceived()
		msg, outcome, err := workerproc.HandleMessage(ctx, processor, record.Body)
		fields := map[string]any{
			"sqs_message_id": record.MessageId,
			"document_id":    msg.DocumentID,
			"request_id":     msg.RequestID,
			"receive_count":  record.Attributes["ApproximateReceiveCount"],
		}
		switch {
		case err == nil:
			fields["outcome"] = string(outcome)
			telemetry.Info("worker.job.completed", fields)
		case workerproc.IsUnrecoverable(err):
			fields["error"] = err.Error()
			telemetry.Error("worker.job.dropped", fields)
			metrics.IncJobsDropped()
		default:
			fields["error"] = err.Error()
			telemetry.Error("worker.job.retry", fields)
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func main() {
	lambda.Start(handler)
}
