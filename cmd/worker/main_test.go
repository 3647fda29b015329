package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"coursedocs-backend/internal/bootstrap"
	"coursedocs-backend/internal/documents"
	"coursedocs-backend/internal/shared/config"
)

func TestRunProcessesUploadedDocument(t *testing.T) {
	cfg := config.Defaults()
	cfg.LocalStoreDir = t.TempDir()
	cfg.SweepInterval = 10 * time.Millisecond
	cfg.ShutdownTimeout = time.Second

	app, err := bootstrap.Build(context.Background(), cfg, bootstrap.RoleWorker)
	if err != nil {
		t.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	doc, err := app.Documents.Upload(context.Background(), documents.UploadInput{
		Body:         strings.NewReader("week one reading list"),
		DeclaredMime: "text/plain",
		OwnerID:      "instructor-1",
		ContainerID:  "course-1",
		FileName:     "notes.txt",
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, app) }()

	deadline := time.Now().Add(3 * time.Second)
	for {
		got, err := app.Repo.GetByID(context.Background(), doc.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.State == documents.StateProcessed {
			if got.ExtractedText == nil || *got.ExtractedText != "week one reading list" {
				t.Fatalf("unexpected extracted text %v", got.ExtractedText)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("document still %s", got.State)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not stop")
	}
}
