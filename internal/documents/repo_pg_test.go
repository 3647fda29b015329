package documents

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var pgColumns = []string{
	"id", "original_filename", "stored_filename", "mime_type", "size_bytes", "storage_path",
	"owner_id", "container_id", "checksum", "uploaded_at", "processing_state",
	"extracted_text", "processed_at", "error_message", "version",
}

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func pendingDoc() Document {
	return Document{
		ID:               "doc-1",
		OriginalFilename: "syllabus.pdf",
		StoredFilename:   "0123abcd_syllabus.pdf",
		MimeType:         MimePDF,
		SizeBytes:        2048,
		StoragePath:      "c0ffee/0123abcd_syllabus.pdf",
		OwnerID:          "instructor-1",
		ContainerID:      "course-1",
		Checksum:         "deadbeef",
		UploadedAt:       time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		State:            StatePending,
		Version:          1,
	}
}

func TestPGRepoCreateInsertsPendingRecord(t *testing.T) {
	repo, mock := newMockRepo(t)
	doc := pendingDoc()

	mock.ExpectExec("INSERT INTO documents").
		WithArgs(
			doc.ID,
			doc.OriginalFilename,
			doc.StoredFilename,
			doc.MimeType,
			doc.SizeBytes,
			doc.StoragePath,
			doc.OwnerID,
			doc.ContainerID,
			doc.Checksum,
			sqlmock.AnyArg(), // uploaded_at
			"pending",
			nil, // extracted_text
			nil, // processed_at
			nil, // error_message
			1,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := repo.Create(context.Background(), doc)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Version != 1 {
		t.Fatalf("expected version 1, got %d", created.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoCreateRejectsBrokenInvariants(t *testing.T) {
	repo, mock := newMockRepo(t)
	doc := pendingDoc()
	text := "leaked"
	doc.ExtractedText = &text

	if _, err := repo.Create(context.Background(), doc); err == nil {
		t.Fatalf("expected invariant error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no query expected: %v", err)
	}
}

const knownID = "0b6c2f43-8d0e-4c2a-9a57-1f4be3a2d001"

func TestPGRepoGetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = \\$1").
		WithArgs(knownID).
		WillReturnError(sql.ErrNoRows)

	if _, err := repo.GetByID(context.Background(), knownID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByIDMalformedIDIsNotFoundWithoutQuery(t *testing.T) {
	repo, mock := newMockRepo(t)

	for _, id := range []string{"abc", "", "doc-1", "0b6c2f43-8d0e-4c2a-9a57"} {
		if _, err := repo.GetByID(context.Background(), id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("GetByID(%q): expected ErrNotFound, got %v", id, err)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expected no queries: %v", err)
	}
}

func TestPGRepoGetByIDScansNullableFields(t *testing.T) {
	repo, mock := newMockRepo(t)
	processedAt := time.Date(2024, 3, 1, 9, 1, 0, 0, time.UTC)
	rows := sqlmock.NewRows(pgColumns).AddRow(
		knownID, "notes.txt", "aa_notes.txt", MimeText, int64(5), "k/aa_notes.txt",
		"owner", "course-1", "sum", time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), "processed",
		"Hello", processedAt, nil, 2,
	)
	mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = \\$1").
		WithArgs(knownID).
		WillReturnRows(rows)

	doc, err := repo.GetByID(context.Background(), knownID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if doc.State != StateProcessed || doc.ExtractedText == nil || *doc.ExtractedText != "Hello" {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if doc.ErrorMessage != nil {
		t.Fatalf("expected nil error message")
	}
	if doc.ProcessedAt == nil || !doc.ProcessedAt.Equal(processedAt) {
		t.Fatalf("expected processed_at %s, got %v", processedAt, doc.ProcessedAt)
	}
	if doc.Version != 2 {
		t.Fatalf("expected version 2, got %d", doc.Version)
	}
}

func TestPGRepoUpdateBumpsVersion(t *testing.T) {
	repo, mock := newMockRepo(t)
	doc, err := pendingDoc().MarkProcessed("Hello", time.Now())
	if err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}

	mock.ExpectExec("UPDATE documents").
		WithArgs("processed", "Hello", sqlmock.AnyArg(), nil, "doc-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := repo.Update(context.Background(), doc)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoUpdateVersionConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	doc, _ := pendingDoc().MarkFailed("bad pdf", time.Now())

	mock.ExpectExec("UPDATE documents").
		WithArgs("failed", nil, sqlmock.AnyArg(), "bad pdf", "doc-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	if _, err := repo.Update(context.Background(), doc); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoUpdateMissingRecord(t *testing.T) {
	repo, mock := newMockRepo(t)
	doc, _ := pendingDoc().MarkFailed("bad pdf", time.Now())

	mock.ExpectExec("UPDATE documents").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	if _, err := repo.Update(context.Background(), doc); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoListStalePending(t *testing.T) {
	repo, mock := newMockRepo(t)
	cutoff := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(pgColumns).
		AddRow("doc-1", "a.pdf", "1_a.pdf", MimePDF, int64(10), "k/1_a.pdf", "o", "c", "s1",
			cutoff.Add(-time.Hour), "pending", nil, nil, nil, 1).
		AddRow("doc-2", "b.txt", "2_b.txt", MimeText, int64(3), "k/2_b.txt", "o", "c", "s2",
			cutoff.Add(-30*time.Minute), "pending", nil, nil, nil, 1)

	mock.ExpectQuery("processing_state = 'pending' AND uploaded_at < \\$1").
		WithArgs(cutoff, 50).
		WillReturnRows(rows)

	docs, err := repo.ListStalePending(context.Background(), cutoff, 50)
	if err != nil {
		t.Fatalf("ListStalePending: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "doc-1" || docs[1].ID != "doc-2" {
		t.Fatalf("unexpected docs: %+v", docs)
	}
}

func TestPGRepoFindByChecksumNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("checksum = \\$2").
		WithArgs("course-1", "sum").
		WillReturnError(sql.ErrNoRows)

	if _, err := repo.FindByChecksum(context.Background(), "course-1", "sum"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
