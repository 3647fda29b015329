package documents

import (
	"fmt"
	"strings"
	"time"
)

// State is the processing state of a document.
type State string

const (
	StatePending   State = "pending"
	StateProcessed State = "processed"
	StateFailed    State = "failed"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s State) IsTerminal() bool {
	return s == StateProcessed || s == StateFailed
}

// Supported mime types.
const (
	MimePDF  = "application/pdf"
	MimeText = "text/plain"
)

// Document is the tracked record for one uploaded file.
type Document struct {
	ID               string
	OriginalFilename string
	StoredFilename   string
	MimeType         string
	SizeBytes        int64
	StoragePath      string
	OwnerID          string
	ContainerID      string
	Checksum         string
	UploadedAt       time.Time
	State            State
	ExtractedText    *string
	ProcessedAt      *time.Time
	ErrorMessage     *string
	Version          int
}

// MarkProcessed moves a pending document to processed with the given text.
func (d Document) MarkProcessed(text string, at time.Time) (Document, error) {
	if d.State != StatePending {
		return d, fmt.Errorf("%w: %s", ErrTerminalState, d.State)
	}
	at = at.UTC()
	d.State = StateProcessed
	d.ExtractedText = &text
	d.ErrorMessage = nil
	d.ProcessedAt = &at
	return d, nil
}

// MarkFailed moves a pending document to failed with the given cause.
func (d Document) MarkFailed(message string, at time.Time) (Document, error) {
	if d.State != StatePending {
		return d, fmt.Errorf("%w: %s", ErrTerminalState, d.State)
	}
	if message == "" {
		message = "extraction failed"
	}
	at = at.UTC()
	d.State = StateFailed
	d.ErrorMessage = &message
	d.ExtractedText = nil
	d.ProcessedAt = &at
	return d, nil
}

// CheckInvariants validates the state/field pairing rules of a record.
func (d Document) CheckInvariants() error {
	if d.ID == "" {
		return fmt.Errorf("document id is empty")
	}
	if d.SizeBytes <= 0 {
		return fmt.Errorf("document %s: size_bytes must be positive", d.ID)
	}
	switch d.State {
	case StatePending:
		if d.ExtractedText != nil || d.ErrorMessage != nil {
			return fmt.Errorf("document %s: pending record carries a result", d.ID)
		}
	case StateProcessed:
		if d.ExtractedText == nil || d.ErrorMessage != nil {
			return fmt.Errorf("document %s: processed record must carry text only", d.ID)
		}
	case StateFailed:
		if d.ErrorMessage == nil || d.ExtractedText != nil {
			return fmt.Errorf("document %s: failed record must carry an error only", d.ID)
		}
	default:
		return fmt.Errorf("document %s: unknown state %q", d.ID, d.State)
	}
	// Postgres text columns reject U+0000.
	for _, field := range []*string{d.ExtractedText, d.ErrorMessage} {
		if field != nil && strings.IndexByte(*field, 0) >= 0 {
			return fmt.Errorf("document %s: result contains a NUL byte", d.ID)
		}
	}
	return nil
}
