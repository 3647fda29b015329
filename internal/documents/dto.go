package documents

import "time"

// DocumentResponse is the public projection of a document.
type DocumentResponse struct {
	ID               string    `json:"id"`
	OriginalFilename string    `json:"original_filename"`
	MimeType         string    `json:"mime_type"`
	SizeBytes        int64     `json:"size_bytes"`
	UploadedAt       time.Time `json:"uploaded_at"`
	ProcessingState  State     `json:"processing_state"`
}

// DocumentDetailResponse adds extraction results to the public projection.
type DocumentDetailResponse struct {
	DocumentResponse
	ContainerID   string     `json:"container_id"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	ExtractedText *string    `json:"extracted_text,omitempty"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
}

func toResponse(doc Document) DocumentResponse {
	return DocumentResponse{
		ID:               doc.ID,
		OriginalFilename: doc.OriginalFilename,
		MimeType:         doc.MimeType,
		SizeBytes:        doc.SizeBytes,
		UploadedAt:       doc.UploadedAt,
		ProcessingState:  doc.State,
	}
}

func toDetailResponse(doc Document) DocumentDetailResponse {
	return DocumentDetailResponse{
		DocumentResponse: toResponse(doc),
		ContainerID:      doc.ContainerID,
		ProcessedAt:      doc.ProcessedAt,
		ExtractedText:    doc.ExtractedText,
		ErrorMessage:     doc.ErrorMessage,
	}
}
