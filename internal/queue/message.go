package queue

import (
	"encoding/json"
	"time"
)

// MessageVersion is the current job payload version.
const MessageVersion = 1

// Message is the extraction job payload. Only the document id is required;
// the rest is carried for tracing.
type Message struct {
	DocumentID string `json:"documentId"`
	RequestID  string `json:"requestId,omitempty"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// NewMessage builds a job for documentID stamped with now.
func NewMessage(documentID, requestID string, now time.Time) Message {
	return Message{
		DocumentID: documentID,
		RequestID:  requestID,
		EnqueuedAt: now.UTC().Format(time.RFC3339Nano),
		Version:    MessageVersion,
	}
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
