package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MessageVersion is the payload layout written by NewAnalysisMessage.
const MessageVersion = 1

// ErrUnsupportedVersion is returned for payloads written by a newer producer.
var ErrUnsupportedVersion = errors.New("unsupported analysis message version")

// Message asks a worker to run one queued contract analysis.
type Message struct {
	AnalysisID string `json:"analysisId"`
	DocumentID string `json:"documentId,omitempty"`
	RequestID  string `json:"requestId,omitempty"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// NewAnalysisMessage builds the job for analysisID, stamped at the given time.
func NewAnalysisMessage(analysisID, documentID, requestID string, at time.Time) Message {
	return Message{
		AnalysisID: analysisID,
		DocumentID: documentID,
		RequestID:  requestID,
		EnqueuedAt: at.UTC().Format(time.RFC3339),
		Version:    MessageVersion,
	}
}

// EnqueuedTime parses EnqueuedAt. It returns the zero time when the field is
// absent or malformed.
func (m Message) EnqueuedTime() time.Time {
	at, err := time.Parse(time.RFC3339, strings.TrimSpace(m.EnqueuedAt))
	if err != nil {
		return time.Time{}
	}
	return at
}

// EncodeMessage returns the JSON body sent to the queue.
func EncodeMessage(msg Message) ([]byte, error) {
	if strings.TrimSpace(msg.AnalysisID) == "" {
		return nil, errors.New("analysis id is required")
	}
	return json.Marshal(msg)
}

// DecodeMessage parses a queue body. Version 0 is read as the current layout.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if msg.Version > MessageVersion {
		return Message{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, msg.Version)
	}
	return msg, nil
}
