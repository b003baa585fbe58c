package documents

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Document is an uploaded contract owned by a user.
type Document struct {
	ID              string
	UserID          string
	FileName        string
	MimeType        string
	SizeBytes       int64
	StorageProvider string
	StorageKey      string
	CreatedAt       time.Time
}

// DocumentResponse is the outward-facing representation of a document.
type DocumentResponse struct {
	DocumentID string    `json:"documentId"`
	FileName   string    `json:"fileName"`
	MimeType   string    `json:"mimeType"`
	SizeBytes  int64     `json:"sizeBytes"`
	UploadedAt time.Time `json:"uploadedAt"`
}

func toResponse(doc Document) DocumentResponse {
	return DocumentResponse{
		DocumentID: doc.ID,
		FileName:   doc.FileName,
		MimeType:   doc.MimeType,
		SizeBytes:  doc.SizeBytes,
		UploadedAt: doc.CreatedAt,
	}
}
