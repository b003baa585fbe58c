package documents

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"contract-analyzer/internal/extract"
	"contract-analyzer/internal/shared/storage/object"
)

// Validator rejects uploads the analysis pipeline cannot read.
type Validator interface {
	Validate(doc extract.Document) error
}

// Service contains business logic for documents.
type Service struct {
	Store       object.ObjectStore
	Repo        DocumentsRepo
	Validator   Validator
	StorageType string
	Now         func() time.Time
}

// Upload validates the file, saves it to object storage and records the document.
// The declared media type is kept when it is specific; otherwise the sniffed one is used.
func (s *Service) Upload(ctx context.Context, userID, fileName, declaredType string, data []byte) (Document, error) {
	fileName = strings.TrimSpace(fileName)
	if userID == "" || fileName == "" {
		return Document{}, ErrInvalidInput
	}
	if s.Validator != nil {
		if err := s.Validator.Validate(extract.Document{
			Data:     data,
			MimeType: declaredType,
			FileName: fileName,
			Size:     int64(len(data)),
		}); err != nil {
			return Document{}, err
		}
	}

	storageKey, size, sniffed, err := s.Store.Save(ctx, userID, fileName, bytes.NewReader(data))
	if err != nil {
		return Document{}, fmt.Errorf("save document: %w", err)
	}

	mimeType := strings.TrimSpace(declaredType)
	if mimeType == "" || strings.HasPrefix(mimeType, "application/octet-stream") {
		mimeType = sniffed
	}

	doc := Document{
		ID:              uuid.NewString(),
		UserID:          userID,
		FileName:        fileName,
		MimeType:        mimeType,
		SizeBytes:       size,
		StorageProvider: s.storageType(),
		StorageKey:      storageKey,
		CreatedAt:       s.now(),
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		return Document{}, fmt.Errorf("record document: %w", err)
	}
	return doc, nil
}

// Get returns a document owned by userID.
func (s *Service) Get(ctx context.Context, userID, documentID string) (Document, error) {
	if userID == "" || documentID == "" {
		return Document{}, ErrInvalidInput
	}
	return s.Repo.GetByID(ctx, userID, documentID)
}

// Current returns the current document for a user.
func (s *Service) Current(ctx context.Context, userID string) (Document, error) {
	if userID == "" {
		return Document{}, ErrInvalidInput
	}
	return s.Repo.GetCurrentByUser(ctx, userID)
}

// List returns a page of a user's documents, newest first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Document, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}

func (s *Service) storageType() string {
	if s.StorageType == "" {
		return "local"
	}
	return s.StorageType
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
