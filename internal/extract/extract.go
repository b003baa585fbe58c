package extract

import (
	"context"
	"fmt"
	"io"

	"contract-analyzer/internal/apperr"
	"contract-analyzer/internal/shared/storage/object"
)

// DefaultMaxBytes is the upload ceiling used when none is configured.
const DefaultMaxBytes int64 = 10 << 20

// Document is an uploaded file awaiting extraction.
type Document struct {
	Data     []byte
	MimeType string
	FileName string
	Size     int64
}

// Extractor converts documents to plain text.
type Extractor struct {
	// MaxBytes caps the accepted document size. Zero means DefaultMaxBytes.
	MaxBytes int64
}

// New returns an Extractor with the given size ceiling.
func New(maxBytes int64) *Extractor {
	return &Extractor{MaxBytes: maxBytes}
}

func (e *Extractor) maxBytes() int64 {
	if e == nil || e.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return e.MaxBytes
}

// Validate checks size and type without reading content.
func (e *Extractor) Validate(doc Document) error {
	size := doc.Size
	if size <= 0 {
		size = int64(len(doc.Data))
	}
	if limit := e.maxBytes(); size > limit {
		return apperr.New(apperr.KindFileRead, apperr.MsgFileTooLarge,
			fmt.Sprintf("File size: %d bytes. Maximum allowed: %d bytes", size, limit))
	}
	if resolveFormat(doc.MimeType, doc.FileName, doc.Data) == formatUnknown {
		return unsupported(doc.MimeType)
	}
	return nil
}

// Extract returns the text content of doc. Every failure is an *apperr.Error.
func (e *Extractor) Extract(ctx context.Context, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperr.Wrap(apperr.KindFileRead, "Failed to extract file content", err)
	}
	if err := e.Validate(doc); err != nil {
		return "", err
	}

	switch resolveFormat(doc.MimeType, doc.FileName, doc.Data) {
	case formatPDF:
		text, err := extractPDF(doc.Data)
		if err != nil {
			return "", apperr.Wrap(apperr.KindPDFExtraction, "Failed to extract text from PDF", err)
		}
		return text, nil
	case formatDOCX:
		text, err := extractDOCX(doc.Data)
		if err != nil {
			return "", apperr.Wrap(apperr.KindDOCXExtraction, "Failed to extract text from DOCX", err)
		}
		return text, nil
	case formatText:
		text, err := decodeText(doc.Data)
		if err != nil {
			return "", apperr.Wrap(apperr.KindFileRead, "Failed to extract file content", err)
		}
		return text, nil
	default:
		return "", unsupported(doc.MimeType)
	}
}

// ExtractStored reads an object from store and extracts its text.
func (e *Extractor) ExtractStored(ctx context.Context, store object.ObjectStore, key, mimeType, fileName string) (string, error) {
	body, err := store.Open(ctx, key)
	if err != nil {
		return "", apperr.Wrap(apperr.KindFileRead, "Failed to read stored document", fmt.Errorf("open key=%s: %w", key, err))
	}
	defer body.Close()

	limit := e.maxBytes()
	raw, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return "", apperr.Wrap(apperr.KindFileRead, "Failed to read stored document", fmt.Errorf("read key=%s: %w", key, err))
	}

	return e.Extract(ctx, Document{
		Data:     raw,
		MimeType: mimeType,
		FileName: fileName,
		Size:     int64(len(raw)),
	})
}

func unsupported(mimeType string) error {
	return apperr.New(apperr.KindUnsupportedFileType, "Only PDF, DOCX and TXT files are supported",
		fmt.Sprintf("File type: %s. Supported types: %s, %s, %s, %s", mimeType, mimePDF, mimeMSWord, mimeDOCX, mimeText))
}
