package object

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"contract-analyzer/internal/shared/util"
)

// SniffLen is how many leading bytes stores read to detect the content type.
const SniffLen = 3072

// ObjectStore defines the contract for saving and retrieving uploaded contracts.
type ObjectStore interface {
	Save(ctx context.Context, ownerID string, fileName string, r io.Reader) (storageKey string, sizeBytes int64, mimeType string, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
}

// DetectContentType sniffs the media type of head, without parameters.
func DetectContentType(head []byte) string {
	if len(head) == 0 {
		return "application/octet-stream"
	}
	mt := mimetype.Detect(head)
	for m := mt; m != nil; m = m.Parent() {
		switch m.String() {
		case "application/pdf",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"application/msword",
			"application/zip":
			return m.String()
		}
		if m.Is("text/plain") {
			return "text/plain"
		}
	}
	return mt.String()
}

// NewKey builds a storage key namespaced by a hash of the owner.
func NewKey(ownerID, fileName string) (string, error) {
	sanitized, err := util.SanitizeFileName(fileName)
	if err != nil {
		return "", fmt.Errorf("sanitize file name: %w", err)
	}
	return path.Join(util.OwnerKey(ownerID), uuid.NewString()+"_"+sanitized), nil
}

// Sniff reads up to SniffLen bytes from r and returns them with a reader
// that replays them ahead of the rest of r.
func Sniff(r io.Reader) ([]byte, io.Reader, error) {
	head := make([]byte, SniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, nil, fmt.Errorf("read sniff: %w", err)
	}
	head = head[:n]
	return head, io.MultiReader(bytes.NewReader(head), r), nil
}
