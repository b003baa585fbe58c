package documents

import "context"

// DocumentsRepo defines persistence operations for documents.
type DocumentsRepo interface {
	Create(ctx context.Context, doc Document) error
	GetByID(ctx context.Context, userID, documentID string) (Document, error)
	GetCurrentByUser(ctx context.Context, userID string) (Document, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Document, error)
}
