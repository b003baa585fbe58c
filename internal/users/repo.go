package users

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("user not found")

// Repo stores accounts. Upsert records a sign-in: the first one creates the
// row, later ones refresh the profile, and every call stamps LastSignInAt.
type Repo interface {
	Upsert(ctx context.Context, user User) error
	GetByID(ctx context.Context, userID string) (User, error)
}
