package users

import (
	"context"
	"errors"
	"strings"
)

// Service owns user records created by sign-in.
type Service struct {
	Repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

// UpsertFromAuth records a sign-in with the identity returned by the OAuth
// provider. Emails are stored lower-cased.
func (s *Service) UpsertFromAuth(ctx context.Context, user User) error {
	if s == nil || s.Repo == nil {
		return errors.New("users service not configured")
	}
	user.ID = strings.TrimSpace(user.ID)
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.ID == "" || user.Email == "" {
		return errors.New("user id and email are required")
	}
	user.FullName = strings.TrimSpace(user.FullName)
	return s.Repo.Upsert(ctx, user)
}

func (s *Service) GetByID(ctx context.Context, userID string) (User, error) {
	if s == nil || s.Repo == nil {
		return User{}, errors.New("users service not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return User{}, errors.New("user id is required")
	}
	return s.Repo.GetByID(ctx, userID)
}
