package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PGRepo struct {
	DB *sql.DB
}

const upsertUserSQL = `
INSERT INTO users (id, email, full_name, given_name, family_name, picture_url, created_at, updated_at, last_sign_in_at)
VALUES ($1, $2, $3, $4, $5, $6, now(), now(), now())
ON CONFLICT (id) DO UPDATE SET
  email = EXCLUDED.email,
  full_name = EXCLUDED.full_name,
  given_name = EXCLUDED.given_name,
  family_name = EXCLUDED.family_name,
  picture_url = EXCLUDED.picture_url,
  updated_at = now(),
  last_sign_in_at = now()`

const selectUserSQL = `
SELECT id, email, full_name, given_name, family_name, picture_url, created_at, updated_at, last_sign_in_at
FROM users
WHERE id = $1`

func (r *PGRepo) Upsert(ctx context.Context, user User) error {
	_, err := r.DB.ExecContext(ctx, upsertUserSQL,
		user.ID,
		user.Email,
		nullableString(user.FullName),
		nullableString(user.GivenName),
		nullableString(user.FamilyName),
		nullableString(user.PictureURL),
	)
	if err != nil {
		return fmt.Errorf("upsert user id=%s: %w", user.ID, err)
	}
	return nil
}

func (r *PGRepo) GetByID(ctx context.Context, userID string) (User, error) {
	var user User
	var email, fullName, givenName, familyName, pic sql.NullString
	var lastSignIn sql.NullTime
	err := r.DB.QueryRowContext(ctx, selectUserSQL, userID).Scan(
		&user.ID,
		&email,
		&fullName,
		&givenName,
		&familyName,
		&pic,
		&user.CreatedAt,
		&user.UpdatedAt,
		&lastSignIn,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("get user id=%s: %w", userID, err)
	}
	user.Email = email.String
	user.FullName = fullName.String
	user.GivenName = givenName.String
	user.FamilyName = familyName.String
	user.PictureURL = pic.String
	if lastSignIn.Valid {
		user.LastSignInAt = lastSignIn.Time
	}
	return user, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
