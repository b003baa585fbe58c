package users

import (
	"strings"
	"time"
)

// User is a signed-in account. Guests never get a row.
type User struct {
	ID           string
	Email        string
	FullName     string
	GivenName    string
	FamilyName   string
	PictureURL   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastSignInAt time.Time
}

// Profile is the account payload served by GET /me.
type Profile struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	FullName     string     `json:"fullName"`
	DisplayName  string     `json:"displayName"`
	PictureURL   string     `json:"pictureUrl"`
	MemberSince  time.Time  `json:"memberSince"`
	LastSignInAt *time.Time `json:"lastSignInAt,omitempty"`
}

// DisplayName falls back from the full name to given plus family name, then
// to the local part of the email.
func (u User) DisplayName() string {
	if name := strings.TrimSpace(u.FullName); name != "" {
		return name
	}
	if name := strings.TrimSpace(strings.TrimSpace(u.GivenName) + " " + strings.TrimSpace(u.FamilyName)); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(u.Email, "@"); ok && local != "" {
		return local
	}
	return u.Email
}

func (u User) Profile() Profile {
	p := Profile{
		ID:          u.ID,
		Email:       u.Email,
		FullName:    u.FullName,
		DisplayName: u.DisplayName(),
		PictureURL:  u.PictureURL,
		MemberSince: u.CreatedAt,
	}
	if !u.LastSignInAt.IsZero() {
		at := u.LastSignInAt
		p.LastSignInAt = &at
	}
	return p
}
