package models

import "time"

// User is either a local account (Username + PasswordHash) or a federated
// one (GoogleID). Secrets holds the user's own submissions in order.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username,omitempty"`
	PasswordHash string    `json:"-"`
	GoogleID     string    `json:"-"`
	Secrets      []Secret  `json:"secrets"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasPassword reports whether the user can sign in with local credentials.
func (u User) HasPassword() bool {
	return u.PasswordHash != ""
}

type Secret struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
