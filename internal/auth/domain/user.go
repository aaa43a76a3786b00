package domain

import "time"

// User is an account record. ID is a UUID assigned at registration and
// PasswordHash is a bcrypt hash, never the plain password.
type User struct {
	ID           string
	Email        string
	Name         string
	PhoneNumber  string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}

// HasRole reports whether the user carries the named role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Session is the server side state behind a bearer token.
type Session struct {
	UserID string   `json:"userId"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles"`
}
