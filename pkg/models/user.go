// Package models contains shared data models used across the appauth codebase.
package models

// User is an identity record. A nil Password means the user cannot
// authenticate by password (service accounts, disabled users).
type User struct {
	ID       int64   `db:"appuser_id"       json:"id"`
	Name     string  `db:"appuser_name"     json:"name"`
	Password *string `db:"appuser_password" json:"-"`
}

// CanUsePassword reports whether a password hash is stored for the user.
func (u *User) CanUsePassword() bool {
	return u != nil && u.Password != nil
}

// PublicUser is the identity exposed over the API.
type PublicUser struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name}
}
