package models

import "strings"

// APIKey is a long-lived credential owned by exactly one user.
// Key holds "<ident>-<hash>": the ident is a non-secret lookup prefix and
// the hash is the password hash of the secret half handed to the client.
type APIKey struct {
	ID     int64  `db:"appuserapikey_id"         json:"id"`
	UserID int64  `db:"appuserapikey_appuser_id" json:"user_id"`
	Key    string `db:"appuserapikey_key"        json:"-"`
}

// Split returns the ident and hash halves of the stored key material.
// ok is false when the material carries no separator.
func (k *APIKey) Split() (ident, hash string, ok bool) {
	return SplitKey(k.Key)
}

// Ident returns the lookup prefix of the key.
func (k *APIKey) Ident() string {
	ident, _, _ := k.Split()
	return ident
}

// SplitKey splits "<ident>-<rest>" on the first '-'.
func SplitKey(s string) (ident, rest string, ok bool) {
	ident, rest, ok = strings.Cut(s, "-")
	return ident, rest, ok
}
