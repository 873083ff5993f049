package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	identBytes  = 4
	secretBytes = 32
)

// Hasher hashes secrets for storage.
type Hasher interface {
	Hash(secret string) (string, error)
}

// GenerateAPIKey returns the token to hand to the client once
// ("<ident>-<secret>") and the material to store ("<ident>-<hash>").
func GenerateAPIKey(h Hasher) (token, material string, err error) {
	id := make([]byte, identBytes)
	if _, err := rand.Read(id); err != nil {
		return "", "", fmt.Errorf("generate ident: %w", err)
	}
	sec := make([]byte, secretBytes)
	if _, err := rand.Read(sec); err != nil {
		return "", "", fmt.Errorf("generate secret: %w", err)
	}

	ident := hex.EncodeToString(id)
	secret := base64.RawURLEncoding.EncodeToString(sec)

	hash, err := h.Hash(secret)
	if err != nil {
		return "", "", fmt.Errorf("hash api key secret: %w", err)
	}

	return ident + "-" + secret, ident + "-" + hash, nil
}
