// Package auth resolves an identity from a password or an API key.
//
// Both paths spend one argon2id verification whether or not a matching
// record exists, so timing does not reveal which names or key idents exist.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/appauth/internal/credential"
	"github.com/kiranshivaraju/appauth/internal/store"
	"github.com/kiranshivaraju/appauth/pkg/models"
)

// ErrNotAuthenticated is the single outcome for every authentication failure.
// Callers must not be able to tell an unknown user from a wrong secret.
var ErrNotAuthenticated = errors.New("not authenticated")

// Users is the subset of the store the authenticator reads.
type Users interface {
	GetUserByName(ctx context.Context, name string) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	APIKeysByIdent(ctx context.Context, ident string) ([]*models.APIKey, error)
}

// Authenticator implements password and API key authentication.
type Authenticator struct {
	users    Users
	verifier credential.Verifier
}

// NewAuthenticator creates a new Authenticator.
func NewAuthenticator(users Users, verifier credential.Verifier) *Authenticator {
	return &Authenticator{users: users, verifier: verifier}
}

// Password authenticates name/password. The name match is case-insensitive.
// A user without a password hash never authenticates by password.
func (a *Authenticator) Password(ctx context.Context, name, password string) (*models.User, error) {
	user, err := a.users.GetUserByName(ctx, name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("look up user: %w", err)
	}

	if user == nil || !user.CanUsePassword() {
		a.verifier.VerifyDecoy(password)
		return nil, ErrNotAuthenticated
	}

	if !a.verifier.Verify(*user.Password, password) {
		return nil, ErrNotAuthenticated
	}
	return user, nil
}

// APIKey authenticates a bearer token of the form "<ident>-<secret>".
//
// Every stored key whose material starts with "<ident>-" is a candidate and
// is tried in id order; the first key whose hash verifies the secret wins.
// The cost is one verification per key sharing the ident.
func (a *Authenticator) APIKey(ctx context.Context, token string) (*models.User, error) {
	ident, secret, ok := models.SplitKey(token)
	if !ok || ident == "" || secret == "" {
		a.verifier.VerifyDecoy(secret)
		return nil, ErrNotAuthenticated
	}

	keys, err := a.users.APIKeysByIdent(ctx, ident)
	if err != nil {
		return nil, fmt.Errorf("look up api keys: %w", err)
	}
	if len(keys) == 0 {
		a.verifier.VerifyDecoy(secret)
		return nil, ErrNotAuthenticated
	}

	for _, key := range keys {
		_, hash, ok := key.Split()
		if !ok {
			a.verifier.VerifyDecoy(secret)
			continue
		}
		if !a.verifier.Verify(hash, secret) {
			continue
		}

		user, err := a.users.GetUser(ctx, key.UserID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotAuthenticated
		}
		if err != nil {
			return nil, fmt.Errorf("load api key owner: %w", err)
		}
		return user, nil
	}

	return nil, ErrNotAuthenticated
}
