package store

import (
	"context"
	"errors"

	"github.com/kiranshivaraju/appauth/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// UserStore reads and writes identity records.
type UserStore interface {
	// GetUserByName matches name case-insensitively and exactly.
	GetUserByName(ctx context.Context, name string) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	// ListUsers returns every user ordered by ID.
	ListUsers(ctx context.Context) ([]*models.User, error)
	// SetUserPassword replaces the stored hash; nil disables password login.
	SetUserPassword(ctx context.Context, id int64, hash *string) error
}

// APIKeyStore reads and writes API key rows.
type APIKeyStore interface {
	// APIKeysByIdent returns every key whose material starts with ident+"-",
	// ordered by id.
	APIKeysByIdent(ctx context.Context, ident string) ([]*models.APIKey, error)
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
}

// SessionStore reads and writes login rows. Every write is a single
// conditional statement; row-level atomicity is the only concurrency control.
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.Session) error
	// FindSession returns the not-done row whose cookie or nextcookie equals value.
	FindSession(ctx context.Context, value string) (*models.Session, error)
	// PromoteNextCookie moves nextcookie into cookie if it still equals next.
	// It reports whether a row was updated.
	PromoteNextCookie(ctx context.Context, id int64, next string) (bool, error)
	// AssignNextCookies gives every active row a fresh nextcookie.
	AssignNextCookies(ctx context.Context) (int64, error)
	// EndSession marks the not-done row matching value as done.
	EndSession(ctx context.Context, value string) (int64, error)
	ListSessions(ctx context.Context, userID int64) ([]*models.Session, error)
}

// PermissionStore resolves permission grants.
type PermissionStore interface {
	// PermissionNames returns the union of the user's direct grants and the
	// grants of every group whose zoperole is in roles, sorted by name.
	PermissionNames(ctx context.Context, userID int64, roles []string) ([]string, error)

	GrantUserPermission(ctx context.Context, userID int64, perm string) error
	RevokeUserPermission(ctx context.Context, userID int64, perm string) error
	// GrantGroupPermission grants perm to the group mapped to role, creating
	// the group when none exists yet.
	GrantGroupPermission(ctx context.Context, role, perm string) error
}

// TxRunner runs fn as one unit of work. Store calls made with the context
// passed to fn join the transaction. It commits when fn returns nil and
// rolls back on error or panic. Nested calls join the outer transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store is the data access interface. All database operations go through here.
type Store interface {
	UserStore
	APIKeyStore
	SessionStore
	PermissionStore
	TxRunner

	Ping(ctx context.Context) error
}
