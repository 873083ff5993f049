// Package session manages cookie sessions: creation, validation with
// two-phase cookie rotation, bulk rotation and logout.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/appauth/internal/auth"
	"github.com/kiranshivaraju/appauth/internal/store"
	"github.com/kiranshivaraju/appauth/pkg/models"
)

// Store is the subset of store.Store the manager uses.
type Store interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	store.SessionStore
}

// Result is the outcome of a successful Validate.
type Result struct {
	Session *models.Session
	User    *models.User
	// NextCookie is set when the client should switch to a new cookie value.
	NextCookie string
}

// Manager implements the session lifecycle on top of the store.
type Manager struct {
	store     Store
	newCookie func() string
}

// NewManager creates a new Manager.
func NewManager(s Store) *Manager {
	return &Manager{store: s, newCookie: uuid.NewString}
}

// Login creates an active session for user and returns it. The cookie value
// is in the returned session.
func (m *Manager) Login(ctx context.Context, user *models.User) (*models.Session, error) {
	sess := &models.Session{UserID: user.ID, Cookie: m.newCookie()}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Validate resolves a presented cookie value to its session and user.
//
// A pending-rotation session is still honored under its old cookie, and the
// result carries the next value to hand out. Presenting the next value
// promotes it; the old value is dead from then on.
func (m *Manager) Validate(ctx context.Context, cookie string) (*Result, error) {
	if cookie == "" {
		return nil, auth.ErrNotAuthenticated
	}

	sess, err := m.find(ctx, cookie)
	if err != nil {
		return nil, err
	}

	if sess.NextCookie != nil && *sess.NextCookie == cookie {
		sess, err = m.promote(ctx, sess, cookie)
		if err != nil {
			return nil, err
		}
	}

	user, err := m.store.GetUser(ctx, sess.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, auth.ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("load session owner: %w", err)
	}

	res := &Result{Session: sess, User: user}
	if sess.NextCookie != nil && sess.Cookie == cookie {
		res.NextCookie = *sess.NextCookie
	}
	return res, nil
}

func (m *Manager) find(ctx context.Context, value string) (*models.Session, error) {
	sess, err := m.store.FindSession(ctx, value)
	if errors.Is(err, store.ErrNotFound) {
		return nil, auth.ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return sess, nil
}

func (m *Manager) promote(ctx context.Context, sess *models.Session, next string) (*models.Session, error) {
	ok, err := m.store.PromoteNextCookie(ctx, sess.ID, next)
	if err != nil {
		return nil, fmt.Errorf("promote next cookie: %w", err)
	}
	if ok {
		sess.Cookie = next
		sess.NextCookie = nil
		return sess, nil
	}

	// Lost a race with another promotion or a logout.
	reread, err := m.find(ctx, next)
	if err != nil {
		return nil, err
	}
	if reread.Cookie != next {
		return nil, auth.ErrNotAuthenticated
	}
	return reread, nil
}

// RotateAllPending moves every active session to pending-rotation in one
// statement and returns the number of sessions moved. Sessions already
// pending keep their next value.
func (m *Manager) RotateAllPending(ctx context.Context) (int64, error) {
	n, err := m.store.AssignNextCookies(ctx)
	if err != nil {
		return 0, fmt.Errorf("rotate sessions: %w", err)
	}
	slog.InfoContext(ctx, "sessions rotated", "count", n)
	return n, nil
}

// Logout terminates the session identified by either of its cookie values.
// Logging out an unknown or finished session is not an error.
func (m *Manager) Logout(ctx context.Context, cookie string) error {
	if cookie == "" {
		return nil
	}
	if _, err := m.store.EndSession(ctx, cookie); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// Sessions lists the live sessions of a user.
func (m *Manager) Sessions(ctx context.Context, userID int64) ([]*models.Session, error) {
	sessions, err := m.store.ListSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}
