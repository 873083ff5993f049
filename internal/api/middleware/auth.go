package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/appauth/internal/api/response"
	"github.com/kiranshivaraju/appauth/internal/auth"
	"github.com/kiranshivaraju/appauth/internal/authz"
	"github.com/kiranshivaraju/appauth/internal/session"
	"github.com/kiranshivaraju/appauth/internal/store"
	"github.com/kiranshivaraju/appauth/pkg/models"
)

// Credentials authenticates non-browser clients.
type Credentials interface {
	Password(ctx context.Context, name, password string) (*models.User, error)
	APIKey(ctx context.Context, token string) (*models.User, error)
}

// Sessions validates session cookies.
type Sessions interface {
	Validate(ctx context.Context, cookie string) (*session.Result, error)
}

// Permissions checks a single permission.
type Permissions interface {
	Require(ctx context.Context, user *models.User, perm string) error
}

// Auth provides authentication and permission-checking middleware.
type Auth struct {
	tx       store.TxRunner
	creds    Credentials
	sessions Sessions
	perms    Permissions
	cookies  Cookies
}

// NewAuth creates a new Auth middleware.
func NewAuth(tx store.TxRunner, creds Credentials, sessions Sessions, perms Permissions, cookies Cookies) *Auth {
	return &Auth{tx: tx, creds: creds, sessions: sessions, perms: perms, cookies: cookies}
}

// Authenticate resolves the caller from the Authorization header (Bearer API
// key or Basic password) or, failing that, the session cookie, and sets the
// user in the request context. A session cookie due for rotation gets the
// next value re-issued.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			user       *models.User
			method     string
			nextCookie string
		)
		err := a.tx.WithTx(r.Context(), func(ctx context.Context) error {
			var err error
			user, method, nextCookie, err = a.identify(ctx, r)
			return err
		})

		if errors.Is(err, auth.ErrNotAuthenticated) {
			slog.InfoContext(r.Context(), "authentication rejected",
				"request_id", GetRequestID(r.Context()), "path", r.URL.Path)
			response.Unauthorized(w)
			return
		}
		if err != nil {
			slog.ErrorContext(r.Context(), "authentication failed", "error", err)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to authenticate request", nil)
			return
		}

		if nextCookie != "" {
			a.cookies.Set(w, nextCookie)
		}

		ctx := SetUser(r.Context(), user)
		ctx = setAuthMethod(ctx, method)
		noteIdentity(ctx, user.ID, method)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) identify(ctx context.Context, r *http.Request) (*models.User, string, string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, value, _ := strings.Cut(header, " ")
		value = strings.TrimSpace(value)

		switch {
		case strings.EqualFold(scheme, "Bearer"):
			user, err := a.creds.APIKey(ctx, value)
			return user, MethodAPIKey, "", err
		case strings.EqualFold(scheme, "Basic"):
			name, password, ok := r.BasicAuth()
			if !ok {
				return nil, "", "", auth.ErrNotAuthenticated
			}
			user, err := a.creds.Password(ctx, name, password)
			return user, MethodPassword, "", err
		default:
			return nil, "", "", auth.ErrNotAuthenticated
		}
	}

	cookie := a.cookies.Read(r)
	if cookie == "" {
		return nil, "", "", auth.ErrNotAuthenticated
	}
	res, err := a.sessions.Validate(ctx, cookie)
	if err != nil {
		return nil, "", "", err
	}
	return res.User, MethodSession, res.NextCookie, nil
}

// RequirePermission returns middleware that checks whether the authenticated
// user holds perm.
func (a *Auth) RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUser(r)
			if !ok {
				response.Unauthorized(w)
				return
			}

			err := a.perms.Require(r.Context(), user, perm)
			if errors.Is(err, authz.ErrForbidden) {
				response.Forbidden(w)
				return
			}
			if err != nil {
				slog.ErrorContext(r.Context(), "permission check failed", "error", err, "user_id", user.ID)
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "Failed to check permissions", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
