package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"

	mw "github.com/kiranshivaraju/appauth/internal/api/middleware"
	"github.com/kiranshivaraju/appauth/internal/api/response"
	"github.com/kiranshivaraju/appauth/internal/auth"
	"github.com/kiranshivaraju/appauth/internal/store"
	"github.com/kiranshivaraju/appauth/pkg/models"
)

// PasswordAuthenticator checks a name/password pair.
type PasswordAuthenticator interface {
	Password(ctx context.Context, name, password string) (*models.User, error)
}

// SessionLifecycle starts and ends sessions.
type SessionLifecycle interface {
	Login(ctx context.Context, user *models.User) (*models.Session, error)
	Logout(ctx context.Context, cookie string) error
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// NewLoginHandler returns an http.HandlerFunc for POST /login.
//
// Credentials come from a JSON body or from form/query values. Wrong
// credentials answer 200 {"success": false}; the body does not tell an
// unknown user from a wrong password.
func NewLoginHandler(tx store.TxRunner, authn PasswordAuthenticator, sessions SessionLifecycle, cookies mw.Cookies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := parseLogin(r)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		var sess *models.Session
		err = tx.WithTx(r.Context(), func(ctx context.Context) error {
			user, err := authn.Password(ctx, req.Username, req.Password)
			if err != nil {
				return err
			}
			sess, err = sessions.Login(ctx, user)
			return err
		})

		if errors.Is(err, auth.ErrNotAuthenticated) {
			response.Outcome(w, false)
			return
		}
		if err != nil {
			slog.ErrorContext(r.Context(), "login failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to log in", nil)
			return
		}

		slog.InfoContext(r.Context(), "session started", "user_id", sess.UserID, "session_id", sess.ID)
		cookies.Set(w, sess.Cookie)
		response.Outcome(w, true)
	}
}

func parseLogin(r *http.Request) (loginRequest, error) {
	var req loginRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, err
	}
	req.Username = r.FormValue("username")
	req.Password = r.FormValue("password")
	return req, nil
}

// NewLogoutHandler returns an http.HandlerFunc for POST /logout. The cookie
// is cleared whatever the outcome.
func NewLogoutHandler(tx store.TxRunner, sessions SessionLifecycle, cookies mw.Cookies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		value := cookies.Read(r)
		err := tx.WithTx(r.Context(), func(ctx context.Context) error {
			return sessions.Logout(ctx, value)
		})

		cookies.Clear(w)
		if err != nil {
			slog.ErrorContext(r.Context(), "logout failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to log out", nil)
			return
		}
		response.NoContent(w)
	}
}
