package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/appauth/internal/api/middleware"
	"github.com/kiranshivaraju/appauth/internal/api/response"
	"github.com/kiranshivaraju/appauth/internal/authz"
	"github.com/kiranshivaraju/appauth/internal/store"
	"github.com/kiranshivaraju/appauth/pkg/models"
)

// PermissionResolver computes effective permissions.
type PermissionResolver interface {
	EffectivePermissions(ctx context.Context, user *models.User) (authz.Set, error)
}

// UserGetter loads a user by id.
type UserGetter interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

type permissionsResponse struct {
	User        models.PublicUser `json:"user"`
	Permissions []string          `json:"permissions"`
}

// NewMeHandler returns an http.HandlerFunc for GET /me.
func NewMeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.GetUser(r)
		if !ok {
			response.Unauthorized(w)
			return
		}
		response.JSON(w, user.Public())
	}
}

// NewMyPermissionsHandler returns an http.HandlerFunc for GET /me/permissions.
func NewMyPermissionsHandler(resolver PermissionResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.GetUser(r)
		if !ok {
			response.Unauthorized(w)
			return
		}
		writePermissions(w, r, resolver, user)
	}
}

// NewUserPermissionsHandler returns an http.HandlerFunc for
// GET /admin/users/{userID}/permissions.
func NewUserPermissionsHandler(users UserGetter, resolver PermissionResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
		if err != nil || id <= 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "userID must be a positive integer", nil)
			return
		}

		user, err := users.GetUser(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "User not found", nil)
			return
		}
		if err != nil {
			slog.ErrorContext(r.Context(), "load user failed", "error", err, "user_id", id)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load user", nil)
			return
		}
		writePermissions(w, r, resolver, user)
	}
}

func writePermissions(w http.ResponseWriter, r *http.Request, resolver PermissionResolver, user *models.User) {
	set, err := resolver.EffectivePermissions(r.Context(), user)
	if err != nil {
		slog.ErrorContext(r.Context(), "resolve permissions failed", "error", err, "user_id", user.ID)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to resolve permissions", nil)
		return
	}
	response.JSON(w, permissionsResponse{User: user.Public(), Permissions: set.Names()})
}
