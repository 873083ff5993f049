package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/appauth/internal/api/middleware"
	"github.com/kiranshivaraju/appauth/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit
	// AdminPermission gates the /admin routes.
	AdminPermission string

	HealthHandler          http.HandlerFunc
	LoginHandler           http.HandlerFunc
	LogoutHandler          http.HandlerFunc
	MeHandler              http.HandlerFunc
	MyPermissionsHandler   http.HandlerFunc
	UserPermissionsHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public routes
	r.Get("/health", orNotImplemented(deps.HealthHandler))
	r.With(deps.RateLimit.LimitLogin).Post("/login", orNotImplemented(deps.LoginHandler))
	r.Post("/logout", orNotImplemented(deps.LogoutHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimit.LimitFailedAuth)
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/me", orNotImplemented(deps.MeHandler))
		r.Get("/me/permissions", orNotImplemented(deps.MyPermissionsHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequirePermission(deps.AdminPermission))

			r.Get("/admin/users/{userID}/permissions", orNotImplemented(deps.UserPermissionsHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
