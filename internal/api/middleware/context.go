package middleware

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/appauth/pkg/models"
)

type contextKey string

const (
	userKey       contextKey = "user"
	authMethodKey contextKey = "auth_method"
	requestIDKey  contextKey = "request_id"
	requestLogKey contextKey = "request_log"
)

// Authentication methods recorded in the request context.
const (
	MethodSession  = "session"
	MethodAPIKey   = "api_key"
	MethodPassword = "password"
)

func SetUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func GetUser(r *http.Request) (*models.User, bool) {
	u, ok := r.Context().Value(userKey).(*models.User)
	return u, ok && u != nil
}

func setAuthMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, authMethodKey, method)
}

func GetAuthMethod(r *http.Request) string {
	m, _ := r.Context().Value(authMethodKey).(string)
	return m
}
