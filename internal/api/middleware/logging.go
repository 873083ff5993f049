package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLog is filled in by inner middleware so the access log line can
// name the authenticated principal.
type requestLog struct {
	userID int64
	method string
}

func noteIdentity(ctx context.Context, userID int64, method string) {
	if l, ok := ctx.Value(requestLogKey).(*requestLog); ok {
		l.userID, l.method = userID, method
	}
}

// GetRequestID returns the request ID assigned by Logger.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Logger assigns a request ID (reusing a well-formed incoming X-Request-ID),
// echoes it in the response and writes one access log line per request.
// Presented credentials are never logged.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		entry := &requestLog{}
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		ctx = context.WithValue(ctx, requestLogKey, entry)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		attrs := []any{
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		}
		if entry.method != "" {
			attrs = append(attrs, "user_id", entry.userID, "auth_method", entry.method)
		}
		slog.InfoContext(ctx, "request", attrs...)
	})
}
