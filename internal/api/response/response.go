package response

import (
	"encoding/json"
	"net/http"
)

type envelope struct {
	Data any `json:"data"`
}

type outcome struct {
	Success bool `json:"success"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Unauthorized writes the single 401 body used for every authentication
// failure, whatever its cause.
func Unauthorized(w http.ResponseWriter) {
	Error(w, http.StatusUnauthorized, "NOT_AUTHENTICATED", "Authentication required", nil)
}

func Forbidden(w http.ResponseWriter) {
	Error(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions", nil)
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data})
}

// Outcome writes the bare {"success": ...} body used by /login.
func Outcome(w http.ResponseWriter, success bool) {
	writeJSON(w, http.StatusOK, outcome{Success: success})
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func Error(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

// writeJSON marks every body no-store; responses may carry identity.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
