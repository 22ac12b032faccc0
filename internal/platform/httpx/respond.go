// Package httpx provides the JSON envelope used by the API endpoints.
package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
)

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Envelope builds the {success, message, ...} body. Keys in extra are merged
// at the top level; success and message cannot be overridden.
func Envelope(success bool, message string, extra map[string]any) map[string]any {
	body := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		body[k] = v
	}
	body["success"] = success
	body["message"] = message
	return body
}

// Success writes a 200 envelope.
func Success(w http.ResponseWriter, message string, extra map[string]any) {
	JSON(w, http.StatusOK, Envelope(true, message, extra))
}

// Fail writes a failure envelope with the given status.
func Fail(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Envelope(false, message, nil))
}

// MethodNotAllowed answers 405 with the envelope.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	Fail(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// NotFound answers 404 with the envelope.
func NotFound(w http.ResponseWriter, r *http.Request) {
	Fail(w, http.StatusNotFound, "Endpoint not found")
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}

// IsJSON reports whether the request carries a JSON body.
func IsJSON(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "application/json")
}

// WantsJSON reports whether the request targets the JSON API.
func WantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
