// Package api holds the small shared pieces of the HTTP surface: response
// envelopes and JSON writing. Route handlers live with their domains.
package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// Response is the envelope for command-style endpoints.
type Response struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// JSON writes v as a JSON body with the given status code.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// OK writes a success envelope.
func OK(w http.ResponseWriter, message string, data any) {
	JSON(w, http.StatusOK, Response{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// Error writes a failure envelope with the given status code.
func Error(w http.ResponseWriter, code int, message string) {
	JSON(w, code, Response{
		Success:   false,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}
