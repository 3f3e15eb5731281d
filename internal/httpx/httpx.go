// Package httpx holds the JSON response helpers shared by the HTTP handlers.
package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 1 << 20

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes {"error": message}.
func WriteError(w http.ResponseWriter, message string, status int) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// DecodeJSON reads a single JSON object from the request body into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
