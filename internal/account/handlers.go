package account

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/passapraela/fantasy-engine/internal/httpx"
	"github.com/passapraela/fantasy-engine/internal/lineup"
	"github.com/passapraela/fantasy-engine/internal/market"
	"github.com/passapraela/fantasy-engine/internal/store"
)

// AdminKeyHeader carries the admin key on admin-only routes.
const AdminKeyHeader = "X-Admin-Key"

// RegisterRequest is the JSON body for POST /users.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TeamName string `json:"team_name"`
}

// LoginRequest is the JSON body for POST /login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LineupRequest is the JSON body for PUT /users/{email}/lineup.
type LineupRequest struct {
	Lineup json.RawMessage `json:"lineup"`
}

// LineupResponse is returned by GET /users/{email}/lineup.
type LineupResponse struct {
	Lineup lineup.Lineup `json:"lineup"`
}

// PostUser handles POST /api/v1/users
func (s *Service) PostUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	u, err := s.Register(r.Context(), req.Email, req.Password, req.TeamName)
	switch {
	case errors.Is(err, ErrMissingFields):
		httpx.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, store.ErrAlreadyExists):
		httpx.WriteError(w, "email already registered", http.StatusConflict)
		return
	case err != nil:
		slog.Error("register user", "err", err)
		httpx.WriteError(w, "failed to register user", http.StatusInternalServerError)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":        u.ID,
		"email":     u.Email,
		"team_name": u.TeamName,
	})
}

// PostLogin handles POST /api/v1/login
func (s *Service) PostLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, ErrMissingFields):
		httpx.WriteError(w, "email and password are required", http.StatusBadRequest)
		return
	case errors.Is(err, store.ErrNotFound):
		httpx.WriteError(w, "user not found", http.StatusNotFound)
		return
	case errors.Is(err, ErrInvalidCredentials):
		httpx.WriteError(w, "wrong password", http.StatusUnauthorized)
		return
	case err != nil:
		slog.Error("login", "err", err)
		httpx.WriteError(w, "login failed", http.StatusInternalServerError)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, res)
}

// PutLineup handles PUT /api/v1/users/{email}/lineup
func (s *Service) PutLineup(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")

	var req LineupRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}
	l, err := lineup.Parse(req.Lineup)
	if err != nil {
		httpx.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.SaveLineup(r.Context(), email, l)
	switch {
	case errors.Is(err, lineup.ErrInvalidLineup), errors.Is(err, lineup.ErrInvalidSlot),
		errors.Is(err, ErrUnknownPlayer):
		httpx.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, market.ErrMarketClosed):
		httpx.WriteError(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, store.ErrNotFound):
		httpx.WriteError(w, "user not found", http.StatusNotFound)
		return
	case err != nil:
		slog.Error("save lineup", "email", email, "err", err)
		httpx.WriteError(w, "failed to save lineup", http.StatusInternalServerError)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, LineupResponse{Lineup: l})
}

// GetLineupHandler handles GET /api/v1/users/{email}/lineup
func (s *Service) GetLineupHandler(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")

	l, err := s.GetLineup(r.Context(), email)
	if errors.Is(err, store.ErrNotFound) {
		httpx.WriteError(w, "user not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("get lineup", "email", email, "err", err)
		httpx.WriteError(w, "failed to read lineup", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, LineupResponse{Lineup: l})
}

// RequireAdmin rejects requests without the admin key. An empty key
// disables the check.
func RequireAdmin(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(AdminKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				httpx.WriteError(w, "admin key required", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
