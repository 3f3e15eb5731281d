package checkout

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/passapraela/fantasy-engine/internal/httpx"
)

// PreferenceRequest is the JSON body for POST /api/v1/checkout/preference.
type PreferenceRequest struct {
	Items []CartItem `json:"items"`
}

// PreferenceResponse carries the created preference id.
type PreferenceResponse struct {
	ID string `json:"id"`
}

// PostPreference handles POST /api/v1/checkout/preference
func (c *Client) PostPreference(w http.ResponseWriter, r *http.Request) {
	var req PreferenceRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := c.CreatePreference(r.Context(), req.Items)
	switch {
	case errors.Is(err, ErrInvalidItem):
		httpx.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, ErrDisabled):
		httpx.WriteError(w, "checkout is not available", http.StatusServiceUnavailable)
		return
	case err != nil:
		slog.Error("create checkout preference", "err", err)
		httpx.WriteError(w, "failed to create payment preference", http.StatusBadGateway)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, PreferenceResponse{ID: id})
}
