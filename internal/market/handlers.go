package market

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/passapraela/fantasy-engine/internal/httpx"
	"github.com/passapraela/fantasy-engine/internal/model"
)

// SetStatusRequest is the JSON body for POST /market/status.
type SetStatusRequest struct {
	Status string `json:"status"`
}

// SetStatusResponse confirms which transition happened.
type SetStatusResponse struct {
	Message string `json:"message"`
	Transition
}

const (
	msgClosed = "market closed, lineups locked"
	msgOpened = "leaderboard updated, market open for the next round"
)

// PostStatus handles POST /api/v1/market/status
func (c *Controller) PostStatus(w http.ResponseWriter, r *http.Request) {
	var req SetStatusRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	tr, err := c.SetStatus(r.Context(), req.Status)
	switch {
	case errors.Is(err, ErrInvalidStatus):
		httpx.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, ErrSettlementInProgress):
		httpx.WriteError(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		slog.Error("set market status", "status", req.Status, "err", err)
		httpx.WriteError(w, ErrSettlementFailed.Error(), http.StatusInternalServerError)
		return
	}

	msg := msgClosed
	if tr.To == model.MarketOpen {
		msg = msgOpened
	}
	httpx.WriteJSON(w, http.StatusOK, SetStatusResponse{Message: msg, Transition: *tr})
}

// GetStatus handles GET /api/v1/market/status
func (c *Controller) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := c.Status(r.Context())
	if err != nil {
		slog.Error("get market status", "err", err)
		httpx.WriteError(w, "failed to read market status", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]model.MarketStatus{"status": status})
}

// GetLeaderboard handles GET /api/v1/leaderboard?limit=N
func (c *Controller) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	n := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		n = v
	}

	entries, err := c.Leaderboard(r.Context(), n)
	if err != nil {
		slog.Error("get leaderboard", "err", err)
		httpx.WriteError(w, "failed to read leaderboard", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}
