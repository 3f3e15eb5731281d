package roster

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/passapraela/fantasy-engine/internal/httpx"
	"github.com/passapraela/fantasy-engine/internal/model"
	"github.com/passapraela/fantasy-engine/internal/scoring"
	"github.com/passapraela/fantasy-engine/internal/store"
)

// maxUploadBytes caps a registration request (15 photos).
const maxUploadBytes = 64 << 20

// PhysicalRequest is the JSON body for POST /players/{id}/physical.
type PhysicalRequest struct {
	Steps          int             `json:"steps"`
	DistanceMeters decimal.Decimal `json:"distance_meters"`
}

// PhysicalResponse is returned by GET /players/{id}/physical.
type PhysicalResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	model.Physical
}

// StatsResponse is returned by PUT /players/{id}/stats.
type StatsResponse struct {
	ID         int64           `json:"id"`
	RoundScore decimal.Decimal `json:"round_score"`
}

func playerID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid player id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

// ListPlayersHandler handles GET /api/v1/players
func (s *Service) ListPlayersHandler(w http.ResponseWriter, r *http.Request) {
	players, err := s.ListPlayers(r.Context())
	if err != nil {
		slog.Error("list players", "err", err)
		httpx.WriteError(w, "failed to list players", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, players)
}

// PostPlayers handles POST /api/v1/players as multipart/form-data with
// repeated name, position, shirt_number and club_name fields and one
// "images" file per player, in the same order.
func (s *Service) PostPlayers(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		httpx.WriteError(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	form := r.MultipartForm
	names := form.Value["name"]
	files := form.File["images"]
	if len(names) == 0 || len(files) != len(names) {
		httpx.WriteError(w, "each player needs a name and exactly one image", http.StatusBadRequest)
		return
	}
	if len(names) > MaxBatch {
		httpx.WriteError(w, ErrTooManyPlayers.Error(), http.StatusBadRequest)
		return
	}

	batch := make([]NewPlayer, len(names))
	for i, name := range names {
		shirt := 0
		if raw := at(form.Value["shirt_number"], i); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				httpx.WriteError(w, fmt.Sprintf("invalid shirt_number %q", raw), http.StatusBadRequest)
				return
			}
			shirt = n
		}

		f, err := files[i].Open()
		if err != nil {
			httpx.WriteError(w, "unreadable image", http.StatusBadRequest)
			return
		}
		defer f.Close()

		batch[i] = NewPlayer{
			Name:        name,
			ShirtNumber: shirt,
			Position:    at(form.Value["position"], i),
			ClubName:    at(form.Value["club_name"], i),
			Photo:       f,
			PhotoName:   files[i].Filename,
		}
	}

	players, err := s.RegisterPlayers(r.Context(), batch)
	switch {
	case errors.Is(err, ErrInvalidPlayer), errors.Is(err, ErrUnsupportedType), errors.Is(err, ErrTooManyPlayers):
		httpx.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		slog.Error("register players", "count", len(batch), "err", err)
		httpx.WriteError(w, "failed to register players", http.StatusInternalServerError)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, players)
}

func at(vals []string, i int) string {
	if i < len(vals) {
		return strings.TrimSpace(vals[i])
	}
	return ""
}

// PutStats handles PUT /api/v1/players/{id}/stats
func (s *Service) PutStats(w http.ResponseWriter, r *http.Request) {
	id, err := playerID(r)
	if err != nil {
		httpx.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var stats model.StatLine
	if err := httpx.DecodeJSON(w, r, &stats); err != nil {
		httpx.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	score, err := s.UpdateStats(r.Context(), id, stats)
	switch {
	case errors.Is(err, scoring.ErrNegativeCounter):
		httpx.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, store.ErrNotFound):
		httpx.WriteError(w, "player not found", http.StatusNotFound)
		return
	case err != nil:
		slog.Error("update stats", "player_id", id, "err", err)
		httpx.WriteError(w, "failed to update stats", http.StatusInternalServerError)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, StatsResponse{ID: id, RoundScore: score})
}

// PostPhysical handles POST /api/v1/players/{id}/physical
func (s *Service) PostPhysical(w http.ResponseWriter, r *http.Request) {
	id, err := playerID(r)
	if err != nil {
		httpx.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req PhysicalRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	phys, err := s.UpdatePhysical(r.Context(), id, req.Steps, req.DistanceMeters)
	switch {
	case errors.Is(err, ErrNegativeMetric):
		httpx.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, store.ErrNotFound):
		httpx.WriteError(w, "player not found", http.StatusNotFound)
		return
	case err != nil:
		slog.Error("update physical stats", "player_id", id, "err", err)
		httpx.WriteError(w, "failed to update physical stats", http.StatusInternalServerError)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, phys)
}

// GetPhysical handles GET /api/v1/players/{id}/physical
func (s *Service) GetPhysical(w http.ResponseWriter, r *http.Request) {
	id, err := playerID(r)
	if err != nil {
		httpx.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	p, err := s.GetPlayer(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		httpx.WriteError(w, "player not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("get physical stats", "player_id", id, "err", err)
		httpx.WriteError(w, "failed to read physical stats", http.StatusInternalServerError)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, PhysicalResponse{ID: p.ID, Name: p.Name, Physical: p.Physical})
}

// GetPerformanceChart handles GET /api/v1/players/{id}/performance.png
func (s *Service) GetPerformanceChart(w http.ResponseWriter, r *http.Request) {
	id, err := playerID(r)
	if err != nil {
		httpx.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	png, err := s.PerformanceChart(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		httpx.WriteError(w, "player not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("render performance chart", "player_id", id, "err", err)
		httpx.WriteError(w, "failed to render chart", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}
