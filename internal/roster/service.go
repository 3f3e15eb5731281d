// Package roster manages the player catalogue: registration with photos,
// per-round stat updates, tracker totals and the performance chart.
package roster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/passapraela/fantasy-engine/internal/blob"
	"github.com/passapraela/fantasy-engine/internal/hub"
	"github.com/passapraela/fantasy-engine/internal/metrics"
	"github.com/passapraela/fantasy-engine/internal/model"
	"github.com/passapraela/fantasy-engine/internal/scoring"
	"github.com/passapraela/fantasy-engine/internal/store"
)

// MaxBatch bounds a single registration request.
const MaxBatch = 15

var (
	ErrInvalidPlayer   = errors.New("roster: invalid player")
	ErrTooManyPlayers  = fmt.Errorf("roster: at most %d players per request", MaxBatch)
	ErrUnsupportedType = errors.New("roster: unsupported image type")
	ErrNegativeMetric  = errors.New("roster: steps and distance must be non-negative")
)

var imageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// NewPlayer is one entry of a registration batch.
type NewPlayer struct {
	Name        string
	ShirtNumber int
	Position    string
	ClubName    string
	Photo       io.Reader
	PhotoName   string // original filename, used for the extension
}

// Service implements the roster operations.
type Service struct {
	store store.Store
	blobs blob.Store
	hub   *hub.Hub // optional
	rnd   func() float64
}

// NewService creates a roster service. h may be nil.
func NewService(st store.Store, blobs blob.Store, h *hub.Hub) *Service {
	return &Service{
		store: st,
		blobs: blobs,
		hub:   h,
		rnd:   rand.Float64,
	}
}

// RegisterPlayers uploads every photo and then inserts every player in one
// transaction. On failure no player is created and uploaded photos are
// removed.
func (s *Service) RegisterPlayers(ctx context.Context, batch []NewPlayer) ([]model.Player, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("%w: at least one player is required", ErrInvalidPlayer)
	}
	if len(batch) > MaxBatch {
		return nil, ErrTooManyPlayers
	}
	for i, np := range batch {
		if strings.TrimSpace(np.Name) == "" {
			return nil, fmt.Errorf("%w: player %d has no name", ErrInvalidPlayer, i+1)
		}
		if np.Photo == nil {
			return nil, fmt.Errorf("%w: player %d has no photo", ErrInvalidPlayer, i+1)
		}
		if _, ok := imageTypes[strings.ToLower(path.Ext(np.PhotoName))]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, np.PhotoName)
		}
	}

	var keys []string
	cleanup := func() {
		// Best effort; the request context may already be done.
		for _, k := range keys {
			if err := s.blobs.Delete(context.Background(), k); err != nil {
				slog.Warn("orphaned player photo", "key", k, "err", err)
			}
		}
	}

	players := make([]model.Player, len(batch))
	for i, np := range batch {
		ext := strings.ToLower(path.Ext(np.PhotoName))
		key := "players/" + uuid.NewString() + ext
		if err := s.blobs.Put(ctx, key, np.Photo, imageTypes[ext]); err != nil {
			cleanup()
			return nil, fmt.Errorf("upload photo for %s: %w", np.Name, err)
		}
		keys = append(keys, key)

		players[i] = model.Player{
			Name:        strings.TrimSpace(np.Name),
			ShirtNumber: np.ShirtNumber,
			Position:    strings.TrimSpace(np.Position),
			ClubName:    strings.TrimSpace(np.ClubName),
			ImageURL:    "/images/" + key,
		}
	}

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		for i := range players {
			if err := tx.CreatePlayer(ctx, &players[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		cleanup()
		return nil, err
	}

	slog.Info("players registered", "count", len(players))
	s.hub.Broadcast(hub.Event{Type: hub.EventPlayersAdded, Count: len(players)})
	return players, nil
}

// UpdateStats overwrites a player's eight counters and stores the
// recomputed round score in the same statement.
func (s *Service) UpdateStats(ctx context.Context, id int64, stats model.StatLine) (decimal.Decimal, error) {
	if err := scoring.Validate(stats); err != nil {
		return decimal.Zero, err
	}
	score := scoring.RoundScore(stats)

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		return tx.UpdatePlayerStats(ctx, id, stats, score)
	})
	if err != nil {
		return decimal.Zero, err
	}

	metrics.StatsUpdates.Inc()
	slog.Info("player stats updated", "player_id", id, "round_score", score.String())
	s.hub.Broadcast(hub.Event{Type: hub.EventPlayerStats, PlayerID: id, RoundScore: score.String()})
	return score, nil
}

// UpdatePhysical stores tracker totals. Distance arrives in meters and is
// kept in kilometres rounded to two places.
func (s *Service) UpdatePhysical(ctx context.Context, id int64, steps int, meters decimal.Decimal) (model.Physical, error) {
	if steps < 0 || meters.IsNegative() {
		return model.Physical{}, ErrNegativeMetric
	}
	phys := model.Physical{
		TotalSteps: steps,
		DistanceKm: meters.Div(decimal.NewFromInt(1000)).Round(2),
	}

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		return tx.UpdatePlayerPhysical(ctx, id, phys)
	})
	if err != nil {
		return model.Physical{}, err
	}
	slog.Info("player physical stats updated", "player_id", id, "steps", steps, "km", phys.DistanceKm.String())
	return phys, nil
}

// ListPlayers returns the roster ordered by ID.
func (s *Service) ListPlayers(ctx context.Context) ([]model.Player, error) {
	return s.store.ListPlayers(ctx)
}

// GetPlayer returns one player.
func (s *Service) GetPlayer(ctx context.Context, id int64) (*model.Player, error) {
	return s.store.GetPlayer(ctx, id)
}
