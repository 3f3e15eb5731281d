package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/passapraela/fantasy-engine/internal/model"
)

// generationKey counts committed transactions. Cached entries live under
// keys scoped to the generation current when their read began, so a read
// that raced a commit can only refill a generation nobody reads any more.
const generationKey = "ppe:cache:gen"

func statusKey(gen int64) string      { return fmt.Sprintf("ppe:market:status:%d", gen) }
func leaderboardKey(gen int64) string { return fmt.Sprintf("ppe:leaderboard:%d", gen) } // hash: limit -> JSON entries

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the two hot reads: the market flag and the leaderboard. Every
// committed transaction bumps the cache generation; reads check Redis first
// then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedStore) generation(ctx context.Context) (int64, error) {
	gen, err := s.rdb.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// --- Write-through (write to primary, advance the generation) ---

func (s *CachedStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := s.primary.InTx(ctx, fn); err != nil {
		return err
	}
	// A failed bump leaves the current generation valid until its entries
	// expire after ttl.
	if err := s.rdb.Incr(ctx, generationKey).Err(); err != nil {
		slog.Warn("cache invalidation failed", "err", err)
	}
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMarketStatus(ctx context.Context) (model.MarketStatus, error) {
	gen, err := s.generation(ctx)
	if err != nil {
		return s.primary.GetMarketStatus(ctx)
	}
	key := statusKey(gen)

	if raw, err := s.rdb.Get(ctx, key).Result(); err == nil {
		if status, err := model.ParseMarketStatus(raw); err == nil {
			return status, nil
		}
	}

	status, err := s.primary.GetMarketStatus(ctx)
	if err != nil {
		return "", err
	}
	s.rdb.Set(ctx, key, string(status), s.ttl)
	return status, nil
}

func (s *CachedStore) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	gen, err := s.generation(ctx)
	if err != nil {
		return s.primary.Leaderboard(ctx, limit)
	}
	key := leaderboardKey(gen)
	field := strconv.Itoa(limit)

	if data, err := s.rdb.HGet(ctx, key, field).Bytes(); err == nil {
		var entries []model.LeaderboardEntry
		if json.Unmarshal(data, &entries) == nil {
			return entries, nil
		}
	}

	entries, err := s.primary.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(entries); err == nil {
		pipe := s.rdb.TxPipeline()
		pipe.HSet(ctx, key, field, data)
		pipe.Expire(ctx, key, s.ttl)
		_, _ = pipe.Exec(ctx)
	}
	return entries, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.primary.GetUserByEmail(ctx, email)
}

func (s *CachedStore) ListPlayers(ctx context.Context) ([]model.Player, error) {
	return s.primary.ListPlayers(ctx)
}

func (s *CachedStore) GetPlayer(ctx context.Context, id int64) (*model.Player, error) {
	return s.primary.GetPlayer(ctx, id)
}
