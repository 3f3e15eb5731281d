package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/passapraela/fantasy-engine/internal/lineup"
	"github.com/passapraela/fantasy-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// Transactions are copy-on-write: InTx clones the committed state, lets fn
// mutate the clone, and swaps it in only if fn succeeds. One transaction
// runs at a time, which makes them trivially serializable.
type MemoryStore struct {
	txMu  sync.Mutex   // one writer at a time
	mu    sync.RWMutex // guards the state pointer
	state *memState
}

type memState struct {
	status       model.MarketStatus
	users        map[int64]*model.User
	players      map[int64]*model.Player
	nextUserID   int64
	nextPlayerID int64
}

// NewMemoryStore creates a new in-memory store with the market open.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			status:  model.MarketOpen,
			users:   make(map[int64]*model.User),
			players: make(map[int64]*model.Player),
		},
	}
}

func (st *memState) clone() *memState {
	cp := &memState{
		status:       st.status,
		users:        make(map[int64]*model.User, len(st.users)),
		players:      make(map[int64]*model.Player, len(st.players)),
		nextUserID:   st.nextUserID,
		nextPlayerID: st.nextPlayerID,
	}
	for id, u := range st.users {
		cp.users[id] = copyUser(u)
	}
	for id, p := range st.players {
		pc := *p
		cp.players[id] = &pc
	}
	return cp
}

func copyUser(u *model.User) *model.User {
	c := *u
	c.Lineup = u.Lineup.Clone()
	return &c
}

func (s *MemoryStore) snapshot() *memState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.snapshot().clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = work
	s.mu.Unlock()
	return nil
}

// --- Reads (committed state; the state is never mutated after commit) ---

func (s *MemoryStore) GetMarketStatus(_ context.Context) (model.MarketStatus, error) {
	return s.snapshot().status, nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	st := s.snapshot()
	for _, u := range st.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
}

func (s *MemoryStore) ListPlayers(_ context.Context) ([]model.Player, error) {
	st := s.snapshot()
	players := make([]model.Player, 0, len(st.players))
	for _, p := range st.players {
		players = append(players, *p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })
	return players, nil
}

func (s *MemoryStore) GetPlayer(_ context.Context, id int64) (*model.Player, error) {
	p, ok := s.snapshot().players[id]
	if !ok {
		return nil, fmt.Errorf("player %d: %w", id, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) Leaderboard(_ context.Context, limit int) ([]model.LeaderboardEntry, error) {
	st := s.snapshot()
	users := make([]*model.User, 0, len(st.users))
	for _, u := range st.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if c := users[i].TotalScore.Cmp(users[j].TotalScore); c != 0 {
			return c > 0
		}
		return users[i].ID < users[j].ID
	})
	if limit >= 0 && len(users) > limit {
		users = users[:limit]
	}

	entries := make([]model.LeaderboardEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, model.LeaderboardEntry{TeamName: u.TeamName, TotalScore: u.TotalScore})
	}
	return entries, nil
}

// memTx mutates a private clone of the store state.
type memTx struct {
	st *memState
}

func (t *memTx) LockMarketStatus(_ context.Context, _ LockMode) (model.MarketStatus, error) {
	return t.st.status, nil
}

func (t *memTx) SetMarketStatus(_ context.Context, status model.MarketStatus) error {
	t.st.status = status
	return nil
}

func (t *memTx) ListUserLineups(_ context.Context) ([]model.UserLineup, error) {
	var result []model.UserLineup
	for _, u := range t.st.users {
		if u.Lineup == nil {
			continue
		}
		result = append(result, model.UserLineup{UserID: u.ID, Lineup: u.Lineup.Clone()})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result, nil
}

func (t *memTx) SumRoundScores(_ context.Context, ids []int64) (decimal.Decimal, bool, error) {
	// Set membership: an ID listed twice still matches its row once.
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	sum := decimal.Zero
	found := false
	for id, p := range t.st.players {
		if want[id] {
			sum = sum.Add(p.RoundScore)
			found = true
		}
	}
	return sum, found, nil
}

func (t *memTx) AddTotalScore(_ context.Context, userID int64, delta decimal.Decimal) error {
	u, ok := t.st.users[userID]
	if !ok {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	u.TotalScore = u.TotalScore.Add(delta)
	return nil
}

func (t *memTx) ResetPlayerStats(_ context.Context) error {
	for _, p := range t.st.players {
		p.StatLine = model.StatLine{}
		p.RoundScore = decimal.Zero
	}
	return nil
}

func (t *memTx) ClearLineups(_ context.Context) error {
	for _, u := range t.st.users {
		u.Lineup = nil
	}
	return nil
}

func (t *memTx) CreateUser(_ context.Context, u *model.User) error {
	for _, existing := range t.st.users {
		if existing.Email == u.Email {
			return fmt.Errorf("user %s: %w", u.Email, ErrAlreadyExists)
		}
	}

	t.st.nextUserID++
	u.ID = t.st.nextUserID
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	// Store a copy to avoid external mutation.
	t.st.users[u.ID] = copyUser(u)
	return nil
}

func (t *memTx) SetLineup(_ context.Context, email string, l lineup.Lineup) error {
	for _, u := range t.st.users {
		if u.Email == email {
			u.Lineup = l.Clone()
			return nil
		}
	}
	return fmt.Errorf("user %s: %w", email, ErrNotFound)
}

func (t *memTx) CreatePlayer(_ context.Context, p *model.Player) error {
	t.st.nextPlayerID++
	p.ID = t.st.nextPlayerID
	p.StatLine = model.StatLine{}
	p.RoundScore = decimal.Zero
	cp := *p
	t.st.players[p.ID] = &cp
	return nil
}

func (t *memTx) ExistingPlayerIDs(_ context.Context, ids []int64) (map[int64]bool, error) {
	found := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if _, ok := t.st.players[id]; ok {
			found[id] = true
		}
	}
	return found, nil
}

func (t *memTx) UpdatePlayerStats(_ context.Context, id int64, stats model.StatLine, roundScore decimal.Decimal) error {
	p, ok := t.st.players[id]
	if !ok {
		return fmt.Errorf("player %d: %w", id, ErrNotFound)
	}
	p.StatLine = stats
	p.RoundScore = roundScore
	return nil
}

func (t *memTx) UpdatePlayerPhysical(_ context.Context, id int64, phys model.Physical) error {
	p, ok := t.st.players[id]
	if !ok {
		return fmt.Errorf("player %d: %w", id, ErrNotFound)
	}
	p.Physical = phys
	return nil
}
