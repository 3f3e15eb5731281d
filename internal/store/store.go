// Package store defines the persistence interface for the fantasy engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache for hot reads), and in-memory (for testing and development).
//
// Every write goes through InTx: the market settlement touches users,
// players and the market flag at once and must commit all of it or nothing.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/passapraela/fantasy-engine/internal/lineup"
	"github.com/passapraela/fantasy-engine/internal/model"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrLockHeld      = errors.New("store: lock already held")
)

// LockMode selects the row lock taken on the market status row.
type LockMode int

const (
	// LockShare lets concurrent lineup saves proceed together while
	// blocking a status transition until they commit.
	LockShare LockMode = iota
	// LockExclusive serializes status transitions against each other and
	// against lineup saves.
	LockExclusive
)

// Store is the persistence interface. Reads outside InTx see the last
// committed state.
type Store interface {
	// --- Reads ---

	// GetMarketStatus returns the singleton market flag.
	GetMarketStatus(ctx context.Context) (model.MarketStatus, error)

	// GetUserByEmail retrieves a user, including the password hash.
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)

	// ListPlayers returns the whole roster ordered by ID.
	ListPlayers(ctx context.Context) ([]model.Player, error)

	// GetPlayer retrieves a player by ID.
	GetPlayer(ctx context.Context, id int64) (*model.Player, error)

	// Leaderboard returns at most limit entries by total score descending,
	// ties broken by user ID ascending.
	Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)

	// --- Writes ---

	// InTx runs fn in one serializable transaction. A non-nil error from fn
	// (or from commit) discards every write made through tx.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside a transaction.
type Tx interface {
	// --- Market ---

	// LockMarketStatus reads the market flag and locks its row until the
	// transaction ends.
	LockMarketStatus(ctx context.Context, mode LockMode) (model.MarketStatus, error)

	// SetMarketStatus overwrites the market flag.
	SetMarketStatus(ctx context.Context, status model.MarketStatus) error

	// --- Settlement ---

	// ListUserLineups returns every user whose lineup is not null.
	ListUserLineups(ctx context.Context) ([]model.UserLineup, error)

	// SumRoundScores sums RoundScore over the players whose ID is in ids.
	// found is false when no player matched.
	SumRoundScores(ctx context.Context, ids []int64) (sum decimal.Decimal, found bool, err error)

	// AddTotalScore adds delta to a user's running total.
	AddTotalScore(ctx context.Context, userID int64, delta decimal.Decimal) error

	// ResetPlayerStats zeroes the eight counters and RoundScore of every player.
	ResetPlayerStats(ctx context.Context) error

	// ClearLineups sets every user's lineup to null.
	ClearLineups(ctx context.Context) error

	// --- Users ---

	// CreateUser inserts u and fills in its ID and CreatedAt.
	CreateUser(ctx context.Context, u *model.User) error

	// SetLineup replaces the lineup of the user with the given email.
	SetLineup(ctx context.Context, email string, l lineup.Lineup) error

	// --- Players ---

	// CreatePlayer inserts p with zeroed statistics and fills in its ID.
	CreatePlayer(ctx context.Context, p *model.Player) error

	// ExistingPlayerIDs reports which of ids belong to a player.
	ExistingPlayerIDs(ctx context.Context, ids []int64) (map[int64]bool, error)

	// UpdatePlayerStats overwrites the eight counters and the round score.
	UpdatePlayerStats(ctx context.Context, id int64, stats model.StatLine, roundScore decimal.Decimal) error

	// UpdatePlayerPhysical overwrites the tracker totals.
	UpdatePlayerPhysical(ctx context.Context, id int64, phys model.Physical) error
}
