// Package market owns the open/closed market flag and the round settlement
// that runs on every transition into open.
//
// A transition is one store transaction: settlement scores every saved
// lineup, adds the points to each user's total, resets all player stats,
// clears every lineup and flips the flag. Either all of it commits or none.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/passapraela/fantasy-engine/internal/hub"
	"github.com/passapraela/fantasy-engine/internal/metrics"
	"github.com/passapraela/fantasy-engine/internal/model"
	"github.com/passapraela/fantasy-engine/internal/store"
)

var (
	ErrInvalidStatus        = errors.New("market: status must be open or closed")
	ErrSettlementFailed     = errors.New("market: settlement failed, no changes applied")
	ErrMarketClosed         = errors.New("market: closed, lineups are locked")
	ErrSettlementInProgress = errors.New("market: settlement already in progress")
)

const (
	DefaultLeaderboardSize = 10
	MaxLeaderboardSize     = 100

	settlementLockKey = "settlement"
	settlementLockTTL = 2 * time.Minute
)

// Locker is a cross-instance mutex. store.RedisLocker implements it.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// SettlementReport summarizes one committed settlement.
type SettlementReport struct {
	UsersScored   int             `json:"users_scored"`
	UsersSkipped  int             `json:"users_skipped"`
	PointsAwarded decimal.Decimal `json:"points_awarded"`
	Duration      time.Duration   `json:"-"`
}

// Transition describes a committed status change. Settlement is nil when
// the target was closed.
type Transition struct {
	From       model.MarketStatus `json:"from"`
	To         model.MarketStatus `json:"to"`
	Settlement *SettlementReport  `json:"settlement,omitempty"`
}

// Controller is the only writer of the market flag.
type Controller struct {
	store  store.Store
	locker Locker   // optional
	hub    *hub.Hub // optional
	now    func() time.Time
}

// NewController creates a market controller. locker and h may be nil.
func NewController(st store.Store, locker Locker, h *hub.Hub) *Controller {
	return &Controller{
		store:  st,
		locker: locker,
		hub:    h,
		now:    time.Now,
	}
}

// SetStatus moves the market to target. Closing only flips the flag;
// opening settles the round first. Both are idempotent re-asserts when the
// market is already in the target state.
func (c *Controller) SetStatus(ctx context.Context, target string) (*Transition, error) {
	to, err := model.ParseMarketStatus(target)
	if err != nil {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidStatus, target)
	}

	if to == model.MarketOpen && c.locker != nil {
		release, err := c.locker.Acquire(ctx, settlementLockKey, settlementLockTTL)
		if errors.Is(err, store.ErrLockHeld) {
			metrics.SettlementsTotal.WithLabelValues("locked").Inc()
			return nil, ErrSettlementInProgress
		}
		if err != nil {
			metrics.SettlementsTotal.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("%w: %w", ErrSettlementFailed, err)
		}
		defer release()
	}

	start := c.now()
	var tr Transition
	err = c.store.InTx(ctx, func(tx store.Tx) error {
		from, err := tx.LockMarketStatus(ctx, store.LockExclusive)
		if err != nil {
			return err
		}
		tr = Transition{From: from, To: to}

		if to == model.MarketOpen {
			report, err := settle(ctx, tx)
			if err != nil {
				return err
			}
			tr.Settlement = report
		}
		return tx.SetMarketStatus(ctx, to)
	})
	if err != nil {
		if to == model.MarketOpen {
			metrics.SettlementsTotal.WithLabelValues("failed").Inc()
		}
		slog.Error("market transition failed", "target", to, "err", err)
		return nil, fmt.Errorf("%w: %w", ErrSettlementFailed, err)
	}

	metrics.SetMarketOpen(to.IsOpen())
	ev := hub.Event{Type: hub.EventMarketStatus, Status: string(to)}

	if r := tr.Settlement; r != nil {
		r.Duration = c.now().Sub(start)
		metrics.SettlementsTotal.WithLabelValues("ok").Inc()
		metrics.SettlementDuration.Observe(r.Duration.Seconds())
		metrics.SettlementUsersScored.Set(float64(r.UsersScored))
		ev.UsersScored = r.UsersScored
		slog.Info("market opened",
			"from", tr.From,
			"users_scored", r.UsersScored,
			"users_skipped", r.UsersSkipped,
			"points_awarded", r.PointsAwarded.String(),
			"duration", r.Duration,
		)
	} else {
		slog.Info("market closed", "from", tr.From)
	}

	c.hub.Broadcast(ev)
	return &tr, nil
}

// Status returns the current market flag.
func (c *Controller) Status(ctx context.Context) (model.MarketStatus, error) {
	status, err := c.store.GetMarketStatus(ctx)
	if err != nil {
		return "", err
	}
	metrics.SetMarketOpen(status.IsOpen())
	return status, nil
}

// Leaderboard returns the top n users by total score. n <= 0 selects the
// default size; larger values are capped.
func (c *Controller) Leaderboard(ctx context.Context, n int) ([]model.LeaderboardEntry, error) {
	switch {
	case n <= 0:
		n = DefaultLeaderboardSize
	case n > MaxLeaderboardSize:
		n = MaxLeaderboardSize
	}
	return c.store.Leaderboard(ctx, n)
}

// RequireOpen is the lineup-save precondition. It must run inside the same
// transaction as the lineup write: the shared row lock it takes makes a
// concurrent close wait for the save to commit, or the save see the close.
func RequireOpen(ctx context.Context, tx store.Tx) error {
	status, err := tx.LockMarketStatus(ctx, store.LockShare)
	if err != nil {
		return err
	}
	if !status.IsOpen() {
		return ErrMarketClosed
	}
	return nil
}
