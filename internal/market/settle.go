package market

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/passapraela/fantasy-engine/internal/store"
)

// settle scores every saved lineup against the current round scores, then
// resets the round. All aggregation finishes before any reset starts.
//
// A player picked in more than one slot counts once: PlayerIDs returns a
// set and SumRoundScores filters by membership.
func settle(ctx context.Context, tx store.Tx) (*SettlementReport, error) {
	lineups, err := tx.ListUserLineups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lineups: %w", err)
	}

	report := &SettlementReport{PointsAwarded: decimal.Zero}
	for _, ul := range lineups {
		ids := ul.Lineup.PlayerIDs()
		if len(ids) == 0 {
			report.UsersSkipped++
			continue
		}

		points, found, err := tx.SumRoundScores(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("sum round scores for user %d: %w", ul.UserID, err)
		}
		if !found || points.IsZero() {
			report.UsersSkipped++
			continue
		}

		if err := tx.AddTotalScore(ctx, ul.UserID, points); err != nil {
			return nil, fmt.Errorf("credit user %d: %w", ul.UserID, err)
		}
		report.UsersScored++
		report.PointsAwarded = report.PointsAwarded.Add(points)
	}

	if err := tx.ResetPlayerStats(ctx); err != nil {
		return nil, fmt.Errorf("reset player stats: %w", err)
	}
	if err := tx.ClearLineups(ctx); err != nil {
		return nil, fmt.Errorf("clear lineups: %w", err)
	}
	return report, nil
}
