// Package scoring implements the fantasy-points formula applied to a player's
// per-round match statistics.
//
//	roundScore = 8·goals + 5·assists + 1.5·shotsOnTarget + 1·tackles + 2·saves
//	           − 2·goalsConceded − 2·yellowCards − 5·redCards
//
// The result may be negative. All arithmetic is exact (shopspring/decimal).
package scoring

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/passapraela/fantasy-engine/internal/model"
)

var (
	// ErrNegativeCounter is returned when a stat update carries a negative counter.
	ErrNegativeCounter = errors.New("scoring: stat counters must be non-negative")

	GoalWeight          = decimal.NewFromInt(8)
	AssistWeight        = decimal.NewFromInt(5)
	ShotOnTargetWeight  = decimal.RequireFromString("1.5")
	TackleWeight        = decimal.NewFromInt(1)
	SaveWeight          = decimal.NewFromInt(2)
	GoalConcededPenalty = decimal.NewFromInt(2)
	YellowCardPenalty   = decimal.NewFromInt(2)
	RedCardPenalty      = decimal.NewFromInt(5)
)

// RoundScore computes the fantasy points for one round of statistics.
func RoundScore(s model.StatLine) decimal.Decimal {
	score := GoalWeight.Mul(decimal.NewFromInt(int64(s.Goals))).
		Add(AssistWeight.Mul(decimal.NewFromInt(int64(s.Assists)))).
		Add(ShotOnTargetWeight.Mul(decimal.NewFromInt(int64(s.ShotsOnTarget)))).
		Add(TackleWeight.Mul(decimal.NewFromInt(int64(s.Tackles)))).
		Add(SaveWeight.Mul(decimal.NewFromInt(int64(s.Saves))))

	penalty := GoalConcededPenalty.Mul(decimal.NewFromInt(int64(s.GoalsConceded))).
		Add(YellowCardPenalty.Mul(decimal.NewFromInt(int64(s.YellowCards)))).
		Add(RedCardPenalty.Mul(decimal.NewFromInt(int64(s.RedCards))))

	return score.Sub(penalty)
}

// Validate rejects stat lines with negative counters.
func Validate(s model.StatLine) error {
	counters := []struct {
		name  string
		value int
	}{
		{"goals", s.Goals},
		{"assists", s.Assists},
		{"shots_on_target", s.ShotsOnTarget},
		{"tackles", s.Tackles},
		{"saves", s.Saves},
		{"goals_conceded", s.GoalsConceded},
		{"yellow_cards", s.YellowCards},
		{"red_cards", s.RedCards},
	}
	for _, c := range counters {
		if c.value < 0 {
			return fmt.Errorf("%w: %s=%d", ErrNegativeCounter, c.name, c.value)
		}
	}
	return nil
}
