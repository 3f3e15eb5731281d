package scoring

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/passapraela/fantasy-engine/internal/model"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRoundScore_Example(t *testing.T) {
	// 2·8 + 1·5 − 1·2 − 1·2 = 17
	s := model.StatLine{Goals: 2, Assists: 1, GoalsConceded: 1, YellowCards: 1}
	got := RoundScore(s)
	if !got.Equal(d("17")) {
		t.Errorf("expected 17, got %s", got)
	}
}

func TestRoundScore_ZeroStats(t *testing.T) {
	if got := RoundScore(model.StatLine{}); !got.IsZero() {
		t.Errorf("expected 0 for empty stat line, got %s", got)
	}
}

func TestRoundScore_EachWeight(t *testing.T) {
	tests := []struct {
		name string
		s    model.StatLine
		want string
	}{
		{"goal", model.StatLine{Goals: 1}, "8"},
		{"assist", model.StatLine{Assists: 1}, "5"},
		{"shot on target", model.StatLine{ShotsOnTarget: 1}, "1.5"},
		{"tackle", model.StatLine{Tackles: 1}, "1"},
		{"save", model.StatLine{Saves: 1}, "2"},
		{"goal conceded", model.StatLine{GoalsConceded: 1}, "-2"},
		{"yellow card", model.StatLine{YellowCards: 1}, "-2"},
		{"red card", model.StatLine{RedCards: 1}, "-5"},
	}
	for _, tt := range tests {
		got := RoundScore(tt.s)
		if !got.Equal(d(tt.want)) {
			t.Errorf("%s: expected %s, got %s", tt.name, tt.want, got)
		}
	}
}

func TestRoundScore_FractionalShotsAreExact(t *testing.T) {
	// Three shots = 4.5 exactly, no float rounding.
	got := RoundScore(model.StatLine{ShotsOnTarget: 3})
	if got.String() != "4.5" {
		t.Errorf("expected 4.5, got %s", got.String())
	}
}

func TestRoundScore_CanBeNegative(t *testing.T) {
	got := RoundScore(model.StatLine{RedCards: 1, YellowCards: 1, GoalsConceded: 3})
	if !got.Equal(d("-13")) {
		t.Errorf("expected -13, got %s", got)
	}
}

func TestRoundScore_IsLinear(t *testing.T) {
	a := model.StatLine{Goals: 1, Tackles: 4, Saves: 2}
	b := model.StatLine{Assists: 2, ShotsOnTarget: 1, YellowCards: 1}
	sum := model.StatLine{Goals: 1, Tackles: 4, Saves: 2, Assists: 2, ShotsOnTarget: 1, YellowCards: 1}
	if !RoundScore(a).Add(RoundScore(b)).Equal(RoundScore(sum)) {
		t.Errorf("score of combined stats should equal sum of scores")
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(model.StatLine{Goals: 3, Saves: 1}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := Validate(model.StatLine{Tackles: -1})
	if !errors.Is(err, ErrNegativeCounter) {
		t.Errorf("expected ErrNegativeCounter, got %v", err)
	}
}
