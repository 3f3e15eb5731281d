// Package model defines the core domain types shared across the fantasy engine.
// Scores use shopspring/decimal: the shot weight is 1.5 and leaderboard totals
// accumulate over many rounds, so float64 is never used for points.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/passapraela/fantasy-engine/internal/lineup"
)

// MarketStatus is the open/closed gate controlling lineup edits.
type MarketStatus string

const (
	MarketOpen   MarketStatus = "open"
	MarketClosed MarketStatus = "closed"
)

var ErrUnknownStatus = errors.New("model: unknown market status")

// ParseMarketStatus accepts exactly "open" or "closed".
func ParseMarketStatus(s string) (MarketStatus, error) {
	switch MarketStatus(s) {
	case MarketOpen, MarketClosed:
		return MarketStatus(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// IsOpen reports whether lineups may be edited.
func (s MarketStatus) IsOpen() bool {
	return s == MarketOpen
}

// User is a registered team owner.
type User struct {
	ID           int64           `json:"id" db:"id"`
	Email        string          `json:"email" db:"email"`
	PasswordHash string          `json:"-" db:"password_hash"`
	TeamName     string          `json:"team_name" db:"team_name"`
	Lineup       lineup.Lineup   `json:"lineup" db:"lineup"` // nil when unset
	TotalScore   decimal.Decimal `json:"total_score" db:"total_score"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// StatLine holds the eight per-round match counters of a player.
type StatLine struct {
	Goals         int `json:"goals" db:"goals"`
	Assists       int `json:"assists" db:"assists"`
	ShotsOnTarget int `json:"shots_on_target" db:"shots_on_target"`
	Tackles       int `json:"tackles" db:"tackles"`
	Saves         int `json:"saves" db:"saves"`
	GoalsConceded int `json:"goals_conceded" db:"goals_conceded"`
	YellowCards   int `json:"yellow_cards" db:"yellow_cards"`
	RedCards      int `json:"red_cards" db:"red_cards"`
}

// IsZero reports whether every counter is zero.
func (s StatLine) IsZero() bool {
	return s == StatLine{}
}

// Physical holds IoT tracker totals. Not part of scoring.
type Physical struct {
	TotalSteps int             `json:"total_steps" db:"total_steps"`
	DistanceKm decimal.Decimal `json:"distance_km" db:"distance_km"`
}

// Player is a roster entry with its current-round statistics.
type Player struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	ShirtNumber int    `json:"shirt_number" db:"shirt_number"`
	Position    string `json:"position" db:"position"`
	ImageURL    string `json:"image_url" db:"image_url"`
	ClubName    string `json:"club_name" db:"club_name"`
	StatLine
	RoundScore decimal.Decimal `json:"round_score" db:"round_score"`
	Physical
}

// UserLineup is the settlement input for one user.
type UserLineup struct {
	UserID int64
	Lineup lineup.Lineup
}

// LeaderboardEntry is one row of the ranking.
type LeaderboardEntry struct {
	TeamName   string          `json:"team_name"`
	TotalScore decimal.Decimal `json:"total_score"`
}
