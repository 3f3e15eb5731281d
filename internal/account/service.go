// Package account handles registration, login and the per-user lineup.
package account

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/passapraela/fantasy-engine/internal/lineup"
	"github.com/passapraela/fantasy-engine/internal/market"
	"github.com/passapraela/fantasy-engine/internal/metrics"
	"github.com/passapraela/fantasy-engine/internal/model"
	"github.com/passapraela/fantasy-engine/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("account: wrong password")
	ErrMissingFields      = errors.New("account: email, password and team name are required")
	ErrUnknownPlayer      = errors.New("account: lineup references an unknown player")
)

// Roles returned by Login.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Options configures a Service.
type Options struct {
	AdminEmail    string
	AdminPassword string // empty disables admin login
	AdminKey      string // returned to the admin on login
	BcryptCost    int    // 0 selects bcrypt.DefaultCost
}

// Service implements the account operations on top of a Store.
type Service struct {
	store store.Store
	opts  Options
}

// NewService creates an account service.
func NewService(st store.Store, opts Options) *Service {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	opts.AdminEmail = normalizeEmail(opts.AdminEmail)
	return &Service{store: st, opts: opts}
}

// LoginResult is what a successful login reveals to the client.
type LoginResult struct {
	Role     string `json:"role"`
	Email    string `json:"email"`
	TeamName string `json:"team_name,omitempty"`
	AdminKey string `json:"admin_key,omitempty"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user with a zero total score and no lineup.
func (s *Service) Register(ctx context.Context, email, password, teamName string) (*model.User, error) {
	email = normalizeEmail(email)
	teamName = strings.TrimSpace(teamName)
	if email == "" || password == "" || teamName == "" {
		return nil, ErrMissingFields
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &model.User{
		Email:        email,
		PasswordHash: string(hash),
		TeamName:     teamName,
		TotalScore:   decimal.Zero,
	}
	if err := s.store.InTx(ctx, func(tx store.Tx) error {
		return tx.CreateUser(ctx, u)
	}); err != nil {
		return nil, err
	}

	slog.Info("user registered", "user_id", u.ID, "team", u.TeamName)
	return u, nil
}

// Login checks the configured admin account first, then registered users.
// An unknown email is store.ErrNotFound; a wrong password is
// ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrMissingFields
	}

	if s.isAdmin(email, password) {
		return &LoginResult{Role: RoleAdmin, Email: email, AdminKey: s.opts.AdminKey}, nil
	}

	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &LoginResult{Role: RoleUser, Email: u.Email, TeamName: u.TeamName}, nil
}

func (s *Service) isAdmin(email, password string) bool {
	if s.opts.AdminPassword == "" {
		return false
	}
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(s.opts.AdminEmail)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.opts.AdminPassword)) == 1
	return emailOK && passOK
}

// SaveLineup replaces the user's lineup. The market-open check, the player
// existence check and the write share one transaction, so a save can never
// land after a committed close.
func (s *Service) SaveLineup(ctx context.Context, email string, l lineup.Lineup) error {
	email = normalizeEmail(email)
	if err := l.Validate(); err != nil {
		return err
	}

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if err := market.RequireOpen(ctx, tx); err != nil {
			return err
		}

		ids := l.PlayerIDs()
		if len(ids) > 0 {
			found, err := tx.ExistingPlayerIDs(ctx, ids)
			if err != nil {
				return err
			}
			for _, id := range ids {
				if !found[id] {
					return fmt.Errorf("%w: %d", ErrUnknownPlayer, id)
				}
			}
		}
		return tx.SetLineup(ctx, email, l)
	})
	if err != nil {
		return err
	}

	metrics.LineupsSaved.Inc()
	slog.Info("lineup saved", "email", email, "picks", len(l.PlayerIDs()))
	return nil
}

// GetLineup returns the saved lineup, or nil when the user has none.
func (s *Service) GetLineup(ctx context.Context, email string) (lineup.Lineup, error) {
	u, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	return u.Lineup, nil
}
