package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/passapraela/fantasy-engine/internal/lineup"
	"github.com/passapraela/fantasy-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Scores are stored as NUMERIC for exact decimal precision and travel as
// text in both directions.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// querier is the subset shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const uniqueViolation = "23505"

// mapErr converts driver errors into store sentinels.
func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrAlreadyExists
	}
	return err
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		return fn(&pgTx{q: tx})
	})
}

// --- Reads ---

func (s *PostgresStore) GetMarketStatus(ctx context.Context) (model.MarketStatus, error) {
	return readStatus(ctx, s.pool, `SELECT status FROM market_status WHERE id = 1`)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	var raw []byte
	var total string

	err := s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, team_name, lineup, total_score::TEXT, created_at
		 FROM users WHERE email = $1`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.TeamName, &raw, &total, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", email, mapErr(err))
	}

	u.TotalScore, _ = decimal.NewFromString(total)
	if raw != nil {
		if err := json.Unmarshal(raw, &u.Lineup); err != nil {
			return nil, fmt.Errorf("decode lineup of %s: %w", email, err)
		}
	}
	return &u, nil
}

const playerColumns = `id, name, shirt_number, position, image_url, club_name,
	goals, assists, shots_on_target, tackles, saves, goals_conceded, yellow_cards, red_cards,
	round_score::TEXT, total_steps, distance_km::TEXT`

func scanPlayer(row pgx.Row) (*model.Player, error) {
	var p model.Player
	var score, km string
	err := row.Scan(&p.ID, &p.Name, &p.ShirtNumber, &p.Position, &p.ImageURL, &p.ClubName,
		&p.Goals, &p.Assists, &p.ShotsOnTarget, &p.Tackles, &p.Saves,
		&p.GoalsConceded, &p.YellowCards, &p.RedCards,
		&score, &p.TotalSteps, &km)
	if err != nil {
		return nil, err
	}
	p.RoundScore, _ = decimal.NewFromString(score)
	p.DistanceKm, _ = decimal.NewFromString(km)
	return &p, nil
}

func (s *PostgresStore) ListPlayers(ctx context.Context) ([]model.Player, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+playerColumns+` FROM players ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	players := []model.Player{}
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, *p)
	}
	return players, rows.Err()
}

func (s *PostgresStore) GetPlayer(ctx context.Context, id int64) (*model.Player, error) {
	p, err := scanPlayer(s.pool.QueryRow(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get player %d: %w", id, mapErr(err))
	}
	return p, nil
}

func (s *PostgresStore) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT team_name, total_score::TEXT
		 FROM users ORDER BY total_score DESC, id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []model.LeaderboardEntry{}
	for rows.Next() {
		var e model.LeaderboardEntry
		var total string
		if err := rows.Scan(&e.TeamName, &total); err != nil {
			return nil, err
		}
		e.TotalScore, _ = decimal.NewFromString(total)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func readStatus(ctx context.Context, q querier, sql string) (model.MarketStatus, error) {
	var raw string
	if err := q.QueryRow(ctx, sql).Scan(&raw); err != nil {
		return "", fmt.Errorf("read market status: %w", mapErr(err))
	}
	return model.ParseMarketStatus(raw)
}

// pgTx runs every Tx operation on one serializable pgx transaction.
type pgTx struct {
	q querier
}

func (t *pgTx) LockMarketStatus(ctx context.Context, mode LockMode) (model.MarketStatus, error) {
	sql := `SELECT status FROM market_status WHERE id = 1 FOR SHARE`
	if mode == LockExclusive {
		sql = `SELECT status FROM market_status WHERE id = 1 FOR UPDATE`
	}
	return readStatus(ctx, t.q, sql)
}

func (t *pgTx) SetMarketStatus(ctx context.Context, status model.MarketStatus) error {
	_, err := t.q.Exec(ctx,
		`UPDATE market_status SET status = $1, updated_at = NOW() WHERE id = 1`, string(status))
	return err
}

func (t *pgTx) ListUserLineups(ctx context.Context) ([]model.UserLineup, error) {
	rows, err := t.q.Query(ctx,
		`SELECT id, lineup FROM users WHERE lineup IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.UserLineup
	for rows.Next() {
		var ul model.UserLineup
		var raw []byte
		if err := rows.Scan(&ul.UserID, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &ul.Lineup); err != nil {
			return nil, fmt.Errorf("decode lineup of user %d: %w", ul.UserID, err)
		}
		result = append(result, ul)
	}
	return result, rows.Err()
}

func (t *pgTx) SumRoundScores(ctx context.Context, ids []int64) (decimal.Decimal, bool, error) {
	var sum string
	var n int64
	err := t.q.QueryRow(ctx,
		`SELECT COALESCE(SUM(round_score), 0)::TEXT, COUNT(*)
		 FROM players WHERE id = ANY($1)`, ids).Scan(&sum, &n)
	if err != nil {
		return decimal.Zero, false, err
	}
	total, err := decimal.NewFromString(sum)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("parse round score sum %q: %w", sum, err)
	}
	return total, n > 0, nil
}

func (t *pgTx) AddTotalScore(ctx context.Context, userID int64, delta decimal.Decimal) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE users SET total_score = total_score + $2::NUMERIC WHERE id = $1`,
		userID, delta.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return nil
}

func (t *pgTx) ResetPlayerStats(ctx context.Context) error {
	_, err := t.q.Exec(ctx,
		`UPDATE players
		 SET goals = 0, assists = 0, shots_on_target = 0, tackles = 0, saves = 0,
		     goals_conceded = 0, yellow_cards = 0, red_cards = 0, round_score = 0`)
	return err
}

func (t *pgTx) ClearLineups(ctx context.Context) error {
	_, err := t.q.Exec(ctx, `UPDATE users SET lineup = NULL WHERE lineup IS NOT NULL`)
	return err
}

func (t *pgTx) CreateUser(ctx context.Context, u *model.User) error {
	var raw []byte
	if u.Lineup != nil {
		var err error
		if raw, err = json.Marshal(u.Lineup); err != nil {
			return err
		}
	}
	err := t.q.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, team_name, lineup, total_score)
		 VALUES ($1, $2, $3, $4::JSONB, $5::NUMERIC)
		 RETURNING id, created_at`,
		u.Email, u.PasswordHash, u.TeamName, raw, u.TotalScore.String()).
		Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user %s: %w", u.Email, mapErr(err))
	}
	return nil
}

func (t *pgTx) SetLineup(ctx context.Context, email string, l lineup.Lineup) error {
	var raw []byte
	if l != nil {
		var err error
		if raw, err = json.Marshal(l); err != nil {
			return err
		}
	}
	tag, err := t.q.Exec(ctx, `UPDATE users SET lineup = $2::JSONB WHERE email = $1`, email, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	return nil
}

func (t *pgTx) CreatePlayer(ctx context.Context, p *model.Player) error {
	p.StatLine = model.StatLine{}
	p.RoundScore = decimal.Zero
	err := t.q.QueryRow(ctx,
		`INSERT INTO players (name, shirt_number, position, image_url, club_name)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		p.Name, p.ShirtNumber, p.Position, p.ImageURL, p.ClubName).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("create player %s: %w", p.Name, mapErr(err))
	}
	return nil
}

func (t *pgTx) ExistingPlayerIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	rows, err := t.q.Query(ctx, `SELECT id FROM players WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[int64]bool, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found[id] = true
	}
	return found, rows.Err()
}

func (t *pgTx) UpdatePlayerStats(ctx context.Context, id int64, s model.StatLine, roundScore decimal.Decimal) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE players
		 SET goals = $2, assists = $3, shots_on_target = $4, tackles = $5, saves = $6,
		     goals_conceded = $7, yellow_cards = $8, red_cards = $9, round_score = $10::NUMERIC
		 WHERE id = $1`,
		id, s.Goals, s.Assists, s.ShotsOnTarget, s.Tackles, s.Saves,
		s.GoalsConceded, s.YellowCards, s.RedCards, roundScore.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("player %d: %w", id, ErrNotFound)
	}
	return nil
}

func (t *pgTx) UpdatePlayerPhysical(ctx context.Context, id int64, phys model.Physical) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE players SET total_steps = $2, distance_km = $3::NUMERIC WHERE id = $1`,
		id, phys.TotalSteps, phys.DistanceKm.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("player %d: %w", id, ErrNotFound)
	}
	return nil
}
