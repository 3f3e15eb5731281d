package market_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/passapraela/fantasy-engine/internal/lineup"
	"github.com/passapraela/fantasy-engine/internal/market"
	"github.com/passapraela/fantasy-engine/internal/model"
	"github.com/passapraela/fantasy-engine/internal/scoring"
	"github.com/passapraela/fantasy-engine/internal/store"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedPlayer(t *testing.T, st store.Store, name string, stats model.StatLine) *model.Player {
	t.Helper()
	ctx := context.Background()
	p := &model.Player{Name: name}
	err := st.InTx(ctx, func(tx store.Tx) error {
		if err := tx.CreatePlayer(ctx, p); err != nil {
			return err
		}
		return tx.UpdatePlayerStats(ctx, p.ID, stats, scoring.RoundScore(stats))
	})
	if err != nil {
		t.Fatalf("failed to seed player: %v", err)
	}
	p.StatLine = stats
	p.RoundScore = scoring.RoundScore(stats)
	return p
}

func seedUser(t *testing.T, st store.Store, email string, total decimal.Decimal, l lineup.Lineup) *model.User {
	t.Helper()
	ctx := context.Background()
	u := &model.User{Email: email, TeamName: "team-" + email}
	err := st.InTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		if !total.IsZero() {
			if err := tx.AddTotalScore(ctx, u.ID, total); err != nil {
				return err
			}
		}
		if l != nil {
			return tx.SetLineup(ctx, email, l)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return u
}

func setStatus(t *testing.T, c *market.Controller, status string) *market.Transition {
	t.Helper()
	tr, err := c.SetStatus(context.Background(), status)
	if err != nil {
		t.Fatalf("SetStatus(%s): %v", status, err)
	}
	return tr
}

func user(t *testing.T, st store.Store, email string) *model.User {
	t.Helper()
	u, err := st.GetUserByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("get user %s: %v", email, err)
	}
	return u
}

// state is everything settlement can touch.
type state struct {
	Status  model.MarketStatus
	Totals  map[string]string
	Lineups map[string]lineup.Lineup
	Players []model.Player
}

func snapshot(t *testing.T, st store.Store, emails ...string) state {
	t.Helper()
	ctx := context.Background()
	status, err := st.GetMarketStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	players, err := st.ListPlayers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	s := state{
		Status:  status,
		Totals:  make(map[string]string),
		Lineups: make(map[string]lineup.Lineup),
		Players: players,
	}
	for _, e := range emails {
		u := user(t, st, e)
		s.Totals[e] = u.TotalScore.String()
		s.Lineups[e] = u.Lineup
	}
	return s
}

// --- State machine ---

func TestSetStatus_CloseIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	c := market.NewController(st, nil, nil)
	a := seedPlayer(t, st, "A", model.StatLine{Goals: 1})
	seedUser(t, st, "u@x.com", d("5"), lineup.Lineup{"s1": {ID: a.ID}})

	first := setStatus(t, c, "closed")
	if first.From != model.MarketOpen || first.To != model.MarketClosed || first.Settlement != nil {
		t.Errorf("unexpected transition: %+v", first)
	}
	after1 := snapshot(t, st, "u@x.com")

	second := setStatus(t, c, "closed")
	if second.From != model.MarketClosed {
		t.Errorf("expected re-assert from closed, got %s", second.From)
	}
	after2 := snapshot(t, st, "u@x.com")

	if !reflect.DeepEqual(after1, after2) {
		t.Errorf("second close changed state:\n%+v\n%+v", after1, after2)
	}
	if after2.Status != model.MarketClosed {
		t.Errorf("expected closed, got %s", after2.Status)
	}
	if after2.Totals["u@x.com"] != "5" {
		t.Errorf("close must not score, total=%s", after2.Totals["u@x.com"])
	}
	if after2.Lineups["u@x.com"] == nil {
		t.Error("close must not clear lineups")
	}
}

func TestSetStatus_SettlementExample(t *testing.T) {
	st := store.NewMemoryStore()
	c := market.NewController(st, nil, nil)

	// 8 + 2 = 10 and 1 - 2 - 2 = -3
	a := seedPlayer(t, st, "A", model.StatLine{Goals: 1, Saves: 1})
	b := seedPlayer(t, st, "B", model.StatLine{Tackles: 1, GoalsConceded: 1, YellowCards: 1})
	if !a.RoundScore.Equal(d("10")) || !b.RoundScore.Equal(d("-3")) {
		t.Fatalf("seed scores wrong: A=%s B=%s", a.RoundScore, b.RoundScore)
	}

	seedUser(t, st, "u@x.com", d("100"), lineup.Lineup{
		"slot1": {ID: a.ID},
		"slot2": {ID: b.ID},
		"slot3": nil,
	})

	setStatus(t, c, "closed")
	tr := setStatus(t, c, "open")

	u := user(t, st, "u@x.com")
	if !u.TotalScore.Equal(d("107")) {
		t.Errorf("expected total 107, got %s", u.TotalScore)
	}
	if u.Lineup != nil {
		t.Errorf("expected lineup cleared, got %v", u.Lineup)
	}
	for _, id := range []int64{a.ID, b.ID} {
		p, _ := st.GetPlayer(context.Background(), id)
		if !p.StatLine.IsZero() || !p.RoundScore.IsZero() {
			t.Errorf("player %d not reset: %+v", id, p)
		}
	}
	if status, _ := c.Status(context.Background()); status != model.MarketOpen {
		t.Errorf("expected open, got %s", status)
	}

	if tr.From != model.MarketClosed || tr.To != model.MarketOpen {
		t.Errorf("unexpected transition: %+v", tr)
	}
	if tr.Settlement == nil || tr.Settlement.UsersScored != 1 || !tr.Settlement.PointsAwarded.Equal(d("7")) {
		t.Errorf("unexpected report: %+v", tr.Settlement)
	}
}

func TestSetStatus_OpenFromOpenSettles(t *testing.T) {
	st := store.NewMemoryStore()
	c := market.NewController(st, nil, nil)
	a := seedPlayer(t, st, "A", model.StatLine{Assists: 1})
	seedUser(t, st, "u@x.com", decimal.Zero, lineup.Lineup{"s1": {ID: a.ID}})

	tr := setStatus(t, c, "open")
	if tr.From != model.MarketOpen || tr.Settlement == nil {
		t.Errorf("unexpected transition: %+v", tr)
	}
	if got := user(t, st, "u@x.com").TotalScore; !got.Equal(d("5")) {
		t.Errorf("expected 5, got %s", got)
	}
}

func TestSetStatus_SkipIfEmpty(t *testing.T) {
	st := store.NewMemoryStore()
	c := market.NewController(st, nil, nil)
	seedPlayer(t, st, "A", model.StatLine{Goals: 3})
	seedUser(t, st, "null@x.com", d("42"), nil)
	seedUser(t, st, "slots@x.com", d("13"), lineup.Lineup{"slot1": nil})

	setStatus(t, c, "closed")
	tr := setStatus(t, c, "open")

	if got := user(t, st, "null@x.com").TotalScore; !got.Equal(d("42")) {
		t.Errorf("null lineup: expected 42, got %s", got)
	}
	if got := user(t, st, "slots@x.com").TotalScore; !got.Equal(d("13")) {
		t.Errorf("empty slots: expected 13, got %s", got)
	}
	if tr.Settlement.UsersScored != 0 || tr.Settlement.UsersSkipped != 1 {
		t.Errorf("unexpected report: %+v", tr.Settlement)
	}
}

func TestSetStatus_UnknownPlayerIDsAreNoop(t *testing.T) {
	st := store.NewMemoryStore()
	c := market.NewController(st, nil, nil)
	seedUser(t, st, "u@x.com", d("7"), lineup.Lineup{"s1": {ID: 999}})

	setStatus(t, c, "open")
	if got := user(t, st, "u@x.com").TotalScore; !got.Equal(d("7")) {
		t.Errorf("expected 7, got %s", got)
	}
}

func TestSetStatus_DuplicatePickCountsOnce(t *testing.T) {
	st := store.NewMemoryStore()
	c := market.NewController(st, nil, nil)
	a := seedPlayer(t, st, "A", model.StatLine{Goals: 1}) // 8
	seedUser(t, st, "u@x.com", decimal.Zero, lineup.Lineup{
		"s1": {ID: a.ID},
		"s2": {ID: a.ID},
	})

	setStatus(t, c, "open")
	if got := user(t, st, "u@x.com").TotalScore; !got.Equal(d("8")) {
		t.Errorf("duplicate pick should count once: expected 8, got %s", got)
	}
}

func TestSetStatus_BulkResetCompleteness(t *testing.T) {
	st := store.NewMemoryStore()
	c := market.NewController(st, nil, nil)
	picked := seedPlayer(t, st, "picked", model.StatLine{Goals: 1})
	seedPlayer(t, st, "unpicked", model.StatLine{
		Goals: 1, Assists: 2, ShotsOnTarget: 3, Tackles: 4,
		Saves: 5, GoalsConceded: 6, YellowCards: 1, RedCards: 1,
	})
	seedUser(t, st, "u@x.com", decimal.Zero, lineup.Lineup{"s1": {ID: picked.ID}})
	seedUser(t, st, "other@x.com", decimal.Zero, nil)

	setStatus(t, c, "open")

	players, _ := st.ListPlayers(context.Background())
	for _, p := range players {
		if !p.StatLine.IsZero() || !p.RoundScore.IsZero() {
			t.Errorf("player %s not reset: %+v", p.Name, p)
		}
	}
	for _, e := range []string{"u@x.com", "other@x.com"} {
		if l := user(t, st, e).Lineup; l != nil {
			t.Errorf("%s lineup not cleared: %v", e, l)
		}
	}
}

func TestSetStatus_ZeroLineupsStillResets(t *testing.T) {
	st := store.NewMemoryStore()
	c := market.NewController(st, nil, nil)
	p := seedPlayer(t, st, "A", model.StatLine{Saves: 4})

	tr := setStatus(t, c, "open")
	if tr.Settlement.UsersScored != 0 || tr.Settlement.UsersSkipped != 0 {
		t.Errorf("unexpected report: %+v", tr.Settlement)
	}
	got, _ := st.GetPlayer(context.Background(), p.ID)
	if !got.StatLine.IsZero() {
		t.Errorf("expected reset, got %+v", got.StatLine)
	}
}

func TestSetStatus_InvalidStatusRejected(t *testing.T) {
	st := store.NewMemoryStore()
	c := market.NewController(st, nil, nil)
	a := seedPlayer(t, st, "A", model.StatLine{Goals: 2})
	seedUser(t, st, "u@x.com", d("3"), lineup.Lineup{"s1": {ID: a.ID}})
	setStatus(t, c, "closed")
	before := snapshot(t, st, "u@x.com")

	for _, bad := range []string{"foo", "", "OPEN", "Closed"} {
		tr, err := c.SetStatus(context.Background(), bad)
		if !errors.Is(err, market.ErrInvalidStatus) {
			t.Errorf("%q: expected ErrInvalidStatus, got %v", bad, err)
		}
		if tr != nil {
			t.Errorf("%q: expected nil transition", bad)
		}
	}

	if after := snapshot(t, st, "u@x.com"); !reflect.DeepEqual(before, after) {
		t.Errorf("invalid status changed state:\n%+v\n%+v", before, after)
	}
}

// --- Atomicity ---

var errInjected = errors.New("injected fault")

// faultStore fails the failOn-th AddTotalScore call of each transaction.
type faultStore struct {
	*store.MemoryStore
	failOn int
}

func (f *faultStore) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return f.MemoryStore.InTx(ctx, func(tx store.Tx) error {
		return fn(&faultTx{Tx: tx, failOn: f.failOn})
	})
}

type faultTx struct {
	store.Tx
	calls  int
	failOn int
}

func (t *faultTx) AddTotalScore(ctx context.Context, userID int64, delta decimal.Decimal) error {
	t.calls++
	if t.calls == t.failOn {
		return errInjected
	}
	return t.Tx.AddTotalScore(ctx, userID, delta)
}

func TestSetStatus_AtomicUnderFailure(t *testing.T) {
	mem := store.NewMemoryStore()
	a := seedPlayer(t, mem, "A", model.StatLine{Goals: 1})
	b := seedPlayer(t, mem, "B", model.StatLine{Assists: 1})
	emails := []string{"u1@x.com", "u2@x.com", "u3@x.com"}
	for _, e := range emails {
		seedUser(t, mem, e, d("50"), lineup.Lineup{"s1": {ID: a.ID}, "s2": {ID: b.ID}})
	}

	fs := &faultStore{MemoryStore: mem, failOn: 2}
	c := market.NewController(fs, nil, nil)
	setStatus(t, c, "closed")
	before := snapshot(t, mem, emails...)

	tr, err := c.SetStatus(context.Background(), "open")
	if !errors.Is(err, market.ErrSettlementFailed) {
		t.Fatalf("expected ErrSettlementFailed, got %v", err)
	}
	if !errors.Is(err, errInjected) {
		t.Errorf("expected cause to be preserved, got %v", err)
	}
	if tr != nil {
		t.Errorf("expected nil transition on failure")
	}

	after := snapshot(t, mem, emails...)
	if !reflect.DeepEqual(before, after) {
		t.Errorf("failed settlement leaked writes:\n%+v\n%+v", before, after)
	}
	if after.Status != model.MarketClosed {
		t.Errorf("expected market to stay closed, got %s", after.Status)
	}

	// Retrying once the fault is gone settles normally.
	fs.failOn = 0
	setStatus(t, c, "open")
	for _, e := range emails {
		if got := user(t, mem, e).TotalScore; !got.Equal(d("63")) {
			t.Errorf("%s: expected 63 after retry, got %s", e, got)
		}
	}
}

// --- Leaderboard ---

func TestLeaderboard_OrderAndTieBreak(t *testing.T) {
	st := store.NewMemoryStore()
	c := market.NewController(st, nil, nil)
	seedUser(t, st, "first@x.com", d("20"), nil)
	seedUser(t, st, "second@x.com", d("35.5"), nil)
	seedUser(t, st, "third@x.com", d("20"), nil)
	seedUser(t, st, "fourth@x.com", d("-4"), nil)

	entries, err := c.Leaderboard(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"team-second@x.com", "team-first@x.com", "team-third@x.com"}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, w := range want {
		if entries[i].TeamName != w {
			t.Errorf("position %d: expected %s, got %s", i, w, entries[i].TeamName)
		}
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].TotalScore.GreaterThan(entries[i-1].TotalScore) {
			t.Errorf("entries not descending at %d", i)
		}
	}
}

func TestLeaderboard_DefaultAndCap(t *testing.T) {
	st := store.NewMemoryStore()
	c := market.NewController(st, nil, nil)
	for i := 0; i < 120; i++ {
		seedUser(t, st, fmt.Sprintf("u%d@x.com", i), decimal.NewFromInt(int64(i)), nil)
	}

	tests := []struct {
		n    int
		want int
	}{
		{0, market.DefaultLeaderboardSize},
		{-5, market.DefaultLeaderboardSize},
		{7, 7},
		{500, market.MaxLeaderboardSize},
	}
	for _, tt := range tests {
		entries, err := c.Leaderboard(context.Background(), tt.n)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != tt.want {
			t.Errorf("n=%d: expected %d entries, got %d", tt.n, tt.want, len(entries))
		}
	}
}

// --- Lineup precondition and concurrency ---

func saveLineup(ctx context.Context, st store.Store, email string, l lineup.Lineup) error {
	return st.InTx(ctx, func(tx store.Tx) error {
		if err := market.RequireOpen(ctx, tx); err != nil {
			return err
		}
		return tx.SetLineup(ctx, email, l)
	})
}

func TestRequireOpen(t *testing.T) {
	st := store.NewMemoryStore()
	c := market.NewController(st, nil, nil)
	a := seedPlayer(t, st, "A", model.StatLine{})
	seedUser(t, st, "u@x.com", decimal.Zero, nil)
	ctx := context.Background()

	if err := saveLineup(ctx, st, "u@x.com", lineup.Lineup{"s1": {ID: a.ID}}); err != nil {
		t.Fatalf("save while open: %v", err)
	}

	setStatus(t, c, "closed")
	err := saveLineup(ctx, st, "u@x.com", lineup.Lineup{"s1": nil})
	if !errors.Is(err, market.ErrMarketClosed) {
		t.Errorf("expected ErrMarketClosed, got %v", err)
	}
	if l := user(t, st, "u@x.com").Lineup; l["s1"] == nil {
		t.Error("rejected save must not change the frozen lineup")
	}
}

func TestSetStatus_ConcurrentOpensCreditOnce(t *testing.T) {
	st := store.NewMemoryStore()
	c := market.NewController(st, nil, nil)
	a := seedPlayer(t, st, "A", model.StatLine{Goals: 1, Assists: 1}) // 13
	seedUser(t, st, "u@x.com", decimal.Zero, lineup.Lineup{"s1": {ID: a.ID}})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.SetStatus(context.Background(), "open"); err != nil {
				t.Errorf("SetStatus: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := user(t, st, "u@x.com").TotalScore; !got.Equal(d("13")) {
		t.Errorf("expected a single credit of 13, got %s", got)
	}
}

func TestSetStatus_CloseRacesLineupSaves(t *testing.T) {
	st := store.NewMemoryStore()
	c := market.NewController(st, nil, nil)
	a := seedPlayer(t, st, "A", model.StatLine{})
	const users = 20
	for i := 0; i < users; i++ {
		seedUser(t, st, fmt.Sprintf("u%d@x.com", i), decimal.Zero, nil)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted = make(map[string]bool)
	)
	start := make(chan struct{})
	for i := 0; i < users; i++ {
		email := fmt.Sprintf("u%d@x.com", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := saveLineup(context.Background(), st, email, lineup.Lineup{"s1": {ID: a.ID}})
			switch {
			case err == nil:
				mu.Lock()
				accepted[email] = true
				mu.Unlock()
			case !errors.Is(err, market.ErrMarketClosed):
				t.Errorf("%s: unexpected error %v", email, err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		if _, err := c.SetStatus(context.Background(), "closed"); err != nil {
			t.Errorf("close: %v", err)
		}
	}()
	close(start)
	wg.Wait()

	// Every accepted save is visible; every rejected one left no trace.
	for i := 0; i < users; i++ {
		email := fmt.Sprintf("u%d@x.com", i)
		has := user(t, st, email).Lineup != nil
		if has != accepted[email] {
			t.Errorf("%s: lineup present=%v but save accepted=%v", email, has, accepted[email])
		}
	}
}

// --- Settlement lock ---

type heldLocker struct{}

func (heldLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, store.ErrLockHeld
}

type countingLocker struct {
	acquired, released int
}

func (l *countingLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	l.acquired++
	return func() { l.released++ }, nil
}

func TestSetStatus_LockHeld(t *testing.T) {
	st := store.NewMemoryStore()
	c := market.NewController(st, heldLocker{}, nil)
	a := seedPlayer(t, st, "A", model.StatLine{Goals: 1})
	seedUser(t, st, "u@x.com", decimal.Zero, lineup.Lineup{"s1": {ID: a.ID}})

	_, err := c.SetStatus(context.Background(), "open")
	if !errors.Is(err, market.ErrSettlementInProgress) {
		t.Fatalf("expected ErrSettlementInProgress, got %v", err)
	}
	if got := user(t, st, "u@x.com").TotalScore; !got.IsZero() {
		t.Errorf("expected no credit while locked, got %s", got)
	}

	// Closing does not need the settlement lock.
	if _, err := c.SetStatus(context.Background(), "closed"); err != nil {
		t.Errorf("close with held lock: %v", err)
	}
}

func TestSetStatus_LockReleased(t *testing.T) {
	st := store.NewMemoryStore()
	l := &countingLocker{}
	c := market.NewController(st, l, nil)

	setStatus(t, c, "open")
	if l.acquired != 1 || l.released != 1 {
		t.Errorf("expected one acquire and release, got %d/%d", l.acquired, l.released)
	}
}
