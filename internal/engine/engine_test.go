package engine

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lynora/internal/db"
	"lynora/internal/domain"
	"lynora/internal/events"
)

var (
	creator = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob     = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	carol   = common.HexToAddress("0x00000000000000000000000000000000000000c3")

	t0  = time.UnixMilli(1_700_000_000_000)
	end = t0.Add(time.Hour)
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *sql.DB) {
	t.Helper()
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database))

	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return New(database, opts...), database
}

func at(who domain.Identity, ts time.Time) Call {
	return Call{Caller: who, Time: ts}
}

func paying(who domain.Identity, value uint64, ts time.Time) Call {
	return Call{Caller: who, Value: value, Time: ts}
}

func createBTC(t *testing.T, e *Engine) int64 {
	t.Helper()
	id, err := e.CreateMarket(context.Background(), at(creator, t0), CreateParams{
		Question:    "Will BTC close above 100000?",
		Symbol:      "BTC",
		EndTime:     end,
		TargetPrice: 100000,
	})
	require.NoError(t, err)
	return id
}

func bet(t *testing.T, e *Engine, id int64, who domain.Identity, o domain.Option, amount uint64) {
	t.Helper()
	require.NoError(t, e.PlaceBet(context.Background(), paying(who, amount, t0.Add(time.Minute)), id, o, amount))
}

func TestCreateMarket_Validation(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	cases := []struct {
		name string
		p    CreateParams
	}{
		{"empty question", CreateParams{Question: "  ", Symbol: "BTC", EndTime: end, TargetPrice: 1}},
		{"empty symbol", CreateParams{Question: "q", Symbol: "", EndTime: end, TargetPrice: 1}},
		{"end equals now", CreateParams{Question: "q", Symbol: "BTC", EndTime: t0, TargetPrice: 1}},
		{"end in past", CreateParams{Question: "q", Symbol: "BTC", EndTime: t0.Add(-time.Second), TargetPrice: 1}},
		{"zero target", CreateParams{Question: "q", Symbol: "BTC", EndTime: end, TargetPrice: 0}},
		{"target out of range", CreateParams{Question: "q", Symbol: "BTC", EndTime: end, TargetPrice: domain.MaxAmount + 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.CreateMarket(ctx, at(creator, t0), tc.p)
			require.ErrorIs(t, err, domain.ErrInvalidParameter)
		})
	}

	first := createBTC(t, e)
	second := createBTC(t, e)
	assert.Equal(t, int64(1), first)
	assert.Equal(t, first+1, second)

	m, err := e.GetMarket(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, creator, m.Creator)
	assert.Equal(t, domain.StatusActive, m.Status)
	assert.Zero(t, m.TotalPool())
	assert.Nil(t, m.WinningOption)
	assert.Nil(t, m.ResolutionPrice)
}

func TestGetMarket_NotFound(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.GetMarket(context.Background(), 99)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPlaceBet_PoolsMatchStakes(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	id := createBTC(t, e)

	bet(t, e, id, alice, domain.Up, 100)
	bet(t, e, id, alice, domain.Up, 50)
	bet(t, e, id, bob, domain.Down, 300)
	bet(t, e, id, carol, domain.Up, 7)

	m, err := e.GetMarket(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(157), m.TotalUpBets)
	assert.Equal(t, uint64(300), m.TotalDownBets)
	require.NoError(t, e.CheckPools(ctx, id))

	held, err := e.Custody(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(457), held)

	b, ok, err := e.GetBet(ctx, id, alice)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(150), b.Amount)
	assert.Equal(t, domain.Up, b.Option)
	assert.False(t, b.Claimed)
}

func TestPlaceBet_SideConflictLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	id := createBTC(t, e)
	bet(t, e, id, alice, domain.Up, 100)

	err := e.PlaceBet(ctx, paying(alice, 50, t0.Add(time.Minute)), id, domain.Down, 50)
	require.ErrorIs(t, err, domain.ErrSideConflict)

	m, err := e.GetMarket(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), m.TotalUpBets)
	assert.Zero(t, m.TotalDownBets)

	b, _, err := e.GetBet(ctx, id, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), b.Amount)
	assert.Equal(t, domain.Up, b.Option)

	held, err := e.Custody(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), held)
}

func TestPlaceBet_ClosedAtDeadline(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	id := createBTC(t, e)

	for _, ts := range []time.Time{end, end.Add(time.Second)} {
		err := e.PlaceBet(ctx, paying(alice, 10, ts), id, domain.Up, 10)
		require.ErrorIs(t, err, domain.ErrMarketClosed)
	}

	m, err := e.GetMarket(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, m.TotalPool())
	assert.Equal(t, domain.StatusLocked, m.Phase(end))
	assert.Equal(t, domain.StatusActive, m.Status)

	// One millisecond before the deadline is still open.
	require.NoError(t, e.PlaceBet(ctx, paying(alice, 10, end.Add(-time.Millisecond)), id, domain.Up, 10))
}

func TestPlaceBet_Rejections(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	id := createBTC(t, e)
	now := t0.Add(time.Minute)

	err := e.PlaceBet(ctx, paying(alice, 10, now), 42, domain.Up, 10)
	require.ErrorIs(t, err, domain.ErrNotFound)

	err = e.PlaceBet(ctx, paying(alice, 0, now), id, domain.Up, 0)
	require.ErrorIs(t, err, domain.ErrInvalidParameter)

	err = e.PlaceBet(ctx, paying(alice, 10, now), id, domain.Option("SIDEWAYS"), 10)
	require.ErrorIs(t, err, domain.ErrInvalidParameter)

	err = e.PlaceBet(ctx, paying(alice, 9, now), id, domain.Up, 10)
	require.ErrorIs(t, err, domain.ErrAmountMismatch)

	// The market is checked before the amount.
	err = e.PlaceBet(ctx, paying(alice, 0, end), id, domain.Up, 0)
	require.ErrorIs(t, err, domain.ErrMarketClosed)
}

func TestPlaceBet_PoolOverflowRejected(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	id := createBTC(t, e)

	bet(t, e, id, alice, domain.Up, domain.MaxAmount)
	err := e.PlaceBet(ctx, paying(bob, 1, t0.Add(time.Minute)), id, domain.Up, 1)
	require.ErrorIs(t, err, domain.ErrInvalidParameter)

	m, err := e.GetMarket(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.MaxAmount, m.TotalUpBets)
}

func TestResolveMarket(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	id := createBTC(t, e)

	_, err := e.ResolveMarket(ctx, at(bob, end.Add(-time.Millisecond)), id, 100000)
	require.ErrorIs(t, err, domain.ErrTooEarly)

	_, err = e.ResolveMarket(ctx, at(bob, end), 77, 100000)
	require.ErrorIs(t, err, domain.ErrNotFound)

	winner, err := e.ResolveMarket(ctx, at(bob, end), id, 100000)
	require.NoError(t, err)
	assert.Equal(t, domain.Up, winner, "a claim equal to the target resolves Up")

	_, err = e.ResolveMarket(ctx, at(creator, end.Add(time.Hour)), id, 1)
	require.ErrorIs(t, err, domain.ErrAlreadyResolved)

	m, err := e.GetMarket(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, m.Status)
	require.NotNil(t, m.WinningOption)
	assert.Equal(t, domain.Up, *m.WinningOption)
	require.NotNil(t, m.ResolutionPrice)
	assert.Equal(t, uint64(100000), *m.ResolutionPrice)

	err = e.PlaceBet(ctx, paying(alice, 1, t0), id, domain.Up, 1)
	require.ErrorIs(t, err, domain.ErrMarketClosed)
}

func TestResolveMarket_BelowTargetResolvesDown(t *testing.T) {
	e, _ := newTestEngine(t)
	id := createBTC(t, e)
	winner, err := e.ResolveMarket(context.Background(), at(alice, end), id, 99999)
	require.NoError(t, err)
	assert.Equal(t, domain.Down, winner)
}

func TestClaim_ConservationScenario(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	id := createBTC(t, e)
	bet(t, e, id, alice, domain.Up, 100)
	bet(t, e, id, bob, domain.Down, 300)

	winner, err := e.ResolveMarket(ctx, at(carol, end.Add(time.Minute)), id, 105000)
	require.NoError(t, err)
	require.Equal(t, domain.Up, winner)

	preview, err := e.PreviewPayout(ctx, id, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), preview)

	paid, err := e.Claim(ctx, at(alice, end.Add(2*time.Minute)), id)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), paid)

	_, err = e.Claim(ctx, at(bob, end.Add(2*time.Minute)), id)
	require.ErrorIs(t, err, domain.ErrNotAWinner)

	_, err = e.Claim(ctx, at(alice, end.Add(3*time.Minute)), id)
	require.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	bal, err := e.Balance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), bal, "second claim transfers nothing")

	held, err := e.Custody(ctx)
	require.NoError(t, err)
	assert.Zero(t, held)

	b, _, err := e.GetBet(ctx, id, alice)
	require.NoError(t, err)
	assert.True(t, b.Claimed)
	assert.Equal(t, uint64(400), b.Payout)
}

func TestClaim_DegeneratePoolReturnsStake(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	id := createBTC(t, e)
	bet(t, e, id, alice, domain.Up, 100)

	_, err := e.ResolveMarket(ctx, at(alice, end), id, 200000)
	require.NoError(t, err)

	paid, err := e.Claim(ctx, at(alice, end), id)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), paid)
}

func TestClaim_ExactDivisionPaysWholePool(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	id := createBTC(t, e)
	bet(t, e, id, alice, domain.Up, 100)
	bet(t, e, id, bob, domain.Up, 100)
	bet(t, e, id, carol, domain.Down, 200)

	_, err := e.ResolveMarket(ctx, at(carol, end), id, 100001)
	require.NoError(t, err)

	for _, who := range []domain.Identity{alice, bob} {
		paid, err := e.Claim(ctx, at(who, end), id)
		require.NoError(t, err)
		assert.Equal(t, uint64(200), paid)
	}

	held, err := e.Custody(ctx)
	require.NoError(t, err)
	assert.Zero(t, held)

	d, err := e.Settlement(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), d.PaidTotal)
	assert.Zero(t, d.Dust)
}

func TestClaim_Rejections(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	id := createBTC(t, e)
	bet(t, e, id, alice, domain.Up, 100)

	_, err := e.Claim(ctx, at(alice, end), 5)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = e.Claim(ctx, at(bob, end), id)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = e.Claim(ctx, at(alice, end), id)
	require.ErrorIs(t, err, domain.ErrNotResolved)

	_, err = e.PreviewPayout(ctx, id, alice)
	require.ErrorIs(t, err, domain.ErrNotResolved)
}

func TestClaim_ReentrantClaimRejected(t *testing.T) {
	ctx := context.Background()
	var inner error
	reenter := TransferFunc(func(ctx context.Context, sess *Session, to domain.Identity, amount uint64) error {
		_, inner = sess.Claim(ctx, 1)
		return VaultTransfer{}.Transfer(ctx, sess, to, amount)
	})
	e, _ := newTestEngine(t, WithTransferer(reenter))
	id := createBTC(t, e)
	bet(t, e, id, alice, domain.Up, 100)
	bet(t, e, id, bob, domain.Down, 100)
	_, err := e.ResolveMarket(ctx, at(alice, end), id, 100000)
	require.NoError(t, err)

	paid, err := e.Claim(ctx, at(alice, end), id)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), paid)
	require.ErrorIs(t, inner, domain.ErrAlreadyClaimed)

	bal, err := e.Balance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), bal)
}

func TestClaim_FailedTransferRollsBack(t *testing.T) {
	ctx := context.Background()
	fail := true
	flaky := TransferFunc(func(ctx context.Context, sess *Session, to domain.Identity, amount uint64) error {
		if fail {
			return errors.New("recipient rejected value")
		}
		return VaultTransfer{}.Transfer(ctx, sess, to, amount)
	})
	e, database := newTestEngine(t, WithTransferer(flaky))
	id := createBTC(t, e)
	bet(t, e, id, alice, domain.Up, 100)
	_, err := e.ResolveMarket(ctx, at(alice, end), id, 100000)
	require.NoError(t, err)

	_, err = e.Claim(ctx, at(alice, end), id)
	require.Error(t, err)

	b, _, err := e.GetBet(ctx, id, alice)
	require.NoError(t, err)
	assert.False(t, b.Claimed, "claimed flag rolled back with the transfer")

	var claims int
	require.NoError(t, database.QueryRow(
		`SELECT COUNT(*) FROM events WHERE kind = ?`, string(events.PayoutClaimed)).Scan(&claims))
	assert.Zero(t, claims)

	fail = false
	paid, err := e.Claim(ctx, at(alice, end), id)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), paid)
}

func TestHistory_OnlyCommittedCalls(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	id := createBTC(t, e)
	bet(t, e, id, alice, domain.Up, 100)
	require.Error(t, e.PlaceBet(ctx, paying(alice, 5, t0), id, domain.Down, 5))
	_, err := e.ResolveMarket(ctx, at(bob, end), id, 1)
	require.NoError(t, err)

	hist, err := e.History(ctx, id)
	require.NoError(t, err)
	kinds := make([]events.Kind, 0, len(hist))
	for _, ev := range hist {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []events.Kind{events.MarketCreated, events.BetPlaced, events.MarketResolved}, kinds)
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	first := createBTC(t, e)
	second, err := e.CreateMarket(ctx, at(alice, t0), CreateParams{
		Question:    "ETH above 4000?",
		Symbol:      "ETH",
		EndTime:     t0.Add(10 * time.Minute),
		TargetPrice: 4000,
	})
	require.NoError(t, err)
	bet(t, e, first, alice, domain.Up, 10)
	bet(t, e, second, alice, domain.Down, 20)

	var ids []int64
	for m, err := range e.Markets(ctx) {
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []int64{first, second}, ids)

	active, err := e.ActiveMarkets(ctx, t0.Add(30*time.Minute))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, first, active[0].ID)

	mine, err := e.MarketsByCreator(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, second, mine[0].ID)

	bets, err := e.BettorBets(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, bets, 2)

	onFirst, err := e.MarketBets(ctx, first)
	require.NoError(t, err)
	require.Len(t, onFirst, 1)
	assert.Equal(t, alice, onFirst[0].Bettor)

	_, err = e.MarketBets(ctx, 404)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
