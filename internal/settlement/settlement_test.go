package settlement

import (
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lynora/internal/domain"
)

func resolved(winner domain.Option, up, down uint64) domain.Market {
	return domain.Market{
		ID:            1,
		Status:        domain.StatusResolved,
		TotalUpBets:   up,
		TotalDownBets: down,
		WinningOption: &winner,
	}
}

func addr(b byte) domain.Identity {
	return common.BytesToAddress([]byte{b})
}

func TestDecide_TieResolvesUp(t *testing.T) {
	assert.Equal(t, domain.Up, Decide(100000, 100000))
	assert.Equal(t, domain.Up, Decide(100000, 105000))
	assert.Equal(t, domain.Down, Decide(100000, 99999))
}

func TestPayout_ProportionalShare(t *testing.T) {
	// 100 Up vs 300 Down: the sole Up bettor takes the whole 400.
	p, err := Payout(100, 100, 300)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), p)

	// 30 of a 90 winning pool against 10: 30*100/90 = 33.33 -> 33.
	p, err = Payout(30, 90, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(33), p)
}

func TestPayout_EmptyLosingPoolReturnsStake(t *testing.T) {
	p, err := Payout(100, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), p)

	p, err = Payout(0, 0, 500)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), p)
}

func TestPayout_RejectsStakeAboveWinningPool(t *testing.T) {
	_, err := Payout(101, 100, 5)
	require.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestPayout_LargeValuesDoNotWrap(t *testing.T) {
	// stake * total is far beyond 64 bits, the quotient is not.
	big := domain.MaxAmount / 2
	p, err := Payout(big, big, big)
	require.NoError(t, err)
	assert.Equal(t, big*2, p)
}

func TestAddStake_Overflow(t *testing.T) {
	sum, err := AddStake(40, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), sum)

	_, err = AddStake(domain.MaxAmount, 1)
	require.ErrorIs(t, err, domain.ErrInvalidParameter)

	_, err = AddStake(math.MaxUint64, math.MaxUint64)
	require.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestPayoutFor(t *testing.T) {
	m := resolved(domain.Up, 100, 300)

	p, err := PayoutFor(m, domain.Bet{Option: domain.Up, Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, uint64(400), p)

	p, err = PayoutFor(m, domain.Bet{Option: domain.Down, Amount: 300})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), p)

	_, err = PayoutFor(domain.Market{Status: domain.StatusActive}, domain.Bet{Option: domain.Up, Amount: 1})
	require.ErrorIs(t, err, domain.ErrNotResolved)
}

func TestDistribute_ExactDivision(t *testing.T) {
	m := resolved(domain.Up, 200, 200)
	bets := []domain.Bet{
		{Bettor: addr(1), Option: domain.Up, Amount: 100},
		{Bettor: addr(2), Option: domain.Up, Amount: 100},
		{Bettor: addr(3), Option: domain.Down, Amount: 200},
	}

	d, err := Distribute(m, bets)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), d.Payouts[addr(1)])
	assert.Equal(t, uint64(200), d.Payouts[addr(2)])
	assert.NotContains(t, d.Payouts, addr(3))
	assert.Equal(t, uint64(400), d.PaidTotal)
	assert.Equal(t, uint64(0), d.Dust)
}

func TestDistribute_TruncationDustStays(t *testing.T) {
	// Three winners of 1 each against a losing pool of 1: each gets 4/3 -> 1.
	m := resolved(domain.Down, 1, 3)
	bets := []domain.Bet{
		{Bettor: addr(1), Option: domain.Down, Amount: 1},
		{Bettor: addr(2), Option: domain.Down, Amount: 1},
		{Bettor: addr(3), Option: domain.Down, Amount: 1},
		{Bettor: addr(4), Option: domain.Up, Amount: 1},
	}

	d, err := Distribute(m, bets)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), d.PaidTotal)
	assert.Equal(t, uint64(1), d.Dust)
	assert.Equal(t, d.TotalPool, d.PaidTotal+d.Dust)
}

func TestDistribute_NeverExceedsPool(t *testing.T) {
	stakes := [][]uint64{
		{7, 11, 13},
		{1, 1, 1, 1, 1, 1, 1},
		{999, 1},
		{3},
	}
	for _, winners := range stakes {
		for _, loser := range []uint64{0, 1, 5, 17, 1000} {
			var w uint64
			bets := make([]domain.Bet, 0, len(winners)+1)
			for i, s := range winners {
				w += s
				bets = append(bets, domain.Bet{Bettor: addr(byte(i + 1)), Option: domain.Up, Amount: s})
			}
			if loser > 0 {
				bets = append(bets, domain.Bet{Bettor: addr(200), Option: domain.Down, Amount: loser})
			}

			d, err := Distribute(resolved(domain.Up, w, loser), bets)
			require.NoError(t, err)
			assert.LessOrEqual(t, d.PaidTotal, w+loser)
			assert.Equal(t, w+loser, d.PaidTotal+d.Dust)
			if loser == 0 {
				assert.Equal(t, uint64(0), d.Dust, "empty losing pool pays stakes back exactly")
			}
		}
	}
}
