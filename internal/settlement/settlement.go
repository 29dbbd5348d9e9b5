// Package settlement decides market outcomes and computes winner payouts.
//
// All arithmetic is integer. Intermediate products are computed in 256 bits
// so stake*totalPool cannot wrap; any result that does not fit the ledger's
// amount range is reported as domain.ErrInvalidParameter before anything is
// written.
package settlement

import (
	"fmt"

	"github.com/holiman/uint256"

	"lynora/internal/domain"
)

// Decide returns the winning side for an oracle price claim. The boundary is
// inclusive: a claim equal to the target resolves Up.
func Decide(targetPrice, priceClaim uint64) domain.Option {
	if priceClaim >= targetPrice {
		return domain.Up
	}
	return domain.Down
}

// AddStake returns pool+amount, rejecting totals above domain.MaxAmount.
func AddStake(pool, amount uint64) (uint64, error) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(pool), uint256.NewInt(amount))
	if overflow || !sum.IsUint64() || sum.Uint64() > domain.MaxAmount {
		return 0, fmt.Errorf("%w: pool overflow (%d + %d)", domain.ErrInvalidParameter, pool, amount)
	}
	return sum.Uint64(), nil
}

// Payout computes a winner's share of the combined pool:
//
//	payout = stake * (winnerPool + loserPool) / winnerPool
//
// truncated toward zero. When the losing pool is empty the winner gets back
// exactly their stake; an empty winning pool (unreachable for a real winner)
// is treated the same way instead of dividing by zero.
func Payout(stake, winnerPool, loserPool uint64) (uint64, error) {
	if stake > winnerPool {
		return 0, fmt.Errorf("%w: stake %d exceeds winning pool %d", domain.ErrInvalidParameter, stake, winnerPool)
	}
	if loserPool == 0 || winnerPool == 0 {
		return stake, nil
	}

	total, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(winnerPool), uint256.NewInt(loserPool))
	if overflow {
		return 0, fmt.Errorf("%w: pool overflow", domain.ErrInvalidParameter)
	}
	product, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(stake), total)
	if overflow {
		return 0, fmt.Errorf("%w: payout overflow", domain.ErrInvalidParameter)
	}
	share := new(uint256.Int).Div(product, uint256.NewInt(winnerPool))
	if !share.IsUint64() || share.Uint64() > domain.MaxAmount {
		return 0, fmt.Errorf("%w: payout %s out of range", domain.ErrInvalidParameter, share.Dec())
	}
	return share.Uint64(), nil
}

// PayoutFor computes what bet receives from a resolved market. Losing bets
// receive zero.
func PayoutFor(m domain.Market, bet domain.Bet) (uint64, error) {
	if m.Status != domain.StatusResolved || m.WinningOption == nil {
		return 0, fmt.Errorf("%w: market %d", domain.ErrNotResolved, m.ID)
	}
	winner := *m.WinningOption
	if bet.Option != winner {
		return 0, nil
	}
	return Payout(bet.Amount, m.Pool(winner), m.Pool(winner.Opposite()))
}

// Distribution is the full payout table of a resolved market.
type Distribution struct {
	MarketID  int64                      `json:"market_id"`
	Winner    domain.Option              `json:"winner"`
	TotalPool uint64                     `json:"total_pool"`
	Payouts   map[domain.Identity]uint64 `json:"payouts"`
	PaidTotal uint64                     `json:"paid_total"`
	// Dust is the truncation remainder that stays in custody forever.
	Dust uint64 `json:"dust"`
}

// Distribute computes every winner's payout for a resolved market and the
// resulting dust. The sum of payouts never exceeds the total pool.
func Distribute(m domain.Market, bets []domain.Bet) (Distribution, error) {
	if m.Status != domain.StatusResolved || m.WinningOption == nil {
		return Distribution{}, fmt.Errorf("%w: market %d", domain.ErrNotResolved, m.ID)
	}

	d := Distribution{
		MarketID:  m.ID,
		Winner:    *m.WinningOption,
		TotalPool: m.TotalPool(),
		Payouts:   make(map[domain.Identity]uint64),
	}
	for _, b := range bets {
		if b.Option != d.Winner {
			continue
		}
		p, err := PayoutFor(m, b)
		if err != nil {
			return Distribution{}, err
		}
		d.Payouts[b.Bettor] = p
		d.PaidTotal += p
	}
	if d.PaidTotal > d.TotalPool {
		return Distribution{}, fmt.Errorf("%w: payouts %d exceed pool %d", domain.ErrInvalidParameter, d.PaidTotal, d.TotalPool)
	}
	d.Dust = d.TotalPool - d.PaidTotal
	return d, nil
}
