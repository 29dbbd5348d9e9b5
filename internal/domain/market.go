package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// MaxAmount bounds every stored amount and price. Storage uses signed 64-bit
// integers, so anything above this is rejected as out of range.
const MaxAmount uint64 = math.MaxInt64

// Option is a side of a binary market.
type Option string

const (
	Up   Option = "UP"
	Down Option = "DOWN"
)

func (o Option) Valid() bool {
	return o == Up || o == Down
}

// Opposite returns the other side.
func (o Option) Opposite() Option {
	if o == Up {
		return Down
	}
	return Up
}

// ParseOption accepts "up"/"down" in any case.
func ParseOption(s string) (Option, error) {
	o := Option(strings.ToUpper(strings.TrimSpace(s)))
	if !o.Valid() {
		return "", fmt.Errorf("%w: option %q", ErrInvalidParameter, s)
	}
	return o, nil
}

// Status is the persisted lifecycle state. Only Active and Resolved are ever
// stored; Locked is derived from the clock (see Market.Phase).
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusLocked   Status = "LOCKED"
	StatusResolved Status = "RESOLVED"
)

// Market is one binary up/down prediction on a symbol's price.
type Market struct {
	ID          int64     `json:"id"`
	Creator     Identity  `json:"creator"`
	Question    string    `json:"question"`
	Description string    `json:"description"`
	Symbol      string    `json:"symbol"`
	TargetPrice uint64    `json:"target_price"`
	CreatedAt   time.Time `json:"created_at"`
	EndTime     time.Time `json:"end_time"`
	Status      Status    `json:"status"`

	TotalUpBets   uint64 `json:"total_up_bets"`
	TotalDownBets uint64 `json:"total_down_bets"`

	// Nil until the market is resolved.
	WinningOption   *Option `json:"winning_option,omitempty"`
	ResolutionPrice *uint64 `json:"resolution_price,omitempty"`
}

// BettingClosed reports whether the deadline has passed at ledger time now.
func (m Market) BettingClosed(now time.Time) bool {
	return !now.Before(m.EndTime)
}

// Locked is the derived state between the deadline and resolution.
func (m Market) Locked(now time.Time) bool {
	return m.Status == StatusActive && m.BettingClosed(now)
}

// Phase returns the state a reader should see at ledger time now.
func (m Market) Phase(now time.Time) Status {
	switch {
	case m.Status == StatusResolved:
		return StatusResolved
	case m.Locked(now):
		return StatusLocked
	default:
		return StatusActive
	}
}

// Pool returns the stake total on one side.
func (m Market) Pool(o Option) uint64 {
	if o == Up {
		return m.TotalUpBets
	}
	return m.TotalDownBets
}

// TotalPool is the combined stake of both sides. Pools are each capped at
// MaxAmount so the sum cannot wrap.
func (m Market) TotalPool() uint64 {
	return m.TotalUpBets + m.TotalDownBets
}

// Bet is one bettor's accumulated stake on one side of one market.
type Bet struct {
	MarketID  int64     `json:"market_id"`
	Bettor    Identity  `json:"bettor"`
	Option    Option    `json:"option"`
	Amount    uint64    `json:"amount"`
	Claimed   bool      `json:"claimed"`
	Payout    uint64    `json:"payout"`
	PlacedAt  time.Time `json:"placed_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
