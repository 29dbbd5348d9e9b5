// Package engine runs the four market entry points (create, bet, resolve,
// claim) as atomic units over contract storage, plus the read-only queries.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"lynora/internal/custody"
	"lynora/internal/domain"
	"lynora/internal/events"
	"lynora/internal/settlement"
	"lynora/internal/store"
)

// Call carries the ledger primitives of one invocation: who is calling, how
// much native value is attached and the ledger timestamp.
type Call struct {
	Caller domain.Identity
	Value  uint64
	Time   time.Time
}

// Engine serialises entry points and runs each inside one transaction. A call
// either commits every write it made or none of them.
type Engine struct {
	db       *sql.DB
	mu       sync.Mutex
	transfer Transferer
	logger   *slog.Logger
}

type Option func(*Engine)

// WithTransferer replaces the default custody-backed value transfer.
func WithTransferer(t Transferer) Option {
	return func(e *Engine) { e.transfer = t }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func New(database *sql.DB, opts ...Option) *Engine {
	e := &Engine{
		db:       database,
		transfer: VaultTransfer{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// atomically runs fn inside a fresh transaction bound to call.
func (e *Engine) atomically(ctx context.Context, op string, call Call, fn func(*Session) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	if err := fn(newSession(tx, call, e.transfer)); err != nil {
		_ = tx.Rollback()
		e.reject(op, call, err)
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

func (e *Engine) reject(op string, call Call, err error) {
	kind := domain.Kind(err)
	if kind == nil {
		e.logger.Error("call failed", "op", op, "caller", call.Caller.Hex(), "error", err)
		return
	}
	e.logger.Warn("call rejected", "op", op, "caller", call.Caller.Hex(), "kind", kind.Error(), "error", err)
}

// CreateMarket opens a new Active market owned by the caller.
func (e *Engine) CreateMarket(ctx context.Context, call Call, p CreateParams) (int64, error) {
	var id int64
	err := e.atomically(ctx, "create_market", call, func(s *Session) error {
		var err error
		id, err = s.CreateMarket(ctx, p)
		return err
	})
	if err != nil {
		return 0, err
	}
	e.logger.Info("market created",
		"market", id,
		"creator", call.Caller.Hex(),
		"symbol", p.Symbol,
		"target_price", p.TargetPrice,
		"end_time", p.EndTime.UTC(),
	)
	return id, nil
}

// PlaceBet stakes amount on option. The attached call value must equal amount.
func (e *Engine) PlaceBet(ctx context.Context, call Call, marketID int64, option domain.Option, amount uint64) error {
	err := e.atomically(ctx, "place_bet", call, func(s *Session) error {
		return s.PlaceBet(ctx, marketID, option, amount)
	})
	if err != nil {
		return err
	}
	e.logger.Info("bet placed",
		"market", marketID,
		"bettor", call.Caller.Hex(),
		"option", option,
		"amount", amount,
	)
	return nil
}

// ResolveMarket settles the outcome from an oracle price claim.
func (e *Engine) ResolveMarket(ctx context.Context, call Call, marketID int64, priceClaim uint64) (domain.Option, error) {
	var winner domain.Option
	err := e.atomically(ctx, "resolve_market", call, func(s *Session) error {
		var err error
		winner, err = s.ResolveMarket(ctx, marketID, priceClaim)
		return err
	})
	if err != nil {
		return "", err
	}
	e.logger.Info("market resolved",
		"market", marketID,
		"resolver", call.Caller.Hex(),
		"price", priceClaim,
		"winner", winner,
	)
	return winner, nil
}

// Claim pays the caller's winnings and returns the amount transferred.
func (e *Engine) Claim(ctx context.Context, call Call, marketID int64) (uint64, error) {
	var payout uint64
	err := e.atomically(ctx, "claim", call, func(s *Session) error {
		var err error
		payout, err = s.Claim(ctx, marketID)
		return err
	})
	if err != nil {
		return 0, err
	}
	e.logger.Info("payout claimed",
		"market", marketID,
		"bettor", call.Caller.Hex(),
		"payout", payout,
	)
	return payout, nil
}

// GetMarket returns the stored market or an error wrapping domain.ErrNotFound.
func (e *Engine) GetMarket(ctx context.Context, id int64) (domain.Market, error) {
	return store.NewMarketStore(e.db).Get(ctx, id)
}

// GetBet returns the bettor's bet on a market; ok is false when there is none.
func (e *Engine) GetBet(ctx context.Context, marketID int64, bettor domain.Identity) (domain.Bet, bool, error) {
	return store.NewBetStore(e.db).Get(ctx, marketID, bettor)
}

// Markets lazily walks every market in creation order. The sequence may be
// ranged over again to restart from the first market.
func (e *Engine) Markets(ctx context.Context) iter.Seq2[domain.Market, error] {
	return store.NewScanner(store.NewMarketStore(e.db), 0).All(ctx)
}

// ActiveMarkets returns markets still accepting bets at now.
func (e *Engine) ActiveMarkets(ctx context.Context, now time.Time) ([]domain.Market, error) {
	return store.NewMarketStore(e.db).ListOpen(ctx, now)
}

func (e *Engine) MarketsByCreator(ctx context.Context, creator domain.Identity) ([]domain.Market, error) {
	return store.NewMarketStore(e.db).ListByCreator(ctx, creator)
}

func (e *Engine) MarketBets(ctx context.Context, marketID int64) ([]domain.Bet, error) {
	if _, err := e.GetMarket(ctx, marketID); err != nil {
		return nil, err
	}
	return store.NewBetStore(e.db).ListByMarket(ctx, marketID)
}

func (e *Engine) BettorBets(ctx context.Context, bettor domain.Identity) ([]domain.Bet, error) {
	return store.NewBetStore(e.db).ListByBettor(ctx, bettor)
}

// PreviewPayout reports what a claim would pay without changing state. Losing
// and already claimed bets preview as their recorded payout (zero for losers).
func (e *Engine) PreviewPayout(ctx context.Context, marketID int64, bettor domain.Identity) (uint64, error) {
	m, err := e.GetMarket(ctx, marketID)
	if err != nil {
		return 0, err
	}
	bet, ok, err := e.GetBet(ctx, marketID, bettor)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: no bet by %s on market %d", domain.ErrNotFound, bettor.Hex(), marketID)
	}
	if bet.Claimed {
		return bet.Payout, nil
	}
	return settlement.PayoutFor(m, bet)
}

// Settlement returns the full payout table of a resolved market.
func (e *Engine) Settlement(ctx context.Context, marketID int64) (settlement.Distribution, error) {
	m, err := e.GetMarket(ctx, marketID)
	if err != nil {
		return settlement.Distribution{}, err
	}
	bets, err := store.NewBetStore(e.db).ListByMarket(ctx, marketID)
	if err != nil {
		return settlement.Distribution{}, err
	}
	return settlement.Distribute(m, bets)
}

// Balance returns the value paid out to an account so far.
func (e *Engine) Balance(ctx context.Context, who domain.Identity) (uint64, error) {
	return custody.NewVault(e.db).Balance(ctx, who)
}

// Custody returns the value held by the contract.
func (e *Engine) Custody(ctx context.Context) (uint64, error) {
	return custody.NewVault(e.db).Custody(ctx)
}

// History returns the committed events of one market in order.
func (e *Engine) History(ctx context.Context, marketID int64) ([]events.Event, error) {
	return events.NewOutbox(e.db).ByMarket(ctx, marketID)
}

// CheckPools verifies that a market's pool totals equal the sum of its bets.
func (e *Engine) CheckPools(ctx context.Context, marketID int64) error {
	m, err := e.GetMarket(ctx, marketID)
	if err != nil {
		return err
	}
	up, down, err := store.NewBetStore(e.db).SumByMarket(ctx, marketID)
	if err != nil {
		return err
	}
	if up != m.TotalUpBets || down != m.TotalDownBets {
		return fmt.Errorf("market %d pools %d/%d do not match bets %d/%d",
			marketID, m.TotalUpBets, m.TotalDownBets, up, down)
	}
	return nil
}
