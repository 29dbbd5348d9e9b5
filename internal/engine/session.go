package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lynora/internal/custody"
	"lynora/internal/db"
	"lynora/internal/domain"
	"lynora/internal/events"
	"lynora/internal/settlement"
	"lynora/internal/store"
)

// Session is one in-flight call. Every read and write goes through the call's
// transaction, including calls a transfer recipient makes back into the
// contract while its transfer is in progress.
type Session struct {
	call     Call
	markets  *store.MarketStore
	bets     *store.BetStore
	vault    *custody.Vault
	outbox   *events.Outbox
	transfer Transferer
}

func newSession(q db.Querier, call Call, t Transferer) *Session {
	return &Session{
		call:     call,
		markets:  store.NewMarketStore(q),
		bets:     store.NewBetStore(q),
		vault:    custody.NewVault(q),
		outbox:   events.NewOutbox(q),
		transfer: t,
	}
}

func (s *Session) Call() Call            { return s.call }
func (s *Session) Vault() *custody.Vault { return s.vault }

func (s *Session) emit(ctx context.Context, kind events.Kind, marketID int64, payload any) error {
	e, err := events.New(kind, marketID, s.call.Caller, s.call.Time, payload)
	if err != nil {
		return err
	}
	_, err = s.outbox.Append(ctx, e)
	return err
}

// CreateParams describes a new market.
type CreateParams struct {
	Question    string
	Description string
	Symbol      string
	EndTime     time.Time
	TargetPrice uint64
}

func (s *Session) CreateMarket(ctx context.Context, p CreateParams) (int64, error) {
	question := strings.TrimSpace(p.Question)
	symbol := strings.TrimSpace(p.Symbol)
	// Storage keeps milliseconds; compare what will actually be stored.
	end := p.EndTime.Truncate(time.Millisecond)

	switch {
	case question == "":
		return 0, fmt.Errorf("%w: question is empty", domain.ErrInvalidParameter)
	case symbol == "":
		return 0, fmt.Errorf("%w: symbol is empty", domain.ErrInvalidParameter)
	case !end.After(s.call.Time):
		return 0, fmt.Errorf("%w: end time %s is not after %s", domain.ErrInvalidParameter,
			end.UTC().Format(time.RFC3339), s.call.Time.UTC().Format(time.RFC3339))
	case p.TargetPrice == 0 || p.TargetPrice > domain.MaxAmount:
		return 0, fmt.Errorf("%w: target price %d out of range", domain.ErrInvalidParameter, p.TargetPrice)
	case s.call.Caller == (domain.Identity{}):
		return 0, fmt.Errorf("%w: missing caller", domain.ErrInvalidParameter)
	}

	id, err := s.markets.Create(ctx, domain.Market{
		Creator:     s.call.Caller,
		Question:    question,
		Description: p.Description,
		Symbol:      symbol,
		TargetPrice: p.TargetPrice,
		CreatedAt:   s.call.Time,
		EndTime:     end,
	})
	if err != nil {
		return 0, err
	}
	err = s.emit(ctx, events.MarketCreated, id, events.MarketCreatedPayload{
		Question:    question,
		Symbol:      symbol,
		TargetPrice: p.TargetPrice,
		EndTime:     end,
	})
	return id, err
}

func (s *Session) PlaceBet(ctx context.Context, marketID int64, option domain.Option, amount uint64) error {
	m, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return err
	}
	if m.Status != domain.StatusActive || m.BettingClosed(s.call.Time) {
		return fmt.Errorf("%w: market %d", domain.ErrMarketClosed, marketID)
	}
	if amount == 0 {
		return fmt.Errorf("%w: amount must be positive", domain.ErrInvalidParameter)
	}
	if !option.Valid() {
		return fmt.Errorf("%w: option %q", domain.ErrInvalidParameter, option)
	}
	if s.call.Caller == (domain.Identity{}) {
		return fmt.Errorf("%w: missing caller", domain.ErrInvalidParameter)
	}
	if s.call.Value != amount {
		return fmt.Errorf("%w: attached %d, stake %d", domain.ErrAmountMismatch, s.call.Value, amount)
	}

	bet, exists, err := s.bets.Get(ctx, marketID, s.call.Caller)
	if err != nil {
		return err
	}
	if exists && bet.Option != option {
		return fmt.Errorf("%w: %s already holds %s on market %d",
			domain.ErrSideConflict, s.call.Caller.Hex(), bet.Option, marketID)
	}

	pool, err := settlement.AddStake(m.Pool(option), amount)
	if err != nil {
		return err
	}
	stake, err := settlement.AddStake(bet.Amount, amount)
	if err != nil {
		return err
	}

	up, down := m.TotalUpBets, m.TotalDownBets
	if option == domain.Up {
		up = pool
	} else {
		down = pool
	}
	if err := s.markets.SetPools(ctx, marketID, up, down); err != nil {
		return err
	}

	if !exists {
		bet = domain.Bet{
			MarketID: marketID,
			Bettor:   s.call.Caller,
			Option:   option,
			PlacedAt: s.call.Time,
		}
	}
	bet.Amount = stake
	bet.UpdatedAt = s.call.Time
	if err := s.bets.Put(ctx, bet); err != nil {
		return err
	}
	if err := s.vault.Deposit(ctx, amount); err != nil {
		return err
	}
	return s.emit(ctx, events.BetPlaced, marketID, events.BetPlacedPayload{
		Option: option,
		Amount: amount,
		Stake:  stake,
	})
}

func (s *Session) ResolveMarket(ctx context.Context, marketID int64, priceClaim uint64) (domain.Option, error) {
	m, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return "", err
	}
	if m.Status == domain.StatusResolved {
		return "", fmt.Errorf("%w: market %d", domain.ErrAlreadyResolved, marketID)
	}
	if !m.BettingClosed(s.call.Time) {
		return "", fmt.Errorf("%w: market %d closes at %s", domain.ErrTooEarly,
			marketID, m.EndTime.UTC().Format(time.RFC3339))
	}
	if priceClaim > domain.MaxAmount {
		return "", fmt.Errorf("%w: price %d out of range", domain.ErrInvalidParameter, priceClaim)
	}

	winner := settlement.Decide(m.TargetPrice, priceClaim)
	if err := s.markets.Resolve(ctx, marketID, winner, priceClaim, s.call.Time); err != nil {
		return "", err
	}
	err = s.emit(ctx, events.MarketResolved, marketID, events.MarketResolvedPayload{
		Winner:          winner,
		ResolutionPrice: priceClaim,
		TargetPrice:     m.TargetPrice,
	})
	return winner, err
}

// Claim marks the caller's bet claimed and only then transfers the payout, so
// a claim re-entering from the transfer sees the flag and is rejected.
func (s *Session) Claim(ctx context.Context, marketID int64) (uint64, error) {
	m, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return 0, err
	}
	bet, ok, err := s.bets.Get(ctx, marketID, s.call.Caller)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: no bet by %s on market %d", domain.ErrNotFound, s.call.Caller.Hex(), marketID)
	}
	if m.Status != domain.StatusResolved {
		return 0, fmt.Errorf("%w: market %d", domain.ErrNotResolved, marketID)
	}
	if bet.Claimed {
		return 0, fmt.Errorf("%w: bet %d/%s", domain.ErrAlreadyClaimed, marketID, s.call.Caller.Hex())
	}
	if bet.Option != *m.WinningOption {
		return 0, fmt.Errorf("%w: %s bet %s, market resolved %s",
			domain.ErrNotAWinner, s.call.Caller.Hex(), bet.Option, *m.WinningOption)
	}

	payout, err := settlement.PayoutFor(m, bet)
	if err != nil {
		return 0, err
	}
	if err := s.bets.MarkClaimed(ctx, marketID, s.call.Caller, payout, s.call.Time); err != nil {
		return 0, err
	}
	if err := s.transfer.Transfer(ctx, s, s.call.Caller, payout); err != nil {
		return 0, fmt.Errorf("transferring payout: %w", err)
	}
	err = s.emit(ctx, events.PayoutClaimed, marketID, events.PayoutClaimedPayload{
		Stake:  bet.Amount,
		Payout: payout,
	})
	return payout, err
}
