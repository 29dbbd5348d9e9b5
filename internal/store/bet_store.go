package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lynora/internal/db"
	"lynora/internal/domain"
)

const betColumns = `market_id, bettor, option, amount, claimed, payout, placed_at, updated_at`

// BetStore reads and writes Bet records keyed by (market, bettor).
type BetStore struct {
	q db.Querier
}

func NewBetStore(q db.Querier) *BetStore {
	return &BetStore{q: q}
}

// Get returns the bettor's bet on a market. ok is false when none exists.
func (s *BetStore) Get(ctx context.Context, marketID int64, bettor domain.Identity) (bet domain.Bet, ok bool, err error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+betColumns+` FROM bets WHERE market_id = ? AND bettor = ?`, marketID, bettor.Hex())
	bet, err = scanBet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Bet{}, false, nil
	}
	if err != nil {
		return domain.Bet{}, false, fmt.Errorf("loading bet %d/%s: %w", marketID, bettor.Hex(), err)
	}
	return bet, true, nil
}

// Put inserts a new bet or overwrites the amount of an existing one. Option
// and placed_at are never changed after the first insert.
func (s *BetStore) Put(ctx context.Context, b domain.Bet) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO bets (market_id, bettor, option, amount, placed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(market_id, bettor) DO UPDATE SET
			amount = excluded.amount,
			updated_at = excluded.updated_at`,
		b.MarketID, b.Bettor.Hex(), string(b.Option), int64(b.Amount),
		b.PlacedAt.UnixMilli(), b.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upserting bet %d/%s: %w", b.MarketID, b.Bettor.Hex(), err)
	}
	return nil
}

// MarkClaimed flips the claimed flag and records the payout. It only matches
// an unclaimed bet, so it reports domain.ErrAlreadyClaimed on a second call.
func (s *BetStore) MarkClaimed(ctx context.Context, marketID int64, bettor domain.Identity, payout uint64, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE bets SET claimed = 1, payout = ?, updated_at = ?
		WHERE market_id = ? AND bettor = ? AND claimed = 0`,
		int64(payout), at.UnixMilli(), marketID, bettor.Hex(),
	)
	if err != nil {
		return fmt.Errorf("marking bet %d/%s claimed: %w", marketID, bettor.Hex(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking claim of bet %d/%s: %w", marketID, bettor.Hex(), err)
	}
	if n != 1 {
		return fmt.Errorf("%w: bet %d/%s", domain.ErrAlreadyClaimed, marketID, bettor.Hex())
	}
	return nil
}

// ListByMarket returns every bet on a market in placement order.
func (s *BetStore) ListByMarket(ctx context.Context, marketID int64) ([]domain.Bet, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+betColumns+` FROM bets WHERE market_id = ? ORDER BY placed_at ASC, bettor ASC`, marketID)
	if err != nil {
		return nil, fmt.Errorf("listing bets of market %d: %w", marketID, err)
	}
	return collectBets(rows)
}

// ListByBettor returns every bet placed by one identity.
func (s *BetStore) ListByBettor(ctx context.Context, bettor domain.Identity) ([]domain.Bet, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+betColumns+` FROM bets WHERE bettor = ? ORDER BY market_id ASC`, bettor.Hex())
	if err != nil {
		return nil, fmt.Errorf("listing bets of %s: %w", bettor.Hex(), err)
	}
	return collectBets(rows)
}

// SumByMarket returns the stake totals per side computed from the bet rows.
// Used to audit the pool invariant.
func (s *BetStore) SumByMarket(ctx context.Context, marketID int64) (up, down uint64, err error) {
	var u, d int64
	err = s.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN option = 'UP' THEN amount END), 0),
		       COALESCE(SUM(CASE WHEN option = 'DOWN' THEN amount END), 0)
		FROM bets WHERE market_id = ?`, marketID).Scan(&u, &d)
	if err != nil {
		return 0, 0, fmt.Errorf("summing bets of market %d: %w", marketID, err)
	}
	return uint64(u), uint64(d), nil
}

func scanBet(r rowScanner) (domain.Bet, error) {
	var (
		b                   domain.Bet
		bettor, option      string
		amount, payout      int64
		claimed             int
		placedAt, updatedAt int64
	)
	if err := r.Scan(&b.MarketID, &bettor, &option, &amount, &claimed, &payout, &placedAt, &updatedAt); err != nil {
		return domain.Bet{}, err
	}
	b.Bettor = common.HexToAddress(bettor)
	b.Option = domain.Option(option)
	b.Amount = uint64(amount)
	b.Claimed = claimed != 0
	b.Payout = uint64(payout)
	b.PlacedAt = time.UnixMilli(placedAt)
	b.UpdatedAt = time.UnixMilli(updatedAt)
	return b, nil
}

func collectBets(rows *sql.Rows) ([]domain.Bet, error) {
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning bet: %w", err)
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}
