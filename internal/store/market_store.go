// Package store persists markets and bets in the contract's SQLite storage.
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

const marketColumns = `id, creator, question, description, symbol, target_price, created_at, end_time,
	status, total_up_bets, total_down_bets, winning_option, resolution_price`

// MarketStore reads and writes Market records.
type MarketStore struct {
	q db.Querier
}

func NewMarketStore(q db.Querier) *MarketStore {
	return &MarketStore{q: q}
}

// Create inserts an Active market with empty pools and returns its id.
// Ids come from AUTOINCREMENT, so a rolled-back create does not burn one.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO markets (creator, question, description, symbol, target_price, created_at, end_time, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Creator.Hex(), m.Question, m.Description, m.Symbol, int64(m.TargetPrice),
		m.CreatedAt.UnixMilli(), m.EndTime.UnixMilli(), string(domain.StatusActive),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting market: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading market id: %w", err)
	}
	return id, nil
}

// Get returns the market or an error wrapping domain.ErrNotFound.
func (s *MarketStore) Get(ctx context.Context, id int64) (domain.Market, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+marketColumns+` FROM markets WHERE id = ?`, id)
	m, err := scanMarket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Market{}, fmt.Errorf("%w: market %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("loading market %d: %w", id, err)
	}
	return m, nil
}

// SetPools overwrites both pool totals. Callers compute the new totals with
// overflow checks before writing.
func (s *MarketStore) SetPools(ctx context.Context, id int64, up, down uint64) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE markets SET total_up_bets = ?, total_down_bets = ?
		WHERE id = ? AND status = 'ACTIVE'`,
		int64(up), int64(down), id,
	)
	if err != nil {
		return fmt.Errorf("updating pools of market %d: %w", id, err)
	}
	return expectOne(res, id)
}

// Resolve writes the outcome, price and status in one statement. It only
// matches an Active market, so a second resolution cannot overwrite the first.
func (s *MarketStore) Resolve(ctx context.Context, id int64, winner domain.Option, price uint64, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE markets SET status = 'RESOLVED', winning_option = ?, resolution_price = ?, resolved_at = ?
		WHERE id = ? AND status = 'ACTIVE'`,
		string(winner), int64(price), at.UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("resolving market %d: %w", id, err)
	}
	return expectOne(res, id)
}

// Page returns up to limit markets with id > afterID in creation order.
func (s *MarketStore) Page(ctx context.Context, afterID int64, limit int) ([]domain.Market, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id > ? ORDER BY id ASC LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing markets: %w", err)
	}
	return collectMarkets(rows)
}

// ListOpen returns markets that are still Active and whose deadline is after now.
func (s *MarketStore) ListOpen(ctx context.Context, now time.Time) ([]domain.Market, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE status = 'ACTIVE' AND end_time > ? ORDER BY id ASC`,
		now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("listing open markets: %w", err)
	}
	return collectMarkets(rows)
}

// ListByCreator returns markets created by one identity.
func (s *MarketStore) ListByCreator(ctx context.Context, creator domain.Identity) ([]domain.Market, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE creator = ? ORDER BY id ASC`, creator.Hex())
	if err != nil {
		return nil, fmt.Errorf("listing markets by creator: %w", err)
	}
	return collectMarkets(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMarket(r rowScanner) (domain.Market, error) {
	var (
		m                  domain.Market
		creator, status    string
		target, up, down   int64
		createdAt, endTime int64
		winner             sql.NullString
		resolutionPrice    sql.NullInt64
	)
	err := r.Scan(&m.ID, &creator, &m.Question, &m.Description, &m.Symbol, &target,
		&createdAt, &endTime, &status, &up, &down, &winner, &resolutionPrice)
	if err != nil {
		return domain.Market{}, err
	}

	m.Creator = common.HexToAddress(creator)
	m.TargetPrice = uint64(target)
	m.CreatedAt = time.UnixMilli(createdAt)
	m.EndTime = time.UnixMilli(endTime)
	m.Status = domain.Status(status)
	m.TotalUpBets = uint64(up)
	m.TotalDownBets = uint64(down)
	if winner.Valid {
		o := domain.Option(winner.String)
		m.WinningOption = &o
	}
	if resolutionPrice.Valid {
		p := uint64(resolutionPrice.Int64)
		m.ResolutionPrice = &p
	}
	return m, nil
}

func collectMarkets(rows *sql.Rows) ([]domain.Market, error) {
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning market: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

func expectOne(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update of market %d: %w", id, err)
	}
	if n != 1 {
		return fmt.Errorf("%w: active market %d", domain.ErrNotFound, id)
	}
	return nil
}
