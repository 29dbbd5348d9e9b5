package performance

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Tracker computes market statistics from contract storage.
type Tracker struct {
	db *sql.DB
}

func NewTracker(db *sql.DB) *Tracker {
	return &Tracker{db: db}
}

// Report contains aggregate market metrics at one point in time.
type Report struct {
	GeneratedAt     time.Time              `json:"generated_at"`
	TotalMarkets    int                    `json:"total_markets"`
	ActiveMarkets   int                    `json:"active_markets"`
	LockedMarkets   int                    `json:"locked_markets"`
	ResolvedMarkets int                    `json:"resolved_markets"`
	UpWins          int                    `json:"up_wins"`
	DownWins        int                    `json:"down_wins"`
	TotalBets       int                    `json:"total_bets"`
	ClaimedBets     int                    `json:"claimed_bets"`
	Bettors         int                    `json:"bettors"`
	TotalStaked     uint64                 `json:"total_staked"`
	TotalPaid       uint64                 `json:"total_paid"`
	Custody         uint64                 `json:"custody"`
	SymbolStats     map[string]SymbolStats `json:"symbols"`
}

// SymbolStats contains per-symbol activity.
type SymbolStats struct {
	Markets  int    `json:"markets"`
	Resolved int    `json:"resolved"`
	Staked   uint64 `json:"staked"`
	// UpRate is the share of resolved markets that went Up.
	UpRate float64 `json:"up_rate"`
}

// Generate computes the full report with phases evaluated at now.
func (t *Tracker) Generate(ctx context.Context, now time.Time) (*Report, error) {
	r := &Report{
		GeneratedAt: now,
		SymbolStats: make(map[string]SymbolStats),
	}

	if err := t.computeMarkets(ctx, r, now); err != nil {
		return nil, fmt.Errorf("computing market stats: %w", err)
	}
	if err := t.computeBets(ctx, r); err != nil {
		return nil, fmt.Errorf("computing bet stats: %w", err)
	}
	if err := t.computeSymbolStats(ctx, r); err != nil {
		return nil, fmt.Errorf("computing symbol stats: %w", err)
	}
	return r, nil
}

func (t *Tracker) computeMarkets(ctx context.Context, r *Report, now time.Time) error {
	row := t.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'ACTIVE' AND end_time > ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'ACTIVE' AND end_time <= ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'RESOLVED' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN winning_option = 'UP' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN winning_option = 'DOWN' THEN 1 ELSE 0 END), 0)
		FROM markets`, now.UnixMilli(), now.UnixMilli())
	return row.Scan(&r.TotalMarkets, &r.ActiveMarkets, &r.LockedMarkets, &r.ResolvedMarkets, &r.UpWins, &r.DownWins)
}

func (t *Tracker) computeBets(ctx context.Context, r *Report) error {
	var staked, paid, custody int64
	row := t.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT bettor),
		       COALESCE(SUM(amount), 0),
		       COALESCE(SUM(CASE WHEN claimed = 1 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(payout), 0)
		FROM bets`)
	if err := row.Scan(&r.TotalBets, &r.Bettors, &staked, &r.ClaimedBets, &paid); err != nil {
		return err
	}
	if err := t.db.QueryRowContext(ctx, `SELECT balance FROM custody WHERE id = 1`).Scan(&custody); err != nil {
		return err
	}
	r.TotalStaked = uint64(staked)
	r.TotalPaid = uint64(paid)
	r.Custody = uint64(custody)
	return nil
}

func (t *Tracker) computeSymbolStats(ctx context.Context, r *Report) error {
	rows, err := t.db.QueryContext(ctx, `
		SELECT symbol, COUNT(*),
		       COALESCE(SUM(total_up_bets + total_down_bets), 0),
		       COALESCE(SUM(CASE WHEN status = 'RESOLVED' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN winning_option = 'UP' THEN 1 ELSE 0 END), 0)
		FROM markets GROUP BY symbol`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var stats SymbolStats
		var staked int64
		var ups int
		if err := rows.Scan(&name, &stats.Markets, &staked, &stats.Resolved, &ups); err != nil {
			return err
		}
		stats.Staked = uint64(staked)
		if stats.Resolved > 0 {
			stats.UpRate = float64(ups) / float64(stats.Resolved)
		}
		r.SymbolStats[name] = stats
	}
	return rows.Err()
}
