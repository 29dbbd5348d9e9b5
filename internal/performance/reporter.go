package performance

import (
	"log/slog"
)

// LogReport logs the report as structured JSON.
func LogReport(logger *slog.Logger, r *Report) {
	logger.Info("=== MARKET REPORT ===",
		"markets", r.TotalMarkets,
		"active", r.ActiveMarkets,
		"locked", r.LockedMarkets,
		"resolved", r.ResolvedMarkets,
		"up_wins", r.UpWins,
		"down_wins", r.DownWins,
		"bets", r.TotalBets,
		"claimed", r.ClaimedBets,
		"bettors", r.Bettors,
		"staked", r.TotalStaked,
		"paid", r.TotalPaid,
		"custody", r.Custody,
	)

	for name, stats := range r.SymbolStats {
		logger.Info("symbol activity",
			"symbol", name,
			"markets", stats.Markets,
			"resolved", stats.Resolved,
			"staked", stats.Staked,
			"up_rate", stats.UpRate,
		)
	}
}
