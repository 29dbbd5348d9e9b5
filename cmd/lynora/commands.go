package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"lynora/internal/domain"
	"lynora/internal/engine"
	"lynora/internal/performance"
	"lynora/internal/units"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// callFrom builds the ledger context of a mutating command. Ledger time is the
// wall clock.
func callFrom(caller string, value uint64) (engine.Call, error) {
	who, err := domain.ParseIdentity(caller)
	if err != nil {
		return engine.Call{}, fmt.Errorf("-caller: %w", err)
	}
	return engine.Call{Caller: who, Value: value, Time: time.Now()}, nil
}

func (a *app) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	caller := fs.String("caller", "", "Creator address (0x...)")
	question := fs.String("question", "", "Market question")
	description := fs.String("description", "", "Longer description")
	symbol := fs.String("symbol", "", "Asset symbol, e.g. BTC")
	target := fs.Uint64("target", 0, "Target price in the oracle's integer units")
	end := fs.String("end", "", "Betting deadline (RFC3339)")
	duration := fs.Duration("duration", 0, "Betting window from now; used when -end is empty")
	if err := fs.Parse(args); err != nil {
		return err
	}

	call, err := callFrom(*caller, 0)
	if err != nil {
		return err
	}
	endTime := call.Time.Add(*duration)
	if *end != "" {
		if endTime, err = time.Parse(time.RFC3339, *end); err != nil {
			return fmt.Errorf("-end: %w", err)
		}
	}

	id, err := a.engine.CreateMarket(ctx, call, engine.CreateParams{
		Question:    *question,
		Description: *description,
		Symbol:      *symbol,
		EndTime:     endTime,
		TargetPrice: *target,
	})
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"market_id": id})
}

func (a *app) bet(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bet", flag.ContinueOnError)
	caller := fs.String("caller", "", "Bettor address (0x...)")
	marketID := fs.Int64("market", 0, "Market id")
	side := fs.String("option", "", "up or down")
	amountStr := fs.String("amount", "", "Stake in whole units, e.g. 1.5")
	valueStr := fs.String("value", "", "Attached value; defaults to -amount")
	if err := fs.Parse(args); err != nil {
		return err
	}

	option, err := domain.ParseOption(*side)
	if err != nil {
		return err
	}
	amount, err := units.Parse(*amountStr, a.cfg.General.Decimals)
	if err != nil {
		return fmt.Errorf("-amount: %w", err)
	}
	value := amount
	if *valueStr != "" {
		if value, err = units.Parse(*valueStr, a.cfg.General.Decimals); err != nil {
			return fmt.Errorf("-value: %w", err)
		}
	}
	call, err := callFrom(*caller, value)
	if err != nil {
		return err
	}

	if err := a.engine.PlaceBet(ctx, call, *marketID, option, amount); err != nil {
		return err
	}
	b, _, err := a.engine.GetBet(ctx, *marketID, call.Caller)
	if err != nil {
		return err
	}
	return printJSON(b)
}

func (a *app) resolve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	caller := fs.String("caller", "", "Resolver address (0x...)")
	marketID := fs.Int64("market", 0, "Market id")
	price := fs.Uint64("price", 0, "Oracle price claim in integer units")
	if err := fs.Parse(args); err != nil {
		return err
	}

	call, err := callFrom(*caller, 0)
	if err != nil {
		return err
	}
	winner, err := a.engine.ResolveMarket(ctx, call, *marketID, *price)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"market_id": *marketID, "winner": winner, "price": *price})
}

func (a *app) claim(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("claim", flag.ContinueOnError)
	caller := fs.String("caller", "", "Bettor address (0x...)")
	marketID := fs.Int64("market", 0, "Market id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	call, err := callFrom(*caller, 0)
	if err != nil {
		return err
	}
	payout, err := a.engine.Claim(ctx, call, *marketID)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"market_id":      *marketID,
		"payout":         payout,
		"payout_display": units.Format(payout, a.cfg.General.Decimals),
	})
}

func (a *app) market(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("market", flag.ContinueOnError)
	id := fs.Int64("id", 0, "Market id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	m, err := a.engine.GetMarket(ctx, *id)
	if err != nil {
		return err
	}
	return printJSON(struct {
		domain.Market
		Phase domain.Status `json:"phase"`
	}{m, m.Phase(time.Now())})
}

func (a *app) markets(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("markets", flag.ContinueOnError)
	active := fs.Bool("active", false, "Only markets still taking bets")
	limit := fs.Int("limit", 0, "Stop after this many markets (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *active {
		ms, err := a.engine.ActiveMarkets(ctx, time.Now())
		if err != nil {
			return err
		}
		return printJSON(ms)
	}

	var out []domain.Market
	for m, err := range a.engine.Markets(ctx) {
		if err != nil {
			return err
		}
		out = append(out, m)
		if *limit > 0 && len(out) >= *limit {
			break
		}
	}
	return printJSON(out)
}

func (a *app) bets(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bets", flag.ContinueOnError)
	marketID := fs.Int64("market", 0, "List bets of this market")
	bettor := fs.String("bettor", "", "List bets of this address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *bettor != "":
		who, err := domain.ParseIdentity(*bettor)
		if err != nil {
			return err
		}
		bets, err := a.engine.BettorBets(ctx, who)
		if err != nil {
			return err
		}
		return printJSON(bets)
	case *marketID != 0:
		bets, err := a.engine.MarketBets(ctx, *marketID)
		if err != nil {
			return err
		}
		return printJSON(bets)
	default:
		return errors.New("one of -market or -bettor is required")
	}
}

func (a *app) preview(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	marketID := fs.Int64("market", 0, "Market id")
	bettor := fs.String("bettor", "", "Bettor address (0x...)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	who, err := domain.ParseIdentity(*bettor)
	if err != nil {
		return err
	}
	p, err := a.engine.PreviewPayout(ctx, *marketID, who)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"market_id":      *marketID,
		"bettor":         who,
		"payout":         p,
		"payout_display": units.Format(p, a.cfg.General.Decimals),
	})
}

func (a *app) balance(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("balance", flag.ContinueOnError)
	bettor := fs.String("bettor", "", "Account address (0x...)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	who, err := domain.ParseIdentity(*bettor)
	if err != nil {
		return err
	}
	bal, err := a.engine.Balance(ctx, who)
	if err != nil {
		return err
	}
	held, err := a.engine.Custody(ctx)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"bettor":          who,
		"balance":         bal,
		"balance_display": units.Format(bal, a.cfg.General.Decimals),
		"custody":         held,
	})
}

func (a *app) stats(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	r, err := performance.NewTracker(a.db).Generate(ctx, time.Now())
	if err != nil {
		return err
	}
	return printJSON(r)
}
