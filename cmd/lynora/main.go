package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"lynora/internal/config"
	"lynora/internal/db"
	"lynora/internal/engine"
)

const usage = `usage: lynora [-config path] <command> [flags]

commands:
  migrate   create or upgrade the database schema
  create    open a new market
  bet       stake on a side of a market
  resolve   settle a closed market from an oracle price
  claim     collect winnings from a resolved market
  market    show one market
  markets   list markets
  bets      list bets of a market or a bettor
  preview   show what a claim would pay
  balance   show an account's paid-out balance
  stats     print the market report
  serve     run the HTTP API and background jobs
`

type app struct {
	cfg    *config.Config
	db     *sql.DB
	engine *engine.Engine
	logger *slog.Logger
}

func main() {
	configPath := flag.String("config", "", "Path to config.toml (default: $LYNORA_CONFIG_PATH or ./config.toml if present)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// Set up structured logging.
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.General.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Initialize database.
	database, err := db.Open(cfg.General.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	a := &app{
		cfg:    cfg,
		db:     database,
		engine: engine.New(database, engine.WithLogger(logger)),
		logger: logger,
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	if err := a.run(context.Background(), cmd, args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		slog.Error("command failed", "command", cmd, "error", err)
		database.Close()
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("LYNORA_CONFIG_PATH")
	}
	if path == "" {
		if _, err := os.Stat("config.toml"); err == nil {
			path = "config.toml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch strings.ToLower(cmd) {
	case "migrate":
		a.logger.Info("database initialized", "path", a.cfg.General.DBPath, "schema_version", db.SchemaVersion)
		return nil
	case "create":
		return a.create(ctx, args)
	case "bet":
		return a.bet(ctx, args)
	case "resolve":
		return a.resolve(ctx, args)
	case "claim":
		return a.claim(ctx, args)
	case "market":
		return a.market(ctx, args)
	case "markets":
		return a.markets(ctx, args)
	case "bets":
		return a.bets(ctx, args)
	case "preview":
		return a.preview(ctx, args)
	case "balance":
		return a.balance(ctx, args)
	case "stats":
		return a.stats(ctx, args)
	case "serve":
		return a.serve(args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}
