package db

const SchemaVersion = 1

// Timestamps are unix milliseconds. Amounts and prices are integers in the
// ledger's smallest unit.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS markets (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    creator TEXT NOT NULL,
    question TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    symbol TEXT NOT NULL,
    target_price INTEGER NOT NULL CHECK (target_price > 0),
    created_at INTEGER NOT NULL,
    end_time INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT 'ACTIVE' CHECK (status IN ('ACTIVE', 'RESOLVED')),
    total_up_bets INTEGER NOT NULL DEFAULT 0 CHECK (total_up_bets >= 0),
    total_down_bets INTEGER NOT NULL DEFAULT 0 CHECK (total_down_bets >= 0),
    winning_option TEXT CHECK (winning_option IN ('UP', 'DOWN')),
    resolution_price INTEGER,
    resolved_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_markets_status_end ON markets(status, end_time);

CREATE TABLE IF NOT EXISTS bets (
    market_id INTEGER NOT NULL REFERENCES markets(id),
    bettor TEXT NOT NULL,
    option TEXT NOT NULL CHECK (option IN ('UP', 'DOWN')),
    amount INTEGER NOT NULL CHECK (amount > 0),
    claimed INTEGER NOT NULL DEFAULT 0,
    payout INTEGER NOT NULL DEFAULT 0,
    placed_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (market_id, bettor)
);
CREATE INDEX IF NOT EXISTS idx_bets_bettor ON bets(bettor);

CREATE TABLE IF NOT EXISTS accounts (
    address TEXT PRIMARY KEY,
    balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS custody (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0)
);

CREATE TABLE IF NOT EXISTS events (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    kind TEXT NOT NULL,
    market_id INTEGER NOT NULL,
    actor TEXT NOT NULL,
    payload TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    published_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_pending ON events(seq) WHERE published_at IS NULL;
`
