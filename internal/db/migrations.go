package db

const versionSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);`

// migrations are applied in order; migrations[i] brings the schema to
// version i+1. Append, never edit.
var migrations = []string{schemaV1}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS accounts (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT NOT NULL DEFAULT '',
    max_investment REAL NOT NULL DEFAULT 0,
    position TEXT,
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS trading_states (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL REFERENCES accounts(id),
    strategy TEXT NOT NULL,
    selector TEXT NOT NULL,
    symbol TEXT NOT NULL,
    interval TEXT NOT NULL DEFAULT '',
    phase TEXT NOT NULL,
    initial_balance REAL NOT NULL,
    final_balance REAL NOT NULL,
    invested REAL NOT NULL,
    retrieved REAL NOT NULL,
    profit_percent REAL NOT NULL,
    profit REAL NOT NULL,
    entry_price REAL NOT NULL,
    amount REAL NOT NULL,
    stop_price REAL NOT NULL,
    limit_price REAL NOT NULL,
    run_up REAL NOT NULL,
    draw_down REAL NOT NULL,
    finished INTEGER NOT NULL,
    started_at INTEGER NOT NULL,
    finished_at INTEGER,
    error TEXT NOT NULL DEFAULT '',
    config TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_states_strategy ON trading_states(strategy);
CREATE INDEX IF NOT EXISTS idx_states_started ON trading_states(started_at);

CREATE TABLE IF NOT EXISTS market_candles (
    symbol TEXT NOT NULL,
    interval TEXT NOT NULL,
    open_time INTEGER NOT NULL,
    open REAL NOT NULL,
    high REAL NOT NULL,
    low REAL NOT NULL,
    close REAL NOT NULL,
    volume REAL NOT NULL,
    PRIMARY KEY (symbol, interval, open_time)
);

CREATE TABLE IF NOT EXISTS market_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol TEXT NOT NULL,
    price REAL NOT NULL,
    change_24h REAL NOT NULL,
    origin_volume REAL NOT NULL,
    snapshot_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_symbol_time ON market_snapshots(symbol, snapshot_at);
`
