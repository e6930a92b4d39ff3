package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"scalper/internal/execution"
	"scalper/internal/market"
)

// Store persists accounts, trading states and market data.
type Store struct {
	db *sql.DB
}

var _ execution.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying handle for read-only reporting queries.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) UpdateAccount(ctx context.Context, a execution.Account) error {
	var position *string
	if a.Position != nil {
		data, err := json.Marshal(a.Position)
		if err != nil {
			return fmt.Errorf("encoding position: %w", err)
		}
		p := string(data)
		position = &p
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, email, max_investment, position)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			max_investment = excluded.max_investment,
			position = excluded.position,
			updated_at = datetime('now')`,
		a.ID, a.Name, a.Email, a.MaxInvestment, position,
	)
	if err != nil {
		return fmt.Errorf("upserting account %s: %w", a.ID, err)
	}
	return nil
}

// RegisterAccount inserts or refreshes an account's settings without
// touching a recorded position.
func (s *Store) RegisterAccount(ctx context.Context, a execution.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, email, max_investment)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			max_investment = excluded.max_investment,
			updated_at = datetime('now')`,
		a.ID, a.Name, a.Email, a.MaxInvestment,
	)
	if err != nil {
		return fmt.Errorf("registering account %s: %w", a.ID, err)
	}
	return nil
}

func (s *Store) GetAllAccounts(ctx context.Context) ([]execution.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, max_investment, position
		FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	var accounts []execution.Account
	for rows.Next() {
		var a execution.Account
		var position sql.NullString
		if err := rows.Scan(&a.ID, &a.Name, &a.Email, &a.MaxInvestment, &position); err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		if position.Valid && position.String != "" {
			a.Position = &execution.Position{}
			if err := json.Unmarshal([]byte(position.String), a.Position); err != nil {
				return nil, fmt.Errorf("decoding position of %s: %w", a.ID, err)
			}
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *Store) SaveState(ctx context.Context, st execution.State) error {
	cfg, err := json.Marshal(st.Strategy)
	if err != nil {
		return fmt.Errorf("encoding strategy config: %w", err)
	}
	var finishedAt *int64
	if !st.FinishedAt.IsZero() {
		ms := st.FinishedAt.UnixMilli()
		finishedAt = &ms
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO trading_states (
			id, account_id, strategy, selector, symbol, interval, phase,
			initial_balance, final_balance, invested, retrieved, profit_percent, profit,
			entry_price, amount, stop_price, limit_price, run_up, draw_down,
			finished, started_at, finished_at, error, config
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.Account, st.Strategy.Name, st.Strategy.Selector, st.Symbol, st.Interval, string(st.Phase),
		st.InitialBalance, st.FinalBalance, st.Invested, st.Retrieved, st.ProfitPercent, st.Profit,
		st.EntryPrice, st.Amount, st.StopPrice, st.LimitPrice, st.RunUp, st.DrawDown,
		boolToInt(st.Finished), st.StartedAt.UnixMilli(), finishedAt, st.Error, string(cfg),
	)
	if err != nil {
		return fmt.Errorf("saving trading state %s: %w", st.ID, err)
	}
	return nil
}

// ListStates returns states started at or after since, oldest first.
func (s *Store) ListStates(ctx context.Context, since time.Time) ([]execution.State, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, symbol, interval, phase,
			initial_balance, final_balance, invested, retrieved, profit_percent, profit,
			entry_price, amount, stop_price, limit_price, run_up, draw_down,
			finished, started_at, finished_at, error, config
		FROM trading_states
		WHERE started_at >= ?
		ORDER BY started_at, id`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("querying trading states: %w", err)
	}
	defer rows.Close()

	var states []execution.State
	for rows.Next() {
		var st execution.State
		var phase, cfg string
		var finished int
		var startedAt int64
		var finishedAt sql.NullInt64
		err := rows.Scan(&st.ID, &st.Account, &st.Symbol, &st.Interval, &phase,
			&st.InitialBalance, &st.FinalBalance, &st.Invested, &st.Retrieved, &st.ProfitPercent, &st.Profit,
			&st.EntryPrice, &st.Amount, &st.StopPrice, &st.LimitPrice, &st.RunUp, &st.DrawDown,
			&finished, &startedAt, &finishedAt, &st.Error, &cfg)
		if err != nil {
			return nil, fmt.Errorf("scanning trading state: %w", err)
		}
		if err := json.Unmarshal([]byte(cfg), &st.Strategy); err != nil {
			return nil, fmt.Errorf("decoding strategy config of %s: %w", st.ID, err)
		}
		st.Phase = execution.Phase(phase)
		st.Finished = finished == 1
		st.StartedAt = time.UnixMilli(startedAt).UTC()
		if finishedAt.Valid {
			st.FinishedAt = time.UnixMilli(finishedAt.Int64).UTC()
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

// SaveCandles upserts closed candles of one market and interval.
func (s *Store) SaveCandles(ctx context.Context, symbol string, interval market.Interval, candles []market.Candle) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning candle transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO market_candles (symbol, interval, open_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, interval, open_time) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume`)
	if err != nil {
		return 0, fmt.Errorf("preparing candle insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, symbol, string(interval), c.Time.UnixMilli(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return 0, fmt.Errorf("inserting candle %s %s: %w", symbol, c.Time, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing candles: %w", err)
	}
	return len(candles), nil
}

// LoadCandles returns stored candles with open time in [from, to), oldest first.
func (s *Store) LoadCandles(ctx context.Context, symbol string, interval market.Interval, from, to time.Time) ([]market.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT open_time, open, high, low, close, volume
		FROM market_candles
		WHERE symbol = ? AND interval = ? AND open_time >= ? AND open_time < ?
		ORDER BY open_time`,
		symbol, string(interval), from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("querying candles: %w", err)
	}
	defer rows.Close()

	var candles []market.Candle
	for rows.Next() {
		var c market.Candle
		var openTime int64
		if err := rows.Scan(&openTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scanning candle: %w", err)
		}
		c.Time = time.UnixMilli(openTime).UTC()
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// CandleSymbols lists the markets with stored candles for the interval.
func (s *Store) CandleSymbols(ctx context.Context, interval market.Interval) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT symbol FROM market_candles WHERE interval = ? ORDER BY symbol`, string(interval))
	if err != nil {
		return nil, fmt.Errorf("querying candle symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scanning symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// SaveSnapshot records a market's live price and 24h figures.
func (s *Store) SaveSnapshot(ctx context.Context, m *market.Market, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_snapshots (symbol, price, change_24h, origin_volume, snapshot_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.Symbol, m.Price, m.PercentChange24h, m.OriginVolume, at.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot %s: %w", m.Symbol, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
