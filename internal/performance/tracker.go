package performance

import (
	"context"
	"database/sql"
	"fmt"
	"math"
)

// Tracker computes trading performance from persisted trading states. Only
// states that actually invested count as trades.
type Tracker struct {
	db *sql.DB
}

func NewTracker(db *sql.DB) *Tracker {
	return &Tracker{db: db}
}

// Report contains all performance metrics. Profit figures are in the origin
// asset, percentages are per trade.
type Report struct {
	Trades           int                      `json:"trades"`
	OpenTrades       int                      `json:"open_trades"`
	TotalInvested    float64                  `json:"total_invested"`
	TotalProfit      float64                  `json:"total_profit"`
	ROI              float64                  `json:"roi"`
	WinRate          float64                  `json:"win_rate"`
	AvgProfitPercent float64                  `json:"avg_profit_percent"`
	BestPercent      float64                  `json:"best_percent"`
	WorstPercent     float64                  `json:"worst_percent"`
	PeakProfit       float64                  `json:"peak_profit"`
	MaxDrawdown      float64                  `json:"max_drawdown"`
	StrategyStats    map[string]StrategyStats `json:"strategies"`
}

// StrategyStats contains per-strategy performance.
type StrategyStats struct {
	Trades           int     `json:"trades"`
	Invested         float64 `json:"invested"`
	Profit           float64 `json:"profit"`
	ROI              float64 `json:"roi"`
	WinRate          float64 `json:"win_rate"`
	AvgProfitPercent float64 `json:"avg_profit_percent"`
	AvgRunUp         float64 `json:"avg_run_up"`
	AvgDrawDown      float64 `json:"avg_draw_down"`
}

// Generate computes the full performance report.
func (t *Tracker) Generate(ctx context.Context) (*Report, error) {
	r := &Report{
		StrategyStats: make(map[string]StrategyStats),
	}

	if err := t.computeOverall(ctx, r); err != nil {
		return nil, fmt.Errorf("computing overall stats: %w", err)
	}
	if err := t.computeStrategyStats(ctx, r); err != nil {
		return nil, fmt.Errorf("computing strategy stats: %w", err)
	}
	if err := t.computeDrawdown(ctx, r); err != nil {
		return nil, fmt.Errorf("computing drawdown: %w", err)
	}

	return r, nil
}

func (t *Tracker) computeOverall(ctx context.Context, r *Report) error {
	row := t.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(invested), 0), COALESCE(SUM(profit), 0),
		       COALESCE(AVG(profit_percent), 0), COALESCE(MAX(profit_percent), 0),
		       COALESCE(MIN(profit_percent), 0),
		       COALESCE(SUM(CASE WHEN profit > 0 THEN 1 ELSE 0 END), 0)
		FROM trading_states WHERE finished = 1 AND invested > 0`)
	var wins int
	if err := row.Scan(&r.Trades, &r.TotalInvested, &r.TotalProfit,
		&r.AvgProfitPercent, &r.BestPercent, &r.WorstPercent, &wins); err != nil {
		return err
	}

	if r.TotalInvested > 0 {
		r.ROI = r.TotalProfit / r.TotalInvested
	}
	if r.Trades > 0 {
		r.WinRate = float64(wins) / float64(r.Trades)
	}

	// Positions opened but never closed are left for recovery.
	row = t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trading_states WHERE finished = 0 AND invested > 0`)
	return row.Scan(&r.OpenTrades)
}

func (t *Tracker) computeStrategyStats(ctx context.Context, r *Report) error {
	rows, err := t.db.QueryContext(ctx, `
		SELECT strategy, COUNT(*), COALESCE(SUM(invested), 0), COALESCE(SUM(profit), 0),
		       COALESCE(AVG(profit_percent), 0), COALESCE(AVG(run_up), 0), COALESCE(AVG(draw_down), 0),
		       COALESCE(SUM(CASE WHEN profit > 0 THEN 1 ELSE 0 END), 0)
		FROM trading_states WHERE finished = 1 AND invested > 0 GROUP BY strategy`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var stats StrategyStats
		var wins int
		if err := rows.Scan(&name, &stats.Trades, &stats.Invested, &stats.Profit,
			&stats.AvgProfitPercent, &stats.AvgRunUp, &stats.AvgDrawDown, &wins); err != nil {
			return err
		}
		if stats.Invested > 0 {
			stats.ROI = stats.Profit / stats.Invested
		}
		if stats.Trades > 0 {
			stats.WinRate = float64(wins) / float64(stats.Trades)
		}
		r.StrategyStats[name] = stats
	}
	return rows.Err()
}

// computeDrawdown walks the cumulative profit curve in closing order.
func (t *Tracker) computeDrawdown(ctx context.Context, r *Report) error {
	rows, err := t.db.QueryContext(ctx, `
		SELECT profit FROM trading_states
		WHERE finished = 1 AND invested > 0
		ORDER BY finished_at ASC, id ASC`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var equity, peak, maxDD float64
	for rows.Next() {
		var profit float64
		if err := rows.Scan(&profit); err != nil {
			return err
		}
		equity += profit
		peak = math.Max(peak, equity)
		maxDD = math.Max(maxDD, peak-equity)
	}
	r.PeakProfit = peak
	r.MaxDrawdown = maxDD
	return rows.Err()
}
