package performance

import (
	"log/slog"
)

// LogReport logs the performance report as structured JSON.
func LogReport(r *Report) {
	slog.Info("=== PERFORMANCE REPORT ===",
		"trades", r.Trades,
		"open_trades", r.OpenTrades,
		"invested", r.TotalInvested,
		"profit", r.TotalProfit,
		"roi", r.ROI,
		"win_rate", r.WinRate,
		"avg_profit_percent", r.AvgProfitPercent,
		"best_percent", r.BestPercent,
		"worst_percent", r.WorstPercent,
		"max_drawdown", r.MaxDrawdown,
	)

	for name, stats := range r.StrategyStats {
		slog.Info("strategy performance",
			"strategy", name,
			"trades", stats.Trades,
			"invested", stats.Invested,
			"profit", stats.Profit,
			"roi", stats.ROI,
			"win_rate", stats.WinRate,
			"avg_run_up", stats.AvgRunUp,
			"avg_draw_down", stats.AvgDrawDown,
		)
	}
}
