package performance

import (
	"context"
	"math"
	"testing"
	"time"

	"scalper/internal/config"
	"scalper/internal/db"
	"scalper/internal/execution"
)

func seed(t *testing.T) *Tracker {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.Migrate(database); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	store := db.NewStore(database)
	if err := store.RegisterAccount(ctx, execution.Account{ID: "a1", Name: "Main"}); err != nil {
		t.Fatal(err)
	}

	start := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	state := func(id, strategy string, hour int, invested, profit, pct, runUp, drawDown float64, finished bool) execution.State {
		cfg := config.DefaultStrategy()
		cfg.Name = strategy
		cfg.Selector = "strat9-30-30"
		st := execution.State{
			ID:            id,
			Account:       "a1",
			Symbol:        "SOLUSDT",
			Strategy:      cfg,
			Phase:         execution.PhaseFinished,
			Invested:      invested,
			Retrieved:     invested + profit,
			Profit:        profit,
			ProfitPercent: pct,
			RunUp:         runUp,
			DrawDown:      drawDown,
			Finished:      finished,
			StartedAt:     start.Add(time.Duration(hour) * time.Hour),
		}
		if finished {
			st.FinishedAt = st.StartedAt.Add(30 * time.Minute)
		} else {
			st.Phase = execution.PhaseMonitoring
		}
		return st
	}

	states := []execution.State{
		state("s1", "alpha", 1, 100, 5, 5, 6, -1, true),
		state("s2", "alpha", 2, 100, -3, -3, 1, -3, true),
		state("s3", "beta", 3, 50, -1, -2, 0.5, -2.5, true),
		// Below minimum investment: finished without trading.
		state("s4", "beta", 4, 0, 0, 0, 0, 0, true),
		state("s5", "beta", 5, 80, 0, 0, 0, 0, false),
	}
	for _, st := range states {
		if err := store.SaveState(ctx, st); err != nil {
			t.Fatal(err)
		}
	}
	return NewTracker(database)
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestGenerate_Overall(t *testing.T) {
	r, err := seed(t).Generate(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if r.Trades != 3 {
		t.Errorf("expected 3 trades, got %d", r.Trades)
	}
	if r.OpenTrades != 1 {
		t.Errorf("expected 1 open trade, got %d", r.OpenTrades)
	}
	if !near(r.TotalInvested, 250) || !near(r.TotalProfit, 1) {
		t.Errorf("invested %v profit %v", r.TotalInvested, r.TotalProfit)
	}
	if !near(r.ROI, 0.004) {
		t.Errorf("expected ROI 0.004, got %v", r.ROI)
	}
	if !near(r.WinRate, 1.0/3) {
		t.Errorf("expected win rate 1/3, got %v", r.WinRate)
	}
	if !near(r.BestPercent, 5) || !near(r.WorstPercent, -3) || !near(r.AvgProfitPercent, 0) {
		t.Errorf("best %v worst %v avg %v", r.BestPercent, r.WorstPercent, r.AvgProfitPercent)
	}
}

func TestGenerate_Drawdown(t *testing.T) {
	r, err := seed(t).Generate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// Equity 5, 2, 1.
	if !near(r.PeakProfit, 5) || !near(r.MaxDrawdown, 4) {
		t.Errorf("peak %v drawdown %v", r.PeakProfit, r.MaxDrawdown)
	}
}

func TestGenerate_PerStrategy(t *testing.T) {
	r, err := seed(t).Generate(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	alpha, ok := r.StrategyStats["alpha"]
	if !ok {
		t.Fatal("missing alpha stats")
	}
	if alpha.Trades != 2 || !near(alpha.Profit, 2) || !near(alpha.WinRate, 0.5) {
		t.Errorf("unexpected alpha stats %+v", alpha)
	}
	if !near(alpha.AvgRunUp, 3.5) || !near(alpha.AvgDrawDown, -2) {
		t.Errorf("unexpected alpha excursions %+v", alpha)
	}

	beta := r.StrategyStats["beta"]
	if beta.Trades != 1 || !near(beta.ROI, -0.02) || beta.WinRate != 0 {
		t.Errorf("unexpected beta stats %+v", beta)
	}
}

func TestGenerate_Empty(t *testing.T) {
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()
	if err := db.Migrate(database); err != nil {
		t.Fatal(err)
	}

	r, err := NewTracker(database).Generate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.Trades != 0 || r.WinRate != 0 || len(r.StrategyStats) != 0 {
		t.Errorf("expected empty report, got %+v", r)
	}
	LogReport(r)
}
