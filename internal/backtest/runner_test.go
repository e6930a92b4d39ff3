package backtest

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"scalper/internal/config"
	"scalper/internal/market"
	"scalper/internal/strategy"
)

var t0 = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

type memStore map[string][]market.Candle

func (s memStore) CandleSymbols(_ context.Context, _ market.Interval) ([]string, error) {
	var out []string
	for sym := range s {
		out = append(out, sym)
	}
	return out, nil
}

func (s memStore) LoadCandles(_ context.Context, symbol string, _ market.Interval, from, to time.Time) ([]market.Candle, error) {
	var out []market.Candle
	for _, c := range s[symbol] {
		if !c.Time.Before(from) && c.Time.Before(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

// build chains 5m candles from 100 with the given percent moves.
func build(pcts []float64) []market.Candle {
	out := make([]market.Candle, len(pcts))
	price := 100.0
	for i, p := range pcts {
		closeP := price * (1 + p/100)
		out[i] = market.Candle{
			Time:   t0.Add(time.Duration(i) * 5 * time.Minute),
			Open:   price,
			High:   max(price, closeP) * 1.001,
			Low:    min(price, closeP) * 0.999,
			Close:  closeP,
			Volume: 10,
		}
		price = closeP
	}
	return out
}

// jumpSeries is 30 flat candles, a +3% jump, then the given moves.
func jumpSeries(after ...float64) []market.Candle {
	pcts := make([]float64, 30, 31+len(after))
	pcts = append(pcts, 3)
	pcts = append(pcts, after...)
	return build(pcts)
}

func jumpRegistry() *strategy.Registry {
	return strategy.NewRegistry(&strategy.Variant{
		ID:        "jump-5",
		Interval:  market.FiveMinutes,
		Change24h: strategy.Band{Min: -100, Max: 100},
		Pattern:   strategy.Greens(strategy.Band{Min: 2, Max: 30}),
	})
}

func jumpStrategy() config.StrategyConfig {
	s := config.DefaultStrategy()
	s.Name = "jump"
	s.Selector = "jump-5"
	s.MonitorWindow = config.Duration{Duration: 30 * time.Minute}
	return s
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func run(t *testing.T, candles []market.Candle, s config.StrategyConfig) *StrategyResult {
	t.Helper()
	r := NewRunner(memStore{"ABCUSDT": candles}, jumpRegistry(), []config.StrategyConfig{s}, Options{Window: 50, Origins: []string{"USDT"}})
	end := candles[len(candles)-1].Time.Add(5 * time.Minute)
	report, err := r.RunRange(context.Background(), t0.Add(20*5*time.Minute), end)
	if err != nil {
		t.Fatalf("RunRange: %v", err)
	}
	if len(report.Strategies) != 1 {
		t.Fatalf("expected 1 strategy result, got %d", len(report.Strategies))
	}
	return report.Strategies[0]
}

func TestRunnerClosesAfterMonitorWindow(t *testing.T) {
	res := run(t, jumpSeries(repeat(0.5, 20)...), jumpStrategy())

	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.Symbol != "ABCUSDT" || tr.StoppedOut {
		t.Errorf("unexpected trade %+v", tr)
	}
	if got := tr.ClosedAt.Sub(tr.OpenedAt); got != 30*time.Minute {
		t.Errorf("held for %v, want 30m", got)
	}
	// Six further +0.5% candles.
	if tr.ProfitPercent != 3.04 {
		t.Errorf("profit = %v, want 3.04", tr.ProfitPercent)
	}
	if res.Wins != 1 || res.Losses != 0 || res.Halted {
		t.Errorf("unexpected result %+v", res)
	}
	if tr.RunUp <= 0 || tr.DrawDown > 0 {
		t.Errorf("run-up %v draw-down %v", tr.RunUp, tr.DrawDown)
	}
}

func TestRunnerStopLoss(t *testing.T) {
	res := run(t, jumpSeries(append([]float64{0.5, -5}, repeat(0.1, 10)...)...), jumpStrategy())

	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}
	tr := res.Trades[0]
	if !tr.StoppedOut {
		t.Fatalf("expected stop-out, got %+v", tr)
	}
	if tr.Exit != tr.Limit {
		t.Errorf("exit %v, want limit %v", tr.Exit, tr.Limit)
	}
	// -3% stop, 0.5% limit offset.
	if math.Abs(tr.ProfitPercent-(-3.49)) > 0.011 {
		t.Errorf("profit = %v, want about -3.49", tr.ProfitPercent)
	}
	if res.Halted {
		t.Error("breaker should not trip above -7")
	}
}

func TestRunnerHaltsOnRiskBreach(t *testing.T) {
	s := jumpStrategy()
	s.AbortThreshold = -3

	// A second jump after the stop-out would trade again if not halted.
	moves := append([]float64{0.5, -5}, repeat(0, 10)...)
	moves = append(moves, 3, 0.5)
	moves = append(moves, repeat(0, 10)...)
	res := run(t, jumpSeries(moves...), s)

	if !res.Halted {
		t.Fatal("expected halt")
	}
	if !strings.Contains(res.HaltReason, "risk threshold breached") {
		t.Errorf("halt reason %q", res.HaltReason)
	}
	if len(res.Trades) != 1 {
		t.Errorf("expected 1 trade before halting, got %d", len(res.Trades))
	}
}

func TestRunnerUnknownSelector(t *testing.T) {
	s := jumpStrategy()
	s.Selector = "missing"
	r := NewRunner(memStore{"ABCUSDT": jumpSeries()}, jumpRegistry(), []config.StrategyConfig{s}, DefaultOptions())
	if _, err := r.RunRange(context.Background(), t0, t0.Add(time.Hour)); err == nil {
		t.Fatal("expected error for unknown selector")
	}
}

func TestRunnerNoHistory(t *testing.T) {
	r := NewRunner(memStore{"ABCBTC": jumpSeries()}, jumpRegistry(), []config.StrategyConfig{jumpStrategy()}, DefaultOptions())
	if _, err := r.RunRange(context.Background(), t0, t0.Add(time.Hour)); err == nil {
		t.Fatal("expected error when no market matches the origins")
	}
}

func TestParseDateRange(t *testing.T) {
	from, to, err := parseDateRange("2025-01-01", "2025-02-01")
	if err != nil {
		t.Fatalf("parseDateRange: %v", err)
	}
	if from.Month() != time.January || to.Month() != time.February {
		t.Errorf("got %v %v", from, to)
	}
	if _, _, err := parseDateRange("2025-02-01", "2025-01-01"); err == nil {
		t.Error("expected error for inverted range")
	}
	if _, _, err := parseDateRange("yesterday", ""); err == nil {
		t.Error("expected error for bad date")
	}
}
