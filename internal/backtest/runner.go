package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"scalper/internal/config"
	"scalper/internal/execution"
	"scalper/internal/market"
	"scalper/internal/risk"
	"scalper/internal/strategy"
)

// Store is the candle history the runner replays.
type Store interface {
	CandleSymbols(ctx context.Context, interval market.Interval) ([]string, error)
	LoadCandles(ctx context.Context, symbol string, interval market.Interval, from, to time.Time) ([]market.Candle, error)
}

type Options struct {
	// Window is the number of base candles visible at each step.
	Window  int
	Fee     float64
	Origins []string
}

func DefaultOptions() Options {
	return Options{Window: 2100, Fee: 0.001, Origins: []string{"USDT"}}
}

// Runner replays stored candles through the selector engine and simulates
// the trade lifecycle of each strategy with its stop-loss, monitoring
// window and risk breaker.
type Runner struct {
	store      Store
	engine     *strategy.Engine
	strategies []config.StrategyConfig
	opts       Options
	now        time.Time
}

func NewRunner(store Store, registry *strategy.Registry, strategies []config.StrategyConfig, opts Options) *Runner {
	r := &Runner{store: store, strategies: strategies, opts: opts}
	r.engine = strategy.NewEngine(registry).WithClock(func() time.Time { return r.now })
	return r
}

// Trade is one simulated round trip.
type Trade struct {
	Symbol        string
	OpenedAt      time.Time
	ClosedAt      time.Time
	Entry         float64
	Exit          float64
	Stop          float64
	Limit         float64
	ProfitPercent float64
	RunUp         float64
	DrawDown      float64
	StoppedOut    bool
}

type StrategyResult struct {
	Name          string
	Selector      string
	Trades        []Trade
	Wins          int
	Losses        int
	ProfitPercent float64
	Best          float64
	Worst         float64
	Halted        bool
	HaltReason    string
}

type Report struct {
	From       time.Time
	To         time.Time
	Steps      int
	Markets    int
	Strategies []*StrategyResult
}

// Run executes the backtest over the given date range.
func (r *Runner) Run(ctx context.Context, fromStr, toStr string) (*Report, error) {
	from, to, err := parseDateRange(fromStr, toStr)
	if err != nil {
		return nil, err
	}
	return r.RunRange(ctx, from, to)
}

func (r *Runner) RunRange(ctx context.Context, from, to time.Time) (*Report, error) {
	step := market.BaseInterval.Duration()
	from = from.UTC().Truncate(step)

	slog.Info("backtest starting", "from", from.Format(time.DateTime), "to", to.Format(time.DateTime), "strategies", len(r.strategies))

	history, err := r.load(ctx, from, to)
	if err != nil {
		return nil, err
	}

	sims := make([]*simulation, 0, len(r.strategies))
	var intervals []market.Interval
	for _, cfg := range r.strategies {
		v, err := r.engine.Registry().Get(cfg.Selector)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", cfg.Name, err)
		}
		if v.Interval != market.BaseInterval && !contains(intervals, v.Interval) {
			intervals = append(intervals, v.Interval)
		}
		sims = append(sims, newSimulation(cfg, r.opts.Fee))
	}

	report := &Report{From: from, To: to, Markets: len(history)}
	for t := from; t.Before(to); t = t.Add(step) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		markets := history.at(t, r.opts.Window)
		if len(markets) == 0 {
			continue
		}
		for _, iv := range intervals {
			if err := market.DeriveHigherInterval(markets, market.BaseInterval, iv); err != nil {
				return nil, err
			}
		}
		for _, iv := range append([]market.Interval{market.BaseInterval}, intervals...) {
			if err := market.SetPercentVariations(markets, iv); err != nil {
				slog.Debug("variations skipped", "interval", iv, "error", err)
			}
		}

		// Decisions are taken when the step's candle closes.
		r.now = t.Add(step)
		for _, sim := range sims {
			sim.step(r.engine, markets, r.now)
		}
		report.Steps++
	}

	for _, sim := range sims {
		report.Strategies = append(report.Strategies, sim.result)
		res := sim.result
		slog.Info("=== BACKTEST RESULTS ===",
			"strategy", res.Name,
			"selector", res.Selector,
			"period", fmt.Sprintf("%s to %s", from.Format("2006-01-02"), to.Format("2006-01-02")),
			"steps", report.Steps,
			"trades", len(res.Trades),
			"wins", res.Wins,
			"losses", res.Losses,
			"profit_percent", res.ProfitPercent,
			"best", res.Best,
			"worst", res.Worst,
			"halted", res.Halted,
		)
	}
	return report, nil
}

func (r *Runner) load(ctx context.Context, from, to time.Time) (history, error) {
	symbols, err := r.store.CandleSymbols(ctx, market.BaseInterval)
	if err != nil {
		return nil, fmt.Errorf("loading symbols: %w", err)
	}

	warmup := time.Duration(r.opts.Window) * market.BaseInterval.Duration()
	h := make(history)
	for _, sym := range symbols {
		origin, target, ok := splitSymbol(sym, r.opts.Origins)
		if !ok {
			continue
		}
		candles, err := r.store.LoadCandles(ctx, sym, market.BaseInterval, from.Add(-warmup), to)
		if err != nil {
			return nil, fmt.Errorf("loading candles of %s: %w", sym, err)
		}
		if len(candles) == 0 {
			continue
		}
		h[sym] = &series{origin: origin, target: target, candles: candles}
	}
	if len(h) == 0 {
		return nil, fmt.Errorf("no candles found between %s and %s", from.Format(time.DateTime), to.Format(time.DateTime))
	}
	slog.Info("loaded candle history", "markets", len(h))
	return h, nil
}

type series struct {
	origin, target string
	candles        []market.Candle
	cursor         int
}

type history map[string]*series

// candlesPerDay is the number of base candles in 24 hours.
const candlesPerDay = 24 * 60 / 5

// at builds the markets whose live candle opens at t.
func (h history) at(t time.Time, window int) []*market.Market {
	var out []*market.Market
	for sym, s := range h {
		for s.cursor < len(s.candles) && s.candles[s.cursor].Time.Before(t) {
			s.cursor++
		}
		if s.cursor >= len(s.candles) || !s.candles[s.cursor].Time.Equal(t) {
			continue
		}
		end := s.cursor + 1
		start := max(0, end-window)
		candles := append([]market.Candle(nil), s.candles[start:end]...)
		live := candles[len(candles)-1]

		m := market.NewMarket(sym, s.origin, s.target)
		m.Price = live.Close
		m.QuoteOrders = true
		m.AmountPrecision = 8
		dayAgo := max(0, end-1-candlesPerDay)
		m.PercentChange24h = market.PercentChange(s.candles[dayAgo].Open, live.Close)
		for _, c := range s.candles[dayAgo:end] {
			m.OriginVolume += c.Volume * c.Close
		}
		m.Candles[market.BaseInterval] = candles
		out = append(out, m)
	}
	return out
}

type simulation struct {
	cfg       config.StrategyConfig
	fee       float64
	cooldowns *risk.CooldownLedger
	risk      *risk.Manager
	open      *Trade
	result    *StrategyResult
}

func newSimulation(cfg config.StrategyConfig, fee float64) *simulation {
	return &simulation{
		cfg:       cfg,
		fee:       fee,
		cooldowns: risk.NewCooldownLedger(),
		risk:      risk.NewManager(risk.Limits{AbortThreshold: cfg.AbortThreshold}),
		result:    &StrategyResult{Name: cfg.Name, Selector: cfg.Selector},
	}
}

func (s *simulation) step(engine *strategy.Engine, markets []*market.Market, now time.Time) {
	if s.result.Halted {
		return
	}
	if s.open != nil {
		s.monitor(markets, now)
		return
	}

	sel, err := engine.Select(s.cooldowns, markets, s.cfg.Selector, false)
	if err != nil {
		s.halt(err)
		return
	}
	if sel == nil {
		return
	}
	entry := sel.Market.Price * (1 + s.fee)
	stop := entry * (1 + s.cfg.StopLossPercent/100)
	s.open = &Trade{
		Symbol:   sel.Market.Symbol,
		OpenedAt: now,
		Entry:    entry,
		Stop:     stop,
		Limit:    stop * (1 - s.cfg.StopLimitOffsetPercent/100),
	}
}

func (s *simulation) monitor(markets []*market.Market, now time.Time) {
	t := s.open
	var c market.Candle
	found := false
	for _, m := range markets {
		if m.Symbol == t.Symbol {
			candles := m.Candles[market.BaseInterval]
			c, found = candles[len(candles)-1], true
			break
		}
	}
	if !found {
		return
	}

	t.RunUp = max(t.RunUp, market.PercentChange(t.Entry, c.High))
	t.DrawDown = min(t.DrawDown, market.PercentChange(t.Entry, c.Low))

	switch {
	case c.Low <= t.Stop:
		t.StoppedOut = true
		s.close(t.Limit*(1-s.fee), now)
	case now.Sub(t.OpenedAt) >= s.cfg.MonitorWindow.Duration:
		s.close(c.Close*(1-s.fee), now)
	}
}

func (s *simulation) close(exit float64, now time.Time) {
	t := s.open
	s.open = nil
	t.Exit = exit
	t.ClosedAt = now
	t.ProfitPercent = execution.ProfitPercent(t.Entry, exit)

	res := s.result
	if len(res.Trades) == 0 {
		res.Best, res.Worst = t.ProfitPercent, t.ProfitPercent
	}
	res.Trades = append(res.Trades, *t)
	res.ProfitPercent += t.ProfitPercent
	res.Best = max(res.Best, t.ProfitPercent)
	res.Worst = min(res.Worst, t.ProfitPercent)
	if t.ProfitPercent > 0 {
		res.Wins++
	} else {
		res.Losses++
	}

	s.cooldowns.Record(t.Symbol, s.cfg.Selector, now)
	if err := s.risk.RecordProfit(t.ProfitPercent); err != nil {
		s.halt(err)
	}
}

func (s *simulation) halt(err error) {
	s.result.Halted = true
	s.result.HaltReason = err.Error()
	slog.Warn("backtest strategy halted", "strategy", s.cfg.Name, "error", err)
}

func splitSymbol(symbol string, origins []string) (string, string, bool) {
	for _, o := range origins {
		if strings.HasSuffix(symbol, o) && len(symbol) > len(o) {
			return o, strings.TrimSuffix(symbol, o), true
		}
	}
	return "", "", false
}

func contains(intervals []market.Interval, iv market.Interval) bool {
	for _, x := range intervals {
		if x == iv {
			return true
		}
	}
	return false
}

func parseDateRange(fromStr, toStr string) (time.Time, time.Time, error) {
	var from, to time.Time

	if fromStr == "" {
		from = time.Now().AddDate(0, -1, 0) // Default: 1 month ago.
	} else {
		var err error
		from, err = time.Parse("2006-01-02", fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parsing from date: %w", err)
		}
	}

	if toStr == "" {
		to = time.Now()
	} else {
		var err error
		to, err = time.Parse("2006-01-02", toStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parsing to date: %w", err)
		}
	}

	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("from date %s is not before to date %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	return from, to, nil
}
