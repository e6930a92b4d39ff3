package strategy

import (
	"errors"
	"testing"
	"time"

	"scalper/internal/market"
)

func alternating(n int, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp
		if i%2 == 1 {
			out[i] = -amp
		}
	}
	return out
}

func strat9Market(t *testing.T, symbol string, amp float64) *market.Market {
	t.Helper()
	pcts := append(alternating(25, amp), 3, 6, 0.4)
	vols := append(constant(25, 10), 10, 20, 5)
	m := newMarket(t, market.ThirtyMinutes, series(market.ThirtyMinutes, t0, pcts, vols), 5)
	m.Symbol = symbol
	return m
}

func fixedEngine(registry *Registry) *Engine {
	return NewEngine(registry).WithClock(func() time.Time { return t0.Add(48 * time.Hour) })
}

func TestEngine_SelectsStrat9(t *testing.T) {
	e := fixedEngine(DefaultRegistry())
	m := strat9Market(t, "ABCUSDT", 0.3)

	r, err := e.Select(nil, []*market.Market{m}, "strat9-30-30", false)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil {
		t.Fatal("expected a selection")
	}
	if r.Market != m || r.Interval != market.ThirtyMinutes || r.Strategy != "strat9-30-30" {
		t.Errorf("unexpected result %+v", r)
	}
}

func TestEngine_UnknownStrategy(t *testing.T) {
	e := fixedEngine(DefaultRegistry())
	m := strat9Market(t, "ABCUSDT", 0.3)

	r, err := e.Select(nil, []*market.Market{m}, "strat99-1-1", false)
	if !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
	if r != nil {
		t.Error("expected no selection")
	}
}

func TestEngine_PicksFlattestMarket(t *testing.T) {
	e := fixedEngine(DefaultRegistry())
	choppy := strat9Market(t, "CHOPUSDT", 0.8)
	calm := strat9Market(t, "CALMUSDT", 0.3)

	for _, markets := range [][]*market.Market{{choppy, calm}, {calm, choppy}} {
		r, err := e.Select(nil, markets, "strat9-30-30", false)
		if err != nil {
			t.Fatal(err)
		}
		if r == nil || r.Market.Symbol != "CALMUSDT" {
			t.Fatalf("expected CALMUSDT, got %+v", r)
		}
	}
}

func TestEngine_TiesKeepFirst(t *testing.T) {
	e := fixedEngine(DefaultRegistry())
	a := strat9Market(t, "AAAUSDT", 0.3)
	b := strat9Market(t, "BBBUSDT", 0.3)

	r, err := e.Select(nil, []*market.Market{a, b}, "strat9-30-30", false)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.Market.Symbol != "AAAUSDT" {
		t.Fatalf("expected first market on tie, got %+v", r)
	}
}

func TestEngine_SkipsShortHistory(t *testing.T) {
	e := fixedEngine(DefaultRegistry())
	short := newMarket(t, market.ThirtyMinutes, series(market.ThirtyMinutes, t0, []float64{0.1, 3, 6, 0.2}, constant(4, 10)), 5)
	short.Symbol = "SHORTUSDT"
	good := strat9Market(t, "GOODUSDT", 0.3)

	r, err := e.Select(nil, []*market.Market{short, good}, "strat9-30-30", false)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.Market.Symbol != "GOODUSDT" {
		t.Fatalf("expected GOODUSDT, got %+v", r)
	}
}

func TestEngine_DoubleEvaluation(t *testing.T) {
	twoGreens := &Variant{
		ID:        "two-greens",
		Interval:  market.ThirtyMinutes,
		Change24h: Band{-3, 35},
		Lookback:  10,
		Skip:      4,
		Pattern:   Greens(Band{2, 30}, Band{2, 30}),
	}
	e := fixedEngine(NewRegistry(twoGreens))

	build := func(c3 float64) *market.Market {
		pcts := append(flat(20), c3, 3, 6, 0.4)
		return newMarket(t, market.ThirtyMinutes, series(market.ThirtyMinutes, t0, pcts, constant(len(pcts), 10)), 5)
	}

	// c3 green: the previous window already had two greens.
	stale := build(2.5)
	live, err := twoGreens.Evaluate(nil, stale, stale.Candles[market.ThirtyMinutes], stale.Variations[market.ThirtyMinutes], false, t0)
	if err != nil || live == nil {
		t.Fatalf("expected live window to be eligible, got %v %v", live, err)
	}
	r, err := e.Select(nil, []*market.Market{stale}, "two-greens", false)
	if err != nil {
		t.Fatal(err)
	}
	if r != nil {
		t.Error("expected market eligible on both windows to be rejected")
	}

	fresh := build(0.3)
	r, err = e.Select(nil, []*market.Market{fresh}, "two-greens", false)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil {
		t.Error("expected newly eligible market to be selected")
	}
}

func TestEngine_SqueezeRelease(t *testing.T) {
	e := fixedEngine(DefaultRegistry())
	pcts := append(constant(45, 0), 10, 0.2)
	m := newMarket(t, market.OneHour, series(market.OneHour, t0, pcts, constant(len(pcts), 10)), 5)

	r, err := e.Select(nil, []*market.Market{m}, "squeeze-60-60", false)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil {
		t.Fatal("expected squeeze release to be selected")
	}
	if r.Interval != market.OneHour {
		t.Errorf("expected 1h, got %s", r.Interval)
	}

	quiet := newMarket(t, market.OneHour, series(market.OneHour, t0, constant(47, 0), constant(47, 10)), 5)
	if r, _ := e.Select(nil, []*market.Market{quiet}, "squeeze-60-60", false); r != nil {
		t.Error("expected no selection without a release")
	}
}

func TestRegistry_BandsStartAtKnownFloors(t *testing.T) {
	reg := DefaultRegistry()
	for _, id := range reg.IDs() {
		v, err := reg.Get(id)
		if err != nil {
			t.Fatal(err)
		}
		if v.Change24h.Min != -3 && v.Change24h.Min != -10 {
			t.Errorf("%s: unexpected band floor %f", id, v.Change24h.Min)
		}
		if v.ID != id {
			t.Errorf("registry key %s holds %s", id, v.ID)
		}
	}
}
