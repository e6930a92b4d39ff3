package market

import (
	"errors"
	"math"
	"testing"
	"time"
)

func baseCandles(start time.Time, n int) []Candle {
	candles := make([]Candle, n)
	price := 10.0
	for i := range candles {
		open := price
		price += 0.1
		candles[i] = Candle{
			Time:   start.Add(time.Duration(i) * 5 * time.Minute),
			Open:   open,
			High:   price + 0.05,
			Low:    open - 0.05,
			Close:  price,
			Volume: float64(i + 1),
		}
	}
	return candles
}

func TestSetPercentVariations_LengthMatchesCandles(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, n := range []int{1, 2, 7, 50} {
		m := NewMarket("ABCUSDT", "USDT", "ABC")
		m.Price = 12
		m.Candles[BaseInterval] = baseCandles(start, n)

		if err := SetPercentVariations([]*Market{m}, BaseInterval); err != nil {
			t.Fatal(err)
		}
		if got := len(m.Variations[BaseInterval]); got != n {
			t.Errorf("n=%d: expected %d variations, got %d", n, n, got)
		}
	}
}

func TestSetPercentVariations_LastUsesLivePrice(t *testing.T) {
	m := NewMarket("ABCUSDT", "USDT", "ABC")
	m.Price = 110
	m.Candles[BaseInterval] = []Candle{
		{Open: 100, Close: 105},
		{Open: 105, Close: 100},
		{Open: 100, Close: 101},
	}

	if err := SetPercentVariations([]*Market{m}, BaseInterval); err != nil {
		t.Fatal(err)
	}
	vars := m.Variations[BaseInterval]
	if math.Abs(vars[0]-5) > 1e-9 {
		t.Errorf("expected first variation 5, got %f", vars[0])
	}
	// Previous close 100 to live price 110, the last candle's own open and
	// close are ignored.
	if math.Abs(vars[2]-10) > 1e-9 {
		t.Errorf("expected last variation 10, got %f", vars[2])
	}
}

func TestSetPercentVariations_ZeroPriceIsReported(t *testing.T) {
	good := NewMarket("AUSDT", "USDT", "A")
	good.Price = 1
	good.Candles[BaseInterval] = []Candle{{Open: 1, Close: 1}, {Open: 1, Close: 1}}

	bad := NewMarket("BUSDT", "USDT", "B")
	bad.Price = 1
	bad.Candles[BaseInterval] = []Candle{{Open: 0, Close: 1}, {Open: 1, Close: 1}}

	err := SetPercentVariations([]*Market{good, bad}, BaseInterval)
	if !errors.Is(err, ErrNonPositivePrice) {
		t.Fatalf("expected ErrNonPositivePrice, got %v", err)
	}
	if !good.HasFeatures(BaseInterval) {
		t.Error("expected healthy market to keep its variations")
	}
	if bad.HasFeatures(BaseInterval) {
		t.Error("expected broken market to have no variations")
	}
	for _, v := range good.Variations[BaseInterval] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("unexpected non-finite variation %f", v)
		}
	}
}

func TestDeriveHigherInterval_PreservesVolume(t *testing.T) {
	// Starts at :05 so the first 15m bucket is partial.
	start := time.Date(2025, 3, 1, 10, 5, 0, 0, time.UTC)
	m := NewMarket("ABCUSDT", "USDT", "ABC")
	m.Candles[BaseInterval] = baseCandles(start, 20)

	if err := DeriveHigherInterval([]*Market{m}, BaseInterval, FifteenMinutes); err != nil {
		t.Fatal(err)
	}

	var baseTotal, derivedTotal float64
	for _, c := range m.Candles[BaseInterval] {
		baseTotal += c.Volume
	}
	derived := m.Candles[FifteenMinutes]
	for _, c := range derived {
		derivedTotal += c.Volume
		if c.Time.Minute()%15 != 0 {
			t.Errorf("bucket at %s is not aligned to 15 minutes", c.Time)
		}
	}
	if baseTotal != derivedTotal {
		t.Errorf("expected total volume %f, got %f", baseTotal, derivedTotal)
	}

	// 10:00 bucket holds 10:05 and 10:10.
	first := derived[0]
	if !first.Time.Equal(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected first bucket %s", first.Time)
	}
	if first.Volume != 1+2 {
		t.Errorf("expected first bucket volume 3, got %f", first.Volume)
	}
	if first.Open != m.Candles[BaseInterval][0].Open || first.Close != m.Candles[BaseInterval][1].Close {
		t.Error("first bucket open/close do not match its base candles")
	}
}

func TestDeriveHigherInterval_HighLowAndFetchTimestamp(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	fetched := start.Add(41 * time.Minute)
	base := []Candle{
		{Time: start, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1},
		{Time: start.Add(5 * time.Minute), Open: 10.5, High: 13, Low: 10, Close: 12, Volume: 1},
		{Time: start.Add(10 * time.Minute), Open: 12, High: 12.5, Low: 8, Close: 9, Volume: 1},
		{Time: start.Add(30 * time.Minute), Open: 9, High: 9.5, Low: 8.5, Close: 9.2, Volume: 2},
		{Time: start.Add(35 * time.Minute), Open: 9.2, High: 9.4, Low: 9.1, Close: 9.3, Volume: 2},
		{Time: start.Add(40 * time.Minute), Open: 9.3, High: 9.6, Low: 9.2, Close: 9.5, Volume: 2, FetchedAt: fetched},
	}
	m := NewMarket("ABCUSDT", "USDT", "ABC")
	m.Candles[BaseInterval] = base

	if err := DeriveHigherInterval([]*Market{m}, BaseInterval, ThirtyMinutes); err != nil {
		t.Fatal(err)
	}
	got := m.Candles[ThirtyMinutes]
	if len(got) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(got))
	}
	if got[0].High != 13 || got[0].Low != 8 || got[0].Open != 10 || got[0].Close != 9 {
		t.Errorf("unexpected first bucket %+v", got[0])
	}
	if !got[0].FetchedAt.IsZero() {
		t.Error("closed bucket should not carry a fetch timestamp")
	}
	if !got[1].FetchedAt.Equal(fetched) {
		t.Errorf("expected partial bucket fetch time %s, got %s", fetched, got[1].FetchedAt)
	}
}

func TestDeriveHigherInterval_RejectsBadIntervals(t *testing.T) {
	m := NewMarket("ABCUSDT", "USDT", "ABC")
	if err := DeriveHigherInterval([]*Market{m}, FifteenMinutes, OneHour); !errors.Is(err, ErrUnsupportedInterval) {
		t.Errorf("expected ErrUnsupportedInterval for non-base source, got %v", err)
	}
	if err := DeriveHigherInterval([]*Market{m}, BaseInterval, Interval("3m")); !errors.Is(err, ErrUnsupportedInterval) {
		t.Errorf("expected ErrUnsupportedInterval for unknown target, got %v", err)
	}
}
