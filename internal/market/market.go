package market

import (
	"errors"
	"fmt"
	"time"
)

// Interval is a candle resolution.
type Interval string

const (
	FiveMinutes    Interval = "5m"
	FifteenMinutes Interval = "15m"
	ThirtyMinutes  Interval = "30m"
	OneHour        Interval = "1h"
	TwoHours       Interval = "2h"
	FourHours      Interval = "4h"
)

// BaseInterval is the resolution fetched from the exchange. Every other
// interval is derived from it.
const BaseInterval = FiveMinutes

// ErrUnsupportedInterval is returned for intervals the pipeline cannot produce.
var ErrUnsupportedInterval = errors.New("unsupported interval")

var intervalDurations = map[Interval]time.Duration{
	FiveMinutes:    5 * time.Minute,
	FifteenMinutes: 15 * time.Minute,
	ThirtyMinutes:  30 * time.Minute,
	OneHour:        time.Hour,
	TwoHours:       2 * time.Hour,
	FourHours:      4 * time.Hour,
}

// Duration returns the length of one candle, or 0 for an unknown interval.
func (i Interval) Duration() time.Duration {
	return intervalDurations[i]
}

// ParseInterval validates a textual interval such as "30m".
func ParseInterval(s string) (Interval, error) {
	iv := Interval(s)
	if iv.Duration() == 0 {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedInterval, s)
	}
	return iv, nil
}

// Candle is one OHLCV bucket. Time is the bucket open time. FetchedAt is the
// wall-clock time the candle was retrieved and is only set on the newest
// candle of a fetch, which may still be open.
type Candle struct {
	Time      time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	FetchedAt time.Time
}

// Market is a tradable pair annotated with per-interval candles and
// percentage variations.
type Market struct {
	Symbol string
	// Origin is the quote asset spent on a buy, Target the asset received.
	Origin string
	Target string

	Price            float64
	PercentChange24h float64
	OriginVolume     float64
	AmountPrecision  int
	QuoteOrders      bool

	Candles    map[Interval][]Candle
	Variations map[Interval][]float64
}

func NewMarket(symbol, origin, target string) *Market {
	return &Market{
		Symbol:     symbol,
		Origin:     origin,
		Target:     target,
		Candles:    make(map[Interval][]Candle),
		Variations: make(map[Interval][]float64),
	}
}

// HasFeatures reports whether the interval has candles with aligned variations.
func (m *Market) HasFeatures(interval Interval) bool {
	c := m.Candles[interval]
	return len(c) > 0 && len(c) == len(m.Variations[interval])
}

// PercentChange returns the percent change from one price to another.
func PercentChange(from, to float64) float64 {
	return (to - from) / from * 100
}
