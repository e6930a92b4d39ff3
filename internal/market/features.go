package market

import (
	"errors"
	"fmt"
)

// ErrNonPositivePrice is returned when a variation would divide by a zero or
// negative price.
var ErrNonPositivePrice = errors.New("non-positive price")

// SetPercentVariations computes one variation per candle of the interval.
// Closed candles use open to close; the newest candle uses the previous close
// to the live price. Markets with a non-positive denominator are left
// untouched and reported in the returned error.
func SetPercentVariations(markets []*Market, interval Interval) error {
	var errs []error
	for _, m := range markets {
		vars, err := variations(m.Candles[interval], m.Price)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", m.Symbol, interval, err))
			continue
		}
		if m.Variations == nil {
			m.Variations = make(map[Interval][]float64)
		}
		m.Variations[interval] = vars
	}
	return errors.Join(errs...)
}

func variations(candles []Candle, price float64) ([]float64, error) {
	out := make([]float64, len(candles))
	last := len(candles) - 1
	for i, c := range candles {
		from, to := c.Open, c.Close
		if i == last {
			to = price
			if i > 0 {
				from = candles[i-1].Close
			}
		}
		if from <= 0 {
			return nil, ErrNonPositivePrice
		}
		out[i] = PercentChange(from, to)
	}
	return out, nil
}

// DeriveHigherInterval buckets the base candles of each market into the
// target interval. Buckets align to UTC calendar boundaries so the newest
// bucket may be partial; only that bucket carries a fetch timestamp.
func DeriveHigherInterval(markets []*Market, from, to Interval) error {
	if from != BaseInterval {
		return fmt.Errorf("%w: can only derive from %s, got %s", ErrUnsupportedInterval, BaseInterval, from)
	}
	size := to.Duration()
	if size == 0 || size <= from.Duration() {
		return fmt.Errorf("%w: cannot derive %s from %s", ErrUnsupportedInterval, to, from)
	}

	for _, m := range markets {
		m.Candles[to] = bucket(m.Candles[from], to)
	}
	return nil
}

func bucket(base []Candle, to Interval) []Candle {
	size := to.Duration()
	var out []Candle
	for _, c := range base {
		start := c.Time.UTC().Truncate(size)
		n := len(out)
		if n == 0 || !out[n-1].Time.Equal(start) {
			out = append(out, Candle{
				Time:   start,
				Open:   c.Open,
				High:   c.High,
				Low:    c.Low,
				Close:  c.Close,
				Volume: c.Volume,
			})
			continue
		}
		b := &out[n-1]
		b.High = max(b.High, c.High)
		b.Low = min(b.Low, c.Low)
		b.Close = c.Close
		b.Volume += c.Volume
	}
	if len(out) > 0 && len(base) > 0 {
		out[len(out)-1].FetchedAt = base[len(base)-1].FetchedAt
	}
	return out
}
