package strategy

import (
	"fmt"
	"math"
	"time"

	"scalper/internal/market"
)

// minWindow is the smallest window any pattern indexes into (c0..c4).
const minWindow = 5

// Timing configures the decision-point gate. Early fires while the live
// candle is within Early of closing; Late fires while the newest candle
// opened less than Late ago, in which case that candle is dropped.
type Timing struct {
	Early time.Duration
	Late  time.Duration
}

// Pattern is the variant-specific predicate run after the shared gates.
type Pattern func(w Window, r *Result) bool

// Variant is one tuned selector. Zero thresholds disable their gate.
type Variant struct {
	ID        string
	Interval  market.Interval
	Cooldown  time.Duration
	Change24h Band
	Timing    Timing

	// Flatness window: Lookback candles ending Skip candles before the newest.
	Lookback     int
	Skip         int
	MaxVariation float64
	MaxEdge      float64

	MinVolumeRatio float64
	// Containment is the number of candles preceding c1 whose highs must
	// not exceed c1's high.
	Containment    int
	TrailingVolume int
	MinCandles     int

	Pattern Pattern
}

// MinHistory returns the number of candles the variant indexes into.
func (v *Variant) MinHistory() int {
	return max(minWindow, v.Skip+v.Lookback, v.Containment+2, v.TrailingVolume+1, v.MinCandles)
}

// Evaluate runs the variant against one market window. A nil result means
// the market is not eligible now. An error is only returned for malformed
// or too short input.
func (v *Variant) Evaluate(cooldowns Cooldowns, m *market.Market, candles []market.Candle, variations []float64, validateTiming bool, now time.Time) (*Result, error) {
	if len(candles) != len(variations) {
		return nil, fmt.Errorf("%s %s: %w", v.ID, m.Symbol, ErrMisaligned)
	}

	if cooldowns != nil {
		if last, ok := cooldowns.LastTrade(m.Symbol, v.ID); ok && now.Sub(last) < v.Cooldown {
			return nil, nil
		}
	}

	if !v.Change24h.Contains(m.PercentChange24h) {
		return nil, nil
	}

	r := &Result{
		Market:    m,
		Interval:  v.Interval,
		Strategy:  v.ID,
		WindowEnd: len(candles),
	}
	if validateTiming {
		if !v.gate(candles, now, r) {
			return nil, nil
		}
	}

	if need := v.MinHistory(); r.WindowEnd < need {
		return nil, fmt.Errorf("%s %s: %w: need %d candles, have %d", v.ID, m.Symbol, ErrInsufficientHistory, need, r.WindowEnd)
	}
	w := Window{Candles: candles[:r.WindowEnd], Variations: variations[:r.WindowEnd]}

	v.measure(w, r)
	if !v.accept(w, r) {
		return nil, nil
	}
	if v.Pattern != nil && !v.Pattern(w, r) {
		return nil, nil
	}
	return r, nil
}

// gate applies the decision-point timing and adjusts r.WindowEnd, EarlyStart
// and SleepFor. It reports false when neither an early nor a late fire applies.
func (v *Variant) gate(candles []market.Candle, now time.Time, r *Result) bool {
	if len(candles) == 0 {
		return false
	}
	last := candles[len(candles)-1]
	ref := now
	if !last.FetchedAt.IsZero() {
		// A fetch landing on second zero cannot tell whether the newest
		// candle was already rolled over.
		if last.FetchedAt.Second() == 0 {
			return false
		}
		ref = last.FetchedAt
	}

	size := v.Interval.Duration()
	elapsed := ref.Sub(last.Time)
	switch {
	case elapsed >= size-v.Timing.Early && elapsed < size:
		r.EarlyStart = true
		r.SleepFor = size - elapsed
		return true
	case elapsed >= 0 && elapsed < v.Timing.Late:
		r.WindowEnd = len(candles) - 1
		return true
	default:
		return false
	}
}

func (v *Variant) measure(w Window, r *Result) {
	if v.Lookback > 0 {
		end := w.Len() - v.Skip
		flat := w.Candles[end-v.Lookback : end]
		r.MaxVariation = MaxVariation(flat)
		r.EdgeVariation = EdgeVariation(flat)
	}

	if prev := w.C(2).Volume; prev > 0 {
		r.VolumeRatio = w.C(1).Volume / prev
	}
	if r.MaxVariation > 0 {
		r.C1MaxVarRatio = w.V(1) / r.MaxVariation
	}

	if v.TrailingVolume > 0 {
		for i := 1; i <= v.TrailingVolume; i++ {
			r.TrailingVolume += w.C(i).Volume
		}
		r.TrailingVolumeAvg = r.TrailingVolume / float64(v.TrailingVolume)
	}
}

func (v *Variant) accept(w Window, r *Result) bool {
	if v.MaxVariation > 0 && r.MaxVariation > v.MaxVariation {
		return false
	}
	if v.MaxEdge > 0 && math.Abs(r.EdgeVariation) > v.MaxEdge {
		return false
	}
	if v.MinVolumeRatio > 0 && r.VolumeRatio < v.MinVolumeRatio {
		return false
	}
	if v.Containment > 0 {
		high := w.C(1).High
		for i := 2; i <= v.Containment+1; i++ {
			if w.C(i).High > high {
				return false
			}
		}
	}
	return true
}

// MaxVariation is the percent swing between the lowest and highest open or
// close in the candles.
func MaxVariation(candles []market.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, c := range candles {
		lo = min(lo, c.Open, c.Close)
		hi = max(hi, c.Open, c.Close)
	}
	if lo <= 0 {
		return 0
	}
	return market.PercentChange(lo, hi)
}

// EdgeVariation is the percent change between the first and last close.
func EdgeVariation(candles []market.Candle) float64 {
	if len(candles) < 2 || candles[0].Close <= 0 {
		return 0
	}
	return market.PercentChange(candles[0].Close, candles[len(candles)-1].Close)
}
