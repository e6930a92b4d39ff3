package strategy

import (
	"math"

	"scalper/internal/market"
)

// Greens accepts when every listed candle's variation sits in its band,
// bands[0] applying to c1, bands[1] to c2 and so on.
func Greens(bands ...Band) Pattern {
	return func(w Window, _ *Result) bool {
		for i, b := range bands {
			if !b.Contains(w.V(i + 1)) {
				return false
			}
		}
		return true
	}
}

// Spike accepts a single strong c1 after a quiet c2.
func Spike(c1, c2 Band) Pattern {
	return Greens(c1, c2)
}

// SpikeHolding is Spike with the live candle c0 still inside live.
func SpikeHolding(c1, c2, live Band) Pattern {
	spike := Spike(c1, c2)
	return func(w Window, r *Result) bool {
		return spike(w, r) && live.Contains(w.V(0))
	}
}

// Recovery accepts a red c2 fully recovered by a green c1.
func Recovery(c1, c2 Band) Pattern {
	return func(w Window, _ *Result) bool {
		v1, v2 := w.V(1), w.V(2)
		return c1.Contains(v1) && c2.Contains(v2) && v1 > math.Abs(v2)
	}
}

// Dominant accepts a c1 in band whose move is at least ratio times the
// flatness window's swing.
func Dominant(c1 Band, ratio float64) Pattern {
	return func(w Window, r *Result) bool {
		return c1.Contains(w.V(1)) && r.C1MaxVarRatio >= ratio
	}
}

// SqueezeRelease accepts a squeeze release on the closed candles with c1 in band.
func SqueezeRelease(params market.SqueezeParams, c1 Band) Pattern {
	return func(w Window, _ *Result) bool {
		if !c1.Contains(w.V(1)) {
			return false
		}
		return market.SqueezeReleased(market.Squeeze(w.Closed(), params))
	}
}
