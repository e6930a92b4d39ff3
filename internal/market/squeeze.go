package market

import "math"

// SqueezeParams configures the Bollinger/Keltner squeeze momentum indicator.
type SqueezeParams struct {
	Length   int
	Mult     float64
	LengthKC int
	MultKC   float64
}

func DefaultSqueezeParams() SqueezeParams {
	return SqueezeParams{Length: 20, Mult: 2, LengthKC: 20, MultKC: 1.5}
}

// Squeeze bar colors.
const (
	ColorLime   = "lime"
	ColorGreen  = "green"
	ColorRed    = "red"
	ColorMaroon = "maroon"
)

// SqueezeBar is the indicator output for one candle. Value and Color are only
// meaningful when Valid is set; On and Off only when Banded is set.
type SqueezeBar struct {
	Value  float64
	Valid  bool
	Color  string
	Banded bool
	On     bool
	Off    bool
}

// Squeeze computes the squeeze momentum indicator over closed prices.
// The squeeze is on while the Bollinger bands sit inside the Keltner
// channel and off once they expand past it.
func Squeeze(candles []Candle, p SqueezeParams) []SqueezeBar {
	n := len(candles)
	bars := make([]SqueezeBar, n)
	if n == 0 || p.Length <= 0 || p.LengthKC <= 0 {
		return bars
	}

	closes := make([]float64, n)
	ranges := make([]float64, n)
	hl2 := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		ranges[i] = c.High - c.Low
		hl2[i] = (c.High + c.Low) / 2
	}

	raw := make([]float64, n)
	for i := range candles {
		if i >= p.Length-1 && i >= p.LengthKC-1 {
			basis, dev := meanStd(closes[i-p.Length+1 : i+1])
			upperBB, lowerBB := basis+p.Mult*dev, basis-p.Mult*dev

			kcWin := i - p.LengthKC + 1
			ma := mean(closes[kcWin : i+1])
			rangeMA := mean(ranges[kcWin : i+1])
			upperKC, lowerKC := ma+rangeMA*p.MultKC, ma-rangeMA*p.MultKC

			bars[i].Banded = true
			bars[i].On = lowerBB > lowerKC && upperBB < upperKC
			bars[i].Off = lowerBB < lowerKC && upperBB > upperKC
		}
		if i >= p.LengthKC-1 {
			from := i - p.LengthKC + 1
			highest := math.Inf(-1)
			lowest := math.Inf(1)
			for j := from; j <= i; j++ {
				highest = max(highest, hl2[j])
				lowest = min(lowest, candles[j].Low)
			}
			mid := (highest + lowest) / 2
			raw[i] = closes[i] - (mid+mean(hl2[from:i+1]))/2
		}
		if i >= 2*p.LengthKC-2 {
			bars[i].Value = linregEnd(raw[i-p.LengthKC+1 : i+1])
			bars[i].Valid = true
		}
	}

	colorize(bars)
	return bars
}

// SqueezeReleased reports a fresh squeeze release with positive momentum on
// the newest bar, the long entry condition of the indicator.
func SqueezeReleased(bars []SqueezeBar) bool {
	n := len(bars)
	if n < 2 {
		return false
	}
	prev, last := bars[n-2], bars[n-1]
	if !prev.Banded || !last.Banded || !last.Valid {
		return false
	}
	return !prev.Off && last.Off && last.Value > 0
}

func colorize(bars []SqueezeBar) {
	first := true
	var prev float64
	for i := range bars {
		if !bars[i].Valid {
			continue
		}
		v := bars[i].Value
		switch {
		case first && v >= 0:
			bars[i].Color = ColorLime
		case first:
			bars[i].Color = ColorRed
		case v >= 0 && v > prev:
			bars[i].Color = ColorLime
		case v >= 0:
			bars[i].Color = ColorGreen
		case v < prev:
			bars[i].Color = ColorRed
		default:
			bars[i].Color = ColorMaroon
		}
		first = false
		prev = v
	}
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// meanStd returns the mean and population standard deviation.
func meanStd(xs []float64) (float64, float64) {
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return m, math.Sqrt(ss / float64(len(xs)))
}

// linregEnd fits y = a*x + b over x = 0..n-1 and returns the fitted value at
// the last x.
func linregEnd(ys []float64) float64 {
	n := float64(len(ys))
	var sx, sy, sxy, sxx float64
	for i, y := range ys {
		x := float64(i)
		sx += x
		sy += y
		sxy += x * y
		sxx += x * x
	}
	denom := n*sxx - sx*sx
	if denom == 0 {
		return sy / n
	}
	slope := (n*sxy - sx*sy) / denom
	intercept := (sy - slope*sx) / n
	return slope*(n-1) + intercept
}
