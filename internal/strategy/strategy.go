// Package strategy holds the selectors: stateless rules deciding whether a
// market currently shows a tradeable pattern, and the engine that runs them.
package strategy

import (
	"errors"
	"time"

	"scalper/internal/market"
)

var (
	ErrUnknownStrategy     = errors.New("unknown strategy")
	ErrInsufficientHistory = errors.New("insufficient candle history")
	ErrMisaligned          = errors.New("candles and variations are not aligned")
)

// Cooldowns reports when a strategy last traded a market.
type Cooldowns interface {
	LastTrade(symbol, strategy string) (time.Time, bool)
}

// Result is produced only when a selector accepts a market.
type Result struct {
	Market   *market.Market
	Interval market.Interval
	Strategy string

	MaxVariation      float64
	EdgeVariation     float64
	VolumeRatio       float64
	C1MaxVarRatio     float64
	TrailingVolume    float64
	TrailingVolumeAvg float64

	// EarlyStart is set when the decision point has not been reached yet;
	// SleepFor is then the time left until it.
	EarlyStart bool
	SleepFor   time.Duration

	// WindowEnd is the number of candles the selector actually evaluated.
	WindowEnd int
}

// Band is an inclusive range.
type Band struct {
	Min, Max float64
}

func (b Band) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Window is the candle view a pattern inspects. The newest element is c0,
// the candle that closes at the decision point.
type Window struct {
	Candles    []market.Candle
	Variations []float64
}

func (w Window) Len() int { return len(w.Candles) }

// C returns candle ci, counting back from the newest.
func (w Window) C(i int) market.Candle { return w.Candles[len(w.Candles)-1-i] }

// V returns the variation of candle ci.
func (w Window) V(i int) float64 { return w.Variations[len(w.Variations)-1-i] }

// Closed returns the window without c0.
func (w Window) Closed() []market.Candle { return w.Candles[:len(w.Candles)-1] }
