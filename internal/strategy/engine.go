package strategy

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"scalper/internal/market"
)

// Registry maps strategy identifiers to selector variants.
type Registry struct {
	variants map[string]*Variant
	ids      []string
}

func NewRegistry(variants ...*Variant) *Registry {
	r := &Registry{variants: make(map[string]*Variant, len(variants))}
	for _, v := range variants {
		if _, dup := r.variants[v.ID]; !dup {
			r.ids = append(r.ids, v.ID)
		}
		r.variants[v.ID] = v
	}
	return r
}

// DefaultRegistry holds every built-in variant.
func DefaultRegistry() *Registry {
	return NewRegistry(Variants()...)
}

func (r *Registry) Get(id string) (*Variant, error) {
	v, ok := r.variants[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, id)
	}
	return v, nil
}

// IDs returns registered identifiers in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}

// Engine evaluates a strategy over a market snapshot.
type Engine struct {
	registry *Registry
	now      func() time.Time
}

func NewEngine(registry *Registry) *Engine {
	return &Engine{registry: registry, now: time.Now}
}

// WithClock replaces the engine's time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) Registry() *Registry { return e.registry }

// Select returns the flattest newly actionable market for the strategy, or
// nil when none qualifies. Only an unknown strategy is an error.
func (e *Engine) Select(cooldowns Cooldowns, markets []*market.Market, strategyID string, validateTiming bool) (*Result, error) {
	v, err := e.registry.Get(strategyID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	var best *Result
	for _, m := range markets {
		r, err := e.Actionable(v, cooldowns, m, validateTiming, now)
		if err != nil {
			slog.Debug("selector skipped market", "strategy", v.ID, "market", m.Symbol, "error", err)
			continue
		}
		if r == nil {
			continue
		}
		if best == nil || r.MaxVariation < best.MaxVariation {
			best = r
		}
	}

	if best != nil {
		slog.Info("market selected",
			"strategy", v.ID,
			"market", best.Market.Symbol,
			"interval", best.Interval,
			"max_variation", best.MaxVariation,
			"edge_variation", best.EdgeVariation,
			"volume_ratio", best.VolumeRatio,
			"early_start", best.EarlyStart,
		)
	}
	return best, nil
}

// Actionable runs the double evaluation: the market must be eligible on the
// live window and not on the window ending one candle earlier, so a signal
// already actionable at the previous decision point does not fire again.
func (e *Engine) Actionable(v *Variant, cooldowns Cooldowns, m *market.Market, validateTiming bool, now time.Time) (*Result, error) {
	if !m.HasFeatures(v.Interval) {
		return nil, nil
	}
	candles := m.Candles[v.Interval]
	variations := m.Variations[v.Interval]

	live, err := v.Evaluate(cooldowns, m, candles, variations, validateTiming, now)
	if err != nil || live == nil {
		return nil, err
	}

	end := live.WindowEnd - 1
	prev, err := v.Evaluate(cooldowns, m, candles[:end], variations[:end], false, now)
	if err != nil && !errors.Is(err, ErrInsufficientHistory) {
		return nil, err
	}
	if prev != nil {
		return nil, nil
	}
	return live, nil
}
