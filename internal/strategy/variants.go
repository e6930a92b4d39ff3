package strategy

import (
	"time"

	"scalper/internal/market"
)

var (
	shortTiming = Timing{Early: 90 * time.Second, Late: 90 * time.Second}
	longTiming  = Timing{Early: 3 * time.Minute, Late: 3 * time.Minute}
)

// Variants returns every tuned selector. IDs read strat<n>-<interval
// minutes>-<cooldown minutes>.
func Variants() []*Variant {
	return []*Variant{
		{
			ID:             "strat1-15-30",
			Interval:       market.FifteenMinutes,
			Cooldown:       30 * time.Minute,
			Change24h:      Band{-3, 25},
			Timing:         shortTiming,
			Lookback:       16,
			Skip:           2,
			MaxVariation:   3,
			MaxEdge:        1,
			MinVolumeRatio: 2,
			Containment:    12,
			TrailingVolume: 16,
			Pattern:        Spike(Band{1.5, 20}, Band{-1, 1}),
		},
		{
			ID:             "strat2-15-60",
			Interval:       market.FifteenMinutes,
			Cooldown:       time.Hour,
			Change24h:      Band{-10, 30},
			Timing:         shortTiming,
			Lookback:       20,
			Skip:           3,
			MaxVariation:   4,
			MaxEdge:        1.5,
			MinVolumeRatio: 1.5,
			TrailingVolume: 16,
			Pattern:        Greens(Band{2, 25}, Band{0.5, 25}),
		},
		{
			ID:             "strat3-30-30",
			Interval:       market.ThirtyMinutes,
			Cooldown:       30 * time.Minute,
			Change24h:      Band{-3, 30},
			Timing:         shortTiming,
			Lookback:       24,
			Skip:           2,
			MaxVariation:   5,
			MaxEdge:        1.5,
			MinVolumeRatio: 2,
			Containment:    16,
			TrailingVolume: 12,
			Pattern:        Spike(Band{3, 30}, Band{-1.5, 1.5}),
		},
		{
			ID:             "strat4-30-60",
			Interval:       market.ThirtyMinutes,
			Cooldown:       time.Hour,
			Change24h:      Band{-10, 35},
			Timing:         shortTiming,
			Lookback:       20,
			Skip:           4,
			MaxVariation:   4,
			MaxEdge:        1,
			MinVolumeRatio: 1.1,
			TrailingVolume: 12,
			Pattern:        Greens(Band{1, 15}, Band{1, 15}, Band{1, 15}),
		},
		{
			ID:             "strat5-30-60",
			Interval:       market.ThirtyMinutes,
			Cooldown:       time.Hour,
			Change24h:      Band{-10, 20},
			Timing:         shortTiming,
			Lookback:       20,
			Skip:           3,
			MaxVariation:   4,
			MaxEdge:        1,
			MinVolumeRatio: 1.3,
			TrailingVolume: 12,
			Pattern:        Recovery(Band{2, 20}, Band{-6, -1.5}),
		},
		{
			ID:             "strat6-60-60",
			Interval:       market.OneHour,
			Cooldown:       time.Hour,
			Change24h:      Band{-3, 35},
			Timing:         longTiming,
			Lookback:       20,
			Skip:           3,
			MaxVariation:   5,
			MaxEdge:        1.5,
			MinVolumeRatio: 1.5,
			Containment:    10,
			TrailingVolume: 24,
			Pattern:        Greens(Band{2, 25}, Band{0, 2}),
		},
		{
			ID:             "strat7-60-60",
			Interval:       market.OneHour,
			Cooldown:       time.Hour,
			Change24h:      Band{-10, 35},
			Timing:         longTiming,
			Lookback:       16,
			Skip:           4,
			MaxVariation:   5,
			MaxEdge:        2,
			MinVolumeRatio: 1.1,
			TrailingVolume: 24,
			Pattern:        Greens(Band{1, 20}, Band{1, 20}, Band{1, 20}),
		},
		{
			ID:             "strat8-240-60",
			Interval:       market.FourHours,
			Cooldown:       time.Hour,
			Change24h:      Band{-3, 40},
			Timing:         longTiming,
			Lookback:       12,
			Skip:           2,
			MaxVariation:   8,
			MaxEdge:        3,
			MinVolumeRatio: 1.5,
			Containment:    8,
			TrailingVolume: 6,
			Pattern:        Spike(Band{4, 40}, Band{-2, 2}),
		},
		{
			ID:             "strat9-30-30",
			Interval:       market.ThirtyMinutes,
			Cooldown:       30 * time.Minute,
			Change24h:      Band{-3, 35},
			Timing:         shortTiming,
			Lookback:       20,
			Skip:           3,
			MaxVariation:   4,
			MaxEdge:        1,
			MinVolumeRatio: 1.2,
			TrailingVolume: 12,
			Pattern:        Greens(Band{2, 30}, Band{2, 30}),
		},
		{
			ID:             "strat10-15-30",
			Interval:       market.FifteenMinutes,
			Cooldown:       30 * time.Minute,
			Change24h:      Band{-3, 25},
			Timing:         shortTiming,
			Lookback:       16,
			Skip:           2,
			MaxVariation:   3,
			MaxEdge:        1,
			MinVolumeRatio: 1.8,
			TrailingVolume: 16,
			Pattern:        SpikeHolding(Band{2, 20}, Band{-1, 1}, Band{0.3, 10}),
		},
		{
			ID:             "strat11-60-30",
			Interval:       market.OneHour,
			Cooldown:       30 * time.Minute,
			Change24h:      Band{-10, 30},
			Timing:         longTiming,
			Lookback:       24,
			Skip:           2,
			MaxVariation:   6,
			MaxEdge:        2,
			MinVolumeRatio: 1.2,
			TrailingVolume: 24,
			Pattern:        Dominant(Band{2, 30}, 1.5),
		},
		{
			ID:             "strat12-120-60",
			Interval:       market.TwoHours,
			Cooldown:       time.Hour,
			Change24h:      Band{-3, 30},
			Timing:         longTiming,
			Lookback:       12,
			Skip:           3,
			MaxVariation:   6,
			MaxEdge:        2,
			MinVolumeRatio: 1.2,
			TrailingVolume: 12,
			Pattern:        Greens(Band{1.5, 20}, Band{1.5, 20}),
		},
		{
			ID:             "squeeze-60-60",
			Interval:       market.OneHour,
			Cooldown:       time.Hour,
			Change24h:      Band{-10, 30},
			Timing:         longTiming,
			Lookback:       20,
			Skip:           2,
			MinCandles:     42,
			TrailingVolume: 24,
			Pattern:        SqueezeRelease(market.DefaultSqueezeParams(), Band{0.5, 20}),
		},
		{
			ID:             "squeeze-240-60",
			Interval:       market.FourHours,
			Cooldown:       time.Hour,
			Change24h:      Band{-10, 40},
			Timing:         longTiming,
			Lookback:       20,
			Skip:           2,
			MinCandles:     42,
			TrailingVolume: 6,
			Pattern:        SqueezeRelease(market.DefaultSqueezeParams(), Band{1, 30}),
		},
	}
}
