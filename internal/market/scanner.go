package market

import (
	"context"
	"fmt"
	"log/slog"

	"scalper/internal/config"
)

// Source is the market-data half of the exchange gateway.
type Source interface {
	GetMarketsBy24hrVariation(ctx context.Context, minPercent float64) ([]*Market, error)
	FetchCandlesticks(ctx context.Context, markets []*Market, interval Interval, count int) error
}

// Scanner fetches markets and runs them through the feature pipeline.
type Scanner struct {
	source    Source
	feed      config.FeedConfig
	filter    config.FilterConfig
	intervals []Interval
}

func NewScanner(source Source, feed config.FeedConfig, filter config.FilterConfig) (*Scanner, error) {
	intervals := make([]Interval, 0, len(feed.Intervals))
	for _, s := range feed.Intervals {
		iv, err := ParseInterval(s)
		if err != nil {
			return nil, fmt.Errorf("feed intervals: %w", err)
		}
		if iv == BaseInterval {
			continue
		}
		intervals = append(intervals, iv)
	}
	return &Scanner{source: source, feed: feed, filter: filter, intervals: intervals}, nil
}

// Scan returns markets annotated with candles and variations for the base
// interval and every configured higher interval.
func (s *Scanner) Scan(ctx context.Context) ([]*Market, error) {
	markets, err := s.source.GetMarketsBy24hrVariation(ctx, s.feed.MinChange24h)
	if err != nil {
		return nil, fmt.Errorf("listing markets: %w", err)
	}
	listed := len(markets)

	if len(s.filter.Origins) > 0 {
		markets = FilterByOrigin(markets, s.filter.Origins)
	}
	markets = FilterBySymbols(markets, s.filter.Deny, s.filter.Allow)
	if s.filter.SkipLeveraged {
		markets = FilterLeveraged(markets)
	}
	markets = FilterByVolume(markets, s.filter.MinVolume)
	markets = FilterByPrecision(markets, s.filter.MinPrecision)
	if len(markets) == 0 {
		slog.Info("no markets left after filtering", "listed", listed)
		return nil, nil
	}

	if err := s.source.FetchCandlesticks(ctx, markets, BaseInterval, s.feed.BaseCandles); err != nil {
		return nil, fmt.Errorf("fetching candles: %w", err)
	}
	markets = FilterByCandleCount(markets, BaseInterval, s.filter.MinCandles)
	markets = FilterDead(markets)

	for _, iv := range s.intervals {
		if err := DeriveHigherInterval(markets, BaseInterval, iv); err != nil {
			return nil, err
		}
	}

	for _, iv := range append([]Interval{BaseInterval}, s.intervals...) {
		if err := SetPercentVariations(markets, iv); err != nil {
			slog.Warn("variations skipped for some markets", "interval", iv, "error", err)
		}
	}
	markets = keep(markets, func(m *Market) bool {
		for _, iv := range s.intervals {
			if !m.HasFeatures(iv) {
				return false
			}
		}
		return m.HasFeatures(BaseInterval)
	})

	slog.Info("markets scanned", "listed", listed, "featured", len(markets))
	return markets, nil
}

// Intervals returns the derived intervals the scanner produces.
func (s *Scanner) Intervals() []Interval {
	return s.intervals
}
