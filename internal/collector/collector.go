package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"scalper/internal/market"
)

// Store is where collected market data goes.
type Store interface {
	SaveCandles(ctx context.Context, symbol string, interval market.Interval, candles []market.Candle) (int, error)
	SaveSnapshot(ctx context.Context, m *market.Market, at time.Time) error
}

// Collector stores base-interval candles and live snapshots for backtesting.
type Collector struct {
	store Store
	now   func() time.Time
}

func NewCollector(store Store) *Collector {
	return &Collector{store: store, now: time.Now}
}

// Collect stores the closed base candles and a snapshot of every market.
// The newest candle is still forming and is skipped.
func (c *Collector) Collect(ctx context.Context, markets []*market.Market) error {
	if len(markets) == 0 {
		return nil
	}

	now := c.now()
	stored, snapshotted, failed := 0, 0, 0
	for _, m := range markets {
		candles := m.Candles[market.BaseInterval]
		if len(candles) > 1 {
			n, err := c.store.SaveCandles(ctx, m.Symbol, market.BaseInterval, candles[:len(candles)-1])
			if err != nil {
				slog.Warn("failed to store candles", "market", m.Symbol, "error", err)
				failed++
				continue
			}
			stored += n
		}

		if err := c.store.SaveSnapshot(ctx, m, now); err != nil {
			slog.Warn("failed to snapshot market", "market", m.Symbol, "error", err)
			failed++
			continue
		}
		snapshotted++
	}

	slog.Info("collection complete", "candles_stored", stored, "snapshots_taken", snapshotted, "failed", failed)
	if failed == len(markets) {
		return fmt.Errorf("collecting %d markets: every market failed", len(markets))
	}
	return nil
}
