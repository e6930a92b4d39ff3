package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"scalper/internal/exchange"
	"scalper/internal/market"
)

const (
	reductionSteps = 5
	reductionStep  = 0.001
)

// abort unwinds the position after a failure: the stop order is canceled
// and whatever is still held is sold. It returns the origin amount got back.
func (c *Controller) abort(ctx context.Context, p *position) (float64, error) {
	c.setPhase(PhaseAborting)
	slog.Warn("aborting trade", "controller", c.id, "market", p.market.Symbol, "amount", p.amount)

	var errs []error
	if p.stop != nil {
		final, err := c.gateway.CancelOrder(ctx, p.stop, c.cfg.MaxAttempts)
		if err != nil {
			errs = append(errs, fmt.Errorf("canceling stop order: %w", err))
		} else {
			p.stop = nil
			p.retrieved += final.Cost()
			p.amount = FloorAmount(p.amount-final.Filled, p.market.AmountPrecision)
			c.update(func(s *State) { s.OpenOrders = 0 })
		}
	}

	if p.amount > 0 {
		sell, err := Liquidate(ctx, c.gateway, p.market, p.amount, c.cfg.MaxAttempts)
		if err != nil {
			errs = append(errs, err)
			return p.retrieved, errors.Join(errs...)
		}
		p.amount = 0
		p.retrieved += sell.Cost()
	}
	return p.retrieved, errors.Join(errs...)
}

// Liquidate market-sells amount of the market's target asset. When the full
// amount is rejected it retries with amounts reduced 0.1% per step, floored
// to the market's precision, to absorb fee and rounding mismatches.
func Liquidate(ctx context.Context, gw exchange.Gateway, m *market.Market, amount float64, maxAttempts int) (*exchange.Order, error) {
	var errs []error
	for step := 0; step <= reductionSteps; step++ {
		qty := reduce(amount, step, m.AmountPrecision)
		if qty <= 0 {
			break
		}
		order, err := gw.CreateMarketSellOrder(ctx, m.Origin, m.Target, qty, maxAttempts)
		if err == nil {
			if step > 0 {
				slog.Info("liquidated reduced amount", "market", m.Symbol, "amount", qty, "step", step)
			}
			return order, nil
		}
		errs = append(errs, fmt.Errorf("selling %v %s: %w", qty, m.Target, err))
	}
	return nil, fmt.Errorf("liquidating %s: %w", m.Symbol, errors.Join(errs...))
}

func reduce(amount float64, step, precision int) float64 {
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(reductionStep).Mul(decimal.NewFromInt(int64(step))))
	return decimal.NewFromFloat(amount).Mul(factor).RoundDown(int32(precision)).InexactFloat64()
}

// FloorAmount truncates amount to precision decimal places.
func FloorAmount(amount float64, precision int) float64 {
	return decimal.NewFromFloat(amount).RoundDown(int32(precision)).InexactFloat64()
}

// ProfitPercent is the percent gained on invested, rounded to two places.
func ProfitPercent(invested, retrieved float64) float64 {
	if invested <= 0 {
		return 0
	}
	inv := decimal.NewFromFloat(invested)
	return decimal.NewFromFloat(retrieved).Sub(inv).Div(inv).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}
