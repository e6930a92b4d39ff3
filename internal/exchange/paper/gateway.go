package paper

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"scalper/internal/exchange"
	"scalper/internal/market"
)

// Gateway is one account's view of the paper exchange.
type Gateway struct {
	ex      *Exchange
	account string
}

var _ exchange.Gateway = (*Gateway)(nil)
var _ exchange.Dialer = (*Exchange)(nil)

func (g *Gateway) GetMarketsBy24hrVariation(_ context.Context, minPercent float64) ([]*market.Market, error) {
	if err := g.ex.injectedFailure("GetMarketsBy24hrVariation"); err != nil {
		return nil, err
	}
	e := g.ex
	e.mu.Lock()
	defer e.mu.Unlock()
	e.walk()

	var out []*market.Market
	for _, pm := range e.markets {
		s := pm.spec
		change := s.Change24h + market.PercentChange(s.Price, pm.price)
		if change < minPercent {
			continue
		}
		m := market.NewMarket(s.Symbol(), s.Origin, s.Target)
		m.Price = pm.price
		m.PercentChange24h = change
		m.OriginVolume = s.Volume
		m.AmountPrecision = s.Precision
		m.QuoteOrders = s.QuoteOrders
		out = append(out, m)
	}
	return out, nil
}

func (g *Gateway) FetchCandlesticks(_ context.Context, markets []*market.Market, interval market.Interval, count int) error {
	d := interval.Duration()
	if d == 0 {
		return fmt.Errorf("%w: %s", market.ErrUnsupportedInterval, interval)
	}
	if err := g.ex.injectedFailure("FetchCandlesticks"); err != nil {
		return err
	}
	e := g.ex
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	for _, m := range markets {
		pm, ok := e.markets[m.Symbol]
		if !ok {
			return fmt.Errorf("%w: %s", exchange.ErrUnknownMarket, m.Symbol)
		}
		m.Candles[interval] = synthesize(pm, interval, count, now)
	}
	return nil
}

// synthesize builds a random-walk history whose newest close is the live price.
func synthesize(pm *paperMarket, interval market.Interval, count int, now time.Time) []market.Candle {
	if count <= 0 {
		return nil
	}
	d := interval.Duration()
	rng := rand.New(rand.NewSource(seedFor(pm.spec.Symbol(), interval) + now.Truncate(d).Unix()/int64(d.Seconds())))
	perCandle := pm.spec.Volume / float64(24*time.Hour/d)

	candles := make([]market.Candle, count)
	price := 1.0
	end := now.Truncate(d)
	for i := range candles {
		open := price
		price *= 1 + (rng.Float64()-0.5)*0.01
		high := max(open, price) * (1 + rng.Float64()*0.003)
		low := min(open, price) * (1 - rng.Float64()*0.003)
		candles[i] = market.Candle{
			Time:   end.Add(-time.Duration(count-1-i) * d),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  price,
			Volume: perCandle * (0.5 + rng.Float64()),
		}
	}

	scale := pm.price / price
	for i := range candles {
		candles[i].Open *= scale
		candles[i].High *= scale
		candles[i].Low *= scale
		candles[i].Close *= scale
	}
	candles[count-1].FetchedAt = now
	return candles
}

func (g *Gateway) CreateMarketBuyOrder(ctx context.Context, origin, target string, amount float64, isQuoteAmount bool, maxAttempts int) (*exchange.Order, error) {
	return exchange.Retry(ctx, "CreateMarketBuyOrder", maxAttempts, func(context.Context) (*exchange.Order, error) {
		if err := g.ex.injectedFailure("CreateMarketBuyOrder"); err != nil {
			return nil, err
		}
		e := g.ex
		e.mu.Lock()
		defer e.mu.Unlock()

		pm, err := e.lookup(origin, target)
		if err != nil {
			return nil, err
		}
		if isQuoteAmount && !pm.spec.QuoteOrders {
			return nil, fmt.Errorf("%w: %s", exchange.ErrQuoteOrders, pm.spec.Symbol())
		}
		cost, qty := amount, amount/pm.price
		if !isQuoteAmount {
			cost, qty = amount*pm.price, amount
		}
		w := e.wallet(g.account)
		if w[origin] < cost {
			return nil, fmt.Errorf("%w: have %f %s, need %f", exchange.ErrInsufficientBalance, w[origin], origin, cost)
		}
		w[origin] -= cost
		filled := qty * (1 - e.fee)
		w[target] += filled

		return e.newOrder(g.account, exchange.Order{
			Type:    exchange.OrderMarket,
			Side:    exchange.Buy,
			Status:  exchange.StatusClosed,
			Amount:  qty,
			Filled:  filled,
			Average: cost / filled,
			Origin:  origin,
			Target:  target,
		}), nil
	})
}

func (g *Gateway) CreateStopLimitOrder(ctx context.Context, origin, target string, side exchange.Side, amount, stopPrice, limitPrice float64, maxAttempts int) (*exchange.Order, error) {
	return exchange.Retry(ctx, "CreateStopLimitOrder", maxAttempts, func(context.Context) (*exchange.Order, error) {
		if side != exchange.Sell {
			return nil, fmt.Errorf("paper: only sell stop-limit orders are supported")
		}
		if err := g.ex.injectedFailure("CreateStopLimitOrder"); err != nil {
			return nil, err
		}
		e := g.ex
		e.mu.Lock()
		defer e.mu.Unlock()

		if _, err := e.lookup(origin, target); err != nil {
			return nil, err
		}
		w := e.wallet(g.account)
		if w[target] < amount {
			return nil, fmt.Errorf("%w: have %f %s, need %f", exchange.ErrInsufficientBalance, w[target], target, amount)
		}
		w[target] -= amount

		o := e.newOrder(g.account, exchange.Order{
			Type:       exchange.OrderStopLimit,
			Side:       side,
			Status:     exchange.StatusOpen,
			Amount:     amount,
			StopPrice:  stopPrice,
			LimitPrice: limitPrice,
			Origin:     origin,
			Target:     target,
		})
		e.triggerStops(target + origin)
		return e.snapshot(o.ID), nil
	})
}

func (g *Gateway) CreateMarketSellOrder(ctx context.Context, origin, target string, amount float64, maxAttempts int) (*exchange.Order, error) {
	return exchange.Retry(ctx, "CreateMarketSellOrder", maxAttempts, func(context.Context) (*exchange.Order, error) {
		if err := g.ex.injectedFailure("CreateMarketSellOrder"); err != nil {
			return nil, err
		}
		e := g.ex
		e.mu.Lock()
		defer e.mu.Unlock()

		pm, err := e.lookup(origin, target)
		if err != nil {
			return nil, err
		}
		w := e.wallet(g.account)
		if w[target] < amount {
			return nil, fmt.Errorf("%w: have %f %s, need %f", exchange.ErrInsufficientBalance, w[target], target, amount)
		}
		w[target] -= amount
		w[origin] += amount * pm.price * (1 - e.fee)

		return e.newOrder(g.account, exchange.Order{
			Type:    exchange.OrderMarket,
			Side:    exchange.Sell,
			Status:  exchange.StatusClosed,
			Amount:  amount,
			Filled:  amount,
			Average: pm.price * (1 - e.fee),
			Origin:  origin,
			Target:  target,
		}), nil
	})
}

func (g *Gateway) CancelOrder(ctx context.Context, order *exchange.Order, maxAttempts int) (*exchange.Order, error) {
	return exchange.Retry(ctx, "CancelOrder", maxAttempts, func(context.Context) (*exchange.Order, error) {
		if err := g.ex.injectedFailure("CancelOrder"); err != nil {
			return nil, err
		}
		e := g.ex
		e.mu.Lock()
		defer e.mu.Unlock()

		o, ok := e.orders[order.ID]
		if !ok || e.owners[order.ID] != g.account {
			return nil, fmt.Errorf("%w: %s", exchange.ErrOrderNotFound, order.ID)
		}
		if o.Status == exchange.StatusOpen {
			o.Status = exchange.StatusCanceled
			e.wallet(g.account)[o.Target] += o.Amount - o.Filled
		}
		return e.snapshot(o.ID), nil
	})
}

func (g *Gateway) OrderIsClosed(ctx context.Context, order *exchange.Order, maxAttempts int) (bool, error) {
	return exchange.Retry(ctx, "OrderIsClosed", maxAttempts, func(context.Context) (bool, error) {
		if err := g.ex.injectedFailure("OrderIsClosed"); err != nil {
			return false, err
		}
		e := g.ex
		e.mu.Lock()
		defer e.mu.Unlock()

		e.walk()
		o, ok := e.orders[order.ID]
		if !ok || e.owners[order.ID] != g.account {
			return false, fmt.Errorf("%w: %s", exchange.ErrOrderNotFound, order.ID)
		}
		return o.Status == exchange.StatusClosed, nil
	})
}

func (g *Gateway) GetUnitPrice(_ context.Context, origin, target string) (float64, error) {
	if err := g.ex.injectedFailure("GetUnitPrice"); err != nil {
		return 0, err
	}
	e := g.ex
	e.mu.Lock()
	defer e.mu.Unlock()

	e.walk()
	pm, err := e.lookup(origin, target)
	if err != nil {
		return 0, err
	}
	return pm.price, nil
}

func (g *Gateway) GetBalance(ctx context.Context, assets []string, maxAttempts int) (map[string]float64, error) {
	return exchange.Retry(ctx, "GetBalance", maxAttempts, func(context.Context) (map[string]float64, error) {
		if err := g.ex.injectedFailure("GetBalance"); err != nil {
			return nil, err
		}
		e := g.ex
		e.mu.Lock()
		defer e.mu.Unlock()

		w := e.wallet(g.account)
		out := make(map[string]float64, len(assets))
		for _, a := range assets {
			out[a] = w[a]
		}
		return out, nil
	})
}

func (e *Exchange) snapshot(id string) *exchange.Order {
	cp := *e.orders[id]
	return &cp
}
