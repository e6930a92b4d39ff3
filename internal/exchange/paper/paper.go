// Package paper implements an in-memory exchange used for dry runs and tests.
package paper

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"scalper/internal/exchange"
	"scalper/internal/market"
)

// MarketSpec seeds one simulated market.
type MarketSpec struct {
	Origin      string
	Target      string
	Price       float64
	Change24h   float64
	Volume      float64
	Precision   int
	QuoteOrders bool
}

func (s MarketSpec) Symbol() string { return s.Target + s.Origin }

// DefaultMarkets returns a small USDT-quoted universe.
func DefaultMarkets() []MarketSpec {
	return []MarketSpec{
		{Origin: "USDT", Target: "BTC", Price: 104500, Change24h: 1.8, Volume: 9e8, Precision: 5, QuoteOrders: true},
		{Origin: "USDT", Target: "ETH", Price: 3900, Change24h: 2.4, Volume: 4e8, Precision: 4, QuoteOrders: true},
		{Origin: "USDT", Target: "SOL", Price: 220, Change24h: 5.1, Volume: 2e8, Precision: 3, QuoteOrders: true},
		{Origin: "USDT", Target: "ADA", Price: 1.05, Change24h: -1.2, Volume: 6e7, Precision: 1, QuoteOrders: true},
		{Origin: "USDT", Target: "LINK", Price: 28, Change24h: 7.9, Volume: 3e7, Precision: 2, QuoteOrders: true},
		{Origin: "USDT", Target: "DOGE", Price: 0.4, Change24h: 11.3, Volume: 9e7, Precision: 0, QuoteOrders: true},
		{Origin: "USDT", Target: "BTCUP", Price: 42, Change24h: 4.4, Volume: 1e6, Precision: 2, QuoteOrders: true},
		{Origin: "BTC", Target: "ETH", Price: 0.0373, Change24h: 0.6, Volume: 800, Precision: 4, QuoteOrders: false},
	}
}

type paperMarket struct {
	spec  MarketSpec
	price float64
}

// Exchange is the shared simulated venue. Per-account views are handed out
// by ForAccount.
type Exchange struct {
	mu         sync.Mutex
	rng        *rand.Rand
	now        func() time.Time
	fee        float64
	volatility float64
	lastWalk   time.Time

	markets  map[string]*paperMarket
	wallets  map[string]map[string]float64
	orders   map[string]*exchange.Order
	owners   map[string]string
	seq      int
	failures map[string]int
}

type Option func(*Exchange)

// WithFee sets the taker fee as a fraction, 0.001 being 0.1%.
func WithFee(fee float64) Option {
	return func(e *Exchange) { e.fee = fee }
}

// WithVolatility sets the per-second random walk amplitude. Zero freezes prices.
func WithVolatility(v float64) Option {
	return func(e *Exchange) { e.volatility = v }
}

func WithClock(now func() time.Time) Option {
	return func(e *Exchange) { e.now = now }
}

func New(seed int64, specs []MarketSpec, opts ...Option) *Exchange {
	e := &Exchange{
		rng:        rand.New(rand.NewSource(seed)),
		now:        time.Now,
		fee:        0.001,
		volatility: 0.004,
		markets:    make(map[string]*paperMarket),
		wallets:    make(map[string]map[string]float64),
		orders:     make(map[string]*exchange.Order),
		owners:     make(map[string]string),
		failures:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, s := range specs {
		e.markets[s.Symbol()] = &paperMarket{spec: s, price: s.Price}
	}
	e.lastWalk = e.now()
	return e
}

// Fund credits an asset to an account wallet.
func (e *Exchange) Fund(account, asset string, amount float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.wallet(account)[asset] += amount
}

// SetPrice moves a market and triggers any stop orders it crosses.
func (e *Exchange) SetPrice(symbol string, price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if m, ok := e.markets[symbol]; ok {
		m.price = price
		e.triggerStops(symbol)
	}
}

// FailNext makes the next n calls of op fail, op being the method name such
// as "CreateMarketSellOrder".
func (e *Exchange) FailNext(op string, n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[op] = n
}

// Balance returns the free balance of an asset.
func (e *Exchange) Balance(account, asset string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wallet(account)[asset]
}

func (e *Exchange) ForAccount(accountID string) (exchange.Gateway, error) {
	if accountID == "" {
		return nil, fmt.Errorf("empty account id")
	}
	return &Gateway{ex: e, account: accountID}, nil
}

func (e *Exchange) wallet(account string) map[string]float64 {
	w, ok := e.wallets[account]
	if !ok {
		w = make(map[string]float64)
		e.wallets[account] = w
	}
	return w
}

func (e *Exchange) injectedFailure(op string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failures[op] > 0 {
		e.failures[op]--
		return fmt.Errorf("paper: injected %s failure", op)
	}
	return nil
}

// walk advances prices by a random step per elapsed second. Caller holds mu.
func (e *Exchange) walk() {
	now := e.now()
	steps := int(now.Sub(e.lastWalk) / time.Second)
	if e.volatility == 0 || steps < 1 {
		return
	}
	e.lastWalk = now
	steps = min(steps, 60)

	symbols := make([]string, 0, len(e.markets))
	for s := range e.markets {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	for _, s := range symbols {
		m := e.markets[s]
		for i := 0; i < steps; i++ {
			m.price *= 1 + (e.rng.Float64()-0.5)*e.volatility
		}
		e.triggerStops(s)
	}
}

// triggerStops fills open stop-limit sells whose stop was crossed. Caller holds mu.
func (e *Exchange) triggerStops(symbol string) {
	m := e.markets[symbol]
	for id, o := range e.orders {
		if o.Status != exchange.StatusOpen || o.Type != exchange.OrderStopLimit {
			continue
		}
		if o.Target+o.Origin != symbol || m.price > o.StopPrice || m.price < o.LimitPrice {
			continue
		}
		o.Status = exchange.StatusClosed
		o.Filled = o.Amount
		o.Average = o.LimitPrice * (1 - e.fee)
		e.wallet(e.owners[id])[o.Origin] += o.Cost()
		slog.Debug("paper stop order filled", "order", id, "symbol", symbol, "price", m.price)
	}
}

func (e *Exchange) newOrder(account string, o exchange.Order) *exchange.Order {
	e.seq++
	o.ID = fmt.Sprintf("paper-%d", e.seq)
	o.ExternalID = uuid.NewString()
	o.CreatedAt = e.now()
	e.orders[o.ID] = &o
	e.owners[o.ID] = account
	cp := o
	return &cp
}

func (e *Exchange) lookup(origin, target string) (*paperMarket, error) {
	m, ok := e.markets[target+origin]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", exchange.ErrUnknownMarket, target, origin)
	}
	return m, nil
}

// seedFor gives every symbol a stable candle history independent of call order.
func seedFor(symbol string, interval market.Interval) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	h.Write([]byte(interval))
	return int64(h.Sum64() & math.MaxInt64)
}
