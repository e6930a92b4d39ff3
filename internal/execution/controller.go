package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"scalper/internal/config"
	"scalper/internal/exchange"
	"scalper/internal/feed"
	"scalper/internal/market"
	"scalper/internal/risk"
	"scalper/internal/strategy"
)

// Selector picks the market to trade from a snapshot.
type Selector interface {
	Select(cooldowns strategy.Cooldowns, markets []*market.Market, strategyID string, validateTiming bool) (*strategy.Result, error)
}

// Source delivers market snapshots to subscribed handlers.
type Source interface {
	Subscribe(fn func([]*market.Market)) feed.Handle
	Unsubscribe(h feed.Handle) bool
}

type Option func(*Controller)

func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

func WithSource(s Source) Option {
	return func(c *Controller) { c.source = s }
}

// Controller runs one strategy on one account. Deliveries are handled one
// at a time and at most one trade is active per controller.
type Controller struct {
	id       string
	cfg      config.StrategyConfig
	gateway  exchange.Gateway
	selector Selector
	store    Store
	notifier Notifier
	source   Source
	clock    Clock

	cooldowns *risk.CooldownLedger
	risk      *risk.Manager

	mu           sync.Mutex
	ctx          context.Context
	account      Account
	running      bool
	handle       feed.Handle
	subscribed   bool
	activeMarket string
	state        State
	lastErr      error
}

func NewController(cfg config.StrategyConfig, account Account, gateway exchange.Gateway, selector Selector, store Store, opts ...Option) *Controller {
	c := &Controller{
		id:        cfg.Name + "@" + account.ID,
		cfg:       cfg,
		account:   account,
		gateway:   gateway,
		selector:  selector,
		store:     store,
		clock:     SystemClock,
		cooldowns: risk.NewCooldownLedger(),
		risk: risk.NewManager(risk.Limits{
			MaxInvestment:  cfg.MaxInvestment,
			AccountCap:     account.MaxInvestment,
			MinInvestment:  cfg.MinInvestment,
			AbortThreshold: cfg.AbortThreshold,
		}),
		ctx: context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state = c.newState()
	return c
}

func (c *Controller) ID() string { return c.id }

// Risk exposes the controller's breaker, e.g. to seed the previous profit.
func (c *Controller) Risk() *risk.Manager { return c.risk }

// Cooldowns exposes the controller's cooldown ledger.
func (c *Controller) Cooldowns() *risk.CooldownLedger { return c.cooldowns }

// Start arms the controller and subscribes it to market snapshots. Starting
// a controller stopped by the risk breaker clears the breaker.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return
	}
	if c.risk.Tripped() {
		slog.Warn("clearing tripped risk breaker", "controller", c.id)
		c.risk.Reset()
	}
	c.ctx = ctx
	c.running = true
	c.lastErr = nil
	if c.source != nil && !c.subscribed {
		c.handle = c.source.Subscribe(c.HandleMarkets)
		c.subscribed = true
	}
	slog.Info("controller started", "controller", c.id, "selector", c.cfg.Selector)
}

// Stop disarms the controller. A trade already in progress runs to its end.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked("stopped by operator")
}

func (c *Controller) stopLocked(reason string) {
	if !c.running {
		return
	}
	c.running = false
	if c.subscribed {
		c.source.Unsubscribe(c.handle)
		c.subscribed = false
	}
	slog.Info("controller stopped", "controller", c.id, "reason", reason)
}

// HandleMarkets runs one decision cycle on a market snapshot.
func (c *Controller) HandleMarkets(markets []*market.Market) {
	c.mu.Lock()
	if !c.running || c.activeMarket != "" {
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	c.state = c.newState()
	c.state.Phase = PhaseSelectingMarket
	c.mu.Unlock()

	err := c.cycle(ctx, markets)

	c.mu.Lock()
	defer c.mu.Unlock()
	traded := c.state.Finished
	if err != nil {
		c.lastErr = err
		c.state.Error = err.Error()
	}

	switch {
	case errors.Is(err, risk.ErrRiskBreach):
		slog.Error("risk breaker tripped", "controller", c.id, "error", err)
		c.stopLocked("risk breach")
	case errors.Is(err, strategy.ErrUnknownStrategy), errors.Is(err, ErrQuoteOrdersUnsupported):
		slog.Error("configuration error", "controller", c.id, "error", err)
	case err != nil:
		slog.Warn("decision cycle failed", "controller", c.id, "error", err)
	}

	if traded && c.running && !c.cfg.AutoRestart {
		c.stopLocked("auto-restart disabled")
	}
}

// position is the open holding of the current cycle.
type position struct {
	market *market.Market
	amount float64
	entry  float64
	stop   *exchange.Order

	// retrieved is what the stop order already returned to the wallet.
	retrieved float64
}

func (c *Controller) cycle(ctx context.Context, markets []*market.Market) error {
	sel, err := c.selector.Select(c.cooldowns, markets, c.cfg.Selector, c.cfg.ValidateTiming)
	if err != nil {
		c.setPhase(PhaseIdle)
		return fmt.Errorf("selecting market: %w", err)
	}
	if sel == nil {
		c.setPhase(PhaseIdle)
		return nil
	}

	m := sel.Market
	if !m.QuoteOrders {
		c.setPhase(PhaseIdle)
		return fmt.Errorf("%s: %w", m.Symbol, ErrQuoteOrdersUnsupported)
	}
	if sel.EarlyStart && sel.SleepFor > 0 {
		slog.Info("waiting for decision point", "controller", c.id, "market", m.Symbol, "sleep", sel.SleepFor)
		c.clock.Sleep(ctx, sel.SleepFor)
		if err := ctx.Err(); err != nil {
			c.setPhase(PhaseIdle)
			return err
		}
	}

	c.update(func(s *State) {
		s.Phase = PhaseFundingCheck
		s.Symbol = m.Symbol
		s.Origin = m.Origin
		s.Target = m.Target
		s.Interval = string(sel.Interval)
	})

	portfolio := risk.NewPortfolio(c.gateway, c.cfg.MaxAttempts, m.Origin)
	if err := portfolio.Refresh(ctx); err != nil {
		c.setPhase(PhaseIdle)
		return fmt.Errorf("funding check: %w", err)
	}
	balance := portfolio.Free(m.Origin)
	invest := c.risk.Size(balance)
	if invest == 0 {
		c.setPhase(PhaseIdle)
		return nil
	}

	c.mu.Lock()
	c.activeMarket = m.Symbol
	c.state.Phase = PhaseOpeningPosition
	c.state.InitialBalance = balance
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.activeMarket = ""
		c.mu.Unlock()
	}()

	buy, err := c.gateway.CreateMarketBuyOrder(ctx, m.Origin, m.Target, invest, true, c.cfg.MaxAttempts)
	if err != nil {
		c.setPhase(PhaseIdle)
		return fmt.Errorf("opening position: %w", err)
	}

	// The position must be unwound even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	p := &position{
		market: m,
		amount: FloorAmount(buy.Filled, m.AmountPrecision),
		entry:  buy.Average,
	}
	c.update(func(s *State) {
		s.Invested = buy.Cost()
		s.Amount = p.amount
		s.EntryPrice = p.entry
	})
	slog.Info("position opened",
		"controller", c.id,
		"market", m.Symbol,
		"invested", buy.Cost(),
		"amount", p.amount,
		"entry_price", p.entry,
	)
	c.recordPosition(ctx, p)
	c.notify(ctx, "initial")

	retrieved, err := c.trade(ctx, p)
	if err != nil {
		var abortErr error
		retrieved, abortErr = c.abort(ctx, p)
		if abortErr != nil {
			slog.Error("abort failed, position left open",
				"controller", c.id,
				"market", m.Symbol,
				"amount", p.amount,
				"error", abortErr,
			)
			c.update(func(s *State) {
				s.Phase = PhaseFinished
				s.FinishedAt = c.clock.Now()
				s.Error = errors.Join(err, abortErr).Error()
			})
			c.saveState(ctx)
			return errors.Join(err, abortErr)
		}
		c.update(func(s *State) { s.Error = err.Error() })
		return errors.Join(err, c.finish(ctx, p, retrieved))
	}
	return c.finish(ctx, p, retrieved)
}

// trade protects, monitors and closes the position.
func (c *Controller) trade(ctx context.Context, p *position) (float64, error) {
	c.setPhase(PhaseProtectingPosition)
	stop := p.entry * (1 + c.cfg.StopLossPercent/100)
	limit := stop * (1 - c.cfg.StopLimitOffsetPercent/100)
	order, err := c.gateway.CreateStopLimitOrder(ctx, p.market.Origin, p.market.Target, exchange.Sell, p.amount, stop, limit, c.cfg.MaxAttempts)
	if err != nil {
		return 0, fmt.Errorf("placing stop-limit order: %w", err)
	}
	p.stop = order
	c.update(func(s *State) {
		s.StopPrice = stop
		s.LimitPrice = limit
		s.OpenOrders = 1
	})

	if err := c.monitor(ctx, p); err != nil {
		return 0, err
	}
	return c.close(ctx, p)
}

// monitor polls until the stop order closes, the price crosses the stop or
// the monitoring window elapses.
func (c *Controller) monitor(ctx context.Context, p *position) error {
	c.setPhase(PhaseMonitoring)
	deadline := c.clock.Now().Add(c.cfg.MonitorWindow.Duration)
	for {
		closed, err := c.gateway.OrderIsClosed(ctx, p.stop, c.cfg.MaxAttempts)
		if err != nil {
			return fmt.Errorf("checking stop order: %w", err)
		}
		if closed {
			slog.Info("stop order closed", "controller", c.id, "market", p.market.Symbol)
			return nil
		}

		price, err := exchange.Retry(ctx, "GetUnitPrice", c.cfg.MaxAttempts, func(ctx context.Context) (float64, error) {
			return c.gateway.GetUnitPrice(ctx, p.market.Origin, p.market.Target)
		})
		if err != nil {
			return fmt.Errorf("getting price: %w", err)
		}
		c.observe(market.PercentChange(p.entry, price))

		if price <= p.stop.StopPrice {
			slog.Info("stop price crossed", "controller", c.id, "market", p.market.Symbol, "price", price)
			return nil
		}
		if !c.clock.Now().Before(deadline) {
			return nil
		}
		c.clock.Sleep(ctx, c.cfg.MonitorPoll.Duration)
	}
}

func (c *Controller) observe(variation float64) {
	c.update(func(s *State) {
		s.RunUp = max(s.RunUp, variation)
		s.DrawDown = min(s.DrawDown, variation)
	})
}

// close cancels the stop order and sells whatever it did not fill.
func (c *Controller) close(ctx context.Context, p *position) (float64, error) {
	c.setPhase(PhaseClosing)
	final, err := c.gateway.CancelOrder(ctx, p.stop, c.cfg.MaxAttempts)
	if err != nil {
		return 0, fmt.Errorf("canceling stop order: %w", err)
	}
	p.stop = nil
	c.update(func(s *State) { s.OpenOrders = 0 })

	p.retrieved = final.Cost()
	p.amount = FloorAmount(p.amount-final.Filled, p.market.AmountPrecision)
	if p.amount <= 0 {
		return p.retrieved, nil
	}

	sell, err := c.gateway.CreateMarketSellOrder(ctx, p.market.Origin, p.market.Target, p.amount, c.cfg.MaxAttempts)
	if err != nil {
		return 0, fmt.Errorf("selling position: %w", err)
	}
	p.amount = 0
	return p.retrieved + sell.Cost(), nil
}

// finish settles the cycle and applies the risk breaker.
func (c *Controller) finish(ctx context.Context, p *position, retrieved float64) error {
	now := c.clock.Now()
	c.update(func(s *State) {
		s.Retrieved = retrieved
		s.Profit = retrieved - s.Invested
		s.ProfitPercent = ProfitPercent(s.Invested, retrieved)
		s.Phase = PhaseFinished
		s.Finished = true
		s.FinishedAt = now
	})

	balances, err := c.gateway.GetBalance(ctx, []string{p.market.Origin}, c.cfg.MaxAttempts)
	if err != nil {
		slog.Warn("failed to read final balance", "controller", c.id, "error", err)
	} else {
		c.update(func(s *State) { s.FinalBalance = balances[p.market.Origin] })
	}

	c.cooldowns.Record(p.market.Symbol, c.cfg.Selector, now)
	c.clearPosition(ctx)

	state := c.snapshot()
	slog.Info("trade finished",
		"controller", c.id,
		"market", state.Symbol,
		"invested", state.Invested,
		"retrieved", state.Retrieved,
		"profit_percent", state.ProfitPercent,
		"run_up", state.RunUp,
		"draw_down", state.DrawDown,
	)

	breach := c.risk.RecordProfit(state.ProfitPercent)
	if breach != nil {
		c.update(func(s *State) {
			if s.Error != "" {
				s.Error += "; "
			}
			s.Error += breach.Error()
		})
	}
	c.saveState(ctx)
	c.notify(ctx, "final")
	return breach
}

func (c *Controller) recordPosition(ctx context.Context, p *position) {
	c.mu.Lock()
	c.account.Position = &Position{
		Origin:   p.market.Origin,
		Target:   p.market.Target,
		Amount:   p.amount,
		Strategy: c.cfg.Name,
		OpenedAt: c.clock.Now(),
	}
	account := c.account
	c.mu.Unlock()

	if err := c.store.UpdateAccount(ctx, account); err != nil {
		slog.Error("failed to persist position", "controller", c.id, "error", err)
	}
}

func (c *Controller) clearPosition(ctx context.Context) {
	c.mu.Lock()
	c.account.Position = nil
	account := c.account
	c.mu.Unlock()

	if err := c.store.UpdateAccount(ctx, account); err != nil {
		slog.Error("failed to clear position", "controller", c.id, "error", err)
	}
}

func (c *Controller) saveState(ctx context.Context) {
	if err := c.store.SaveState(ctx, c.snapshot()); err != nil {
		slog.Error("failed to save trading state", "controller", c.id, "error", err)
	}
}

func (c *Controller) notify(ctx context.Context, kind string) {
	if c.notifier == nil {
		return
	}
	c.mu.Lock()
	account, state := c.account, c.state
	c.mu.Unlock()

	var err error
	if kind == "initial" {
		err = c.notifier.SendInitialEmail(ctx, account, state)
	} else {
		err = c.notifier.SendFinalEmail(ctx, account, state)
	}
	if err != nil {
		slog.Warn("failed to send notification", "controller", c.id, "kind", kind, "error", err)
	}
}

func (c *Controller) newState() State {
	return State{
		ID:        uuid.NewString(),
		Account:   c.account.ID,
		Strategy:  c.cfg,
		Phase:     PhaseIdle,
		StartedAt: c.clock.Now(),
	}
}

func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.state)
}

func (c *Controller) setPhase(p Phase) {
	c.update(func(s *State) { s.Phase = p })
}

func (c *Controller) snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status is a point-in-time view of a controller.
type Status struct {
	ID             string               `json:"id"`
	Strategy       string               `json:"strategy"`
	Selector       string               `json:"selector"`
	Account        string               `json:"account"`
	Running        bool                 `json:"running"`
	Tripped        bool                 `json:"tripped"`
	ActiveMarket   string               `json:"active_market,omitempty"`
	PreviousProfit *float64             `json:"previous_profit,omitempty"`
	LastError      string               `json:"last_error,omitempty"`
	Cooldowns      map[string]time.Time `json:"cooldowns,omitempty"`
	State          State                `json:"state"`
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		ID:           c.id,
		Strategy:     c.cfg.Name,
		Selector:     c.cfg.Selector,
		Account:      c.account.ID,
		Running:      c.running,
		Tripped:      c.risk.Tripped(),
		ActiveMarket: c.activeMarket,
		Cooldowns:    c.cooldowns.Snapshot(c.cfg.Selector),
		State:        c.state,
	}
	if prev, ok := c.risk.PreviousProfit(); ok {
		st.PreviousProfit = &prev
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}
