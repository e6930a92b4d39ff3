package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scalper/internal/api"
	"scalper/internal/backtest"
	"scalper/internal/collector"
	"scalper/internal/config"
	"scalper/internal/db"
	"scalper/internal/exchange/paper"
	"scalper/internal/execution"
	"scalper/internal/feed"
	"scalper/internal/market"
	"scalper/internal/notify"
	"scalper/internal/performance"
	"scalper/internal/recovery"
	"scalper/internal/scheduler"
	"scalper/internal/strategy"
)

// historyWindow is how far back persisted trades seed cooldowns and the
// risk breaker on startup.
const historyWindow = 7 * 24 * time.Hour

func main() {
	// Parse CLI flags.
	backtestMode := flag.Bool("backtest", false, "Run in backtest mode against collected candles")
	backtestFrom := flag.String("from", "", "Backtest start date (YYYY-MM-DD)")
	backtestTo := flag.String("to", "", "Backtest end date (YYYY-MM-DD)")
	backtestFee := flag.Float64("fee", 0.001, "Taker fee per side for backtest simulation")
	flag.Parse()

	// Set up structured logging.
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))

	slog.Info("scalper starting")

	// Load configuration.
	configPath := "config.toml"
	if p := os.Getenv("SCALPER_CONFIG_PATH"); p != "" {
		configPath = p
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := level.UnmarshalText([]byte(cfg.General.LogLevel)); err != nil {
		slog.Warn("invalid log level, using info", "level", cfg.General.LogLevel)
	}

	// Initialize database.
	database, err := db.Open(cfg.General.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	store := db.NewStore(database)
	slog.Info("database initialized", "path", cfg.General.DBPath)

	registry := strategy.DefaultRegistry()
	var enabled []config.StrategyConfig
	for _, s := range cfg.Strategies {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	slog.Info("strategies configured", "enabled", len(enabled), "selectors", len(registry.IDs()))

	// Graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Backtest mode.
	if *backtestMode {
		runner := backtest.NewRunner(store, registry, enabled, backtest.Options{
			Window:  cfg.Feed.BaseCandles,
			Fee:     *backtestFee,
			Origins: cfg.Filter.Origins,
		})
		if _, err := runner.Run(ctx, *backtestFrom, *backtestTo); err != nil {
			slog.Error("backtest failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, store, registry, enabled); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("scalper error", "error", err)
		os.Exit(1)
	}
	slog.Info("scalper stopped")
}

func run(ctx context.Context, cfg *config.Config, store *db.Store, registry *strategy.Registry, strategies []config.StrategyConfig) error {
	if cfg.Exchange.Mode != "paper" {
		return fmt.Errorf("unsupported exchange mode %q", cfg.Exchange.Mode)
	}
	ex := paper.New(cfg.Exchange.PaperSeed, paper.DefaultMarkets())
	slog.Info("paper exchange initialized", "seed", cfg.Exchange.PaperSeed)

	if err := recoverPositions(ctx, cfg, store, ex); err != nil {
		return fmt.Errorf("startup recovery failed, trading not resumed: %w", err)
	}

	accounts, err := store.GetAllAccounts(ctx)
	if err != nil {
		return fmt.Errorf("loading accounts: %w", err)
	}

	broadcaster := feed.New[[]*market.Market]()
	defer broadcaster.Close()

	history, err := store.ListStates(ctx, time.Now().Add(-historyWindow))
	if err != nil {
		return fmt.Errorf("loading trade history: %w", err)
	}

	engine := strategy.NewEngine(registry)
	mailer := notify.NewMailer(cfg.Notify)
	if cfg.Notify.Enabled && !mailer.Configured() {
		slog.Warn("notifications enabled but SMTP is not configured")
	}

	byID := make(map[string]execution.Account, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}

	var controllers []*execution.Controller
	for _, s := range strategies {
		if _, err := registry.Get(s.Selector); err != nil {
			slog.Error("skipping strategy", "strategy", s.Name, "error", err)
			continue
		}
		ids := s.Accounts
		if len(ids) == 0 {
			for _, a := range cfg.Accounts {
				ids = append(ids, a.ID)
			}
		}
		for _, id := range ids {
			acct, ok := byID[id]
			if !ok {
				return fmt.Errorf("strategy %s: account %s not registered", s.Name, id)
			}
			gw, err := ex.ForAccount(id)
			if err != nil {
				return fmt.Errorf("strategy %s: %w", s.Name, err)
			}
			ctrl := execution.NewController(s, acct, gw, engine, store,
				execution.WithNotifier(mailer),
				execution.WithSource(broadcaster),
			)
			restore(ctrl, s, id, history)
			ctrl.Start(ctx)
			controllers = append(controllers, ctrl)
		}
	}
	slog.Info("controllers started", "count", len(controllers))

	// Market data is account independent.
	source, err := ex.ForAccount("market-data")
	if err != nil {
		return err
	}
	scanner, err := market.NewScanner(source, cfg.Feed, cfg.Filter)
	if err != nil {
		return err
	}
	cache := market.NewCache(cfg.Schedule.MarketCacheTTL.Duration)
	tracker := performance.NewTracker(store.DB())
	sched := scheduler.New(scanner, cache, broadcaster, collector.NewCollector(store), tracker, cfg.Schedule)

	if cfg.API.Enabled {
		handlers := make([]api.Controller, len(controllers))
		for i, c := range controllers {
			handlers[i] = c
		}
		h := api.NewHandler(ctx, handlers, tracker, cache, slog.Default())
		go func() {
			if err := h.Serve(ctx, cfg.API.Listen); err != nil {
				slog.Error("api server failed", "error", err)
			}
		}()
	}

	err = sched.Run(ctx)
	for _, c := range controllers {
		c.Stop()
	}
	return err
}

// recoverPositions registers the configured accounts, funds their paper
// wallets and sells every position a previous run left open. Any failure
// must keep trading from resuming.
func recoverPositions(ctx context.Context, cfg *config.Config, store *db.Store, ex *paper.Exchange) error {
	for _, a := range cfg.Accounts {
		acct := execution.Account{ID: a.ID, Name: a.Name, Email: a.Email, MaxInvestment: a.MaxInvestment}
		if err := store.RegisterAccount(ctx, acct); err != nil {
			return fmt.Errorf("registering account %s: %w", a.ID, err)
		}
		for _, origin := range cfg.Filter.Origins {
			ex.Fund(a.ID, origin, cfg.Exchange.PaperBalance)
		}
	}

	accounts, err := store.GetAllAccounts(ctx)
	if err != nil {
		return fmt.Errorf("loading accounts: %w", err)
	}
	// Paper wallets live in memory; restore recorded holdings so recovery
	// can sell them.
	for _, a := range accounts {
		if a.Position != nil {
			ex.Fund(a.ID, a.Position.Target, a.Position.Amount)
		}
	}

	return recovery.SellUnfinishedTrades(ctx, store, ex, cfg.Exchange.MaxAttempts)
}

// restore seeds a controller's cooldowns and risk breaker from the trades
// it finished before the restart.
func restore(ctrl *execution.Controller, s config.StrategyConfig, account string, history []execution.State) {
	for _, st := range history {
		if st.Account != account || st.Strategy.Name != s.Name || !st.Finished || st.Invested <= 0 {
			continue
		}
		ctrl.Cooldowns().Record(st.Symbol, s.Selector, st.FinishedAt)
		ctrl.Risk().SetPreviousProfit(st.ProfitPercent)
	}
}
