package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"scalper/internal/config"
	"scalper/internal/market"
	"scalper/internal/performance"
)

// Scanner produces a featured market snapshot.
type Scanner interface {
	Scan(ctx context.Context) ([]*market.Market, error)
}

// Publisher hands snapshots to the subscribed controllers.
type Publisher interface {
	Publish(markets []*market.Market)
}

type Collector interface {
	Collect(ctx context.Context, markets []*market.Market) error
}

type Reporter interface {
	Generate(ctx context.Context) (*performance.Report, error)
}

// Scheduler orchestrates the main polling loop.
type Scheduler struct {
	scanner   Scanner
	cache     *market.Cache
	publisher Publisher
	collector Collector
	tracker   Reporter
	cfg       config.ScheduleConfig

	mu     sync.Mutex
	latest []*market.Market
}

// New creates a new Scheduler with all dependencies. collector and tracker
// may be nil to disable their loops.
func New(
	scanner Scanner,
	cache *market.Cache,
	publisher Publisher,
	coll Collector,
	tracker Reporter,
	cfg config.ScheduleConfig,
) *Scheduler {
	return &Scheduler{
		scanner:   scanner,
		cache:     cache,
		publisher: publisher,
		collector: coll,
		tracker:   tracker,
		cfg:       cfg,
	}
}

// Run starts all periodic loops and blocks until context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler starting",
		"poll_interval", s.cfg.PollInterval.Duration,
		"collect_interval", s.cfg.CollectInterval.Duration,
		"performance_interval", s.cfg.PerformanceInterval.Duration,
	)

	// Run first cycle immediately.
	s.runPollCycle(ctx)
	s.runCollection(ctx)

	pollTicker := time.NewTicker(s.cfg.PollInterval.Duration)
	collectTicker := time.NewTicker(s.cfg.CollectInterval.Duration)
	perfTicker := time.NewTicker(s.cfg.PerformanceInterval.Duration)
	defer pollTicker.Stop()
	defer collectTicker.Stop()
	defer perfTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler shutting down")
			return ctx.Err()
		case <-pollTicker.C:
			s.runPollCycle(ctx)
		case <-collectTicker.C:
			s.runCollection(ctx)
		case <-perfTicker.C:
			s.runPerformanceReport(ctx)
		}
	}
}

// Latest returns the most recent scanned snapshot.
func (s *Scheduler) Latest() []*market.Market {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

func (s *Scheduler) runPollCycle(ctx context.Context) {
	start := time.Now()
	markets, err := s.scanner.Scan(ctx)
	if err != nil {
		slog.Error("market scan failed", "error", err)
		return
	}
	if len(markets) == 0 {
		slog.Info("no markets this cycle")
		return
	}

	s.mu.Lock()
	s.latest = markets
	s.mu.Unlock()

	if s.cache != nil {
		s.cache.SetAll(markets)
	}
	s.publisher.Publish(markets)
	slog.Info("market snapshot published", "markets", len(markets), "took", time.Since(start))
}

func (s *Scheduler) runCollection(ctx context.Context) {
	if s.collector == nil {
		return
	}
	markets := s.Latest()
	if len(markets) == 0 {
		return
	}
	slog.Info("starting data collection")
	if err := s.collector.Collect(ctx, markets); err != nil {
		slog.Error("collection failed", "error", err)
	}
}

func (s *Scheduler) runPerformanceReport(ctx context.Context) {
	if s.tracker == nil {
		return
	}
	report, err := s.tracker.Generate(ctx)
	if err != nil {
		slog.Error("performance report failed", "error", err)
		return
	}
	performance.LogReport(report)
}
