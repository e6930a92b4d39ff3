package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"scalper/internal/config"
	"scalper/internal/market"
	"scalper/internal/performance"
)

type stubScanner struct {
	mu      sync.Mutex
	calls   int
	err     error
	markets []*market.Market
}

func (s *stubScanner) Scan(context.Context) ([]*market.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.markets, s.err
}

func (s *stubScanner) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recorder struct {
	mu        sync.Mutex
	published [][]*market.Market
	collected int
	reports   int
}

func (r *recorder) Publish(markets []*market.Market) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, markets)
}

func (r *recorder) Collect(context.Context, []*market.Market) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collected++
	return nil
}

func (r *recorder) Generate(context.Context) (*performance.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports++
	return &performance.Report{StrategyStats: map[string]performance.StrategyStats{}}, nil
}

func (r *recorder) counts() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.published), r.collected, r.reports
}

func schedule(poll time.Duration) config.ScheduleConfig {
	return config.ScheduleConfig{
		PollInterval:        config.Duration{Duration: poll},
		CollectInterval:     config.Duration{Duration: time.Hour},
		PerformanceInterval: config.Duration{Duration: 5 * time.Millisecond},
	}
}

func TestRun_PublishesAndCaches(t *testing.T) {
	sol := market.NewMarket("SOLUSDT", "USDT", "SOL")
	scanner := &stubScanner{markets: []*market.Market{sol}}
	rec := &recorder{}
	cache := market.NewCache(time.Minute)

	s := New(scanner, cache, rec, rec, rec, schedule(5*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	if err := s.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	published, collected, reports := rec.counts()
	if published < 2 {
		t.Errorf("expected repeated publishes, got %d", published)
	}
	if collected != 1 {
		t.Errorf("expected the initial collection only, got %d", collected)
	}
	if reports == 0 {
		t.Error("expected a performance report")
	}
	if _, ok := cache.Get("SOLUSDT"); !ok {
		t.Error("expected market in cache")
	}
	if got := s.Latest(); len(got) != 1 || got[0] != sol {
		t.Errorf("unexpected latest snapshot %v", got)
	}
}

func TestRun_ScanFailureSkipsPublish(t *testing.T) {
	scanner := &stubScanner{err: errors.New("exchange down")}
	rec := &recorder{}

	s := New(scanner, nil, rec, nil, nil, schedule(5*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if published, _, _ := rec.counts(); published != 0 {
		t.Errorf("expected no publish, got %d", published)
	}
	if scanner.Calls() < 2 {
		t.Errorf("expected the scan to be retried every poll, got %d calls", scanner.Calls())
	}
}
