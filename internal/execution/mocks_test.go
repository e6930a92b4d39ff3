package execution

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"scalper/internal/exchange"
	"scalper/internal/market"
	"scalper/internal/strategy"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) GetMarketsBy24hrVariation(ctx context.Context, minPercent float64) ([]*market.Market, error) {
	args := m.Called(ctx, minPercent)
	return args.Get(0).([]*market.Market), args.Error(1)
}

func (m *mockGateway) FetchCandlesticks(ctx context.Context, markets []*market.Market, interval market.Interval, count int) error {
	return m.Called(ctx, markets, interval, count).Error(0)
}

func (m *mockGateway) CreateMarketBuyOrder(ctx context.Context, origin, target string, amount float64, isQuoteAmount bool, maxAttempts int) (*exchange.Order, error) {
	args := m.Called(ctx, origin, target, amount, isQuoteAmount, maxAttempts)
	return order(args.Get(0)), args.Error(1)
}

func (m *mockGateway) CreateStopLimitOrder(ctx context.Context, origin, target string, side exchange.Side, amount, stopPrice, limitPrice float64, maxAttempts int) (*exchange.Order, error) {
	args := m.Called(ctx, origin, target, side, amount, stopPrice, limitPrice, maxAttempts)
	return order(args.Get(0)), args.Error(1)
}

func (m *mockGateway) CreateMarketSellOrder(ctx context.Context, origin, target string, amount float64, maxAttempts int) (*exchange.Order, error) {
	args := m.Called(ctx, origin, target, amount, maxAttempts)
	return order(args.Get(0)), args.Error(1)
}

func (m *mockGateway) CancelOrder(ctx context.Context, o *exchange.Order, maxAttempts int) (*exchange.Order, error) {
	args := m.Called(ctx, o, maxAttempts)
	return order(args.Get(0)), args.Error(1)
}

func (m *mockGateway) OrderIsClosed(ctx context.Context, o *exchange.Order, maxAttempts int) (bool, error) {
	args := m.Called(ctx, o, maxAttempts)
	return args.Bool(0), args.Error(1)
}

func (m *mockGateway) GetUnitPrice(ctx context.Context, origin, target string) (float64, error) {
	args := m.Called(ctx, origin, target)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockGateway) GetBalance(ctx context.Context, assets []string, maxAttempts int) (map[string]float64, error) {
	args := m.Called(ctx, assets, maxAttempts)
	b, _ := args.Get(0).(map[string]float64)
	return b, args.Error(1)
}

func order(v any) *exchange.Order {
	o, _ := v.(*exchange.Order)
	return o
}

// fakeClock advances instantly on Sleep.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixedSelector struct {
	result *strategy.Result
	err    error
	calls  int
}

func (s *fixedSelector) Select(_ strategy.Cooldowns, _ []*market.Market, _ string, _ bool) (*strategy.Result, error) {
	s.calls++
	return s.result, s.err
}

type memStore struct {
	mu       sync.Mutex
	accounts map[string]Account
	updates  []Account
	states   []State
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[string]Account)}
}

func (s *memStore) UpdateAccount(_ context.Context, a Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
	s.updates = append(s.updates, a)
	return nil
}

func (s *memStore) GetAllAccounts(context.Context) ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (s *memStore) SaveState(_ context.Context, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st)
	return nil
}

type recordingNotifier struct {
	initial []State
	final   []State
}

func (n *recordingNotifier) SendInitialEmail(_ context.Context, _ Account, st State) error {
	n.initial = append(n.initial, st)
	return nil
}

func (n *recordingNotifier) SendFinalEmail(_ context.Context, _ Account, st State) error {
	n.final = append(n.final, st)
	return nil
}
