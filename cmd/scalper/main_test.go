package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalper/internal/config"
	"scalper/internal/db"
	"scalper/internal/exchange/paper"
	"scalper/internal/execution"
	"scalper/internal/strategy"
)

func newStore(t *testing.T) *db.Store {
	t.Helper()
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database))
	return db.NewStore(database)
}

func holding(t *testing.T, store *db.Store, id, target string, amount float64) {
	t.Helper()
	err := store.UpdateAccount(context.Background(), execution.Account{
		ID:   id,
		Name: id,
		Position: &execution.Position{
			Origin:   "USDT",
			Target:   target,
			Amount:   amount,
			Strategy: "fast",
			OpenedAt: time.Now().Add(-time.Hour),
		},
	})
	require.NoError(t, err)
}

func testConfig(ids ...string) (*config.Config, []config.StrategyConfig) {
	cfg := config.DefaultConfig()
	cfg.Exchange.MaxAttempts = 1
	cfg.API.Enabled = false
	for _, id := range ids {
		cfg.Accounts = append(cfg.Accounts, config.AccountConfig{ID: id, Name: id, MaxInvestment: 100})
	}
	s := config.DefaultStrategy()
	s.Name = "fast"
	s.Selector = "strat9-30-30"
	return cfg, []config.StrategyConfig{s}
}

func positions(t *testing.T, store *db.Store) map[string]*execution.Position {
	t.Helper()
	accounts, err := store.GetAllAccounts(context.Background())
	require.NoError(t, err)
	out := make(map[string]*execution.Position, len(accounts))
	for _, a := range accounts {
		out[a.ID] = a.Position
	}
	return out
}

func TestRun_RecoveryFailureBlocksTrading(t *testing.T) {
	store := newStore(t)
	holding(t, store, "a1", "SOL", 0.5)
	holding(t, store, "a2", "NOPE", 10)
	holding(t, store, "a3", "ETH", 0.1)
	cfg, strategies := testConfig("a1", "a2", "a3")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, cfg, store, strategy.DefaultRegistry(), strategies)
	require.Error(t, err)
	assert.ErrorContains(t, err, "startup recovery failed")
	assert.ErrorContains(t, err, "account a2")

	pos := positions(t, store)
	assert.Nil(t, pos["a1"])
	assert.Nil(t, pos["a3"])
	require.NotNil(t, pos["a2"])
	assert.Equal(t, "NOPE", pos["a2"].Target)
	assert.Equal(t, 10.0, pos["a2"].Amount)

	// No controller ran, so nothing was traded.
	states, err := store.ListStates(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestRecoverPositions_SellsEveryHolding(t *testing.T) {
	store := newStore(t)
	holding(t, store, "a1", "SOL", 0.5)
	holding(t, store, "a2", "ETH", 0.1)
	cfg, _ := testConfig("a1", "a2", "a3")

	ex := paper.New(cfg.Exchange.PaperSeed, paper.DefaultMarkets())
	require.NoError(t, recoverPositions(context.Background(), cfg, store, ex))

	for id, p := range positions(t, store) {
		assert.Nil(t, p, id)
	}
	assert.Len(t, positions(t, store), 3)
	assert.Zero(t, ex.Balance("a1", "SOL"))
	assert.Greater(t, ex.Balance("a1", "USDT"), cfg.Exchange.PaperBalance)
}

func TestRecoverPositions_KeepsSettingsOfRecordedAccounts(t *testing.T) {
	store := newStore(t)
	holding(t, store, "a1", "NOPE", 1)
	cfg, _ := testConfig("a1")
	cfg.Accounts[0].Email = "trader@example.com"

	ex := paper.New(cfg.Exchange.PaperSeed, paper.DefaultMarkets())
	require.Error(t, recoverPositions(context.Background(), cfg, store, ex))

	accounts, err := store.GetAllAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "trader@example.com", accounts[0].Email)
	require.NotNil(t, accounts[0].Position)
	assert.Equal(t, 1.0, accounts[0].Position.Amount)
}
