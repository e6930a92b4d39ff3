// Package risk holds the per-controller guards: position sizing, the
// consecutive-loss circuit breaker and the cooldown ledger.
package risk

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrRiskBreach stops a controller permanently until an operator restarts it.
var ErrRiskBreach = errors.New("risk threshold breached")

// Limits are the sizing and loss bounds of one strategy on one account.
type Limits struct {
	MaxInvestment  float64 // per strategy, in the origin asset
	AccountCap     float64 // per account, 0 means no cap
	MinInvestment  float64
	AbortThreshold float64 // profit percent, negative
}

// Manager sizes positions and enforces the loss circuit breaker. The
// previous profit survives trade resets for the lifetime of the manager.
type Manager struct {
	mu             sync.Mutex
	limits         Limits
	previousProfit float64
	hasPrevious    bool
	tripped        bool
}

func NewManager(limits Limits) *Manager {
	return &Manager{limits: limits}
}

// Size returns the amount to invest given the available balance, or zero
// when the result falls under the minimum investment.
func (m *Manager) Size(balance float64) float64 {
	amount := min(balance, m.limits.MaxInvestment)
	if m.limits.AccountCap > 0 {
		amount = min(amount, m.limits.AccountCap)
	}
	// Quote assets are traded with cent precision.
	amount = decimal.NewFromFloat(amount).RoundDown(2).InexactFloat64()

	if amount <= 0 || amount < m.limits.MinInvestment {
		slog.Info("investment below minimum",
			"balance", balance,
			"computed_amount", amount,
			"min_investment", m.limits.MinInvestment,
		)
		return 0
	}
	return amount
}

// RecordProfit registers a finished trade's profit percent. It returns an
// error wrapping ErrRiskBreach when the trade alone, or together with the
// trade before it, lost more than the abort threshold. Once tripped the
// manager stays tripped until Reset.
func (m *Manager) RecordProfit(profit float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, hadPrev := m.previousProfit, m.hasPrevious
	m.previousProfit, m.hasPrevious = profit, true

	threshold := m.limits.AbortThreshold
	switch {
	case profit < threshold:
		m.tripped = true
		return fmt.Errorf("%w: profit %.2f%% below %.2f%%", ErrRiskBreach, profit, threshold)
	case hadPrev && profit+prev < threshold:
		m.tripped = true
		return fmt.Errorf("%w: profit %.2f%% and previous %.2f%% below %.2f%%", ErrRiskBreach, profit, prev, threshold)
	}
	return nil
}

// SetPreviousProfit seeds the breaker, e.g. from persisted history.
func (m *Manager) SetPreviousProfit(profit float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.previousProfit, m.hasPrevious = profit, true
}

func (m *Manager) PreviousProfit() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.previousProfit, m.hasPrevious
}

func (m *Manager) Tripped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tripped
}

// Reset clears a tripped breaker. The previous profit is forgotten so the
// loss that tripped it does not immediately trip it again.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tripped = false
	m.previousProfit, m.hasPrevious = 0, false
}
