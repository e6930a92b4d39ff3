package risk

import (
	"context"
	"fmt"
	"log/slog"
)

// BalanceSource is the part of an exchange gateway the portfolio reads.
type BalanceSource interface {
	GetBalance(ctx context.Context, assets []string, maxAttempts int) (map[string]float64, error)
}

// Portfolio tracks an account's free balances for the assets it trades.
type Portfolio struct {
	source   BalanceSource
	assets   []string
	attempts int
	Balances map[string]float64
}

func NewPortfolio(source BalanceSource, attempts int, assets ...string) *Portfolio {
	return &Portfolio{
		source:   source,
		assets:   assets,
		attempts: attempts,
		Balances: make(map[string]float64),
	}
}

// Refresh fetches the latest balances from the exchange.
func (p *Portfolio) Refresh(ctx context.Context) error {
	balances, err := p.source.GetBalance(ctx, p.assets, p.attempts)
	if err != nil {
		return fmt.Errorf("getting balances: %w", err)
	}
	if balances == nil {
		return fmt.Errorf("balances returned nil")
	}
	p.Balances = balances

	slog.Debug("portfolio refreshed", "balances", balances)
	return nil
}

// Free returns the refreshed balance of asset, zero when unknown.
func (p *Portfolio) Free(asset string) float64 {
	return p.Balances[asset]
}
