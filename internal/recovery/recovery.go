// Package recovery liquidates positions left open by a previous run.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"scalper/internal/exchange"
	"scalper/internal/execution"
	"scalper/internal/market"
)

// Precision is the amount precision used when liquidating a recovered
// position, whose market metadata is no longer known.
var Precision = 8

// SellUnfinishedTrades market-sells every position recorded on an account
// and clears it. Failures on one account do not stop the others; all of
// them are returned joined.
func SellUnfinishedTrades(ctx context.Context, store execution.Store, dialer exchange.Dialer, maxAttempts int) error {
	accounts, err := store.GetAllAccounts(ctx)
	if err != nil {
		return fmt.Errorf("loading accounts: %w", err)
	}

	var errs []error
	sold := 0
	for _, acct := range accounts {
		if acct.Position == nil || acct.Position.Amount <= 0 {
			continue
		}
		if err := sell(ctx, store, dialer, acct, maxAttempts); err != nil {
			slog.Error("failed to recover position",
				"account", acct.ID,
				"target", acct.Position.Target,
				"amount", acct.Position.Amount,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("account %s: %w", acct.ID, err))
			continue
		}
		sold++
	}

	slog.Info("recovery complete", "accounts", len(accounts), "sold", sold, "failed", len(errs))
	return errors.Join(errs...)
}

func sell(ctx context.Context, store execution.Store, dialer exchange.Dialer, acct execution.Account, maxAttempts int) error {
	gw, err := dialer.ForAccount(acct.ID)
	if err != nil {
		return fmt.Errorf("dialing exchange: %w", err)
	}

	pos := acct.Position
	m := market.NewMarket(pos.Target+pos.Origin, pos.Origin, pos.Target)
	m.AmountPrecision = Precision
	order, err := execution.Liquidate(ctx, gw, m, pos.Amount, maxAttempts)
	if err != nil {
		return err
	}
	slog.Info("recovered position sold",
		"account", acct.ID,
		"market", m.Symbol,
		"amount", order.Filled,
		"retrieved", order.Cost(),
		"strategy", pos.Strategy,
	)

	acct.Position = nil
	if err := store.UpdateAccount(ctx, acct); err != nil {
		return fmt.Errorf("clearing position: %w", err)
	}
	return nil
}
