// Package execution runs the trade lifecycle: selecting a market, buying,
// protecting the position with a stop-limit order, monitoring it and
// closing or aborting.
package execution

import (
	"context"
	"errors"
	"time"

	"scalper/internal/config"
)

var (
	ErrQuoteOrdersUnsupported = errors.New("market does not support quote-denominated buys")
	ErrControllerStopped      = errors.New("controller stopped")
)

// Phase is a step of the trade lifecycle.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseSelectingMarket    Phase = "selecting_market"
	PhaseFundingCheck       Phase = "funding_check"
	PhaseOpeningPosition    Phase = "opening_position"
	PhaseProtectingPosition Phase = "protecting_position"
	PhaseMonitoring         Phase = "monitoring"
	PhaseClosing            Phase = "closing"
	PhaseAborting           Phase = "aborting"
	PhaseFinished           Phase = "finished"
)

// State is the record of one decision cycle. It is reset at the start of
// every cycle; cooldowns and the previous profit live on the Controller.
type State struct {
	ID       string                `json:"id"`
	Account  string                `json:"account"`
	Symbol   string                `json:"symbol,omitempty"`
	Origin   string                `json:"origin,omitempty"`
	Target   string                `json:"target,omitempty"`
	Interval string                `json:"interval,omitempty"`
	Strategy config.StrategyConfig `json:"strategy"`
	Phase    Phase                 `json:"phase"`

	InitialBalance float64 `json:"initial_balance"`
	FinalBalance   float64 `json:"final_balance"`
	Invested       float64 `json:"invested"`
	Retrieved      float64 `json:"retrieved"`
	ProfitPercent  float64 `json:"profit_percent"`
	Profit         float64 `json:"profit"`

	EntryPrice float64 `json:"entry_price"`
	Amount     float64 `json:"amount"`
	StopPrice  float64 `json:"stop_price"`
	LimitPrice float64 `json:"limit_price"`
	OpenOrders int     `json:"open_orders"`
	RunUp      float64 `json:"run_up"`
	DrawDown   float64 `json:"draw_down"`

	Finished   bool      `json:"finished"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Error      string    `json:"error,omitempty"`
}

// Position is an open holding recorded on an account so that it can be
// liquidated after a crash.
type Position struct {
	Origin   string    `json:"origin"`
	Target   string    `json:"target"`
	Amount   float64   `json:"amount"`
	Strategy string    `json:"strategy"`
	OpenedAt time.Time `json:"opened_at"`
}

// Account is an exchange account controllers trade on.
type Account struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email,omitempty"`
	MaxInvestment float64   `json:"max_investment"`
	Position      *Position `json:"position,omitempty"`
}

// Store persists accounts and finished states.
type Store interface {
	UpdateAccount(ctx context.Context, account Account) error
	GetAllAccounts(ctx context.Context) ([]Account, error)
	SaveState(ctx context.Context, state State) error
}

// Notifier reports trade start and end to the account owner.
type Notifier interface {
	SendInitialEmail(ctx context.Context, account Account, state State) error
	SendFinalEmail(ctx context.Context, account Account, state State) error
}

// Clock is the time source of the monitoring loop.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}
