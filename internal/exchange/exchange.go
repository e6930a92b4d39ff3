// Package exchange defines the contract the trading core uses to reach an
// exchange: market data, order placement and balances.
package exchange

import (
	"context"
	"errors"
	"time"

	"scalper/internal/market"
)

var (
	ErrAttemptsExhausted   = errors.New("attempts exhausted")
	ErrOrderNotFound       = errors.New("order not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnknownMarket       = errors.New("unknown market")
	ErrQuoteOrders         = errors.New("quote-denominated market orders not supported")
)

type OrderType string

const (
	OrderMarket    OrderType = "market"
	OrderLimit     OrderType = "limit"
	OrderStopLimit OrderType = "stop_limit"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

type OrderStatus string

const (
	StatusOpen     OrderStatus = "open"
	StatusClosed   OrderStatus = "closed"
	StatusCanceled OrderStatus = "canceled"
)

// Order is owned by the gateway; callers only read it.
type Order struct {
	ID         string
	ExternalID string
	Type       OrderType
	Side       Side
	Status     OrderStatus
	Amount     float64
	Filled     float64
	Average    float64
	StopPrice  float64
	LimitPrice float64
	Origin     string
	Target     string
	CreatedAt  time.Time
}

// Cost is the origin-asset value of the filled part of the order.
func (o *Order) Cost() float64 {
	return o.Filled * o.Average
}

// Gateway is an authenticated view of one exchange account. Calls taking
// maxAttempts retry internally and fail with ErrAttemptsExhausted.
type Gateway interface {
	GetMarketsBy24hrVariation(ctx context.Context, minPercent float64) ([]*market.Market, error)
	FetchCandlesticks(ctx context.Context, markets []*market.Market, interval market.Interval, count int) error

	CreateMarketBuyOrder(ctx context.Context, origin, target string, amount float64, isQuoteAmount bool, maxAttempts int) (*Order, error)
	CreateStopLimitOrder(ctx context.Context, origin, target string, side Side, amount, stopPrice, limitPrice float64, maxAttempts int) (*Order, error)
	CreateMarketSellOrder(ctx context.Context, origin, target string, amount float64, maxAttempts int) (*Order, error)
	CancelOrder(ctx context.Context, order *Order, maxAttempts int) (*Order, error)
	OrderIsClosed(ctx context.Context, order *Order, maxAttempts int) (bool, error)

	GetUnitPrice(ctx context.Context, origin, target string) (float64, error)
	GetBalance(ctx context.Context, assets []string, maxAttempts int) (map[string]float64, error)
}

// Dialer hands out a gateway per account.
type Dialer interface {
	ForAccount(accountID string) (Gateway, error)
}
