// Package provider abstracts the execution venue. The backtest engine only
// ever talks to the paper provider, but the interface is shaped so a live
// exchange adapter can slot in without touching the pipeline.
package provider

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mrhb33/quantsim/proto"
	"github.com/mrhb33/quantsim/services/ledger"
	"github.com/mrhb33/quantsim/services/market"
)

// Provider is an execution and market-data venue.
type Provider interface {
	Name() string
	GetOrderbook(ctx context.Context, symbol string) (*market.BookSnapshot, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]market.Kline, error)
	GetPortfolioState(ctx context.Context) (ledger.Snapshot, error)
	ExecuteOrder(ctx context.Context, o market.Order) (*proto.ExecutionResult, error)
}

const (
	StatusFilled      = "FILLED"
	StatusPartial     = "PARTIAL"
	StatusUnavailable = "UNAVAILABLE"
	StatusRejected    = "REJECTED"
)

// ResultFromFill normalizes a simulator fill into the wire execution result.
func ResultFromFill(o market.Order, f market.Fill) *proto.ExecutionResult {
	side := proto.TradeSide_BUY
	if o.Side == market.SideSell {
		side = proto.TradeSide_SELL
	}
	status := StatusFilled
	switch {
	case f.Zero():
		status = StatusUnavailable
	case f.FilledQty < o.Quantity:
		status = StatusPartial
	}
	return &proto.ExecutionResult{
		OrderID:   o.ID,
		Symbol:    o.Symbol,
		Side:      side,
		Status:    status,
		FilledQty: decimal.NewFromFloat(f.FilledQty).String(),
		FillPrice: decimal.NewFromFloat(f.FillPrice).String(),
		Timestamp: f.Ts,
	}
}
