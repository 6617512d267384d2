// Package proto holds the wire-level result types shared by the result
// sinks and external adapters. Monetary values are string-encoded decimals
// so downstream consumers never lose precision to float re-encoding.
package proto

type TradeSide int32

const (
	TradeSide_BUY  TradeSide = 0
	TradeSide_SELL TradeSide = 1
)

func (s TradeSide) String() string {
	if s == TradeSide_BUY {
		return "BUY"
	}
	return "SELL"
}

// ExecutedTrade is one finalized round trip.
type ExecutedTrade struct {
	OpenTime   int64     `json:"open_time"`
	CloseTime  int64     `json:"close_time"`
	Symbol     string    `json:"symbol"`
	Side       TradeSide `json:"side"`
	Quantity   string    `json:"quantity"`
	EntryPrice string    `json:"entry_price"`
	ExitPrice  string    `json:"exit_price"`
	Pnl        string    `json:"pnl"`
	Fees       string    `json:"fees"`
	Open       bool      `json:"open"`
}

// EquityPoint is one sample of the run's equity curve.
type EquityPoint struct {
	Timestamp int64  `json:"timestamp"`
	Equity    string `json:"equity"`
}

// MetricsSummary mirrors metrics.Summary for serialization. Undefined
// metrics are encoded as "NaN" / "+Inf" strings.
type MetricsSummary struct {
	Sharpe       string `json:"sharpe"`
	MaxDrawdown  string `json:"max_drawdown"`
	WinRate      string `json:"win_rate"`
	ProfitFactor string `json:"profit_factor"`
	TotalReturn  string `json:"total_return"`
	TotalTrades  int    `json:"total_trades"`
}

// RunManifest records everything needed to reproduce a run bit-for-bit.
type RunManifest struct {
	JobID         string `json:"job_id"`
	ConfigHash    string `json:"config_hash"`
	DataChecksum  string `json:"data_checksum"`
	EngineVersion string `json:"engine_version"`
	CreatedAt     int64  `json:"created_at"`
}

// RunResult is the complete output of one backtest run.
type RunResult struct {
	JobID       string           `json:"job_id"`
	Manifest    *RunManifest     `json:"manifest"`
	Trades      []*ExecutedTrade `json:"trades"`
	EquityCurve []*EquityPoint   `json:"equity_curve"`
	Metrics     *MetricsSummary  `json:"metrics"`
}

// ExecutionResult is the normalized response from a live trading provider,
// convertible to and from the core fill type.
type ExecutionResult struct {
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      TradeSide `json:"side"`
	Status    string    `json:"status"` // FILLED, PARTIAL, REJECTED, UNAVAILABLE
	FilledQty string    `json:"filled_qty"`
	FillPrice string    `json:"fill_price"`
	Timestamp int64     `json:"timestamp"`
}
