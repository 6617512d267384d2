package market

// Shared market-data and execution types consumed by the replay, feature,
// simulation and ledger services. Events are immutable once emitted.

// Side is the side of an order or trade.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideBuy {
		return "BUY"
	}
	return "SELL"
}

// EventKind discriminates the payload carried by an Event.
type EventKind int

const (
	KindTrade EventKind = iota
	KindKline
	KindOrderbook
)

func (k EventKind) String() string {
	switch k {
	case KindTrade:
		return "trade"
	case KindKline:
		return "kline"
	default:
		return "orderbook"
	}
}

// Kline is a single OHLCV bar.
type Kline struct {
	OpenTimeMs int64
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
}

// TradeTick is a single executed market trade.
type TradeTick struct {
	Price float64
	Qty   float64
	Side  Side
}

// Level is one price level of an order book side.
type Level struct {
	Price float64
	Qty   float64
}

// BookSnapshot is an L2 order-book snapshot.
// Bids are sorted high to low, asks low to high.
type BookSnapshot struct {
	Bids []Level
	Asks []Level
}

// Event is a single replayed market event. Exactly one of Kline, Trade or
// Book is set, according to Kind. Seq is a stable tie-breaker for events
// sharing a timestamp.
type Event struct {
	Ts     int64 // unix ms
	Seq    uint64
	Symbol string
	Kind   EventKind
	Kline  *Kline
	Trade  *TradeTick
	Book   *BookSnapshot
}

// OrderType distinguishes market from limit orders.
type OrderType int

const (
	OrderMarket OrderType = iota
	OrderLimit
)

// Order is a sized, risk-approved instruction handed to the simulator
// (or converted for a live provider).
type Order struct {
	ID         string
	Symbol     string
	Side       Side
	Quantity   float64
	Type       OrderType
	LimitPrice float64 // only for OrderLimit
	SubmitTs   int64
}

// Fill is the outcome of matching an order against book liquidity.
// FilledQty may be less than requested, or zero when no liquidity crossed.
type Fill struct {
	OrderID     string
	Symbol      string
	Side        Side
	FillPrice   float64
	FilledQty   float64
	Ts          int64
	SlippageBps float64
}

// Zero reports whether the fill carries no executed quantity.
func (f Fill) Zero() bool { return f.FilledQty == 0 }
