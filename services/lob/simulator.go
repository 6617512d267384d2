package lob

import (
	"github.com/sirupsen/logrus"

	"github.com/mrhb33/quantsim/services/market"
)

// SlippageConfig charges a basis-point cost proportional to how much of the
// top-of-book depth an order consumes.
type SlippageConfig struct {
	BpsPerDepthRatio float64 // bps charged per 1.0 of qty/topDepth
	MaxBps           float64
}

func DefaultSlippageConfig() SlippageConfig {
	return SlippageConfig{BpsPerDepthRatio: 10, MaxBps: 50}
}

// Config parameterizes the simulator.
type Config struct {
	LatencyMs int64
	Slippage  SlippageConfig
	Synthetic SyntheticBookConfig
}

func DefaultConfig() Config {
	return Config{
		LatencyMs: 0,
		Slippage:  DefaultSlippageConfig(),
		Synthetic: DefaultSyntheticBookConfig(),
	}
}

type pendingOrder struct {
	order   market.Order
	readyAt int64
}

// Simulator maintains synthetic per-symbol book state and matches orders
// against it. It never reports more filled quantity than the book levels it
// consumed held; partial and zero fills are normal outcomes. With a latency
// model configured, orders rest until submitTs+latency and are then
// re-valued against the book state of that moment.
type Simulator struct {
	cfg     Config
	books   map[string]*book
	pending []pendingOrder
	log     *logrus.Entry
}

func NewSimulator(cfg Config) *Simulator {
	return &Simulator{
		cfg:   cfg,
		books: make(map[string]*book),
		log:   logrus.WithField("component", "lob"),
	}
}

func (s *Simulator) book(symbol string) *book {
	b, ok := s.books[symbol]
	if !ok {
		b = &book{}
		s.books[symbol] = b
	}
	return b
}

// ApplySnapshot replaces a symbol's book with a replayed snapshot.
func (s *Simulator) ApplySnapshot(symbol string, snap *market.BookSnapshot, ts int64) {
	if snap == nil {
		return
	}
	s.book(symbol).apply(snap, ts)
}

// ApplyKline refreshes a symbol's synthetic book from a bar, when synthetic
// depth is enabled and no real depth has arrived at this timestamp.
func (s *Simulator) ApplyKline(symbol string, k *market.Kline, ts int64) {
	if b, ok := s.books[symbol]; ok && b.ts == ts {
		// a real snapshot for this timestamp wins over the synthetic one
		return
	}
	if snap := s.cfg.Synthetic.Derive(k); snap != nil {
		s.book(symbol).apply(snap, ts)
	}
}

// Submit accepts an order at time ts. With zero latency it executes
// immediately; otherwise it rests until ts+latency and executes during a
// later Advance call. The returned fill is zero-quantity when the order
// rested or no liquidity crossed.
func (s *Simulator) Submit(o market.Order, ts int64) market.Fill {
	if s.cfg.LatencyMs <= 0 {
		return s.execute(o, ts)
	}
	s.pending = append(s.pending, pendingOrder{order: o, readyAt: ts + s.cfg.LatencyMs})
	return market.Fill{OrderID: o.ID, Symbol: o.Symbol, Side: o.Side, Ts: ts}
}

// Advance releases orders whose latency has elapsed by ts, in submission
// order, executing each against the current book. A released order that
// meets no liquidity comes back as a zero fill so the caller can record
// the unavailable outcome rather than lose the order silently.
func (s *Simulator) Advance(ts int64) []market.Fill {
	if len(s.pending) == 0 {
		return nil
	}
	var fills []market.Fill
	rest := s.pending[:0]
	for _, p := range s.pending {
		if p.readyAt > ts {
			rest = append(rest, p)
			continue
		}
		fills = append(fills, s.execute(p.order, p.readyAt))
	}
	s.pending = rest
	return fills
}

func (s *Simulator) execute(o market.Order, ts int64) market.Fill {
	fill := market.Fill{OrderID: o.ID, Symbol: o.Symbol, Side: o.Side, Ts: ts}
	b := s.book(o.Symbol)

	var top market.Level
	var ok bool
	if o.Side == market.SideBuy {
		top, ok = b.bestAsk()
	} else {
		top, ok = b.bestBid()
	}
	if !ok {
		return fill // empty book: FillUnavailable, zero fill
	}

	if o.Type == market.OrderLimit {
		// limit orders fill only when the limit price is crossed
		if o.Side == market.SideBuy && top.Price > o.LimitPrice {
			return fill
		}
		if o.Side == market.SideSell && top.Price < o.LimitPrice {
			return fill
		}
	}

	topDepth := top.Qty
	notional, filled := b.walk(o.Side, o.Quantity, o.LimitPrice, o.Type == market.OrderLimit)
	if filled == 0 {
		return fill
	}
	vwap := notional / filled

	slipBps := 0.0
	if topDepth > 0 && s.cfg.Slippage.BpsPerDepthRatio > 0 {
		slipBps = s.cfg.Slippage.BpsPerDepthRatio * (o.Quantity / topDepth)
		if s.cfg.Slippage.MaxBps > 0 && slipBps > s.cfg.Slippage.MaxBps {
			slipBps = s.cfg.Slippage.MaxBps
		}
	}
	price := vwap
	if o.Side == market.SideBuy {
		price = vwap * (1 + slipBps/10000.0)
	} else {
		price = vwap * (1 - slipBps/10000.0)
	}

	fill.FillPrice = price
	fill.FilledQty = filled
	fill.SlippageBps = slipBps

	if filled < o.Quantity {
		s.log.WithFields(logrus.Fields{
			"order":     o.ID,
			"requested": o.Quantity,
			"filled":    filled,
		}).Debug("partial fill, book depth exhausted")
	}
	return fill
}
