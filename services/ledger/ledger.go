package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mrhb33/quantsim/services/market"
)

// TradeRecord is one round trip: opened when a flat symbol gains exposure,
// finalized when it returns to flat. Entry/exit prices are fill-weighted
// averages; Pnl is realized PnL net of fees for the round trip.
type TradeRecord struct {
	Symbol     string
	Side       market.Side // side of the opening fills
	OpenTs     int64
	CloseTs    int64
	Qty        decimal.Decimal
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	Pnl        decimal.Decimal
	Fees       decimal.Decimal
	Open       bool
}

// Snapshot is an immutable view of portfolio state at a point in the run.
type Snapshot struct {
	Balance       decimal.Decimal
	Equity        decimal.Decimal
	Positions     map[string]decimal.Decimal // signed base quantity
	RealizedPnl   decimal.Decimal
	UnrealizedPnl decimal.Decimal
}

// FeeModel prices the cost of a fill.
type FeeModel interface {
	Compute(side market.Side, price, qty decimal.Decimal) decimal.Decimal
}

// FixedFeeModel charges a flat taker rate; simulated fills always take
// liquidity.
type FixedFeeModel struct {
	Taker decimal.Decimal
}

func (m FixedFeeModel) Compute(_ market.Side, price, qty decimal.Decimal) decimal.Decimal {
	return price.Mul(qty).Mul(m.Taker)
}

type lot struct {
	qty   decimal.Decimal // always positive
	price decimal.Decimal
	ts    int64
}

type position struct {
	side market.Side // SideBuy = long book of lots, SideSell = short
	lots []lot
}

func (p *position) qty() decimal.Decimal {
	total := decimal.Zero
	for _, l := range p.lots {
		total = total.Add(l.qty)
	}
	return total
}

// Ledger exclusively owns portfolio state for one run. Fills are applied
// atomically: position, realized PnL, cash and the trade history move
// together or not at all. It is not safe for concurrent use; the
// orchestrator owns it for the duration of a run.
type Ledger struct {
	balance   decimal.Decimal
	positions map[string]*position
	marks     map[string]decimal.Decimal
	realized  decimal.Decimal
	trades    []TradeRecord
	openIdx   map[string]int // symbol -> index into trades of the open record
	closing   map[string]closeAccum
	fees      FeeModel
}

// closeAccum accumulates the closing fills of an open round trip so the
// exit price is fill-weighted across scale-outs.
type closeAccum struct {
	qty      decimal.Decimal
	notional decimal.Decimal
}

// New creates a fresh ledger with the given starting cash balance.
func New(initialBalance decimal.Decimal, fees FeeModel) *Ledger {
	if fees == nil {
		fees = FixedFeeModel{Taker: decimal.Zero}
	}
	return &Ledger{
		balance:   initialBalance,
		positions: make(map[string]*position),
		marks:     make(map[string]decimal.Decimal),
		openIdx:   make(map[string]int),
		closing:   make(map[string]closeAccum),
		fees:      fees,
	}
}

// Mark records the latest trade price for a symbol; equity is always marked
// to the most recent mark.
func (l *Ledger) Mark(symbol string, price float64) {
	l.marks[symbol] = decimal.NewFromFloat(price)
}

// ApplyFill applies a fill to the ledger. Zero fills are no-ops.
func (l *Ledger) ApplyFill(f market.Fill) error {
	if f.Zero() {
		return nil
	}
	price := decimal.NewFromFloat(f.FillPrice)
	qty := decimal.NewFromFloat(f.FilledQty)
	if qty.IsNegative() || price.IsNegative() {
		return fmt.Errorf("malformed fill %s: qty %s price %s", f.OrderID, qty, price)
	}

	fee := l.fees.Compute(f.Side, price, qty)
	l.balance = l.balance.Sub(fee)

	// Cash leg.
	notional := price.Mul(qty)
	if f.Side == market.SideBuy {
		l.balance = l.balance.Sub(notional)
	} else {
		l.balance = l.balance.Add(notional)
	}

	pos := l.positions[f.Symbol]
	switch {
	case pos == nil || len(pos.lots) == 0:
		l.openPosition(f.Symbol, f.Side, price, qty, f.Ts)
		l.addFeeToOpenTrade(f.Symbol, fee)
	case pos.side == f.Side:
		pos.lots = append(pos.lots, lot{qty: qty, price: price, ts: f.Ts})
		l.extendOpenTrade(f.Symbol, price, qty)
		l.addFeeToOpenTrade(f.Symbol, fee)
	default:
		// the fee splits pro rata between the round trip being closed and
		// any surplus quantity that flips into a new position, so each
		// record's net Pnl carries only its own costs
		closeQty := decimal.Min(qty, pos.qty())
		closeFee := fee
		if closeQty.LessThan(qty) {
			closeFee = fee.Mul(closeQty).Div(qty)
		}
		l.addFeeToOpenTrade(f.Symbol, closeFee)
		l.reducePosition(f.Symbol, pos, price, qty, f.Ts)
		if rest := fee.Sub(closeFee); rest.IsPositive() {
			l.addFeeToOpenTrade(f.Symbol, rest)
		}
	}

	l.marks[f.Symbol] = price
	return nil
}

func (l *Ledger) openPosition(symbol string, side market.Side, price, qty decimal.Decimal, ts int64) {
	l.positions[symbol] = &position{side: side, lots: []lot{{qty: qty, price: price, ts: ts}}}
	l.trades = append(l.trades, TradeRecord{
		Symbol:     symbol,
		Side:       side,
		OpenTs:     ts,
		Qty:        qty,
		EntryPrice: price,
		Open:       true,
	})
	l.openIdx[symbol] = len(l.trades) - 1
}

func (l *Ledger) extendOpenTrade(symbol string, price, qty decimal.Decimal) {
	idx, ok := l.openIdx[symbol]
	if !ok {
		return
	}
	tr := &l.trades[idx]
	newQty := tr.Qty.Add(qty)
	tr.EntryPrice = tr.EntryPrice.Mul(tr.Qty).Add(price.Mul(qty)).Div(newQty)
	tr.Qty = newQty
}

func (l *Ledger) addFeeToOpenTrade(symbol string, fee decimal.Decimal) {
	if idx, ok := l.openIdx[symbol]; ok {
		l.trades[idx].Fees = l.trades[idx].Fees.Add(fee)
	}
}

// reducePosition closes lots FIFO against an opposite-side fill; any
// remainder flips the position and opens a new trade record.
func (l *Ledger) reducePosition(symbol string, pos *position, price, qty decimal.Decimal, ts int64) {
	remaining := qty
	realized := decimal.Zero
	closedQty := decimal.Zero
	closedNotional := decimal.Zero

	for len(pos.lots) > 0 && remaining.IsPositive() {
		head := &pos.lots[0]
		matched := decimal.Min(head.qty, remaining)

		var pnl decimal.Decimal
		if pos.side == market.SideBuy {
			pnl = price.Sub(head.price).Mul(matched)
		} else {
			pnl = head.price.Sub(price).Mul(matched)
		}
		realized = realized.Add(pnl)
		closedQty = closedQty.Add(matched)
		closedNotional = closedNotional.Add(price.Mul(matched))

		head.qty = head.qty.Sub(matched)
		remaining = remaining.Sub(matched)
		if head.qty.IsZero() {
			pos.lots = pos.lots[1:]
		}
	}

	l.realized = l.realized.Add(realized)
	l.settleOpenTrade(symbol, closedQty, closedNotional, realized, ts, len(pos.lots) == 0)

	if len(pos.lots) == 0 {
		delete(l.positions, symbol)
		if remaining.IsPositive() {
			// flip: the surplus opens a fresh position on the fill side
			flip := market.SideBuy
			if pos.side == market.SideBuy {
				flip = market.SideSell
			}
			l.openPosition(symbol, flip, price, remaining, ts)
		}
	}
}

func (l *Ledger) settleOpenTrade(symbol string, closedQty, closedNotional, realized decimal.Decimal, ts int64, flat bool) {
	idx, ok := l.openIdx[symbol]
	if !ok || closedQty.IsZero() {
		return
	}
	tr := &l.trades[idx]
	tr.Pnl = tr.Pnl.Add(realized)

	acc := l.closing[symbol]
	acc.qty = acc.qty.Add(closedQty)
	acc.notional = acc.notional.Add(closedNotional)
	l.closing[symbol] = acc
	tr.ExitPrice = acc.notional.Div(acc.qty)

	if flat {
		tr.CloseTs = ts
		tr.Open = false
		tr.Pnl = tr.Pnl.Sub(tr.Fees)
		delete(l.openIdx, symbol)
		delete(l.closing, symbol)
	}
}

// Position returns the signed quantity held for a symbol (negative = short).
func (l *Ledger) Position(symbol string) decimal.Decimal {
	pos, ok := l.positions[symbol]
	if !ok {
		return decimal.Zero
	}
	q := pos.qty()
	if pos.side == market.SideSell {
		return q.Neg()
	}
	return q
}

// Equity is balance plus the marked value of all open positions.
func (l *Ledger) Equity() decimal.Decimal {
	eq := l.balance
	for symbol := range l.positions {
		mark, ok := l.marks[symbol]
		if !ok {
			continue
		}
		eq = eq.Add(l.Position(symbol).Mul(mark))
	}
	return eq
}

// UnrealizedPnl marks every open lot against the latest trade price.
func (l *Ledger) UnrealizedPnl() decimal.Decimal {
	total := decimal.Zero
	for symbol, pos := range l.positions {
		mark, ok := l.marks[symbol]
		if !ok {
			continue
		}
		for _, lt := range pos.lots {
			if pos.side == market.SideBuy {
				total = total.Add(mark.Sub(lt.price).Mul(lt.qty))
			} else {
				total = total.Add(lt.price.Sub(mark).Mul(lt.qty))
			}
		}
	}
	return total
}

// Snapshot returns an immutable copy of the current portfolio state.
func (l *Ledger) Snapshot() Snapshot {
	positions := make(map[string]decimal.Decimal, len(l.positions))
	for symbol := range l.positions {
		positions[symbol] = l.Position(symbol)
	}
	return Snapshot{
		Balance:       l.balance,
		Equity:        l.Equity(),
		Positions:     positions,
		RealizedPnl:   l.realized,
		UnrealizedPnl: l.UnrealizedPnl(),
	}
}

// Trades returns a copy of the trade history, open records included.
func (l *Ledger) Trades() []TradeRecord {
	out := make([]TradeRecord, len(l.trades))
	copy(out, l.trades)
	return out
}

// ClosedTrades returns only finalized round trips.
func (l *Ledger) ClosedTrades() []TradeRecord {
	var out []TradeRecord
	for _, tr := range l.trades {
		if !tr.Open {
			out = append(out, tr)
		}
	}
	return out
}
