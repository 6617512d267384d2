package lob

import "github.com/mrhb33/quantsim/services/market"

// book is the simulator's view of one symbol's liquidity. Snapshots replace
// the whole book; klines may derive a synthetic book when no real depth is
// replayed.
type book struct {
	bids []market.Level // high to low
	asks []market.Level // low to high
	ts   int64
}

func (b *book) apply(snap *market.BookSnapshot, ts int64) {
	b.bids = append(b.bids[:0], snap.Bids...)
	b.asks = append(b.asks[:0], snap.Asks...)
	b.ts = ts
}

func (b *book) bestBid() (market.Level, bool) {
	if len(b.bids) == 0 {
		return market.Level{}, false
	}
	return b.bids[0], true
}

func (b *book) bestAsk() (market.Level, bool) {
	if len(b.asks) == 0 {
		return market.Level{}, false
	}
	return b.asks[0], true
}

// walk consumes liquidity from one side of the book up to qty, optionally
// bounded by a limit price. It returns the volume-weighted notional, the
// filled quantity, and mutates the levels consumed.
func (b *book) walk(side market.Side, qty float64, limit float64, limited bool) (notional, filled float64) {
	levels := &b.asks
	if side == market.SideSell {
		levels = &b.bids
	}

	remaining := qty
	i := 0
	for i < len(*levels) && remaining > 0 {
		lvl := &(*levels)[i]
		if limited {
			if side == market.SideBuy && lvl.Price > limit {
				break
			}
			if side == market.SideSell && lvl.Price < limit {
				break
			}
		}
		take := lvl.Qty
		if take > remaining {
			take = remaining
		}
		notional += take * lvl.Price
		filled += take
		remaining -= take
		lvl.Qty -= take
		if lvl.Qty == 0 {
			i++
		} else {
			break
		}
	}
	*levels = (*levels)[i:]
	return notional, filled
}

// SyntheticBookConfig derives an L2 book from a kline when the dataset has
// no real depth rows: levels are laid out around the close at a configured
// spread, with the bar's volume spread across them.
type SyntheticBookConfig struct {
	Enabled       bool
	Levels        int
	SpreadBps     float64 // half-spread between close and best quote
	LevelStepBps  float64 // price distance between consecutive levels
	DepthFraction float64 // share of bar volume resting per book side
}

func DefaultSyntheticBookConfig() SyntheticBookConfig {
	return SyntheticBookConfig{
		Enabled:       true,
		Levels:        5,
		SpreadBps:     2,
		LevelStepBps:  1,
		DepthFraction: 0.1,
	}
}

// Derive builds a deterministic book snapshot from a kline.
func (c SyntheticBookConfig) Derive(k *market.Kline) *market.BookSnapshot {
	if !c.Enabled || k.Close <= 0 {
		return nil
	}
	levels := c.Levels
	if levels <= 0 {
		levels = 1
	}
	sideDepth := k.Volume * c.DepthFraction
	perLevel := sideDepth / float64(levels)
	snap := &market.BookSnapshot{
		Bids: make([]market.Level, 0, levels),
		Asks: make([]market.Level, 0, levels),
	}
	for i := 0; i < levels; i++ {
		offset := (c.SpreadBps + float64(i)*c.LevelStepBps) / 10000.0
		snap.Bids = append(snap.Bids, market.Level{Price: k.Close * (1 - offset), Qty: perLevel})
		snap.Asks = append(snap.Asks, market.Level{Price: k.Close * (1 + offset), Qty: perLevel})
	}
	return snap
}
