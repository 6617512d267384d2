package lob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrhb33/quantsim/services/market"
)

func testBook() *market.BookSnapshot {
	return &market.BookSnapshot{
		Bids: []market.Level{{Price: 99, Qty: 10}, {Price: 98, Qty: 10}},
		Asks: []market.Level{{Price: 101, Qty: 10}, {Price: 102, Qty: 10}},
	}
}

func noSlippage() Config {
	return Config{Synthetic: SyntheticBookConfig{Enabled: false}}
}

func TestMarketBuyWalksAsks(t *testing.T) {
	s := NewSimulator(noSlippage())
	s.ApplySnapshot("BTCUSDT", testBook(), 1000)

	f := s.Submit(market.Order{ID: "o1", Symbol: "BTCUSDT", Side: market.SideBuy, Quantity: 15, Type: market.OrderMarket}, 1000)
	require.False(t, f.Zero())
	assert.Equal(t, 15.0, f.FilledQty)
	// vwap = (10*101 + 5*102) / 15
	assert.InDelta(t, 101.3333, f.FillPrice, 1e-3)
	assert.Zero(t, f.SlippageBps)
}

func TestFillNeverExceedsBookDepth(t *testing.T) {
	s := NewSimulator(noSlippage())
	s.ApplySnapshot("BTCUSDT", testBook(), 1000)

	f := s.Submit(market.Order{ID: "o1", Symbol: "BTCUSDT", Side: market.SideSell, Quantity: 100, Type: market.OrderMarket}, 1000)
	assert.Equal(t, 20.0, f.FilledQty, "partial fill bounded by total bid depth")

	// the walk consumed the whole bid side
	f = s.Submit(market.Order{ID: "o2", Symbol: "BTCUSDT", Side: market.SideSell, Quantity: 1, Type: market.OrderMarket}, 1001)
	assert.True(t, f.Zero())
}

func TestEmptyBookYieldsZeroFill(t *testing.T) {
	s := NewSimulator(noSlippage())
	f := s.Submit(market.Order{ID: "o1", Symbol: "BTCUSDT", Side: market.SideBuy, Quantity: 1, Type: market.OrderMarket}, 1000)
	assert.True(t, f.Zero())
	assert.Equal(t, "o1", f.OrderID)
}

func TestLimitOrderOnlyFillsWhenCrossed(t *testing.T) {
	s := NewSimulator(noSlippage())
	s.ApplySnapshot("BTCUSDT", testBook(), 1000)

	f := s.Submit(market.Order{ID: "o1", Symbol: "BTCUSDT", Side: market.SideBuy, Quantity: 1, Type: market.OrderLimit, LimitPrice: 100}, 1000)
	assert.True(t, f.Zero(), "best ask 101 sits above the 100 limit")

	f = s.Submit(market.Order{ID: "o2", Symbol: "BTCUSDT", Side: market.SideBuy, Quantity: 15, Type: market.OrderLimit, LimitPrice: 101}, 1000)
	assert.Equal(t, 10.0, f.FilledQty, "limit bounds the walk to crossing levels")
	assert.InDelta(t, 101.0, f.FillPrice, 1e-9)
}

func TestSlippageProportionalToDepthConsumed(t *testing.T) {
	cfg := noSlippage()
	cfg.Slippage = SlippageConfig{BpsPerDepthRatio: 10, MaxBps: 50}
	s := NewSimulator(cfg)
	s.ApplySnapshot("BTCUSDT", testBook(), 1000)

	f := s.Submit(market.Order{ID: "o1", Symbol: "BTCUSDT", Side: market.SideBuy, Quantity: 5, Type: market.OrderMarket}, 1000)
	// half the top level: 10 bps * 0.5
	assert.InDelta(t, 5.0, f.SlippageBps, 1e-9)
	assert.InDelta(t, 101*(1+5.0/10000), f.FillPrice, 1e-9, "buys slip upward")

	s2 := NewSimulator(cfg)
	s2.ApplySnapshot("BTCUSDT", testBook(), 1000)
	f = s2.Submit(market.Order{ID: "o2", Symbol: "BTCUSDT", Side: market.SideSell, Quantity: 5, Type: market.OrderMarket}, 1000)
	assert.InDelta(t, 99*(1-5.0/10000), f.FillPrice, 1e-9, "sells slip downward")
}

func TestSlippageCap(t *testing.T) {
	cfg := noSlippage()
	cfg.Slippage = SlippageConfig{BpsPerDepthRatio: 10, MaxBps: 8}
	s := NewSimulator(cfg)
	s.ApplySnapshot("BTCUSDT", testBook(), 1000)

	f := s.Submit(market.Order{ID: "o1", Symbol: "BTCUSDT", Side: market.SideBuy, Quantity: 20, Type: market.OrderMarket}, 1000)
	assert.Equal(t, 8.0, f.SlippageBps)
}

func TestLatencyDelaysExecution(t *testing.T) {
	cfg := noSlippage()
	cfg.LatencyMs = 500
	s := NewSimulator(cfg)
	s.ApplySnapshot("BTCUSDT", testBook(), 1000)

	f := s.Submit(market.Order{ID: "o1", Symbol: "BTCUSDT", Side: market.SideBuy, Quantity: 1, Type: market.OrderMarket}, 1000)
	assert.True(t, f.Zero(), "order rests until latency elapses")

	assert.Empty(t, s.Advance(1400), "not due yet")

	// book moves before the order lands
	s.ApplySnapshot("BTCUSDT", &market.BookSnapshot{
		Asks: []market.Level{{Price: 105, Qty: 10}},
	}, 1450)

	fills := s.Advance(1500)
	require.Len(t, fills, 1)
	assert.InDelta(t, 105.0, fills[0].FillPrice, 1e-9, "re-valued against the book at arrival time")
	assert.Equal(t, int64(1500), fills[0].Ts)
}

func TestLatencyReleasesZeroFillWithoutLiquidity(t *testing.T) {
	cfg := noSlippage()
	cfg.LatencyMs = 500
	s := NewSimulator(cfg)

	f := s.Submit(market.Order{ID: "o1", Symbol: "BTCUSDT", Side: market.SideBuy, Quantity: 1, Type: market.OrderMarket}, 1000)
	assert.True(t, f.Zero())

	fills := s.Advance(1500)
	require.Len(t, fills, 1, "an order released into an empty book still surfaces")
	assert.True(t, fills[0].Zero())
	assert.Equal(t, "o1", fills[0].OrderID)
	assert.Equal(t, "BTCUSDT", fills[0].Symbol)
	assert.Equal(t, int64(1500), fills[0].Ts)

	assert.Empty(t, s.Advance(1600), "released orders never linger in the queue")
}

func TestSyntheticBookFromKline(t *testing.T) {
	cfg := DefaultSyntheticBookConfig()
	snap := cfg.Derive(&market.Kline{Close: 10000, Volume: 500})
	require.NotNil(t, snap)
	require.Len(t, snap.Asks, cfg.Levels)
	require.Len(t, snap.Bids, cfg.Levels)

	assert.InDelta(t, 10000*(1+cfg.SpreadBps/10000), snap.Asks[0].Price, 1e-6)
	assert.InDelta(t, 10000*(1-cfg.SpreadBps/10000), snap.Bids[0].Price, 1e-6)

	perLevel := 500 * cfg.DepthFraction / float64(cfg.Levels)
	assert.InDelta(t, perLevel, snap.Asks[0].Qty, 1e-9)

	assert.Nil(t, SyntheticBookConfig{}.Derive(&market.Kline{Close: 100, Volume: 1}), "disabled synthesis yields no book")
}

func TestRealSnapshotWinsOverSynthetic(t *testing.T) {
	s := NewSimulator(DefaultConfig())
	s.ApplySnapshot("BTCUSDT", testBook(), 1000)
	s.ApplyKline("BTCUSDT", &market.Kline{Close: 500, Volume: 100}, 1000)

	f := s.Submit(market.Order{ID: "o1", Symbol: "BTCUSDT", Side: market.SideBuy, Quantity: 1, Type: market.OrderMarket}, 1000)
	assert.InDelta(t, 101.0, f.FillPrice, 101*0.006, "same-timestamp kline must not clobber real depth")
}
