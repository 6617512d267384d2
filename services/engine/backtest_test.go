package engine

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrhb33/quantsim/services/market"
	"github.com/mrhb33/quantsim/services/regime"
	"github.com/mrhb33/quantsim/services/replay"
)

func flatDataset(n int, price float64) []market.Event {
	events := make([]market.Event, 0, n)
	for i := 0; i < n; i++ {
		ts := int64(1_700_000_000_000 + i*60_000)
		events = append(events, market.Event{
			Ts:     ts,
			Seq:    uint64(i),
			Symbol: "BTCUSDT",
			Kind:   market.KindKline,
			Kline:  &market.Kline{OpenTimeMs: ts, Open: price, High: price, Low: price, Close: price, Volume: 1000},
		})
	}
	return events
}

func stepDataset(n, stepAt int, before, after float64) []market.Event {
	events := flatDataset(n, before)
	for i := stepAt; i < n; i++ {
		k := events[i].Kline
		k.Open, k.High, k.Low, k.Close = after, after, after, after
	}
	return events
}

func waveDataset(n int) []market.Event {
	events := make([]market.Event, 0, n)
	for i := 0; i < n; i++ {
		ts := int64(1_700_000_000_000 + i*60_000)
		price := 100 + 10*math.Sin(float64(i)/7)
		events = append(events, market.Event{
			Ts:     ts,
			Seq:    uint64(i),
			Symbol: "BTCUSDT",
			Kind:   market.KindKline,
			Kline: &market.Kline{
				OpenTimeMs: ts,
				Open:       price, High: price * 1.01, Low: price * 0.99, Close: price,
				Volume: 1000,
			},
		})
	}
	return events
}

// A flat tape must classify as RANGING after warm-up, trade nothing, and
// report the undefined-metric sentinels.
func TestFlatMarketStaysFlat(t *testing.T) {
	cfg := DefaultConfig()
	bt := New(cfg, replay.New(flatDataset(100, 100)))

	res, err := bt.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, res.Trades)
	assert.Equal(t, 0, res.Summary.TotalTrades)
	assert.Equal(t, 0.0, res.Summary.MaxDrawdown)
	assert.True(t, math.IsNaN(res.Summary.WinRate))
	assert.Zero(t, res.EventLog.Count(EventOrderSubmit))

	// regime settles from UNKNOWN into RANGING, exactly one transition
	changes := 0
	var last string
	for _, e := range res.EventLog.Events {
		if e.Type == EventRegimeChange {
			changes++
			last = e.Details["regime"]
		}
	}
	assert.Equal(t, 2, changes)
	assert.Equal(t, regime.Ranging.String(), last)

	// equity curve flat at the initial balance
	require.Len(t, res.Curve, 100)
	for _, p := range res.Curve {
		eq, _ := p.Equity.Float64()
		assert.Equal(t, cfg.InitialBalance, eq)
	}
}

// A price step must flip the regime to TRENDING and produce exactly one
// slipped long entry that is still open at the end of the tape.
func TestPriceStepOpensLong(t *testing.T) {
	cfg := DefaultConfig()
	bt := New(cfg, replay.New(stepDataset(100, 60, 100, 200)))

	res, err := bt.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.True(t, tr.Open, "position rides the trend to the end of the tape")
	assert.Equal(t, market.SideBuy, tr.Side)
	entry, _ := tr.EntryPrice.Float64()
	assert.Greater(t, entry, 200.0, "entry crosses the synthetic spread and pays slippage")
	assert.Less(t, entry, 201.0)

	assert.Equal(t, 1, res.EventLog.Count(EventOrderSubmit))
	assert.Equal(t, 1, res.EventLog.Count(EventOrderFill))
	assert.Zero(t, res.EventLog.Count(EventFillUnavailable))

	trending := false
	for _, e := range res.EventLog.Events {
		if e.Type == EventRegimeChange && e.Details["regime"] == regime.Trending.String() {
			trending = true
		}
	}
	assert.True(t, trending)

	// open trades do not count toward closed-trade metrics
	assert.Equal(t, 0, res.Summary.TotalTrades)
	assert.True(t, math.IsNaN(res.Summary.WinRate))
}

// With a latency model and no book liquidity, an order released after its
// delay must be audited as an unavailable fill, not dropped.
func TestLatentOrderWithoutLiquidityIsAudited(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lob.LatencyMs = 30_000
	cfg.Lob.Synthetic.Enabled = false

	res, err := New(cfg, replay.New(stepDataset(100, 60, 100, 200))).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, res.Trades)
	assert.Zero(t, res.EventLog.Count(EventOrderFill))

	submits := res.EventLog.Count(EventOrderSubmit)
	require.Greater(t, submits, 0)
	// the last submitted order is still resting when the tape ends
	assert.Equal(t, submits-1, res.EventLog.Count(EventFillUnavailable))
}

// Identical dataset and config must reproduce the ledger, curve and metrics
// bit for bit, independent of run count.
func TestRunsAreDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	events := waveDataset(300)

	a, err := New(cfg, replay.New(events)).Run(context.Background())
	require.NoError(t, err)
	b, err := New(cfg, replay.New(events)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, a.Run.Metrics, b.Run.Metrics)
	assert.Equal(t, a.Run.Manifest.ConfigHash, b.Run.Manifest.ConfigHash)
	assert.Equal(t, a.Run.Manifest.DataChecksum, b.Run.Manifest.DataChecksum)

	require.Equal(t, len(a.Trades), len(b.Trades))
	for i := range a.Trades {
		assert.True(t, a.Trades[i].EntryPrice.Equal(b.Trades[i].EntryPrice))
		assert.True(t, a.Trades[i].Pnl.Equal(b.Trades[i].Pnl))
		assert.Equal(t, a.Trades[i].OpenTs, b.Trades[i].OpenTs)
	}
	require.Equal(t, len(a.Curve), len(b.Curve))
	for i := range a.Curve {
		assert.True(t, a.Curve[i].Equity.Equal(b.Curve[i].Equity))
	}

	// job ids differ, ledgers do not
	assert.NotEqual(t, a.Run.JobID, b.Run.JobID)
}

// Reusing one Backtest for consecutive runs must not leak indicator or
// ledger state between them.
func TestRepeatedRunsAreIsolated(t *testing.T) {
	bt := New(DefaultConfig(), replay.New(waveDataset(300)))

	a, err := bt.Run(context.Background())
	require.NoError(t, err)
	b, err := bt.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, a.Run.Metrics, b.Run.Metrics)
	assert.Equal(t, len(a.Trades), len(b.Trades))
}

func TestCancellationStopsAtEventBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(DefaultConfig(), replay.New(flatDataset(100, 100))).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCorruptDatasetFailsRun(t *testing.T) {
	events := flatDataset(10, 100)
	events[5].Ts = events[4].Ts - 60_000
	// keep seq order so the corruption is in load order

	_, err := New(DefaultConfig(), replay.New(events)).Run(context.Background())
	require.Error(t, err)
	var integrity *replay.DataIntegrityError
	assert.ErrorAs(t, err, &integrity)
}

func TestRunEventLogCount(t *testing.T) {
	var log RunEventLog
	log.Append(RunEvent{Type: EventOrderFill})
	log.Append(RunEvent{Type: EventOrderFill})
	log.Append(RunEvent{Type: EventRiskRejection})
	assert.Equal(t, 2, log.Count(EventOrderFill))
	assert.Equal(t, 1, log.Count(EventRiskRejection))
	assert.Equal(t, 0, log.Count(EventRegimeChange))
}

func TestConfigHashStable(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	assert.Equal(t, a.Hash(), b.Hash())

	b.Risk.Limits.MaxPositionSize = 2
	assert.NotEqual(t, a.Hash(), b.Hash())
}
