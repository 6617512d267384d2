package risk

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrhb33/quantsim/services/ledger"
	"github.com/mrhb33/quantsim/services/market"
	"github.com/mrhb33/quantsim/strategies"
)

func snapshot(balance float64, positions map[string]float64) ledger.Snapshot {
	pos := make(map[string]decimal.Decimal, len(positions))
	equity := decimal.NewFromFloat(balance)
	for s, q := range positions {
		pos[s] = decimal.NewFromFloat(q)
	}
	return ledger.Snapshot{
		Balance:   decimal.NewFromFloat(balance),
		Equity:    equity,
		Positions: pos,
	}
}

func longSignal(strength, confidence float64) strategies.Signal {
	return strategies.Signal{
		Ts:         1_700_000_000_000,
		Symbol:     "BTCUSDT",
		StrategyID: "momentum",
		Direction:  strategies.Long,
		Strength:   strength,
		Confidence: confidence,
	}
}

func TestLowConfidenceRejected(t *testing.T) {
	m := NewManager(DefaultConfig())
	d := m.Evaluate(longSignal(1, 0.1), snapshot(10000, nil), 100, 10000, 1_700_000_000_000)
	assert.True(t, d.Rejected)
	assert.Equal(t, ReasonLowConfidence, d.Reason)
	assert.Nil(t, d.Order)
}

func TestSizingFormula(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.MaxPositionSize = 2.0
	m := NewManager(cfg)

	d := m.Evaluate(longSignal(0.5, 0.8), snapshot(10000, nil), 100, 10000, 1_700_000_000_000)
	require.True(t, d.Approved)
	require.NotNil(t, d.Order)
	assert.Equal(t, market.SideBuy, d.Order.Side)
	assert.Equal(t, market.OrderMarket, d.Order.Type)
	assert.InDelta(t, 2.0*0.5*0.8, d.Order.Quantity, 1e-9)
}

func TestDrawdownBudgetScalesDown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.MaxPositionSize = 1000 // large enough that the budget binds
	m := NewManager(cfg)

	// equity already 15% below peak: remaining budget is 5% of peak
	d := m.Evaluate(longSignal(1, 1), snapshot(8500, nil), 100, 10000, 1_700_000_000_000)
	require.True(t, d.Approved)
	// budget = 8500 - 8000 = 500; maxQty = 500 / (100 * 0.05) = 100
	assert.InDelta(t, 100.0, d.Order.Quantity, 1e-9)
}

func TestDrawdownLimitRejects(t *testing.T) {
	m := NewManager(DefaultConfig())
	// equity at the 20% floor exactly: no budget left
	d := m.Evaluate(longSignal(1, 1), snapshot(8000, nil), 100, 10000, 1_700_000_000_000)
	assert.True(t, d.Rejected)
	assert.Equal(t, ReasonDrawdown, d.Reason)
}

func TestNeutralSignalFlattens(t *testing.T) {
	m := NewManager(DefaultConfig())
	sig := longSignal(0, 0)
	sig.Direction = strategies.Neutral

	d := m.Evaluate(sig, snapshot(10000, map[string]float64{"BTCUSDT": 0.4}), 100, 10000, 1_700_000_000_000)
	require.True(t, d.Approved)
	assert.True(t, d.Flatten)
	assert.Equal(t, market.SideSell, d.Order.Side)
	assert.InDelta(t, 0.4, d.Order.Quantity, 1e-9)

	// flat book: nothing to do, and no rejection either
	d = m.Evaluate(sig, snapshot(10000, nil), 100, 10000, 1_700_000_000_000)
	assert.False(t, d.Approved)
	assert.False(t, d.Rejected)
}

func TestOppositeSignalFlattensFirst(t *testing.T) {
	m := NewManager(DefaultConfig())
	sig := longSignal(1, 1)
	sig.Direction = strategies.Short

	d := m.Evaluate(sig, snapshot(10000, map[string]float64{"BTCUSDT": 0.4}), 100, 10000, 1_700_000_000_000)
	require.True(t, d.Approved)
	assert.True(t, d.Flatten, "an opposite signal closes before any re-entry")
	assert.Equal(t, market.SideSell, d.Order.Side)

	// short position against a long signal buys back
	sig.Direction = strategies.Long
	d = m.Evaluate(sig, snapshot(10000, map[string]float64{"BTCUSDT": -0.4}), 100, 10000, 1_700_000_000_000)
	require.True(t, d.Approved)
	assert.True(t, d.Flatten)
	assert.Equal(t, market.SideBuy, d.Order.Side)
	assert.InDelta(t, 0.4, d.Order.Quantity, 1e-9)
}

func TestAlreadyPositionedHolds(t *testing.T) {
	m := NewManager(DefaultConfig())
	d := m.Evaluate(longSignal(1, 1), snapshot(10000, map[string]float64{"BTCUSDT": 0.4}), 100, 10000, 1_700_000_000_000)
	assert.False(t, d.Approved)
	assert.False(t, d.Rejected)
	assert.Equal(t, ReasonAlreadyInside, d.Reason)
}

func TestShortsDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowShorting = false
	m := NewManager(cfg)

	sig := longSignal(1, 1)
	sig.Direction = strategies.Short
	d := m.Evaluate(sig, snapshot(10000, nil), 100, 10000, 1_700_000_000_000)
	assert.True(t, d.Rejected)
	assert.Equal(t, ReasonShortsDisabled, d.Reason)
}

func TestDailyLossLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.MaxDailyLoss = 500
	m := NewManager(cfg)

	dayStart := int64(1_700_006_400_000) // some UTC midnight-aligned ms
	// first event of the day anchors the window at 10000
	d := m.Evaluate(longSignal(1, 1), snapshot(10000, nil), 100, 10000, dayStart)
	require.True(t, d.Approved)

	// intraday equity down 600: breach
	d = m.Evaluate(longSignal(1, 1), snapshot(9400, nil), 100, 10000, dayStart+3600_000)
	assert.True(t, d.Rejected)
	assert.Equal(t, ReasonDailyLoss, d.Reason)

	// next UTC day re-anchors at current equity: trading resumes
	d = m.Evaluate(longSignal(1, 1), snapshot(9400, nil), 100, 10000, dayStart+24*3600_000)
	assert.True(t, d.Approved)
}

func TestZeroSizeRejected(t *testing.T) {
	m := NewManager(DefaultConfig())
	d := m.Evaluate(longSignal(0, 1), snapshot(10000, nil), 100, 10000, 1_700_000_000_000)
	assert.True(t, d.Rejected)
	assert.Equal(t, ReasonZeroSize, d.Reason)
}

// Randomized check of the sizing invariants: approved entries never exceed
// the configured position cap nor the remaining drawdown budget.
func TestApprovedOrdersRespectLimits(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	cfg := DefaultConfig()
	cfg.Limits.MaxPositionSize = 3.0
	m := NewManager(cfg)

	for i := 0; i < 2000; i++ {
		peak := 10000.0
		equity := peak * (0.75 + rng.Float64()*0.25)
		price := 50 + rng.Float64()*450
		sig := longSignal(rng.Float64(), rng.Float64())
		if rng.Intn(2) == 0 {
			sig.Direction = strategies.Short
		}

		d := m.Evaluate(sig, snapshot(equity, nil), price, peak, 1_700_000_000_000+int64(i)*1000)
		if !d.Approved {
			continue
		}
		require.NotNil(t, d.Order)
		assert.LessOrEqual(t, d.Order.Quantity, cfg.Limits.MaxPositionSize+1e-9)

		budget := equity - peak*(1-cfg.Limits.MaxDrawdownPct)
		maxQty := budget / (price * cfg.AdverseMovePct)
		assert.LessOrEqual(t, d.Order.Quantity, maxQty+1e-9,
			"projected adverse move must stay inside the drawdown budget")
	}
}
