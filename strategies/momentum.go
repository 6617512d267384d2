package strategies

import (
	"fmt"
	"math"

	"github.com/mrhb33/quantsim/services/features"
	"github.com/mrhb33/quantsim/services/regime"
)

// MomentumConfig tunes the EMA-crossover policy.
type MomentumConfig struct {
	// NoiseFloorATR: the EMA spread must exceed this many ATRs before a
	// crossover counts as signal rather than noise.
	NoiseFloorATR float64
	// StrengthScalePct converts the EMA spread (as % of the slow EMA) into
	// strength; a spread of StrengthScalePct maps to strength 1.0.
	StrengthScalePct float64
}

func DefaultMomentumConfig() MomentumConfig {
	return MomentumConfig{NoiseFloorATR: 0.25, StrengthScalePct: 2.0}
}

// Momentum goes LONG when the fast EMA sits above the slow EMA by more than
// an ATR-scaled noise floor, SHORT for the inverse, NEUTRAL otherwise.
// Confidence is inherited from the regime classification.
type Momentum struct {
	cfg MomentumConfig
}

func NewMomentum(cfg MomentumConfig) *Momentum {
	if cfg.NoiseFloorATR <= 0 {
		cfg.NoiseFloorATR = DefaultMomentumConfig().NoiseFloorATR
	}
	if cfg.StrengthScalePct <= 0 {
		cfg.StrengthScalePct = DefaultMomentumConfig().StrengthScalePct
	}
	return &Momentum{cfg: cfg}
}

func (m *Momentum) ID() string { return "momentum" }

func (m *Momentum) Evaluate(fs features.FeatureSet, rs regime.State) Signal {
	if !features.Valid(fs.EmaFast) || !features.Valid(fs.EmaSlow) || !features.Valid(fs.Atr) {
		return neutralSignal(fs, m.ID(), "insufficient feature data")
	}

	spread := fs.EmaFast - fs.EmaSlow
	floor := m.cfg.NoiseFloorATR * fs.Atr

	if math.Abs(spread) <= floor {
		return neutralSignal(fs, m.ID(), fmt.Sprintf("ema spread %.4f within noise floor %.4f", spread, floor))
	}

	dir := Long
	if spread < 0 {
		dir = Short
	}

	spreadPct := math.Abs(spread) / fs.EmaSlow * 100.0
	strength := clamp01(spreadPct / m.cfg.StrengthScalePct)

	return Signal{
		Ts:         fs.Ts,
		Symbol:     fs.Symbol,
		StrategyID: m.ID(),
		Direction:  dir,
		Strength:   strength,
		Confidence: rs.Confidence,
		Reasoning:  fmt.Sprintf("%s: ema spread %.4f beyond %.4f floor", dir, spread, floor),
	}
}
