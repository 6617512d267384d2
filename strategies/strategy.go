package strategies

import (
	"github.com/mrhb33/quantsim/services/features"
	"github.com/mrhb33/quantsim/services/regime"
)

// Direction is the side a signal wants to be positioned.
type Direction int

const (
	Neutral Direction = iota
	Long
	Short
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "NEUTRAL"
	}
}

// Signal is a strategy's desired exposure with strength and confidence
// in [0,1]. Strength scales position size; confidence gates risk approval.
type Signal struct {
	Ts         int64
	Symbol     string
	StrategyID string
	Direction  Direction
	Strength   float64
	Confidence float64
	Reasoning  string
}

// Strategy turns a feature set plus the classified regime into a signal.
// Implementations must be deterministic functions of their inputs.
type Strategy interface {
	ID() string
	Evaluate(fs features.FeatureSet, rs regime.State) Signal
}

func neutralSignal(fs features.FeatureSet, id, reason string) Signal {
	return Signal{
		Ts:         fs.Ts,
		Symbol:     fs.Symbol,
		StrategyID: id,
		Direction:  Neutral,
		Strength:   0,
		Confidence: 0,
		Reasoning:  reason,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
