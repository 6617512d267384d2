package features

import "math"

// FeatureSet is the full indicator vector for one symbol at one event time.
// Any indicator whose warm-up window is not yet filled is NaN, never zero.
type FeatureSet struct {
	Ts     int64
	Symbol string

	Price          float64
	EmaFast        float64
	EmaSlow        float64
	Atr            float64
	RealizedVol    float64
	ObImbalance    float64
	Vwap           float64
	Rsi            float64
	BollingerUpper float64
	BollingerMid   float64
	BollingerLower float64
}

// Valid reports whether an indicator value has left warm-up.
func Valid(v float64) bool { return !math.IsNaN(v) }

func nan() float64 { return math.NaN() }

// clampUnit bounds v to [-1, 1].
func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
