package regime

import (
	"fmt"
	"math"

	"github.com/mrhb33/quantsim/services/features"
)

// Regime is the classified market behavior state.
type Regime int

const (
	Unknown Regime = iota
	Trending
	Ranging
	HighVolatility
	LowVolatility
)

func (r Regime) String() string {
	switch r {
	case Trending:
		return "TRENDING"
	case Ranging:
		return "RANGING"
	case HighVolatility:
		return "HIGH_VOLATILITY"
	case LowVolatility:
		return "LOW_VOLATILITY"
	default:
		return "UNKNOWN"
	}
}

// State is a classification result with a confidence in [0,1].
type State struct {
	Regime     Regime
	Confidence float64
	Reasoning  string
}

// Config tunes the threshold rules.
type Config struct {
	// TrendThreshold is the |emaFast-emaSlow|/atr ratio above which the
	// market is TRENDING.
	TrendThreshold float64
	// VolWindow is how many realized-vol observations feed the percentile.
	VolWindow int
	// HighVolPercentile / LowVolPercentile bound the volatility extremes.
	HighVolPercentile float64
	LowVolPercentile  float64
	// AmbiguityThreshold: rule confidence below this consults the external
	// classifier, when one is configured.
	AmbiguityThreshold float64
}

func DefaultConfig() Config {
	return Config{
		TrendThreshold:     1.0,
		VolWindow:          50,
		HighVolPercentile:  0.9,
		LowVolPercentile:   0.1,
		AmbiguityThreshold: 0.6,
	}
}

// Classifier applies deterministic threshold rules over feature sets.
// It keeps a bounded per-symbol history of realized volatility so the
// HIGH/LOW_VOLATILITY split is percentile-based rather than absolute.
type Classifier struct {
	cfg      Config
	volHist  map[string][]float64
	external External
}

func NewClassifier(cfg Config, external External) *Classifier {
	if cfg.TrendThreshold <= 0 {
		cfg.TrendThreshold = DefaultConfig().TrendThreshold
	}
	if cfg.VolWindow <= 0 {
		cfg.VolWindow = DefaultConfig().VolWindow
	}
	if cfg.HighVolPercentile <= 0 {
		cfg.HighVolPercentile = DefaultConfig().HighVolPercentile
	}
	if cfg.LowVolPercentile <= 0 {
		cfg.LowVolPercentile = DefaultConfig().LowVolPercentile
	}
	if cfg.AmbiguityThreshold <= 0 {
		cfg.AmbiguityThreshold = DefaultConfig().AmbiguityThreshold
	}
	return &Classifier{cfg: cfg, volHist: make(map[string][]float64), external: external}
}

// Classify maps a feature set to a regime state. While any required feature
// is still warming up the result is UNKNOWN with zero confidence. When the
// rule-based confidence lands below the ambiguity threshold and an external
// classifier is present, its answer is preferred; on error or timeout the
// rule-based result stands.
func (c *Classifier) Classify(fs features.FeatureSet) State {
	if !features.Valid(fs.EmaFast) || !features.Valid(fs.EmaSlow) || !features.Valid(fs.Atr) {
		return State{Regime: Unknown, Confidence: 0, Reasoning: "indicators warming up"}
	}

	st := c.ruleBased(fs)

	if c.external != nil && st.Confidence < c.cfg.AmbiguityThreshold {
		if ext, ok := c.external.Classify(fs); ok {
			return ext
		}
	}
	return st
}

func (c *Classifier) ruleBased(fs features.FeatureSet) State {
	ratio := 0.0
	spread := math.Abs(fs.EmaFast - fs.EmaSlow)
	if fs.Atr > 0 {
		ratio = spread / fs.Atr
	}

	// Trend dominates: a strong EMA separation is trending regardless of the
	// volatility percentile.
	if ratio >= c.cfg.TrendThreshold {
		conf := confidenceRamp(ratio-c.cfg.TrendThreshold, c.cfg.TrendThreshold)
		return State{
			Regime:     Trending,
			Confidence: conf,
			Reasoning:  fmt.Sprintf("ema spread %.4f = %.2fx atr", spread, ratio),
		}
	}

	// Volatility extremes from the realized-vol percentile.
	if features.Valid(fs.RealizedVol) {
		hist := c.pushVol(fs.Symbol, fs.RealizedVol)
		if pct, ok := percentile(hist, fs.RealizedVol); ok {
			if pct >= c.cfg.HighVolPercentile {
				conf := confidenceRamp(pct-c.cfg.HighVolPercentile, 1-c.cfg.HighVolPercentile)
				return State{
					Regime:     HighVolatility,
					Confidence: conf,
					Reasoning:  fmt.Sprintf("realized vol %.5f at p%.0f", fs.RealizedVol, pct*100),
				}
			}
			if pct <= c.cfg.LowVolPercentile {
				conf := confidenceRamp(c.cfg.LowVolPercentile-pct, c.cfg.LowVolPercentile)
				return State{
					Regime:     LowVolatility,
					Confidence: conf,
					Reasoning:  fmt.Sprintf("realized vol %.5f at p%.0f", fs.RealizedVol, pct*100),
				}
			}
		}
	}

	conf := confidenceRamp(c.cfg.TrendThreshold-ratio, c.cfg.TrendThreshold)
	return State{
		Regime:     Ranging,
		Confidence: conf,
		Reasoning:  fmt.Sprintf("ema spread %.2fx atr inside band", ratio),
	}
}

func (c *Classifier) pushVol(symbol string, v float64) []float64 {
	hist := append(c.volHist[symbol], v)
	if len(hist) > c.cfg.VolWindow {
		hist = hist[len(hist)-c.cfg.VolWindow:]
	}
	c.volHist[symbol] = hist
	return hist
}

// percentile ranks v within hist. A degenerate history (all values equal)
// yields no percentile, so flat series never read as volatility extremes.
func percentile(hist []float64, v float64) (float64, bool) {
	if len(hist) < 2 {
		return 0, false
	}
	lo, hi := hist[0], hist[0]
	below := 0
	for _, h := range hist {
		if h < lo {
			lo = h
		}
		if h > hi {
			hi = h
		}
		if h < v {
			below++
		}
	}
	if hi == lo {
		return 0, false
	}
	return float64(below) / float64(len(hist)-1), true
}

// confidenceRamp maps how far the discriminating statistic sits beyond its
// threshold into [0,1], linearly over one threshold-width.
func confidenceRamp(excess, scale float64) float64 {
	if scale <= 0 {
		return 0
	}
	c := 0.5 + excess/(2*scale)
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
