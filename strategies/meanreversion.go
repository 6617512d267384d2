package strategies

import (
	"fmt"

	"github.com/mrhb33/quantsim/services/features"
	"github.com/mrhb33/quantsim/services/regime"
)

// MeanReversionConfig tunes the Bollinger/RSI reversion policy.
type MeanReversionConfig struct {
	RsiOversold   float64
	RsiOverbought float64
	// BandScale maps the distance beyond the band (relative to band width)
	// into strength; distance of BandScale band-widths is strength 1.0.
	BandScale float64
}

func DefaultMeanReversionConfig() MeanReversionConfig {
	return MeanReversionConfig{RsiOversold: 30, RsiOverbought: 70, BandScale: 0.5}
}

// MeanReversion fades Bollinger band breaches confirmed by RSI extremes:
// LONG below the lower band with oversold RSI, SHORT above the upper band
// with overbought RSI. Strength scales with how far price sits beyond the
// breached band.
type MeanReversion struct {
	cfg MeanReversionConfig
}

func NewMeanReversion(cfg MeanReversionConfig) *MeanReversion {
	d := DefaultMeanReversionConfig()
	if cfg.RsiOversold <= 0 {
		cfg.RsiOversold = d.RsiOversold
	}
	if cfg.RsiOverbought <= 0 {
		cfg.RsiOverbought = d.RsiOverbought
	}
	if cfg.BandScale <= 0 {
		cfg.BandScale = d.BandScale
	}
	return &MeanReversion{cfg: cfg}
}

func (m *MeanReversion) ID() string { return "mean_reversion" }

func (m *MeanReversion) Evaluate(fs features.FeatureSet, rs regime.State) Signal {
	if !features.Valid(fs.Rsi) || !features.Valid(fs.BollingerUpper) || !features.Valid(fs.Price) {
		return neutralSignal(fs, m.ID(), "insufficient feature data")
	}

	width := fs.BollingerUpper - fs.BollingerLower
	if width <= 0 {
		return neutralSignal(fs, m.ID(), "degenerate bollinger band")
	}

	if fs.Price < fs.BollingerLower && fs.Rsi < m.cfg.RsiOversold {
		dist := (fs.BollingerLower - fs.Price) / width
		return Signal{
			Ts:         fs.Ts,
			Symbol:     fs.Symbol,
			StrategyID: m.ID(),
			Direction:  Long,
			Strength:   clamp01(dist / m.cfg.BandScale),
			Confidence: rs.Confidence,
			Reasoning:  fmt.Sprintf("price %.2f below lower band %.2f, rsi %.1f oversold", fs.Price, fs.BollingerLower, fs.Rsi),
		}
	}

	if fs.Price > fs.BollingerUpper && fs.Rsi > m.cfg.RsiOverbought {
		dist := (fs.Price - fs.BollingerUpper) / width
		return Signal{
			Ts:         fs.Ts,
			Symbol:     fs.Symbol,
			StrategyID: m.ID(),
			Direction:  Short,
			Strength:   clamp01(dist / m.cfg.BandScale),
			Confidence: rs.Confidence,
			Reasoning:  fmt.Sprintf("price %.2f above upper band %.2f, rsi %.1f overbought", fs.Price, fs.BollingerUpper, fs.Rsi),
		}
	}

	return neutralSignal(fs, m.ID(), "price inside bands or rsi not extreme")
}
