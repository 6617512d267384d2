package engine

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/mrhb33/quantsim/services/features"
	"github.com/mrhb33/quantsim/services/lob"
	"github.com/mrhb33/quantsim/services/metrics"
	"github.com/mrhb33/quantsim/services/regime"
	"github.com/mrhb33/quantsim/services/risk"
	"github.com/mrhb33/quantsim/strategies"
)

// Config is the complete, enumerable configuration of one backtest run.
// Two runs with equal Config and equal datasets produce bit-identical
// results.
type Config struct {
	Symbol         string  `mapstructure:"symbol"`
	InitialBalance float64 `mapstructure:"initial_balance"`
	TakerFee       float64 `mapstructure:"taker_fee"`

	Features features.Config                `mapstructure:"features"`
	Regime   regime.Config                  `mapstructure:"regime"`
	Momentum strategies.MomentumConfig      `mapstructure:"momentum"`
	MeanRev  strategies.MeanReversionConfig `mapstructure:"mean_reversion"`
	Risk     risk.Config                    `mapstructure:"risk"`
	Lob      lob.Config                     `mapstructure:"lob"`
	Metrics  metrics.Config                 `mapstructure:"metrics"`
}

// DefaultConfig mirrors the reference parameterization end to end.
func DefaultConfig() Config {
	return Config{
		Symbol:         "BTCUSDT",
		InitialBalance: 10000,
		TakerFee:       0.001,
		Features:       features.DefaultConfig(),
		Regime:         regime.DefaultConfig(),
		Momentum:       strategies.DefaultMomentumConfig(),
		MeanRev:        strategies.DefaultMeanReversionConfig(),
		Risk:           risk.DefaultConfig(),
		Lob:            lob.DefaultConfig(),
		Metrics:        metrics.DefaultConfig(),
	}
}

// LoadConfig reads configuration from an optional file plus QUANTSIM_*
// environment overrides, on top of the defaults.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("quantsim")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix("QUANTSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("symbol", d.Symbol)
	v.SetDefault("initial_balance", d.InitialBalance)
	v.SetDefault("taker_fee", d.TakerFee)

	v.SetDefault("features.emafastperiod", d.Features.EmaFastPeriod)
	v.SetDefault("features.emaslowperiod", d.Features.EmaSlowPeriod)
	v.SetDefault("features.atrperiod", d.Features.AtrPeriod)
	v.SetDefault("features.rsiperiod", d.Features.RsiPeriod)
	v.SetDefault("features.bollingerperiod", d.Features.BollingerPeriod)
	v.SetDefault("features.bollingerstddev", d.Features.BollingerStdDev)
	v.SetDefault("features.vollookback", d.Features.VolLookback)
	v.SetDefault("features.vwaprolling", d.Features.VwapRolling)
	v.SetDefault("features.vwapwindow", d.Features.VwapWindow)

	v.SetDefault("regime.trendthreshold", d.Regime.TrendThreshold)
	v.SetDefault("regime.volwindow", d.Regime.VolWindow)
	v.SetDefault("regime.highvolpercentile", d.Regime.HighVolPercentile)
	v.SetDefault("regime.lowvolpercentile", d.Regime.LowVolPercentile)
	v.SetDefault("regime.ambiguitythreshold", d.Regime.AmbiguityThreshold)

	v.SetDefault("risk.limits.maxpositionsize", d.Risk.Limits.MaxPositionSize)
	v.SetDefault("risk.limits.maxdrawdownpct", d.Risk.Limits.MaxDrawdownPct)
	v.SetDefault("risk.limits.maxdailyloss", d.Risk.Limits.MaxDailyLoss)
	v.SetDefault("risk.minconfidence", d.Risk.MinConfidence)
	v.SetDefault("risk.adversemovepct", d.Risk.AdverseMovePct)
	v.SetDefault("risk.allowshorting", d.Risk.AllowShorting)

	v.SetDefault("lob.latencyms", d.Lob.LatencyMs)
	v.SetDefault("lob.slippage.bpsperdepthratio", d.Lob.Slippage.BpsPerDepthRatio)
	v.SetDefault("lob.slippage.maxbps", d.Lob.Slippage.MaxBps)

	v.SetDefault("metrics.annualizationfactor", d.Metrics.AnnualizationFactor)
}

// Hash is a stable digest of the full configuration, recorded in the run
// manifest so result rows are traceable to exact parameters.
func (c Config) Hash() string {
	b, _ := json.Marshal(c)
	return fmt.Sprintf("%x", sha256.Sum256(b))
}
