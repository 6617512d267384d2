package metrics

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/mrhb33/quantsim/services/ledger"
)

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Ts     int64
	Equity decimal.Decimal
}

// Summary holds run-level performance metrics, computed strictly from the
// finalized trade list and equity curve after the run.
//
// Undefined metrics are sentinels, not errors: WinRate is NaN when there
// are no closed trades; ProfitFactor is +Inf when there are profits but no
// losses, and NaN when there are neither.
type Summary struct {
	Sharpe       float64
	MaxDrawdown  float64 // fraction of peak equity
	WinRate      float64
	ProfitFactor float64
	TotalReturn  float64 // fraction of initial equity
	TotalTrades  int
}

// Config holds metric parameters.
type Config struct {
	// AnnualizationFactor scales the per-period Sharpe; 252 treats each
	// equity sample as one trading day.
	AnnualizationFactor float64
}

func DefaultConfig() Config { return Config{AnnualizationFactor: 252} }

// Compute derives the summary. It never mutates its inputs.
func Compute(cfg Config, trades []ledger.TradeRecord, curve []EquityPoint) Summary {
	if cfg.AnnualizationFactor <= 0 {
		cfg.AnnualizationFactor = DefaultConfig().AnnualizationFactor
	}
	s := Summary{
		Sharpe:       0,
		MaxDrawdown:  0,
		WinRate:      math.NaN(),
		ProfitFactor: math.NaN(),
	}

	s.Sharpe = sharpe(curve, cfg.AnnualizationFactor)
	s.MaxDrawdown = maxDrawdown(curve)
	s.TotalReturn = totalReturn(curve)

	var closed, wins int
	grossProfit := decimal.Zero
	grossLoss := decimal.Zero
	for _, tr := range trades {
		if tr.Open {
			continue
		}
		closed++
		if tr.Pnl.IsPositive() {
			wins++
			grossProfit = grossProfit.Add(tr.Pnl)
		} else {
			grossLoss = grossLoss.Add(tr.Pnl.Neg())
		}
	}
	s.TotalTrades = closed

	if closed > 0 {
		s.WinRate = float64(wins) / float64(closed)
	}

	switch {
	case grossLoss.IsPositive():
		pf, _ := grossProfit.Div(grossLoss).Float64()
		s.ProfitFactor = pf
	case grossProfit.IsPositive():
		// zero losses with positive profits: explicitly infinite
		s.ProfitFactor = math.Inf(1)
	}

	return s
}

func sharpe(curve []EquityPoint, annualization float64) float64 {
	if len(curve) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev, _ := curve[i-1].Equity.Float64()
		cur, _ := curve[i].Equity.Float64()
		if prev == 0 {
			continue
		}
		returns = append(returns, (cur-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var acc float64
	for _, r := range returns {
		d := r - mean
		acc += d * d
	}
	std := math.Sqrt(acc / float64(len(returns)-1))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(annualization)
}

func maxDrawdown(curve []EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak, _ := curve[0].Equity.Float64()
	maxDD := 0.0
	for _, p := range curve {
		eq, _ := p.Equity.Float64()
		if eq > peak {
			peak = eq
		}
		if peak > 0 {
			if dd := (peak - eq) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

func totalReturn(curve []EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	first, _ := curve[0].Equity.Float64()
	last, _ := curve[len(curve)-1].Equity.Float64()
	if first == 0 {
		return 0
	}
	return (last - first) / first
}
