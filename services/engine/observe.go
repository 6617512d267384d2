package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Prometheus metrics for run observability. They are aggregates across
// runs in this process (a sweep updates them from every worker); the
// deterministic result path never reads them.
var (
	mtxRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quantsim_runs_total",
		Help: "Completed backtest runs",
	})

	mtxFills = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quantsim_fills_total",
		Help: "Simulated fills by result",
	}, []string{"result"})

	mtxRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quantsim_risk_rejections_total",
		Help: "Signals rejected by the risk manager, by reason",
	}, []string{"reason"})

	mtxEquity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "quantsim_equity",
		Help: "Equity of the most recently advanced run",
	})
)

func init() {
	prometheus.MustRegister(mtxRuns, mtxFills, mtxRejections, mtxEquity)
}

func observeRunDone()           { mtxRuns.Inc() }
func observeFill(result string) { mtxFills.WithLabelValues(result).Inc() }
func observeRejection(r string) { mtxRejections.WithLabelValues(r).Inc() }
func observeEquity(eq decimal.Decimal) {
	f, _ := eq.Float64()
	mtxEquity.Set(f)
}
