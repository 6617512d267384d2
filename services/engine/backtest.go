package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mrhb33/quantsim/proto"
	"github.com/mrhb33/quantsim/services/features"
	"github.com/mrhb33/quantsim/services/ledger"
	"github.com/mrhb33/quantsim/services/lob"
	"github.com/mrhb33/quantsim/services/market"
	"github.com/mrhb33/quantsim/services/metrics"
	"github.com/mrhb33/quantsim/services/regime"
	"github.com/mrhb33/quantsim/services/replay"
	"github.com/mrhb33/quantsim/services/risk"
	"github.com/mrhb33/quantsim/strategies"
)

// EngineVersion is stamped into run manifests.
const EngineVersion = "1.3.0"

// Backtest wires the full pipeline over one replayable dataset. The same
// Backtest can run repeatedly (parameter tweaks between runs are the
// caller's business); every Run starts from a fresh ledger and fresh
// indicator state, so runs never contaminate each other.
type Backtest struct {
	cfg      Config
	replayer *replay.Replayer
	external regime.External
	log      *logrus.Entry
	checksum string
}

// Option configures optional collaborators.
type Option func(*Backtest)

// WithExternalClassifier attaches the optional regime-classification
// capability consulted on ambiguous reads.
func WithExternalClassifier(ext regime.External) Option {
	return func(b *Backtest) { b.external = ext }
}

func New(cfg Config, r *replay.Replayer, opts ...Option) *Backtest {
	b := &Backtest{
		cfg:      cfg,
		replayer: r,
		log:      logrus.WithField("component", "backtest"),
		checksum: r.Checksum(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Result bundles the run output with the in-memory audit trail.
type Result struct {
	Run      *proto.RunResult
	Trades   []ledger.TradeRecord
	Curve    []metrics.EquityPoint
	Summary  metrics.Summary
	EventLog RunEventLog
}

// Run replays the dataset through the fixed stage order:
// ingest -> features -> regime -> route -> signal -> risk -> fill -> ledger.
// Cancellation is honored only between events; no event is ever partially
// applied.
func (b *Backtest) Run(ctx context.Context) (*Result, error) {
	jobID := uuid.NewString()
	start := time.Now()

	b.replayer.Reset()
	feats := features.NewEngine(b.cfg.Features)
	classifier := regime.NewClassifier(b.cfg.Regime, b.external)
	router := strategies.DefaultRouter(b.cfg.Momentum, b.cfg.MeanRev)
	riskMgr := risk.NewManager(b.cfg.Risk)
	sim := lob.NewSimulator(b.cfg.Lob)
	book := ledger.New(
		decimal.NewFromFloat(b.cfg.InitialBalance),
		ledger.FixedFeeModel{Taker: decimal.NewFromFloat(b.cfg.TakerFee)},
	)

	var (
		curve      []metrics.EquityPoint
		events     RunEventLog
		lastRegime = make(map[string]regime.Regime)
		peakEquity = b.cfg.InitialBalance
		orderSeq   int
	)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		ev, ok, err := b.replayer.Next()
		if err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}
		if !ok {
			break
		}

		fs := feats.Update(ev)

		switch ev.Kind {
		case market.KindOrderbook:
			sim.ApplySnapshot(ev.Symbol, ev.Book, ev.Ts)
		case market.KindKline:
			sim.ApplyKline(ev.Symbol, ev.Kline, ev.Ts)
			book.Mark(ev.Symbol, ev.Kline.Close)
		case market.KindTrade:
			book.Mark(ev.Symbol, ev.Trade.Price)
		}

		// fills whose latency elapsed by this event
		for _, f := range sim.Advance(ev.Ts) {
			b.applyFill(book, &events, f)
		}

		rs := classifier.Classify(fs)
		if prev, seen := lastRegime[ev.Symbol]; !seen || prev != rs.Regime {
			lastRegime[ev.Symbol] = rs.Regime
			events.Append(RunEvent{Ts: ev.Ts, Type: EventRegimeChange, Symbol: ev.Symbol,
				Details: map[string]string{"regime": rs.Regime.String()}})
		}

		strat, err := router.Select(rs.Regime)
		if err != nil {
			return nil, err
		}
		sig := strat.Evaluate(fs, rs)

		snap := book.Snapshot()
		if eq, _ := snap.Equity.Float64(); eq > peakEquity {
			peakEquity = eq
		}

		decision := riskMgr.Evaluate(sig, snap, fs.Price, peakEquity, ev.Ts)
		switch {
		case decision.Rejected:
			observeRejection(decision.Reason)
			events.Append(RunEvent{Ts: ev.Ts, Type: EventRiskRejection, Symbol: ev.Symbol,
				Details: map[string]string{"reason": decision.Reason, "strategy": sig.StrategyID}})
		case decision.Approved:
			orderSeq++
			order := *decision.Order
			order.ID = fmt.Sprintf("%s-%06d", jobID, orderSeq)
			events.Append(RunEvent{Ts: ev.Ts, Type: EventOrderSubmit, Symbol: order.Symbol,
				Details: map[string]string{"side": order.Side.String(), "qty": fmt.Sprintf("%.8f", order.Quantity)}})
			if f := sim.Submit(order, ev.Ts); !f.Zero() || b.cfg.Lob.LatencyMs <= 0 {
				b.applyFill(book, &events, f)
			}
		}

		curve = append(curve, metrics.EquityPoint{Ts: ev.Ts, Equity: book.Equity()})
		observeEquity(book.Equity())
	}

	summary := metrics.Compute(b.cfg.Metrics, book.Trades(), curve)
	observeRunDone()

	res := &Result{
		Run:      b.wireResult(jobID, book, curve, summary),
		Trades:   book.Trades(),
		Curve:    curve,
		Summary:  summary,
		EventLog: events,
	}
	b.log.WithFields(logrus.Fields{
		"job_id":  jobID,
		"events":  b.replayer.Len(),
		"trades":  summary.TotalTrades,
		"elapsed": time.Since(start).Round(time.Millisecond).String(),
	}).Info("backtest complete")
	return res, nil
}

func (b *Backtest) applyFill(book *ledger.Ledger, events *RunEventLog, f market.Fill) {
	if f.Zero() {
		observeFill("unavailable")
		events.Append(RunEvent{Ts: f.Ts, Type: EventFillUnavailable, Symbol: f.Symbol,
			Details: map[string]string{"order": f.OrderID}})
		return
	}
	if err := book.ApplyFill(f); err != nil {
		// ledger rejects only malformed fills, which the simulator never
		// produces; log loudly if that ever changes
		b.log.WithError(err).Error("fill rejected by ledger")
		return
	}
	observeFill("filled")
	events.Append(RunEvent{Ts: f.Ts, Type: EventOrderFill, Symbol: f.Symbol,
		Details: map[string]string{
			"order":    f.OrderID,
			"price":    fmt.Sprintf("%.8f", f.FillPrice),
			"qty":      fmt.Sprintf("%.8f", f.FilledQty),
			"slip_bps": fmt.Sprintf("%.2f", f.SlippageBps),
		}})
}

func (b *Backtest) wireResult(jobID string, book *ledger.Ledger, curve []metrics.EquityPoint, summary metrics.Summary) *proto.RunResult {
	trades := book.Trades()
	wireTrades := make([]*proto.ExecutedTrade, 0, len(trades))
	for _, tr := range trades {
		side := proto.TradeSide_BUY
		if tr.Side == market.SideSell {
			side = proto.TradeSide_SELL
		}
		wireTrades = append(wireTrades, &proto.ExecutedTrade{
			OpenTime:   tr.OpenTs,
			CloseTime:  tr.CloseTs,
			Symbol:     tr.Symbol,
			Side:       side,
			Quantity:   tr.Qty.String(),
			EntryPrice: tr.EntryPrice.String(),
			ExitPrice:  tr.ExitPrice.String(),
			Pnl:        tr.Pnl.String(),
			Fees:       tr.Fees.String(),
			Open:       tr.Open,
		})
	}
	wireCurve := make([]*proto.EquityPoint, 0, len(curve))
	for _, p := range curve {
		wireCurve = append(wireCurve, &proto.EquityPoint{Timestamp: p.Ts, Equity: p.Equity.String()})
	}
	return &proto.RunResult{
		JobID:       jobID,
		Trades:      wireTrades,
		EquityCurve: wireCurve,
		Metrics: &proto.MetricsSummary{
			Sharpe:       fmt.Sprintf("%g", summary.Sharpe),
			MaxDrawdown:  fmt.Sprintf("%g", summary.MaxDrawdown),
			WinRate:      fmt.Sprintf("%g", summary.WinRate),
			ProfitFactor: fmt.Sprintf("%g", summary.ProfitFactor),
			TotalReturn:  fmt.Sprintf("%g", summary.TotalReturn),
			TotalTrades:  summary.TotalTrades,
		},
		Manifest: &proto.RunManifest{
			JobID:         jobID,
			ConfigHash:    b.cfg.Hash(),
			DataChecksum:  b.checksum,
			EngineVersion: EngineVersion,
			CreatedAt:     time.Now().UnixMilli(),
		},
	}
}
