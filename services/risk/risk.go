package risk

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mrhb33/quantsim/services/ledger"
	"github.com/mrhb33/quantsim/services/market"
	"github.com/mrhb33/quantsim/strategies"
)

// Limits are the hard risk limits for a run.
type Limits struct {
	MaxPositionSize float64 // base-asset cap per symbol
	MaxDrawdownPct  float64 // fraction of peak equity, e.g. 0.2
	MaxDailyLoss    float64 // quote currency, resets at UTC midnight
}

// Config tunes sizing behavior on top of the hard limits.
type Config struct {
	Limits        Limits
	MinConfidence float64
	// AdverseMovePct is the assumed worst-case adverse move used to project
	// drawdown for a candidate order.
	AdverseMovePct float64
	AllowShorting  bool
}

func DefaultConfig() Config {
	return Config{
		Limits: Limits{
			MaxPositionSize: 1.0,
			MaxDrawdownPct:  0.20,
			MaxDailyLoss:    1000,
		},
		MinConfidence:  0.3,
		AdverseMovePct: 0.05,
		AllowShorting:  true,
	}
}

// Reason codes attached to rejections.
const (
	ReasonNone           = ""
	ReasonLowConfidence  = "confidence_below_threshold"
	ReasonShortsDisabled = "shorting_disabled"
	ReasonAlreadyInside  = "already_positioned"
	ReasonDailyLoss      = "daily_loss_limit"
	ReasonDrawdown       = "drawdown_limit"
	ReasonZeroSize       = "size_zero"
)

// Decision is the outcome of a risk check. Approved decisions carry an
// order; everything else is a reason-coded pass or rejection. A rejection
// is an expected operating state, never an error.
type Decision struct {
	Order    *market.Order
	Approved bool
	Rejected bool
	Reason   string
	Flatten  bool // order closes existing exposure rather than opening new
}

// Manager sizes and approves or rejects signals against the portfolio
// state. Sizing is deterministic: identical inputs produce identical
// decisions. The only internal state is the UTC-day equity anchor used for
// the daily-loss window.
type Manager struct {
	cfg Config
	log *logrus.Entry

	dayKey    int64 // unix day of the current anchor
	dayAnchor float64
	hasAnchor bool
}

func NewManager(cfg Config) *Manager {
	if cfg.AdverseMovePct <= 0 {
		cfg.AdverseMovePct = DefaultConfig().AdverseMovePct
	}
	return &Manager{cfg: cfg, log: logrus.WithField("component", "risk")}
}

// Evaluate checks one signal against the current snapshot. markPrice is the
// latest trade price for the signal's symbol, peakEquity the highest equity
// seen so far in the run, ts the event time in unix ms.
func (m *Manager) Evaluate(sig strategies.Signal, snap ledger.Snapshot, markPrice float64, peakEquity float64, ts int64) Decision {
	m.rollDailyWindow(ts, snap)

	posQty, _ := snap.Positions[sig.Symbol].Float64()

	// Neutral signals flatten any open exposure.
	if sig.Direction == strategies.Neutral {
		return m.flattenDecision(sig, posQty, ts)
	}

	// A signal opposite to the open position closes it first; re-entry
	// happens on a later event once flat.
	if posQty > 0 && sig.Direction == strategies.Short {
		return m.flattenDecision(sig, posQty, ts)
	}
	if posQty < 0 && sig.Direction == strategies.Long {
		return m.flattenDecision(sig, posQty, ts)
	}

	if sig.Confidence < m.cfg.MinConfidence {
		return m.reject(sig, ReasonLowConfidence,
			fmt.Sprintf("confidence %.2f below %.2f", sig.Confidence, m.cfg.MinConfidence))
	}

	if sig.Direction == strategies.Short && !m.cfg.AllowShorting {
		return m.reject(sig, ReasonShortsDisabled, "short entries disabled")
	}

	if posQty != 0 {
		// already positioned in the signal direction; hold
		return Decision{Reason: ReasonAlreadyInside}
	}

	// Daily stop: realized + unrealized loss since the UTC-midnight anchor.
	equity, _ := snap.Equity.Float64()
	if m.hasAnchor && m.cfg.Limits.MaxDailyLoss > 0 {
		if dayPnl := equity - m.dayAnchor; dayPnl <= -m.cfg.Limits.MaxDailyLoss {
			return m.reject(sig, ReasonDailyLoss,
				fmt.Sprintf("daily pnl %.2f breaches limit %.2f", dayPnl, m.cfg.Limits.MaxDailyLoss))
		}
	}

	qty := m.cfg.Limits.MaxPositionSize * sig.Strength * sig.Confidence
	if qty <= 0 || markPrice <= 0 {
		return m.reject(sig, ReasonZeroSize, "candidate size is zero")
	}

	// Project the drawdown if the position immediately moved against us by
	// AdverseMovePct, and scale the order down - never up - to stay inside
	// MaxDrawdownPct of peak equity.
	if m.cfg.Limits.MaxDrawdownPct > 0 && peakEquity > 0 {
		allowedLoss := peakEquity*(1-m.cfg.Limits.MaxDrawdownPct) // equity floor
		budget := equity - allowedLoss
		if budget <= 0 {
			return m.reject(sig, ReasonDrawdown,
				fmt.Sprintf("drawdown %.2f%% already at limit", (peakEquity-equity)/peakEquity*100))
		}
		maxQty := budget / (markPrice * m.cfg.AdverseMovePct)
		if qty > maxQty {
			qty = maxQty
		}
	}
	if qty <= 0 {
		return m.reject(sig, ReasonDrawdown, "no drawdown budget for any size")
	}

	side := market.SideBuy
	if sig.Direction == strategies.Short {
		side = market.SideSell
	}
	return Decision{
		Approved: true,
		Order: &market.Order{
			Symbol:   sig.Symbol,
			Side:     side,
			Quantity: qty,
			Type:     market.OrderMarket,
			SubmitTs: ts,
		},
	}
}

func (m *Manager) flattenDecision(sig strategies.Signal, posQty float64, ts int64) Decision {
	if posQty == 0 {
		return Decision{Reason: ReasonNone}
	}
	side := market.SideSell
	qty := posQty
	if posQty < 0 {
		side = market.SideBuy
		qty = -posQty
	}
	return Decision{
		Approved: true,
		Flatten:  true,
		Order: &market.Order{
			Symbol:   sig.Symbol,
			Side:     side,
			Quantity: qty,
			Type:     market.OrderMarket,
			SubmitTs: ts,
		},
	}
}

func (m *Manager) reject(sig strategies.Signal, reason, detail string) Decision {
	m.log.WithFields(logrus.Fields{
		"symbol":   sig.Symbol,
		"strategy": sig.StrategyID,
		"reason":   reason,
	}).Debug(detail)
	return Decision{Rejected: true, Reason: reason}
}

// rollDailyWindow re-anchors the daily-loss window at the first event of
// each UTC day.
func (m *Manager) rollDailyWindow(ts int64, snap ledger.Snapshot) {
	day := time.UnixMilli(ts).UTC().Truncate(24 * time.Hour).Unix()
	if !m.hasAnchor || day != m.dayKey {
		m.dayKey = day
		m.dayAnchor, _ = snap.Equity.Float64()
		m.hasAnchor = true
	}
}
