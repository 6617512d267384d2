package strategies

import (
	"fmt"

	"github.com/mrhb33/quantsim/services/regime"
)

// Router maps regimes to registered strategies. Routing is data, not code:
// new strategies register themselves against regimes without touching the
// dispatch below.
type Router struct {
	byID     map[string]Strategy
	byRegime map[regime.Regime]string
	fallback string
}

// NewRouter builds an empty router with no routes.
func NewRouter() *Router {
	return &Router{
		byID:     make(map[string]Strategy),
		byRegime: make(map[regime.Regime]string),
	}
}

// DefaultRouter wires the stock policy set: TRENDING→momentum,
// RANGING→mean-reversion, everything else→neutral.
func DefaultRouter(mom MomentumConfig, rev MeanReversionConfig) *Router {
	r := NewRouter()
	r.Register(NewMomentum(mom))
	r.Register(NewMeanReversion(rev))
	r.Register(NeutralPolicy{})
	r.Route(regime.Trending, "momentum")
	r.Route(regime.Ranging, "mean_reversion")
	r.Fallback("neutral")
	return r
}

// Register adds a strategy to the registry, replacing any previous strategy
// with the same id.
func (r *Router) Register(s Strategy) {
	r.byID[s.ID()] = s
}

// Route binds a regime to a registered strategy id.
func (r *Router) Route(reg regime.Regime, strategyID string) {
	r.byRegime[reg] = strategyID
}

// Fallback sets the strategy used for regimes with no explicit route.
func (r *Router) Fallback(strategyID string) {
	r.fallback = strategyID
}

// Select resolves the strategy for a regime. An unroutable regime with no
// fallback is a configuration error.
func (r *Router) Select(reg regime.Regime) (Strategy, error) {
	id, ok := r.byRegime[reg]
	if !ok {
		id = r.fallback
	}
	s, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("no strategy registered for regime %s (id %q)", reg, id)
	}
	return s, nil
}
