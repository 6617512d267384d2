package strategies

import (
	"github.com/mrhb33/quantsim/services/features"
	"github.com/mrhb33/quantsim/services/regime"
)

// NeutralPolicy emits NEUTRAL unconditionally. It is the default route for
// regimes no directional policy claims, which lets the risk layer flatten
// any open exposure.
type NeutralPolicy struct{}

func (NeutralPolicy) ID() string { return "neutral" }

func (NeutralPolicy) Evaluate(fs features.FeatureSet, _ regime.State) Signal {
	return neutralSignal(fs, "neutral", "no directional policy for current regime")
}
