package regime

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mrhb33/quantsim/services/features"
)

// External is an optional classification capability consulted when the
// rule-based confidence is ambiguous. Implementations may be slow or flaky;
// the second return value reports whether the answer is usable. A false
// result never fails the run.
type External interface {
	Classify(fs features.FeatureSet) (State, bool)
}

// RemoteClassifier adapts an arbitrary classify function (typically an
// LLM-backed service) into a synchronous, timeout-bounded External. The
// deterministic replay path only ever sees a completed result or an
// explicit unavailable.
type RemoteClassifier struct {
	fn      func(ctx context.Context, fs features.FeatureSet) (State, error)
	timeout time.Duration
	log     *logrus.Entry
}

func NewRemoteClassifier(fn func(ctx context.Context, fs features.FeatureSet) (State, error), timeout time.Duration) *RemoteClassifier {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RemoteClassifier{
		fn:      fn,
		timeout: timeout,
		log:     logrus.WithField("component", "regime_external"),
	}
}

func (r *RemoteClassifier) Classify(fs features.FeatureSet) (State, bool) {
	if r.fn == nil {
		return State{}, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	type result struct {
		st  State
		err error
	}
	ch := make(chan result, 1)
	go func() {
		st, err := r.fn(ctx, fs)
		ch <- result{st, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			r.log.WithError(res.err).Debug("external classifier unavailable, using rule-based regime")
			return State{}, false
		}
		if res.st.Confidence < 0 || res.st.Confidence > 1 {
			r.log.WithField("confidence", res.st.Confidence).Debug("external classifier returned out-of-range confidence, discarding")
			return State{}, false
		}
		return res.st, true
	case <-ctx.Done():
		r.log.Debug("external classifier timed out, using rule-based regime")
		return State{}, false
	}
}
