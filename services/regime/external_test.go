package regime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrhb33/quantsim/services/features"
)

func TestRemoteClassifierSuccess(t *testing.T) {
	rc := NewRemoteClassifier(func(context.Context, features.FeatureSet) (State, error) {
		return State{Regime: Trending, Confidence: 0.8}, nil
	}, time.Second)

	st, ok := rc.Classify(features.FeatureSet{})
	require.True(t, ok)
	assert.Equal(t, Trending, st.Regime)
}

func TestRemoteClassifierErrorIsUnavailable(t *testing.T) {
	rc := NewRemoteClassifier(func(context.Context, features.FeatureSet) (State, error) {
		return State{}, errors.New("upstream down")
	}, time.Second)

	_, ok := rc.Classify(features.FeatureSet{})
	assert.False(t, ok)
}

func TestRemoteClassifierTimeout(t *testing.T) {
	rc := NewRemoteClassifier(func(ctx context.Context, _ features.FeatureSet) (State, error) {
		time.Sleep(500 * time.Millisecond)
		return State{Regime: Trending, Confidence: 1}, nil
	}, 20*time.Millisecond)

	start := time.Now()
	_, ok := rc.Classify(features.FeatureSet{})
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second, "timeout bounds the wait")
}

func TestRemoteClassifierRejectsBadConfidence(t *testing.T) {
	rc := NewRemoteClassifier(func(context.Context, features.FeatureSet) (State, error) {
		return State{Regime: Trending, Confidence: 1.5}, nil
	}, time.Second)

	_, ok := rc.Classify(features.FeatureSet{})
	assert.False(t, ok)
}

func TestRemoteClassifierNilFunc(t *testing.T) {
	rc := &RemoteClassifier{}
	_, ok := rc.Classify(features.FeatureSet{})
	assert.False(t, ok)
}
