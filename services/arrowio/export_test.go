package arrowio

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrhb33/quantsim/proto"
)

func TestTradesRoundTrip(t *testing.T) {
	trades := []*proto.ExecutedTrade{
		{OpenTime: 1000, CloseTime: 2000, Symbol: "BTCUSDT", Side: proto.TradeSide_BUY,
			Quantity: "1.5", EntryPrice: "100.25", ExitPrice: "110.5", Pnl: "15.375", Fees: "0.21"},
		{OpenTime: 3000, Symbol: "BTCUSDT", Side: proto.TradeSide_SELL,
			Quantity: "2", EntryPrice: "110.5", ExitPrice: "0", Pnl: "0", Fees: "0.1", Open: true},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTrades(&buf, trades))

	r, err := ipc.NewReader(&buf)
	require.NoError(t, err)
	defer r.Release()

	require.True(t, r.Next())
	rec := r.Record()
	require.EqualValues(t, 2, rec.NumRows())

	assert.Equal(t, int64(1000), rec.Column(0).(*array.Int64).Value(0))
	assert.Equal(t, "BTCUSDT", rec.Column(2).(*array.String).Value(0))
	assert.Equal(t, "BUY", rec.Column(3).(*array.String).Value(0))
	assert.Equal(t, "SELL", rec.Column(3).(*array.String).Value(1))
	assert.InDelta(t, 100.25, rec.Column(5).(*array.Float64).Value(0), 1e-9)
	assert.InDelta(t, 15.375, rec.Column(7).(*array.Float64).Value(0), 1e-9)
	assert.False(t, rec.Column(9).(*array.Boolean).Value(0))
	assert.True(t, rec.Column(9).(*array.Boolean).Value(1))

	assert.False(t, r.Next(), "a run exports as a single batch")
}

func TestCurveRoundTrip(t *testing.T) {
	curve := []*proto.EquityPoint{
		{Timestamp: 1000, Equity: "10000"},
		{Timestamp: 2000, Equity: "10010.5"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCurve(&buf, curve))

	r, err := ipc.NewReader(&buf)
	require.NoError(t, err)
	defer r.Release()

	require.True(t, r.Next())
	rec := r.Record()
	require.EqualValues(t, 2, rec.NumRows())
	assert.Equal(t, int64(2000), rec.Column(0).(*array.Int64).Value(1))
	assert.InDelta(t, 10010.5, rec.Column(1).(*array.Float64).Value(1), 1e-9)
}

func TestExportWritesFiles(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "run")
	res := &proto.RunResult{
		Trades:      []*proto.ExecutedTrade{{Symbol: "BTCUSDT", Quantity: "1", EntryPrice: "100", ExitPrice: "110", Pnl: "10", Fees: "0"}},
		EquityCurve: []*proto.EquityPoint{{Timestamp: 1, Equity: "10000"}},
	}
	require.NoError(t, Export(prefix, res))

	for _, name := range []string{prefix + "_trades.arrow", prefix + "_equity.arrow"} {
		fi, err := os.Stat(name)
		require.NoError(t, err)
		assert.Greater(t, fi.Size(), int64(0))
	}
}
