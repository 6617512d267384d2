package replay

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrhb33/quantsim/services/market"
)

func bar(ts int64, symbol string, close float64) market.Event {
	return market.Event{
		Ts:     ts,
		Symbol: symbol,
		Kind:   market.KindKline,
		Kline:  &market.Kline{OpenTimeMs: ts, Open: close, High: close, Low: close, Close: close, Volume: 1},
	}
}

func drain(t *testing.T, r *Replayer) []market.Event {
	t.Helper()
	var out []market.Event
	for {
		ev, ok, err := r.Next()
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func TestReplayOrdersByTimestamp(t *testing.T) {
	r := New([]market.Event{bar(3000, "BTCUSDT", 3), bar(1000, "BTCUSDT", 1), bar(2000, "BTCUSDT", 2)})
	events := drain(t, r)
	require.Len(t, events, 3)
	assert.Equal(t, int64(1000), events[0].Ts)
	assert.Equal(t, int64(3000), events[2].Ts)
}

func TestReplayStableTieBreak(t *testing.T) {
	a := bar(1000, "BTCUSDT", 1)
	b := bar(1000, "BTCUSDT", 2)
	a.Seq, b.Seq = 0, 1

	r := New([]market.Event{b, a})
	events := drain(t, r)
	require.Len(t, events, 2)
	assert.Equal(t, 1.0, events[0].Kline.Close, "equal timestamps replay in load order")
}

func TestReplayDetectsNonMonotonicSymbol(t *testing.T) {
	// same-timestamp events are legal
	events := []market.Event{bar(1000, "BTCUSDT", 1), bar(1000, "BTCUSDT", 2)}
	events[0].Seq, events[1].Seq = 0, 1
	assert.Len(t, drain(t, New(events)), 2)

	// a decrease in load order means the source is corrupt, even though
	// sorting would hide it
	bad := []market.Event{bar(2000, "BTCUSDT", 1), bar(1000, "BTCUSDT", 2)}
	bad[0].Seq, bad[1].Seq = 0, 1
	_, ok, err := New(bad).Next()
	assert.False(t, ok)
	var integrity *DataIntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, "BTCUSDT", integrity.Symbol)
}

func TestReplayOtherSymbolsIndependent(t *testing.T) {
	// interleaved symbols only need monotonicity within each symbol
	events := []market.Event{bar(2000, "BTCUSDT", 1), bar(1000, "ETHUSDT", 2), bar(3000, "BTCUSDT", 3)}
	for i := range events {
		events[i].Seq = uint64(i)
	}
	assert.Len(t, drain(t, New(events)), 3)
}

func TestReplayReset(t *testing.T) {
	r := New([]market.Event{bar(1000, "BTCUSDT", 1), bar(2000, "BTCUSDT", 2)})
	first := drain(t, r)
	r.Reset()
	second := drain(t, r)
	assert.Equal(t, first, second)
}

func TestChecksumIdentifiesDataset(t *testing.T) {
	a := New([]market.Event{bar(1000, "BTCUSDT", 100), bar(2000, "BTCUSDT", 101)})
	b := New([]market.Event{bar(1000, "BTCUSDT", 100), bar(2000, "BTCUSDT", 101)})
	c := New([]market.Event{bar(1000, "BTCUSDT", 100), bar(2000, "BTCUSDT", 101.5)})

	assert.Equal(t, a.Checksum(), b.Checksum())
	assert.NotEqual(t, a.Checksum(), c.Checksum())
}

func TestLoadCSVWithHeaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	csv := "timestamp,open,high,low,close,volume\n" +
		"1700000000000,100,105,95,101,1000\n" +
		"1700000300000,101,106,96,102,1100\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	events, err := LoadCSV(path, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "BTCUSDT", events[0].Symbol)
	assert.Equal(t, 101.0, events[0].Kline.Close)
	assert.Equal(t, int64(1700000300000), events[1].Ts)
}

func TestLoadCSVHeaderless(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("1700000000000,100,105,95,101,1000\n"), 0o644))

	events, err := LoadCSV(path, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 101.0, events[0].Kline.Close)
}

func TestLoadCSVUnixSecondsAndBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	csv := "\xef\xbb\xbftimestamp,open,high,low,close,volume\n" +
		"1700000000,100,105,95,101,1000\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	events, err := LoadCSV(path, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), events[0].Ts, "unix seconds normalize to ms")
}

func TestLoadCSVMalformedRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	csv := "timestamp,open,high,low,close,volume\n" +
		"1700000000000,100,105,not-a-number,101,1000\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	_, err := LoadCSV(path, "BTCUSDT")
	var integrity *DataIntegrityError
	require.ErrorAs(t, err, &integrity)
}

func TestLoadCSVEmptyDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("timestamp,open,high,low,close,volume\n"), 0o644))

	_, err := LoadCSV(path, "BTCUSDT")
	var integrity *DataIntegrityError
	require.True(t, errors.As(err, &integrity))
}

func TestCSVWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recorded.csv")
	w, err := NewCSVWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(bar(1700000000000, "BTCUSDT", 100)))
	require.NoError(t, w.Append(bar(1700000300000, "BTCUSDT", 102)))
	// non-kline rows are skipped silently
	require.NoError(t, w.Append(market.Event{Ts: 1, Kind: market.KindTrade, Trade: &market.TradeTick{Price: 1, Qty: 1}}))
	require.NoError(t, w.Close())

	events, err := LoadCSV(path, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 102.0, events[1].Kline.Close)
}
