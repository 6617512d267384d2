package replay

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/mrhb33/quantsim/services/market"
)

// DataIntegrityError reports malformed or non-monotonic input data. It is
// the only fatal condition in a run.
type DataIntegrityError struct {
	Symbol string
	PrevTs int64
	Ts     int64
	Detail string
}

func (e *DataIntegrityError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("data integrity: %s", e.Detail)
	}
	return fmt.Sprintf("data integrity: %s timestamps decrease %d -> %d", e.Symbol, e.PrevTs, e.Ts)
}

// Replayer emits a finite, time-ordered event sequence and can be reset to
// the start without re-parsing, so multiple configurations run over
// identical data.
type Replayer struct {
	events []market.Event
	cursor int
	err    error
}

// New builds a replayer over a fully loaded dataset. Events are stably
// sorted by (timestamp, sequence id); the original sequence ids assigned at
// load time break ties deterministically. Per-symbol timestamps decreasing
// in load order mean the source itself is corrupt; sorting would silently
// mask that, so it is checked before the sort and surfaced on the first
// Next call.
func New(events []market.Event) *Replayer {
	err := checkMonotonic(events)
	sorted := make([]market.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Ts != sorted[j].Ts {
			return sorted[i].Ts < sorted[j].Ts
		}
		return sorted[i].Seq < sorted[j].Seq
	})
	return &Replayer{events: sorted, err: err}
}

func checkMonotonic(events []market.Event) error {
	lastTs := make(map[string]int64)
	for _, ev := range events {
		if prev, seen := lastTs[ev.Symbol]; seen && ev.Ts < prev {
			return &DataIntegrityError{Symbol: ev.Symbol, PrevTs: prev, Ts: ev.Ts}
		}
		lastTs[ev.Symbol] = ev.Ts
	}
	return nil
}

// Len is the total number of events in the dataset.
func (r *Replayer) Len() int { return len(r.events) }

// Next returns the next event. ok is false when the sequence is exhausted.
// A dataset that failed the monotonicity check fails here with its
// DataIntegrityError before any event is emitted.
func (r *Replayer) Next() (ev market.Event, ok bool, err error) {
	if r.err != nil {
		return market.Event{}, false, r.err
	}
	if r.cursor >= len(r.events) {
		return market.Event{}, false, nil
	}
	ev = r.events[r.cursor]
	r.cursor++
	return ev, true, nil
}

// Reset rewinds to the first event.
func (r *Replayer) Reset() {
	r.cursor = 0
}

// Checksum digests the ordered dataset so run manifests can prove two runs
// saw identical data.
func (r *Replayer) Checksum() string {
	h := sha256.New()
	var buf [8]byte
	writeI64 := func(v int64) {
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	writeF64 := func(v float64) {
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	for _, ev := range r.events {
		writeI64(ev.Ts)
		h.Write([]byte(ev.Symbol))
		writeI64(int64(ev.Kind))
		if ev.Kline != nil {
			writeF64(ev.Kline.Open)
			writeF64(ev.Kline.High)
			writeF64(ev.Kline.Low)
			writeF64(ev.Kline.Close)
			writeF64(ev.Kline.Volume)
		}
		if ev.Trade != nil {
			writeF64(ev.Trade.Price)
			writeF64(ev.Trade.Qty)
		}
		if ev.Book != nil {
			for _, l := range ev.Book.Bids {
				writeF64(l.Price)
				writeF64(l.Qty)
			}
			for _, l := range ev.Book.Asks {
				writeF64(l.Price)
				writeF64(l.Qty)
			}
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
