package features

import "math"

// Incremental indicator state machines. Each one consumes a value per bar and
// reports NaN until its warm-up window is filled. EMA and ATR use
// TradingView-style seeding: SMA of the first N samples, then
// alpha = 2/(N+1) (EMA) or Wilder's RMA (ATR/RSI).

type emaState struct {
	period int
	alpha  float64
	seed   []float64
	value  float64
	warm   bool
}

func newEMA(period int) *emaState {
	return &emaState{
		period: period,
		alpha:  2.0 / float64(period+1),
		seed:   make([]float64, 0, period),
	}
}

func (e *emaState) update(price float64) float64 {
	if !e.warm {
		e.seed = append(e.seed, price)
		if len(e.seed) < e.period {
			return nan()
		}
		var sma float64
		for _, v := range e.seed {
			sma += v
		}
		e.value = sma / float64(e.period)
		e.warm = true
		e.seed = nil
		return e.value
	}
	e.value = price*e.alpha + e.value*(1.0-e.alpha)
	return e.value
}

type atrState struct {
	period    int
	prevClose float64
	hasPrev   bool
	seed      []float64
	value     float64
	warm      bool
}

func newATR(period int) *atrState {
	return &atrState{period: period, seed: make([]float64, 0, period)}
}

func (a *atrState) update(high, low, close float64) float64 {
	if !a.hasPrev {
		a.prevClose = close
		a.hasPrev = true
		return nan()
	}
	tr := math.Max(high-low, math.Max(math.Abs(high-a.prevClose), math.Abs(low-a.prevClose)))
	a.prevClose = close

	if !a.warm {
		a.seed = append(a.seed, tr)
		if len(a.seed) < a.period {
			return nan()
		}
		var sum float64
		for _, v := range a.seed {
			sum += v
		}
		a.value = sum / float64(a.period)
		a.warm = true
		a.seed = nil
		return a.value
	}
	// Wilder's smoothing: RMA = (RMA*(N-1) + TR) / N
	a.value = (a.value*float64(a.period-1) + tr) / float64(a.period)
	return a.value
}

type rsiState struct {
	period    int
	prevClose float64
	hasPrev   bool
	samples   int
	avgGain   float64
	avgLoss   float64
}

func newRSI(period int) *rsiState { return &rsiState{period: period} }

func (r *rsiState) update(close float64) float64 {
	if !r.hasPrev {
		r.prevClose = close
		r.hasPrev = true
		return nan()
	}
	change := close - r.prevClose
	r.prevClose = close

	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	r.samples++
	if r.samples <= r.period {
		r.avgGain += gain
		r.avgLoss += loss
		if r.samples < r.period {
			return nan()
		}
		r.avgGain /= float64(r.period)
		r.avgLoss /= float64(r.period)
	} else {
		n := float64(r.period)
		r.avgGain = (r.avgGain*(n-1) + gain) / n
		r.avgLoss = (r.avgLoss*(n-1) + loss) / n
	}

	if r.avgLoss == 0 {
		// zero average loss clamps RSI to 100 rather than dividing by zero
		return 100.0
	}
	rs := r.avgGain / r.avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// rollingWindow keeps the last n values and running sums for mean/stddev.
type rollingWindow struct {
	size   int
	buf    []float64
	head   int
	filled bool
}

func newRollingWindow(size int) *rollingWindow {
	return &rollingWindow{size: size, buf: make([]float64, 0, size)}
}

func (w *rollingWindow) push(v float64) {
	if len(w.buf) < w.size {
		w.buf = append(w.buf, v)
		if len(w.buf) == w.size {
			w.filled = true
		}
		return
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % w.size
}

func (w *rollingWindow) full() bool { return w.filled }

func (w *rollingWindow) mean() float64 {
	var sum float64
	for _, v := range w.buf {
		sum += v
	}
	return sum / float64(len(w.buf))
}

// stddev is the population standard deviation over the window.
func (w *rollingWindow) stddev() float64 {
	m := w.mean()
	var acc float64
	for _, v := range w.buf {
		d := v - m
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(w.buf)))
}

type bollingerState struct {
	window *rollingWindow
	stdK   float64
}

func newBollinger(period int, stdK float64) *bollingerState {
	return &bollingerState{window: newRollingWindow(period), stdK: stdK}
}

func (b *bollingerState) update(price float64) (upper, mid, lower float64) {
	b.window.push(price)
	if !b.window.full() {
		return nan(), nan(), nan()
	}
	mid = b.window.mean()
	band := b.stdK * b.window.stddev()
	return mid + band, mid, mid - band
}

// realizedVolState computes the stddev of simple returns over a lookback,
// scaled by sqrt(n) to the window horizon.
type realizedVolState struct {
	prices *rollingWindow
	last   float64
}

func newRealizedVol(lookback int) *realizedVolState {
	return &realizedVolState{prices: newRollingWindow(lookback), last: nan()}
}

func (v *realizedVolState) update(price float64) float64 {
	v.prices.push(price)
	if !v.prices.full() {
		return nan()
	}
	ordered := v.prices.ordered()
	returns := make([]float64, 0, len(ordered)-1)
	for i := 1; i < len(ordered); i++ {
		if ordered[i-1] == 0 {
			continue
		}
		returns = append(returns, (ordered[i]-ordered[i-1])/ordered[i-1])
	}
	if len(returns) == 0 {
		return nan()
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var acc float64
	for _, r := range returns {
		d := r - mean
		acc += d * d
	}
	std := math.Sqrt(acc / float64(len(returns)))
	v.last = std * math.Sqrt(float64(len(returns)))
	return v.last
}

// ordered returns window contents in insertion order.
func (w *rollingWindow) ordered() []float64 {
	if len(w.buf) < w.size {
		out := make([]float64, len(w.buf))
		copy(out, w.buf)
		return out
	}
	out := make([]float64, 0, w.size)
	out = append(out, w.buf[w.head:]...)
	out = append(out, w.buf[:w.head]...)
	return out
}

// vwapState supports both cumulative and rolling VWAP.
type vwapState struct {
	rolling bool
	window  int
	prices  []float64
	volumes []float64
	cumPV   float64
	cumVol  float64
}

func newVWAP(rolling bool, window int) *vwapState {
	return &vwapState{rolling: rolling, window: window}
}

func (v *vwapState) update(price, volume float64) float64 {
	if v.rolling {
		v.prices = append(v.prices, price)
		v.volumes = append(v.volumes, volume)
		if len(v.prices) > v.window {
			v.prices = v.prices[1:]
			v.volumes = v.volumes[1:]
		}
		var pv, vol float64
		for i := range v.prices {
			pv += v.prices[i] * v.volumes[i]
			vol += v.volumes[i]
		}
		if vol == 0 {
			return nan()
		}
		return pv / vol
	}
	v.cumPV += price * volume
	v.cumVol += volume
	if v.cumVol == 0 {
		return nan()
	}
	return v.cumPV / v.cumVol
}
