package features

import (
	"github.com/mrhb33/quantsim/services/market"
)

// Config holds indicator periods. Zero values are replaced by defaults.
type Config struct {
	EmaFastPeriod   int
	EmaSlowPeriod   int
	AtrPeriod       int
	RsiPeriod       int
	BollingerPeriod int
	BollingerStdDev float64
	VolLookback     int
	VwapRolling     bool
	VwapWindow      int
}

// DefaultConfig mirrors the reference parameterization.
func DefaultConfig() Config {
	return Config{
		EmaFastPeriod:   9,
		EmaSlowPeriod:   50,
		AtrPeriod:       14,
		RsiPeriod:       14,
		BollingerPeriod: 20,
		BollingerStdDev: 2.0,
		VolLookback:     20,
		VwapRolling:     true,
		VwapWindow:      100,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.EmaFastPeriod <= 0 {
		c.EmaFastPeriod = d.EmaFastPeriod
	}
	if c.EmaSlowPeriod <= 0 {
		c.EmaSlowPeriod = d.EmaSlowPeriod
	}
	if c.AtrPeriod <= 0 {
		c.AtrPeriod = d.AtrPeriod
	}
	if c.RsiPeriod <= 0 {
		c.RsiPeriod = d.RsiPeriod
	}
	if c.BollingerPeriod <= 0 {
		c.BollingerPeriod = d.BollingerPeriod
	}
	if c.BollingerStdDev <= 0 {
		c.BollingerStdDev = d.BollingerStdDev
	}
	if c.VolLookback <= 0 {
		c.VolLookback = d.VolLookback
	}
	if c.VwapWindow <= 0 {
		c.VwapWindow = d.VwapWindow
	}
	return c
}

// symbolState carries every incremental indicator for one symbol.
type symbolState struct {
	emaFast   *emaState
	emaSlow   *emaState
	atr       *atrState
	rsi       *rsiState
	bollinger *bollingerState
	realVol   *realizedVolState
	vwap      *vwapState

	lastPrice     float64
	hasPrice      bool
	lastImbalance float64
	hasImbalance  bool
	lastVwap      float64
	hasVwap       bool
}

// Engine computes rolling technical indicators per event. State advances only
// through Update, so replaying identical events yields identical feature sets.
type Engine struct {
	cfg     Config
	symbols map[string]*symbolState
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults(), symbols: make(map[string]*symbolState)}
}

func (e *Engine) state(symbol string) *symbolState {
	st, ok := e.symbols[symbol]
	if !ok {
		st = &symbolState{
			emaFast:   newEMA(e.cfg.EmaFastPeriod),
			emaSlow:   newEMA(e.cfg.EmaSlowPeriod),
			atr:       newATR(e.cfg.AtrPeriod),
			rsi:       newRSI(e.cfg.RsiPeriod),
			bollinger: newBollinger(e.cfg.BollingerPeriod, e.cfg.BollingerStdDev),
			realVol:   newRealizedVol(e.cfg.VolLookback),
			vwap:      newVWAP(e.cfg.VwapRolling, e.cfg.VwapWindow),
		}
		e.symbols[symbol] = st
	}
	return st
}

// Update consumes one market event and returns the feature set as of that
// event. Kline events advance every bar-based indicator; trade events advance
// VWAP; orderbook events refresh the imbalance.
func (e *Engine) Update(ev market.Event) FeatureSet {
	st := e.state(ev.Symbol)

	switch ev.Kind {
	case market.KindKline:
		k := ev.Kline
		st.lastPrice = k.Close
		st.hasPrice = true
		st.emaFast.update(k.Close)
		st.emaSlow.update(k.Close)
		st.atr.update(k.High, k.Low, k.Close)
		st.rsi.update(k.Close)
		st.bollinger.update(k.Close)
		st.realVol.update(k.Close)
		st.lastVwap = st.vwap.update(typicalPrice(k), k.Volume)
		st.hasVwap = Valid(st.lastVwap)
	case market.KindTrade:
		t := ev.Trade
		st.lastPrice = t.Price
		st.hasPrice = true
		st.lastVwap = st.vwap.update(t.Price, t.Qty)
		st.hasVwap = Valid(st.lastVwap)
	case market.KindOrderbook:
		st.lastImbalance = Imbalance(ev.Book)
		st.hasImbalance = true
	}

	return e.snapshot(ev.Ts, ev.Symbol, st)
}

func (e *Engine) snapshot(ts int64, symbol string, st *symbolState) FeatureSet {
	fs := FeatureSet{
		Ts:             ts,
		Symbol:         symbol,
		Price:          nan(),
		EmaFast:        nan(),
		EmaSlow:        nan(),
		Atr:            nan(),
		RealizedVol:    nan(),
		ObImbalance:    nan(),
		Vwap:           nan(),
		Rsi:            nan(),
		BollingerUpper: nan(),
		BollingerMid:   nan(),
		BollingerLower: nan(),
	}
	if st.hasPrice {
		fs.Price = st.lastPrice
	}
	if st.emaFast.warm {
		fs.EmaFast = st.emaFast.value
	}
	if st.emaSlow.warm {
		fs.EmaSlow = st.emaSlow.value
	}
	if st.atr.warm {
		fs.Atr = st.atr.value
	}
	if st.rsi.samples >= st.rsi.period {
		fs.Rsi = lastRSI(st.rsi)
	}
	if st.bollinger.window.full() {
		mid := st.bollinger.window.mean()
		band := st.bollinger.stdK * st.bollinger.window.stddev()
		fs.BollingerUpper = mid + band
		fs.BollingerMid = mid
		fs.BollingerLower = mid - band
	}
	if st.realVol.prices.full() {
		fs.RealizedVol = st.realVol.last
	}
	if st.hasImbalance {
		fs.ObImbalance = st.lastImbalance
	}
	if st.hasVwap {
		fs.Vwap = st.lastVwap
	}
	return fs
}

func lastRSI(r *rsiState) float64 {
	if r.avgLoss == 0 {
		return 100.0
	}
	rs := r.avgGain / r.avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

func typicalPrice(k *market.Kline) float64 {
	return (k.High + k.Low + k.Close) / 3.0
}

// Imbalance is (bidVol - askVol)/(bidVol + askVol), bounded to [-1, 1].
// An empty or one-sided book degrades to the bounded extremes.
func Imbalance(book *market.BookSnapshot) float64 {
	if book == nil {
		return nan()
	}
	var bidVol, askVol float64
	for _, l := range book.Bids {
		bidVol += l.Qty
	}
	for _, l := range book.Asks {
		askVol += l.Qty
	}
	total := bidVol + askVol
	if total == 0 {
		return 0
	}
	return clampUnit((bidVol - askVol) / total)
}
