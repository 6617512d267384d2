package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mrhb33/quantsim/proto"
	"github.com/mrhb33/quantsim/services/ledger"
	"github.com/mrhb33/quantsim/services/lob"
	"github.com/mrhb33/quantsim/services/market"
)

// Paper is an in-process venue backed by the fill simulator and a ledger.
// Unlike the backtest loop, which owns its collaborators single-threaded,
// Paper serializes access so a recorder feeding it market data and a caller
// executing orders can share one instance.
type Paper struct {
	mu     sync.Mutex
	sim    *lob.Simulator
	book   *ledger.Ledger
	klines map[string][]market.Kline
	books  map[string]*market.BookSnapshot
	log    *logrus.Entry
	seq    int
}

var _ Provider = (*Paper)(nil)

func NewPaper(simCfg lob.Config, initialBalance decimal.Decimal, fees ledger.FeeModel) *Paper {
	return &Paper{
		sim:    lob.NewSimulator(simCfg),
		book:   ledger.New(initialBalance, fees),
		klines: make(map[string][]market.Kline),
		books:  make(map[string]*market.BookSnapshot),
		log:    logrus.WithField("component", "paper_provider"),
	}
}

func (p *Paper) Name() string { return "paper" }

// Feed pushes one market event into the venue; the recorder calls this for
// every message it decodes.
func (p *Paper) Feed(ev market.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch ev.Kind {
	case market.KindKline:
		p.sim.ApplyKline(ev.Symbol, ev.Kline, ev.Ts)
		p.book.Mark(ev.Symbol, ev.Kline.Close)
		kl := append(p.klines[ev.Symbol], *ev.Kline)
		if len(kl) > 1000 {
			kl = kl[len(kl)-1000:]
		}
		p.klines[ev.Symbol] = kl
	case market.KindOrderbook:
		p.sim.ApplySnapshot(ev.Symbol, ev.Book, ev.Ts)
		p.books[ev.Symbol] = ev.Book
	case market.KindTrade:
		p.book.Mark(ev.Symbol, ev.Trade.Price)
	}
}

func (p *Paper) GetOrderbook(_ context.Context, symbol string) (*market.BookSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap, ok := p.books[symbol]
	if !ok {
		return nil, fmt.Errorf("paper: no orderbook for %s", symbol)
	}
	return snap, nil
}

// GetKlines returns the newest bars seen for a symbol. The venue records
// whatever interval it was fed, so the interval argument is informational.
func (p *Paper) GetKlines(_ context.Context, symbol, _ string, limit int) ([]market.Kline, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kl := p.klines[symbol]
	if len(kl) == 0 {
		return nil, fmt.Errorf("paper: no klines for %s", symbol)
	}
	if limit > 0 && len(kl) > limit {
		kl = kl[len(kl)-limit:]
	}
	out := make([]market.Kline, len(kl))
	copy(out, kl)
	return out, nil
}

func (p *Paper) GetPortfolioState(_ context.Context) (ledger.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.book.Snapshot(), nil
}

// ExecuteOrder submits against the current simulated book and settles any
// executed quantity into the ledger immediately.
func (p *Paper) ExecuteOrder(_ context.Context, o market.Order) (*proto.ExecutionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UnixMilli()
	if o.ID == "" {
		p.seq++
		o.ID = fmt.Sprintf("paper-%06d", p.seq)
	}
	f := p.sim.Submit(o, now)
	for _, rel := range p.sim.Advance(now) {
		if rel.Zero() {
			p.log.WithField("order", rel.OrderID).Debug("released order met no liquidity")
			continue
		}
		if err := p.book.ApplyFill(rel); err != nil {
			p.log.WithError(err).Error("released fill rejected")
		}
	}
	if !f.Zero() {
		if err := p.book.ApplyFill(f); err != nil {
			return nil, err
		}
	}
	res := ResultFromFill(o, f)
	p.log.WithFields(logrus.Fields{
		"order":  o.ID,
		"symbol": o.Symbol,
		"status": res.Status,
	}).Info("order executed")
	return res, nil
}
