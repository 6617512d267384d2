package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mrhb33/quantsim/services/market"
)

// BinanceRecorder streams public market data over the Binance spot
// websocket and normalizes every message into a replayable event. It is a
// dataset capture tool, not an execution venue; recorded streams feed the
// same replayer as historical files.
type BinanceRecorder struct {
	url      string
	interval string
	log      *logrus.Entry
}

func NewBinanceRecorder(interval string) *BinanceRecorder {
	if interval == "" {
		interval = "1m"
	}
	return &BinanceRecorder{
		url:      "wss://stream.binance.com:9443/ws",
		interval: interval,
		log:      logrus.WithField("component", "binance_recorder"),
	}
}

// Record subscribes to trades, klines and depth for the given symbols and
// invokes sink for every decoded event until the context is canceled or the
// connection drops.
func (r *BinanceRecorder) Record(ctx context.Context, symbols []string, sink func(market.Event)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("binance dial: %w", err)
	}
	defer conn.Close()

	params := make([]string, 0, 3*len(symbols))
	for _, s := range symbols {
		s = strings.ToLower(s)
		params = append(params,
			s+"@trade",
			s+"@kline_"+r.interval,
			s+"@depth10@100ms",
		)
	}
	sub := map[string]any{"method": "SUBSCRIBE", "params": params, "id": 1}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("binance subscribe: %w", err)
	}
	r.log.WithField("streams", len(params)).Info("recording")

	// unblock ReadMessage on cancellation
	go func() {
		<-ctx.Done()
		conn.SetReadDeadline(time.Now())
		conn.Close()
	}()

	var seq uint64
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("binance read: %w", err)
		}
		ev, ok := r.decode(raw)
		if !ok {
			continue
		}
		ev.Seq = seq
		seq++
		sink(ev)
	}
}

type wsTrade struct {
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Qty       string `json:"q"`
	Maker     bool   `json:"m"`
}

type wsKline struct {
	Symbol string `json:"s"`
	Kline  struct {
		Start  int64  `json:"t"`
		Open   string `json:"o"`
		High   string `json:"h"`
		Low    string `json:"l"`
		Close  string `json:"c"`
		Volume string `json:"v"`
		Closed bool   `json:"x"`
	} `json:"k"`
}

type wsDepth struct {
	EventTime int64      `json:"E"`
	Symbol    string     `json:"s"`
	Bids      [][]string `json:"b"`
	Asks      [][]string `json:"a"`
}

func (r *BinanceRecorder) decode(raw []byte) (market.Event, bool) {
	var quick struct {
		Event string `json:"e"`
	}
	if err := json.Unmarshal(raw, &quick); err != nil {
		return market.Event{}, false
	}

	switch quick.Event {
	case "trade":
		var t wsTrade
		if err := json.Unmarshal(raw, &t); err != nil {
			return market.Event{}, false
		}
		price, _ := strconv.ParseFloat(t.Price, 64)
		qty, _ := strconv.ParseFloat(t.Qty, 64)
		side := market.SideBuy
		if t.Maker {
			side = market.SideSell
		}
		return market.Event{
			Ts:     t.EventTime,
			Symbol: t.Symbol,
			Kind:   market.KindTrade,
			Trade:  &market.TradeTick{Price: price, Qty: qty, Side: side},
		}, true

	case "kline":
		var k wsKline
		if err := json.Unmarshal(raw, &k); err != nil || !k.Kline.Closed {
			return market.Event{}, false
		}
		open, _ := strconv.ParseFloat(k.Kline.Open, 64)
		high, _ := strconv.ParseFloat(k.Kline.High, 64)
		low, _ := strconv.ParseFloat(k.Kline.Low, 64)
		closeP, _ := strconv.ParseFloat(k.Kline.Close, 64)
		vol, _ := strconv.ParseFloat(k.Kline.Volume, 64)
		return market.Event{
			Ts:     k.Kline.Start,
			Symbol: k.Symbol,
			Kind:   market.KindKline,
			Kline: &market.Kline{
				OpenTimeMs: k.Kline.Start,
				Open:       open, High: high, Low: low, Close: closeP,
				Volume: vol,
			},
		}, true

	case "depthUpdate":
		var d wsDepth
		if err := json.Unmarshal(raw, &d); err != nil {
			return market.Event{}, false
		}
		snap := &market.BookSnapshot{
			Bids: parseLevels(d.Bids),
			Asks: parseLevels(d.Asks),
		}
		if len(snap.Bids) == 0 && len(snap.Asks) == 0 {
			return market.Event{}, false
		}
		return market.Event{
			Ts:     d.EventTime,
			Symbol: d.Symbol,
			Kind:   market.KindOrderbook,
			Book:   snap,
		}, true
	}
	return market.Event{}, false
}

func parseLevels(raw [][]string) []market.Level {
	out := make([]market.Level, 0, len(raw))
	for _, l := range raw {
		if len(l) < 2 {
			continue
		}
		p, _ := strconv.ParseFloat(l[0], 64)
		q, _ := strconv.ParseFloat(l[1], 64)
		if q <= 0 {
			continue
		}
		out = append(out, market.Level{Price: p, Qty: q})
	}
	return out
}
