package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	binance "github.com/adshao/go-binance/v2"

	"polyedge/internal/event"
	"polyedge/internal/logger"
)

// BinanceFeed streams spot trades for configured crypto symbols and
// emits price events when a symbol moves beyond the threshold inside
// the sampling window. Prediction markets on crypto outcomes react to
// these through ordinary triggers.
type BinanceFeed struct {
	Symbols   []string
	Sink      EventSink
	ChangePct float64
	Window    time.Duration

	mu      sync.Mutex
	anchors map[string]anchor
	stops   []chan struct{}
}

type anchor struct {
	price float64
	at    time.Time
}

func NewBinanceFeed(symbols []string, sink EventSink) *BinanceFeed {
	return &BinanceFeed{
		Symbols:   symbols,
		Sink:      sink,
		ChangePct: 2.0,
		Window:    5 * time.Minute,
		anchors:   make(map[string]anchor),
	}
}

func (f *BinanceFeed) Start(ctx context.Context) error {
	for _, symbol := range f.Symbols {
		sym := symbol
		handler := func(evt *binance.WsAggTradeEvent) {
			price, err := strconv.ParseFloat(evt.Price, 64)
			if err != nil || price <= 0 {
				return
			}
			f.observe(ctx, sym, price)
		}
		errHandler := func(err error) {
			logger.Warnf("binance feed %s: %v", sym, err)
		}
		_, stopC, err := binance.WsAggTradeServe(sym, handler, errHandler)
		if err != nil {
			f.Stop()
			return fmt.Errorf("binance feed: subscribe %s failed: %w", sym, err)
		}
		f.mu.Lock()
		f.stops = append(f.stops, stopC)
		f.mu.Unlock()
	}
	logger.Infof("binance feed: streaming %d symbols", len(f.Symbols))
	go func() {
		<-ctx.Done()
		f.Stop()
	}()
	return nil
}

func (f *BinanceFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, stopC := range f.stops {
		select {
		case stopC <- struct{}{}:
		default:
		}
	}
	f.stops = nil
}

func (f *BinanceFeed) observe(ctx context.Context, symbol string, price float64) {
	now := time.Now().UTC()
	f.mu.Lock()
	a, ok := f.anchors[symbol]
	if !ok || now.Sub(a.at) > f.Window {
		f.anchors[symbol] = anchor{price: price, at: now}
		f.mu.Unlock()
		return
	}
	changePct := (price - a.price) / a.price * 100
	if changePct < f.ChangePct && changePct > -f.ChangePct {
		f.mu.Unlock()
		return
	}
	// Re-anchor after emitting so the same move is not reported twice.
	f.anchors[symbol] = anchor{price: price, at: now}
	f.mu.Unlock()

	if f.Sink == nil {
		return
	}
	sev := event.SeverityMedium
	if changePct >= 2*f.ChangePct || changePct <= -2*f.ChangePct {
		sev = event.SeverityHigh
	}
	ev := event.New(event.CategoryPrice, "binance", sev,
		fmt.Sprintf("%s moved %.2f%% within %s", symbol, changePct, f.Window))
	ev.Payload["symbol"] = symbol
	ev.Payload["price"] = price
	ev.Payload["price_change_percentage"] = changePct
	if err := f.Sink.Submit(ctx, ev); err != nil {
		logger.Debugf("binance feed: event submit skipped: %v", err)
	}
}
