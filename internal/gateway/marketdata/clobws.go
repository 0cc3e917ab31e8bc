package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"polyedge/internal/event"
	"polyedge/internal/logger"
	"polyedge/internal/types"
)

// EventSink accepts normalized events from source adapters.
type EventSink interface {
	Submit(ctx context.Context, ev event.Event) error
}

// CLOBFeed streams prices, book depth and trades from the market
// websocket into the cache and emits normalized events for the trigger
// pipeline. Reconnects with backoff until the context is cancelled.
type CLOBFeed struct {
	URL     string
	Markets []string
	Cache   *Cache
	Sink    EventSink

	// PriceChangeEventPct emits a price event when a quote moves at
	// least this percentage against the previous quote. Zero disables.
	PriceChangeEventPct float64

	dialer *websocket.Dialer

	mu        sync.Mutex
	lastPrice map[string]float64
	startOnce sync.Once
}

func NewCLOBFeed(url string, markets []string, cache *Cache, sink EventSink) *CLOBFeed {
	return &CLOBFeed{
		URL:                 url,
		Markets:             markets,
		Cache:               cache,
		Sink:                sink,
		PriceChangeEventPct: 1.0,
		dialer:              &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		lastPrice:           make(map[string]float64),
	}
}

func (f *CLOBFeed) Start(ctx context.Context) error {
	if f.URL == "" {
		return fmt.Errorf("clob feed: url required")
	}
	f.startOnce.Do(func() {
		go f.run(ctx)
	})
	return nil
}

func (f *CLOBFeed) run(ctx context.Context) {
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		if err := f.connectAndConsume(ctx); err != nil && ctx.Err() == nil {
			logger.Warnf("clob feed: connection lost: %v, retry in %s", err, delay)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
}

func (f *CLOBFeed) connectAndConsume(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := map[string]any{"type": "subscribe", "channel": "market", "markets": f.Markets}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	logger.Infof("clob feed: subscribed to %d markets", len(f.Markets))

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.handleMessage(ctx, raw)
	}
}

// handleMessage parses one raw feed frame. Unknown or malformed frames
// are skipped, never fatal.
func (f *CLOBFeed) handleMessage(ctx context.Context, raw []byte) {
	if !gjson.ValidBytes(raw) {
		return
	}
	msg := gjson.ParseBytes(raw)
	switch msg.Get("type").String() {
	case "price":
		f.handlePrice(ctx, msg)
	case "book":
		f.handleBook(msg)
	case "trade":
		f.handleTrade(msg)
	}
}

func (f *CLOBFeed) handlePrice(ctx context.Context, msg gjson.Result) {
	q := types.PriceQuote{
		MarketID:  msg.Get("market_id").String(),
		OutcomeID: msg.Get("outcome_id").String(),
		Price:     msg.Get("price").Float(),
		Volume:    msg.Get("volume").Float(),
		Timestamp: time.Now().UTC(),
	}
	if q.MarketID == "" || q.Price <= 0 {
		return
	}
	f.Cache.PushQuote(q)
	f.maybeEmitPriceEvent(ctx, q)
}

func (f *CLOBFeed) handleBook(msg gjson.Result) {
	d := types.Depth{
		MarketID:  msg.Get("market_id").String(),
		OutcomeID: msg.Get("outcome_id").String(),
		Timestamp: time.Now().UTC(),
	}
	msg.Get("bids").ForEach(func(_, lv gjson.Result) bool {
		d.Bids = append(d.Bids, types.DepthLevel{Price: lv.Get("price").Float(), Size: lv.Get("size").Float()})
		return true
	})
	msg.Get("asks").ForEach(func(_, lv gjson.Result) bool {
		d.Asks = append(d.Asks, types.DepthLevel{Price: lv.Get("price").Float(), Size: lv.Get("size").Float()})
		return true
	})
	if d.MarketID == "" {
		return
	}
	f.Cache.PushDepth(d)
}

func (f *CLOBFeed) handleTrade(msg gjson.Result) {
	t := types.WalletTrade{
		Wallet:    msg.Get("wallet").String(),
		MarketID:  msg.Get("market_id").String(),
		OutcomeID: msg.Get("outcome_id").String(),
		Size:      msg.Get("size").Float(),
		Price:     msg.Get("price").Float(),
		Timestamp: time.Now().UTC(),
	}
	if msg.Get("side").String() == "sell" {
		t.Direction = types.DirectionSell
	} else {
		t.Direction = types.DirectionBuy
	}
	if t.MarketID == "" || t.Size <= 0 {
		return
	}
	f.Cache.PushTrade(t)
}

// maybeEmitPriceEvent turns significant quote moves into price events
// for the trigger evaluator.
func (f *CLOBFeed) maybeEmitPriceEvent(ctx context.Context, q types.PriceQuote) {
	if f.Sink == nil || f.PriceChangeEventPct <= 0 {
		return
	}
	k := key(q.MarketID, q.OutcomeID)
	f.mu.Lock()
	prev := f.lastPrice[k]
	f.lastPrice[k] = q.Price
	f.mu.Unlock()
	if prev <= 0 {
		return
	}
	changePct := (q.Price - prev) / prev * 100
	if changePct < f.PriceChangeEventPct && changePct > -f.PriceChangeEventPct {
		return
	}

	sev := event.SeverityMedium
	if changePct >= 3*f.PriceChangeEventPct || changePct <= -3*f.PriceChangeEventPct {
		sev = event.SeverityHigh
	}
	ev := event.New(event.CategoryPrice, "clob", sev,
		fmt.Sprintf("price moved %.2f%% on %s", changePct, q.MarketID))
	ev.MarketID = q.MarketID
	ev.OutcomeID = q.OutcomeID
	ev.Payload["price"] = q.Price
	ev.Payload["previous_price"] = prev
	ev.Payload["price_change_percentage"] = changePct
	if err := f.Sink.Submit(ctx, ev); err != nil {
		logger.Debugf("clob feed: event submit skipped: %v", err)
	}
}
