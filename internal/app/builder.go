package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"polyedge/internal/config"
	"polyedge/internal/engine"
	"polyedge/internal/event"
	"polyedge/internal/gateway/exchange"
	"polyedge/internal/gateway/marketdata"
	"polyedge/internal/gateway/notifier"
	"polyedge/internal/ledger"
	"polyedge/internal/logger"
	"polyedge/internal/pkg/kmutex"
	"polyedge/internal/risk"
	"polyedge/internal/signal"
	"polyedge/internal/store/gormstore"
	"polyedge/internal/strategy"
	httpapi "polyedge/internal/transport/http"
	"polyedge/internal/trigger"
)

// AppBuilder assembles the component graph. Constructor hooks exist so
// tests can substitute stores and exchanges without a config file.
type AppBuilder struct {
	cfg *config.Config

	storeFn    func(string) (*gormstore.Store, error)
	exchangeFn func(config.ExchangeConfig) (exchange.Exchange, error)
	notifierFn func(config.NotifyConfig) notifier.TextNotifier
	serverFn   func(string, *httpapi.Router) (*httpapi.Server, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		storeFn:    gormstore.New,
		exchangeFn: buildExchange,
		notifierFn: buildNotifier,
		serverFn:   httpapi.NewServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// WithExchange overrides the venue adapter (test harnesses).
func WithExchange(exch exchange.Exchange) AppBuilderOption {
	return func(b *AppBuilder) {
		b.exchangeFn = func(config.ExchangeConfig) (exchange.Exchange, error) {
			return exch, nil
		}
	}
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	store, err := b.storeFn(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	markets := kmutex.New()
	book := ledger.New(markets)
	book.SetSink(store)
	restored, err := restorePositions(book, store)
	if err != nil {
		logger.Warnf("position restore failed: %v", err)
	} else if restored > 0 {
		logger.Infof("restored %d active positions", restored)
	}

	cache := marketdata.NewCache()
	gate := risk.NewGate(cfg.Risk, book, cache)

	textNotifier := b.notifierFn(cfg.Notify)

	registry := trigger.NewRegistry()
	audit := trigger.NewAuditTrail(1024, 512)
	evaluator := trigger.NewEvaluator(registry, audit)

	var loader *trigger.Loader
	if path := strings.TrimSpace(cfg.Triggers.Path); path != "" {
		loader, err = trigger.NewLoader(path, registry)
		if err != nil {
			return nil, fmt.Errorf("load triggers: %w", err)
		}
		logger.Infof("loaded %d triggers from %s", len(registry.List()), path)
	}

	relay := &tradeRelay{}
	dispatcher := signal.NewDispatcher(textNotifier, relay, gate)

	exch, err := b.exchangeFn(cfg.Exchange)
	if err != nil {
		return nil, err
	}

	strategies, err := buildStrategies(cfg.Strategies)
	if err != nil {
		return nil, err
	}

	eng := engine.New(engine.Config{
		Workers:       cfg.Engine.Workers,
		EvalQueue:     cfg.Engine.EvalQueue,
		ActorQueue:    cfg.Engine.ActorQueue,
		SubmitTimeout: cfg.Exchange.SubmitTimeout(),
		RingCapacity:  cfg.Engine.RingCapacity,
		DedupCapacity: cfg.Engine.DedupCapacity,
	}, engine.Deps{
		Registry:   registry,
		Evaluator:  evaluator,
		Dispatcher: dispatcher,
		Ledger:     book,
		Gate:       gate,
		Feed:       cache,
		Exchange:   exch,
		Store:      store,
		Notifier:   textNotifier,
		Strategies: strategies,
	})
	relay.bind(eng)

	clob, binance := buildFeeds(cfg.Market, cache, engineSink{eng})

	router := &httpapi.Router{
		Engine:   eng,
		Registry: registry,
		Gate:     gate,
		Book:     book,
		Store:    store,
		Audit:    audit,
	}
	server, err := b.serverFn(cfg.App.HTTPAddr, router)
	if err != nil {
		return nil, fmt.Errorf("http server: %w", err)
	}

	return &App{
		cfg:     cfg,
		eng:     eng,
		server:  server,
		store:   store,
		audit:   audit,
		loader:  loader,
		clob:    clob,
		binance: binance,
		Summary: buildSummary(cfg, strategies, len(registry.List())),
	}, nil
}

func restorePositions(book *ledger.Ledger, store *gormstore.Store) (int, error) {
	positions, err := store.ActivePositions()
	if err != nil {
		return 0, err
	}
	for _, p := range positions {
		book.Restore(p)
	}
	return len(positions), nil
}

func buildExchange(cfg config.ExchangeConfig) (exchange.Exchange, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	switch mode {
	case "", "paper":
		return exchange.NewPaper(cfg.Latency()), nil
	default:
		return nil, fmt.Errorf("unknown exchange mode %q", cfg.Mode)
	}
}

func buildNotifier(cfg config.NotifyConfig) notifier.TextNotifier {
	tg := cfg.Telegram
	if tg.Enabled && tg.BotToken != "" && tg.ChatID != "" {
		return notifier.NewTelegram(tg.BotToken, tg.ChatID)
	}
	return notifier.Noop{}
}

func buildStrategies(cfg config.StrategiesConfig) ([]strategy.Strategy, error) {
	var out []strategy.Strategy
	for _, name := range cfg.Enabled {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "momentum":
			out = append(out, strategy.NewMomentum(cfg.Momentum))
		case "arbitrage":
			out = append(out, strategy.NewArbitrage(cfg.Arbitrage))
		case "mean_reversion":
			out = append(out, strategy.NewMeanReversion(cfg.MeanReversion))
		case "event_driven":
			out = append(out, strategy.NewEventDriven(cfg.EventDriven))
		case "smart_money":
			out = append(out, strategy.NewSmartMoney(cfg.SmartMoney))
		default:
			return nil, fmt.Errorf("unknown strategy %q", name)
		}
	}
	return out, nil
}

func buildFeeds(cfg config.MarketConfig, cache *marketdata.Cache, sink marketdata.EventSink) (*marketdata.CLOBFeed, *marketdata.BinanceFeed) {
	src := cfg.ResolveActiveSource()
	if !src.Enabled {
		logger.Warnf("market source %q disabled, running without live data", src.Name)
		return nil, nil
	}
	switch strings.ToLower(strings.TrimSpace(src.Name)) {
	case "binance":
		feed := marketdata.NewBinanceFeed(src.Symbols, sink)
		if src.PriceChangePct > 0 {
			feed.ChangePct = src.PriceChangePct
		}
		if src.ChangeWindowMinute > 0 {
			feed.Window = time.Duration(src.ChangeWindowMinute) * time.Minute
		}
		return nil, feed
	default:
		feed := marketdata.NewCLOBFeed(src.WSURL, src.Markets, cache, sink)
		if src.PriceChangePct > 0 {
			feed.PriceChangeEventPct = src.PriceChangePct
		}
		return feed, nil
	}
}

// engineSink adapts the engine's submit API to the feed sink interface.
type engineSink struct {
	eng *engine.Engine
}

func (s engineSink) Submit(ctx context.Context, ev event.Event) error {
	_, err := s.eng.SubmitEvent(ctx, ev)
	return err
}

// tradeRelay breaks the dispatcher/engine construction cycle: the
// dispatcher is built first with the relay as its trade sink, then the
// relay is bound to the engine.
type tradeRelay struct {
	mu   sync.RWMutex
	sink signal.TradeSink
}

func (r *tradeRelay) bind(sink signal.TradeSink) {
	r.mu.Lock()
	r.sink = sink
	r.mu.Unlock()
}

func (r *tradeRelay) ConsumeSignal(sig signal.Signal) error {
	r.mu.RLock()
	sink := r.sink
	r.mu.RUnlock()
	if sink == nil {
		return fmt.Errorf("trade sink not bound")
	}
	return sink.ConsumeSignal(sig)
}
