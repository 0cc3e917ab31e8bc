// Package engine wires the pipeline together: event intake, trigger
// evaluation, signal dispatch, strategy polling, risk-gated order
// execution, and position lifecycle. Order and position mutations run
// in a single actor loop; evaluation runs in a worker pool.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"polyedge/internal/event"
	"polyedge/internal/gateway/exchange"
	"polyedge/internal/gateway/marketdata"
	"polyedge/internal/gateway/notifier"
	"polyedge/internal/ledger"
	"polyedge/internal/logger"
	"polyedge/internal/risk"
	"polyedge/internal/signal"
	"polyedge/internal/strategy"
	"polyedge/internal/trigger"
	"polyedge/internal/types"
)

// Config tunes the engine's internals.
type Config struct {
	Workers       int           `toml:"workers"`
	EvalQueue     int           `toml:"eval_queue"`
	ActorQueue    int           `toml:"actor_queue"`
	SubmitTimeout time.Duration `toml:"submit_timeout"`
	RingCapacity  int           `toml:"ring_capacity"`
	DedupCapacity int           `toml:"dedup_capacity"`
}

func (c *Config) defaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.EvalQueue <= 0 {
		c.EvalQueue = 256
	}
	if c.ActorQueue <= 0 {
		c.ActorQueue = 100
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = 30 * time.Second
	}
}

// Store is the persistence the engine writes through. Failures degrade
// durability, never availability.
type Store interface {
	SaveEvent(ev event.Event) error
	SaveOrder(o types.Order) error
}

// Listener observes accepted events, after dedup and before evaluation.
type Listener func(ev event.Event)

type handlerFunc func(env Envelope) error

// Engine is the core actor.
type Engine struct {
	cfg Config

	registry   *trigger.Registry
	evaluator  *trigger.Evaluator
	dispatcher *signal.Dispatcher
	ring       *event.Ring
	dedup      *event.DedupIndex
	book       *ledger.Ledger
	gate       *risk.Gate
	feed       marketdata.Feed
	exch       exchange.Exchange
	store      Store
	notify     notifier.TextNotifier

	strategies  []strategy.Strategy
	byName      map[string]strategy.Strategy
	eventDriven *strategy.EventDriven

	listenerMu sync.RWMutex
	listeners  []Listener

	pendingMu sync.Mutex
	pending   map[string]types.Order // submitted, fill outcome unknown

	evalCh   chan event.Event
	msgCh    chan Envelope
	stopCh   chan struct{}
	wg       sync.WaitGroup
	handlers map[EventType]handlerFunc

	accepted   atomic.Int64
	duplicates atomic.Int64
	rejected   atomic.Int64
}

// Deps are the engine's collaborators.
type Deps struct {
	Registry   *trigger.Registry
	Evaluator  *trigger.Evaluator
	Dispatcher *signal.Dispatcher
	Ledger     *ledger.Ledger
	Gate       *risk.Gate
	Feed       marketdata.Feed
	Exchange   exchange.Exchange
	Store      Store
	Notifier   notifier.TextNotifier
	Strategies []strategy.Strategy
}

func New(cfg Config, deps Deps) *Engine {
	cfg.defaults()
	e := &Engine{
		cfg:        cfg,
		registry:   deps.Registry,
		evaluator:  deps.Evaluator,
		dispatcher: deps.Dispatcher,
		ring:       event.NewRing(cfg.RingCapacity),
		dedup:      event.NewDedupIndex(cfg.DedupCapacity),
		book:       deps.Ledger,
		gate:       deps.Gate,
		feed:       deps.Feed,
		exch:       deps.Exchange,
		store:      deps.Store,
		notify:     deps.Notifier,
		strategies: deps.Strategies,
		byName:     make(map[string]strategy.Strategy, len(deps.Strategies)),
		pending:    make(map[string]types.Order),
		evalCh:     make(chan event.Event, cfg.EvalQueue),
		msgCh:      make(chan Envelope, cfg.ActorQueue),
		stopCh:     make(chan struct{}),
	}
	for _, s := range deps.Strategies {
		e.byName[s.Name()] = s
		if ed, ok := s.(*strategy.EventDriven); ok {
			e.eventDriven = ed
		}
	}
	e.handlers = map[EventType]handlerFunc{
		EvtRunStrategies:  e.handleRunStrategies,
		EvtOrderResult:    e.handleOrderResult,
		EvtCloseResult:    e.handleCloseResult,
		EvtMarkCycle:      e.handleMarkCycle,
		EvtPortfolioCycle: e.handlePortfolioCycle,
		EvtReconcile:      e.handleReconcile,
		EvtManualClose:    e.handleManualClose,
	}
	return e
}

// Ring exposes the in-memory event store for API queries.
func (e *Engine) Ring() *event.Ring { return e.ring }

func (e *Engine) Start() {
	e.wg.Add(1)
	go e.runLoop()
	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go e.evalWorker()
	}
	logger.Infof("engine: started with %d evaluation workers", e.cfg.Workers)
}

func (e *Engine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
	logger.Infof("engine: stopped")
}

// Subscribe registers an event listener. Listeners run inline on the
// submitting goroutine and must not block.
func (e *Engine) Subscribe(l Listener) {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()
	e.listeners = append(e.listeners, l)
}

// SubmitEvent validates, deduplicates and queues an event. A retried
// submission of the same id reports SubmitDuplicate and is not
// evaluated again.
func (e *Engine) SubmitEvent(ctx context.Context, ev event.Event) (SubmitStatus, error) {
	if err := ev.Validate(); err != nil {
		return "", &ValidationError{Field: "event", Msg: err.Error()}
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if e.dedup.Observe(ev.ID) {
		e.duplicates.Add(1)
		logger.Debugf("engine: duplicate event %s from %s", ev.ID, ev.Source)
		return SubmitDuplicate, nil
	}

	e.ring.Add(ev)
	if e.store != nil {
		if err := e.store.SaveEvent(ev); err != nil {
			logger.Warnf("engine: persist event %s failed: %v", ev.ID, err)
		}
	}

	e.listenerMu.RLock()
	listeners := e.listeners
	e.listenerMu.RUnlock()
	for _, l := range listeners {
		l(ev)
	}

	select {
	case e.evalCh <- ev:
	case <-e.stopCh:
		e.dedup.Forget(ev.ID)
		return "", fmt.Errorf("engine: stopped")
	case <-ctx.Done():
		// The event never reached the queue; a retry must not be
		// reported as a duplicate.
		e.dedup.Forget(ev.ID)
		return "", &TransientIOError{Op: "event enqueue", Err: ctx.Err()}
	}
	e.accepted.Add(1)
	return SubmitAccepted, nil
}

// ConsumeSignal feeds a dispatched trade signal to the event-driven
// strategy and nudges the strategy cycle so latency stays low.
func (e *Engine) ConsumeSignal(sig signal.Signal) error {
	if e.eventDriven == nil {
		return fmt.Errorf("engine: no event_driven strategy configured")
	}
	if err := e.eventDriven.ConsumeSignal(sig); err != nil {
		return err
	}
	e.sendAsync(EvtRunStrategies, nil)
	return nil
}

// Send queues an envelope for the actor loop.
func (e *Engine) Send(env Envelope) error {
	select {
	case e.msgCh <- env:
		return nil
	case <-e.stopCh:
		return fmt.Errorf("engine: stopped")
	}
}

// SendSync queues an envelope and waits for the handler's result.
func (e *Engine) SendSync(ctx context.Context, env Envelope) error {
	if env.ReplyCh == nil {
		env.ReplyCh = make(chan error, 1)
	}
	if err := e.Send(env); err != nil {
		return err
	}
	select {
	case err := <-env.ReplyCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopCh:
		return fmt.Errorf("engine: stopped during sync call")
	}
}

func (e *Engine) sendAsync(t EventType, payload any) {
	var raw json.RawMessage
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	env := Envelope{ID: uuid.NewString(), Type: t, Payload: raw, CreatedAt: time.Now()}
	select {
	case e.msgCh <- env:
	case <-e.stopCh:
	default:
		logger.Warnf("engine: actor queue full, dropped %s", t)
	}
}

func (e *Engine) runLoop() {
	defer e.wg.Done()
	logger.Infof("engine: actor loop started")
	for {
		select {
		case env := <-e.msgCh:
			e.handleEnvelope(env)
		case <-e.stopCh:
			logger.Infof("engine: actor loop stopping")
			return
		}
	}
}

func (e *Engine) handleEnvelope(env Envelope) {
	var err error
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("engine: panic handling %s: %v", env.Type, r)
			debug.PrintStack()
			err = fmt.Errorf("panic: %v", r)
		}
		if env.ReplyCh != nil {
			env.ReplyCh <- err
			close(env.ReplyCh)
		}
		if dur := time.Since(start); dur > 100*time.Millisecond {
			logger.Warnf("engine: slow envelope %s took %v", env.Type, dur)
		}
	}()

	handler, ok := e.handlers[env.Type]
	if !ok {
		logger.Warnf("engine: no handler for envelope type %s", env.Type)
		return
	}
	err = handler(env)
	if err != nil {
		logger.Errorf("engine: handling %s failed: %v", env.Type, err)
	}
}

func (e *Engine) evalWorker() {
	defer e.wg.Done()
	for {
		select {
		case ev := <-e.evalCh:
			firings := e.evaluator.Evaluate(ev)
			for _, f := range firings {
				e.dispatcher.Dispatch(f)
			}
			e.markProcessed(ev)
		case <-e.stopCh:
			return
		}
	}
}

func (e *Engine) markProcessed(ev event.Event) {
	ev.Processed = true
	now := time.Now().UTC()
	ev.ProcessedAt = &now
	if e.store != nil {
		if err := e.store.SaveEvent(ev); err != nil {
			logger.Debugf("engine: mark processed %s failed: %v", ev.ID, err)
		}
	}
}

// Metrics is the engine-level counter snapshot.
func (e *Engine) Metrics() map[string]any {
	strategies := make(map[string]map[string]int64, len(e.strategies))
	for _, s := range e.strategies {
		if c, ok := s.(interface{ Counters() *strategy.Metrics }); ok {
			strategies[s.Name()] = c.Counters().Snapshot()
		}
	}
	return map[string]any{
		"events_accepted":   e.accepted.Load(),
		"events_duplicate":  e.duplicates.Load(),
		"orders_rejected":   e.rejected.Load(),
		"dispatch_failures": e.dispatcher.Failures(),
		"ring_size":         e.ring.Len(),
		"active_positions":  e.book.ActiveCount(),
		"strategies":        strategies,
	}
}
