package signal

import (
	"fmt"
	"sync"
	"sync/atomic"

	"polyedge/internal/event"
	"polyedge/internal/gateway/notifier"
	"polyedge/internal/logger"
	"polyedge/internal/trigger"
	"polyedge/internal/types"
)

// TradeSink receives synthesized signals, typically the engine's order
// pipeline feeding the event-driven strategy.
type TradeSink interface {
	ConsumeSignal(sig Signal) error
}

// TradingControl pauses or resumes new order flow; implemented by the
// risk gate's circuit breaker.
type TradingControl interface {
	Pause(reason string)
	Resume()
}

// Dispatcher routes a firing's actions to their collaborators. Delivery
// is exactly-once per (firing, action): a retried dispatch of the same
// firing is a no-op for actions already delivered. One action's failure
// never blocks the others.
type Dispatcher struct {
	notifier  notifier.TextNotifier
	tradeSink TradeSink
	control   TradingControl

	mu        sync.Mutex
	delivered map[string]struct{}
	order     []string
	cap       int

	failures atomic.Int64
}

func NewDispatcher(n notifier.TextNotifier, sink TradeSink, control TradingControl) *Dispatcher {
	return &Dispatcher{
		notifier:  n,
		tradeSink: sink,
		control:   control,
		delivered: make(map[string]struct{}),
		cap:       8192,
	}
}

// Failures returns the count of action deliveries that failed.
func (d *Dispatcher) Failures() int64 {
	return d.failures.Load()
}

// Dispatch delivers every action of the firing. Errors are recorded,
// never returned to the evaluator.
func (d *Dispatcher) Dispatch(f trigger.Firing) {
	for idx, action := range f.Trigger.Actions {
		key := fmt.Sprintf("%s|%s|%d", f.Trigger.ID, f.Event.ID, idx)
		if !d.claim(key) {
			logger.Debugf("dispatcher: duplicate delivery suppressed key=%s", key)
			continue
		}
		if err := d.deliver(f, action); err != nil {
			d.failures.Add(1)
			logger.Warnf("dispatcher: action %s of trigger %s failed: %v",
				action.Type, f.Trigger.Name, err)
		}
	}
}

// claim marks the idempotency key delivered; returns false when the
// same (firing, action) was already handled.
func (d *Dispatcher) claim(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.delivered[key]; ok {
		return false
	}
	d.delivered[key] = struct{}{}
	d.order = append(d.order, key)
	if len(d.order) > d.cap {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.delivered, oldest)
	}
	return true
}

func (d *Dispatcher) deliver(f trigger.Firing, action trigger.Action) error {
	switch action.Type {
	case trigger.ActionNotify:
		return d.notify(f, action, "")
	case trigger.ActionAlert:
		return d.notify(f, action, "⚠️ ")
	case trigger.ActionLog:
		logger.Infof("trigger %s fired: %s", f.Trigger.Name, f.Event.Title)
		return nil
	case trigger.ActionTrade:
		return d.trade(f, action)
	case trigger.ActionPauseTrading:
		if d.control == nil {
			return fmt.Errorf("no trading control wired")
		}
		d.control.Pause(fmt.Sprintf("trigger %s", f.Trigger.Name))
		return nil
	case trigger.ActionResumeTrading:
		if d.control == nil {
			return fmt.Errorf("no trading control wired")
		}
		d.control.Resume()
		return nil
	default:
		return fmt.Errorf("unsupported action type %q", action.Type)
	}
}

func (d *Dispatcher) notify(f trigger.Firing, action trigger.Action, prefix string) error {
	if d.notifier == nil {
		return fmt.Errorf("no notifier wired")
	}
	title := f.Event.Title
	if title == "" {
		title = string(f.Event.Category) + " event"
	}
	msg := notifier.StructuredMessage{
		Icon:  prefix + "🔔",
		Title: fmt.Sprintf("Trigger fired: %s", f.Trigger.Name),
		Sections: []notifier.MessageSection{{
			Lines: []string{
				fmt.Sprintf("event: %s", title),
				fmt.Sprintf("market: %s", f.Event.MarketID),
				fmt.Sprintf("severity: %s", f.Event.Severity),
			},
		}},
		Timestamp: f.FiredAt,
	}
	if custom, ok := action.Params["message"].(string); ok && custom != "" {
		msg.Footer = custom
	}
	return d.notifier.SendText(msg.RenderMarkdown())
}

func (d *Dispatcher) trade(f trigger.Firing, action trigger.Action) error {
	if d.tradeSink == nil {
		return fmt.Errorf("no trade sink wired")
	}
	sig := New(f.Trigger.ID, f.Event.ID, paramString(action.Params, "strategy", "event_driven"))
	sig.MarketID = f.Event.MarketID
	sig.OutcomeID = f.Event.OutcomeID
	sig.DirectionBias = directionBias(action.Params)
	sig.Confidence = confidence(action.Params, f.Event.Severity)
	return d.tradeSink.ConsumeSignal(sig)
}

func directionBias(params map[string]any) types.Direction {
	switch paramString(params, "direction", "buy") {
	case "sell":
		return types.DirectionSell
	default:
		return types.DirectionBuy
	}
}

// confidence prefers the action's explicit value and otherwise derives
// one from event severity.
func confidence(params map[string]any, sev event.Severity) float64 {
	if v, ok := params["confidence"]; ok {
		switch n := v.(type) {
		case float64:
			return clamp01(n)
		case int:
			return clamp01(float64(n))
		}
	}
	return clamp01(0.3 + 0.15*float64(sev.Rank()))
}

func paramString(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
