package trigger

import (
	"fmt"
	"strings"
	"time"

	"polyedge/internal/event"
)

// Evaluator matches events against registered triggers.
// Evaluation never mutates anything except the cooldown stamp, which is
// applied through the registry's atomic test-and-set.
type Evaluator struct {
	registry *Registry
	audit    *AuditTrail
	nowFn    func() time.Time
}

func NewEvaluator(registry *Registry, audit *AuditTrail) *Evaluator {
	return &Evaluator{
		registry: registry,
		audit:    audit,
		nowFn:    time.Now,
	}
}

// Evaluate runs the event against every candidate trigger and returns
// the firings. Per-trigger failures are isolated: a bad condition only
// makes that condition false.
func (e *Evaluator) Evaluate(ev event.Event) []Firing {
	now := e.nowFn().UTC()
	var fired []Firing

	for _, t := range e.registry.List() {
		if !t.AppliesTo(ev) {
			continue
		}
		if t.Expired(now) {
			e.record(t, ev, false, "expired")
			continue
		}
		if e.registry.CoolingDown(t.ID, ev.MarketID, now) {
			e.record(t, ev, false, "cooldown")
			continue
		}

		matched, reason := e.conditionsMatch(t, ev)
		if !matched {
			e.record(t, ev, false, reason)
			continue
		}

		// The cooldown may have been taken by a concurrent evaluation
		// between the check above and here; TryFire settles it.
		if !e.registry.TryFire(t.ID, ev.MarketID, now) {
			e.record(t, ev, false, "cooldown")
			continue
		}

		e.record(t, ev, true, reason)
		fired = append(fired, Firing{Trigger: t, Event: ev, FiredAt: now})
	}
	return fired
}

func (e *Evaluator) record(t Trigger, ev event.Event, matched bool, reason string) {
	if e.audit == nil {
		return
	}
	e.audit.Record(AuditRecord{
		TriggerID: t.ID,
		EventID:   ev.ID,
		Matched:   matched,
		Reason:    reason,
		At:        e.nowFn().UTC(),
	})
}

func (e *Evaluator) conditionsMatch(t Trigger, ev event.Event) (bool, string) {
	if len(t.Conditions) == 0 {
		return true, "no conditions"
	}

	// Unset combination mode means ALL; a failing condition must never
	// slip through because the type was left blank.
	kind := t.ConditionType
	if kind == "" {
		kind = ConditionAll
	}

	matchedCount := 0
	for i, c := range t.Conditions {
		ok := evalCondition(c, ev.Payload)
		if ok {
			matchedCount++
			if kind == ConditionAny {
				return true, fmt.Sprintf("condition %d matched", i)
			}
		} else if kind != ConditionAny {
			return false, fmt.Sprintf("condition %d failed", i)
		}
	}
	if kind == ConditionAny {
		return false, "no condition matched"
	}
	return true, fmt.Sprintf("all %d conditions matched", matchedCount)
}

// evalCondition applies one operator. Missing fields and type mismatches
// evaluate false.
func evalCondition(c Condition, payload map[string]any) bool {
	if payload == nil {
		return false
	}
	got, ok := payload[c.Field]
	if !ok {
		return false
	}

	switch c.Operator {
	case OpEq:
		return compareEq(got, c.Value)
	case OpNe:
		return !compareEq(got, c.Value)
	case OpGt, OpGte, OpLt, OpLte:
		a, aok := toFloat(got)
		b, bok := toFloat(c.Value)
		if !aok || !bok {
			return false
		}
		switch c.Operator {
		case OpGt:
			return a > b
		case OpGte:
			return a >= b
		case OpLt:
			return a < b
		default:
			return a <= b
		}
	case OpContains:
		return contains(got, c.Value)
	case OpIn:
		return valueIn(got, c.Value)
	default:
		return false
	}
}

func compareEq(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// contains: string substring, or membership when the field is a slice.
func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, fmt.Sprintf("%v", needle))
	case []any:
		for _, item := range h {
			if compareEq(item, needle) {
				return true
			}
		}
	case []string:
		for _, item := range h {
			if item == fmt.Sprintf("%v", needle) {
				return true
			}
		}
	}
	return false
}

// valueIn: the field value is a member of the condition's list.
func valueIn(value, list any) bool {
	switch l := list.(type) {
	case []any:
		for _, item := range l {
			if compareEq(value, item) {
				return true
			}
		}
	case []string:
		s := fmt.Sprintf("%v", value)
		for _, item := range l {
			if item == s {
				return true
			}
		}
	}
	return false
}
