package trigger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"polyedge/internal/logger"
)

var ErrNotFound = errors.New("trigger: not found")

// Registry holds trigger definitions and per-scope cooldown state.
// Definition reads are served from copies; the cooldown check-and-set is
// atomic under the registry lock so two concurrent evaluations can never
// both pass the cooldown for the same scope.
type Registry struct {
	mu        sync.RWMutex
	triggers  map[string]Trigger
	lastFired map[string]time.Time

	nowFn func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		triggers:  make(map[string]Trigger),
		lastFired: make(map[string]time.Time),
		nowFn:     time.Now,
	}
}

// Add registers a trigger, assigning an id when absent.
func (r *Registry) Add(t Trigger) (Trigger, error) {
	if t.Name == "" {
		return Trigger{}, fmt.Errorf("trigger: name is required")
	}
	if err := validateDefinition(t); err != nil {
		return Trigger{}, err
	}
	now := r.nowFn().UTC()
	if t.ID == "" {
		t = withID(t)
	}
	if t.ConditionType == "" {
		t.ConditionType = ConditionAll
	}
	t.CreatedAt = now
	t.UpdatedAt = now

	r.mu.Lock()
	r.triggers[t.ID] = t
	r.mu.Unlock()
	logger.Debugf("trigger registry: added %s (%s)", t.Name, t.ID)
	return t, nil
}

// Update replaces a trigger definition. Cooldown state is preserved so
// an edit cannot be used to bypass a running cooldown window.
func (r *Registry) Update(t Trigger) (Trigger, error) {
	if err := validateDefinition(t); err != nil {
		return Trigger{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.triggers[t.ID]
	if !ok {
		return Trigger{}, ErrNotFound
	}
	if t.ConditionType == "" {
		t.ConditionType = ConditionAll
	}
	t.CreatedAt = prev.CreatedAt
	t.UpdatedAt = r.nowFn().UTC()
	r.triggers[t.ID] = t
	return t, nil
}

func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.triggers[id]; !ok {
		return ErrNotFound
	}
	delete(r.triggers, id)
	return nil
}

// SetEnabled flips the enablement flag, effective for the next evaluation.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.triggers[id]
	if !ok {
		return ErrNotFound
	}
	t.Enabled = enabled
	t.UpdatedAt = r.nowFn().UTC()
	r.triggers[id] = t
	return nil
}

func (r *Registry) Get(id string) (Trigger, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.triggers[id]
	return t, ok
}

// List returns a snapshot of all trigger definitions.
func (r *Registry) List() []Trigger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Trigger, 0, len(r.triggers))
	for _, t := range r.triggers {
		out = append(out, t)
	}
	return out
}

// ReplaceAll swaps the whole definition set atomically (used by the
// declarative file loader). Cooldown state for surviving ids is kept.
func (r *Registry) ReplaceAll(triggers []Trigger) error {
	next := make(map[string]Trigger, len(triggers))
	now := r.nowFn().UTC()
	for _, t := range triggers {
		if err := validateDefinition(t); err != nil {
			return err
		}
		if t.ID == "" {
			t = withID(t)
		}
		if t.ConditionType == "" {
			t.ConditionType = ConditionAll
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		t.UpdatedAt = now
		next[t.ID] = t
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = next
	for scope := range r.lastFired {
		if _, ok := next[scopeTriggerID(scope)]; !ok {
			delete(r.lastFired, scope)
		}
	}
	return nil
}

// TryFire performs the cooldown test-and-set for one scope: it succeeds
// only when the trigger exists, is enabled, and its cooldown window for
// the event's scope has elapsed, and it stamps last-fired in the same
// critical section.
func (r *Registry) TryFire(id, marketID string, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.triggers[id]
	if !ok || !t.Enabled {
		return false
	}
	scope := t.ScopeKey(marketID)
	if t.Cooldown > 0 {
		if last, ok := r.lastFired[scope]; ok {
			if at.Sub(last) < time.Duration(t.Cooldown)*time.Second {
				return false
			}
		}
	}
	r.lastFired[scope] = at
	return true
}

// LastFired returns the last firing time for a scope, if any.
func (r *Registry) LastFired(id, marketID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.triggers[id]
	if !ok {
		return time.Time{}, false
	}
	last, ok := r.lastFired[t.ScopeKey(marketID)]
	return last, ok
}

// CoolingDown reports whether the scope is still inside its window.
func (r *Registry) CoolingDown(id, marketID string, at time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.triggers[id]
	if !ok || t.Cooldown <= 0 {
		return false
	}
	last, ok := r.lastFired[t.ScopeKey(marketID)]
	if !ok {
		return false
	}
	return at.Sub(last) < time.Duration(t.Cooldown)*time.Second
}

func validateDefinition(t Trigger) error {
	for i, c := range t.Conditions {
		if c.Field == "" {
			return fmt.Errorf("trigger %q: condition %d has no field", t.Name, i)
		}
		if !c.Operator.Valid() {
			return fmt.Errorf("trigger %q: condition %d has unknown operator %q", t.Name, i, c.Operator)
		}
	}
	if t.ConditionType != "" && t.ConditionType != ConditionAll && t.ConditionType != ConditionAny {
		return fmt.Errorf("trigger %q: unknown condition_type %q", t.Name, t.ConditionType)
	}
	if t.Cooldown < 0 {
		return fmt.Errorf("trigger %q: negative cooldown", t.Name)
	}
	return nil
}

func withID(t Trigger) Trigger {
	n := New(t.Name)
	n.Name = t.Name
	id := n.ID
	t.ID = id
	return t
}

func scopeTriggerID(scope string) string {
	for i := 0; i < len(scope); i++ {
		if scope[i] == '|' {
			return scope[:i]
		}
	}
	return scope
}
