package event

import (
	"sort"
	"sync"
	"time"
)

// Ring keeps the most recent accepted events in memory for API queries.
// Oldest events are dropped once capacity is reached.
type Ring struct {
	mu     sync.RWMutex
	events []Event
	cap    int
}

// Filter narrows a Ring query. Zero values match everything.
type Filter struct {
	Category    Category
	Source      string
	MinSeverity Severity
	MarketID    string
	Since       time.Time
	Until       time.Time
	Limit       int
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Ring{cap: capacity}
}

func (r *Ring) Add(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if len(r.events) > r.cap {
		r.events = r.events[len(r.events)-r.cap:]
	}
}

// Query returns matching events, newest first.
func (r *Ring) Query(f Filter) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Event
	for _, ev := range r.events {
		if f.Category != "" && ev.Category != f.Category {
			continue
		}
		if f.Source != "" && ev.Source != f.Source {
			continue
		}
		if f.MinSeverity != "" && !ev.Severity.AtLeast(f.MinSeverity) {
			continue
		}
		if f.MarketID != "" && ev.MarketID != f.MarketID {
			continue
		}
		if !f.Since.IsZero() && ev.Timestamp.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && ev.Timestamp.After(f.Until) {
			continue
		}
		out = append(out, ev)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}
