// Package trigger implements the trigger registry and evaluator: named
// rules that fire actions when matching events arrive, with per-scope
// cooldown suppression.
package trigger

import (
	"time"

	"github.com/google/uuid"

	"polyedge/internal/event"
)

// Operator compares an event payload field against a condition value.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpContains Operator = "contains"
	OpIn       Operator = "in"
)

func (o Operator) Valid() bool {
	switch o {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpContains, OpIn:
		return true
	}
	return false
}

// ConditionType combines condition results: all must hold, or any one.
type ConditionType string

const (
	ConditionAll ConditionType = "all"
	ConditionAny ConditionType = "any"
)

// Condition is a single field test against the event payload.
// A missing field evaluates false, never errors.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
}

// ActionType names what happens when a trigger fires.
type ActionType string

const (
	ActionNotify        ActionType = "notify"
	ActionAlert         ActionType = "alert"
	ActionTrade         ActionType = "trade"
	ActionLog           ActionType = "log"
	ActionPauseTrading  ActionType = "pause_trading"
	ActionResumeTrading ActionType = "resume_trading"
)

// Action is one delivery performed on a firing.
type Action struct {
	Type   ActionType     `json:"type" yaml:"type"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Trigger is a named rule over incoming events. Definitions are mutated
// only through registry operations; cooldown timestamps are the only
// engine-internal mutation and live in the registry, not here.
type Trigger struct {
	ID            string           `json:"id" yaml:"id"`
	Name          string           `json:"name" yaml:"name"`
	Description   string           `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled       bool             `json:"enabled" yaml:"enabled"`
	Categories    []event.Category `json:"categories,omitempty" yaml:"categories,omitempty"`
	Sources       []string         `json:"sources,omitempty" yaml:"sources,omitempty"`
	MinSeverity   event.Severity   `json:"min_severity,omitempty" yaml:"min_severity,omitempty"`
	Conditions    []Condition      `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	ConditionType ConditionType    `json:"condition_type,omitempty" yaml:"condition_type,omitempty"`
	Actions       []Action         `json:"actions,omitempty" yaml:"actions,omitempty"`
	Cooldown      int              `json:"cooldown_seconds" yaml:"cooldown_seconds"`
	MarketIDs     []string         `json:"market_ids,omitempty" yaml:"market_ids,omitempty"`
	OutcomeIDs    []string         `json:"outcome_ids,omitempty" yaml:"outcome_ids,omitempty"`
	Tags          []string         `json:"tags,omitempty" yaml:"tags,omitempty"`
	Expiration    *time.Time       `json:"expiration,omitempty" yaml:"expiration,omitempty"`
	CreatedAt     time.Time        `json:"created_at" yaml:"-"`
	UpdatedAt     time.Time        `json:"updated_at" yaml:"-"`
}

// New returns a trigger with an id, enabled, defaulting to ALL semantics.
func New(name string) Trigger {
	now := time.Now().UTC()
	return Trigger{
		ID:            uuid.NewString(),
		Name:          name,
		Enabled:       true,
		MinSeverity:   event.SeverityInfo,
		ConditionType: ConditionAll,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// MarketScoped reports whether cooldown is keyed per (trigger, market).
func (t Trigger) MarketScoped() bool {
	return len(t.MarketIDs) > 0
}

// ScopeKey returns the cooldown key for an event. Empty market scope
// means the trigger applies to all markets and cools down globally.
func (t Trigger) ScopeKey(marketID string) string {
	if t.MarketScoped() {
		return t.ID + "|" + marketID
	}
	return t.ID
}

// Expired reports whether the trigger's expiration has passed.
func (t Trigger) Expired(now time.Time) bool {
	return t.Expiration != nil && now.After(*t.Expiration)
}

// AppliesTo checks category, source, severity and market/outcome scope.
// Empty scope lists match everything.
func (t Trigger) AppliesTo(ev event.Event) bool {
	if !t.Enabled {
		return false
	}
	if len(t.Categories) > 0 && !containsCategory(t.Categories, ev.Category) {
		return false
	}
	if len(t.Sources) > 0 && !containsString(t.Sources, ev.Source) {
		return false
	}
	if t.MinSeverity != "" && !ev.Severity.AtLeast(t.MinSeverity) {
		return false
	}
	if len(t.MarketIDs) > 0 && !containsString(t.MarketIDs, ev.MarketID) {
		return false
	}
	if len(t.OutcomeIDs) > 0 && !containsString(t.OutcomeIDs, ev.OutcomeID) {
		return false
	}
	return true
}

// Firing records one matched trigger for one event, with snapshots so
// downstream consumers never touch registry state.
type Firing struct {
	Trigger Trigger
	Event   event.Event
	FiredAt time.Time
}

func containsCategory(list []event.Category, c event.Category) bool {
	for _, v := range list {
		if v == c {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
