// Package event defines the normalized market event record produced by
// source adapters and consumed by the trigger evaluator.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Severity orders events from routine to urgent.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRanks = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordinal used for min-severity comparison. Unknown
// severities rank lowest.
func (s Severity) Rank() int {
	return severityRanks[s]
}

func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// Category classifies the kind of signal an event carries.
type Category string

const (
	CategoryMarket    Category = "market"
	CategoryPrice     Category = "price"
	CategoryVolume    Category = "volume"
	CategoryLiquidity Category = "liquidity"
	CategorySocial    Category = "social"
	CategoryNews      Category = "news"
	CategoryOnChain   Category = "onchain"
	CategoryWallet    Category = "wallet"
	CategoryTrade     Category = "trade"
	CategorySystem    Category = "system"
	CategoryCustom    Category = "custom"
)

// Event is a normalized market event. Immutable once created; the
// engine deduplicates on ID so the same event is evaluated at most once.
type Event struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	Category    Category       `json:"category"`
	Source      string         `json:"source"`
	Severity    Severity       `json:"severity"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	MarketID    string         `json:"market_id,omitempty"`
	OutcomeID   string         `json:"outcome_id,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Processed   bool           `json:"processed"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`
}

// New builds an event with a fresh id and current timestamp.
func New(category Category, source string, severity Severity, title string) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Category:  category,
		Source:    source,
		Severity:  severity,
		Title:     title,
		Payload:   make(map[string]any),
	}
}

// Validate reports whether the event carries the minimum required fields.
func (e Event) Validate() error {
	if e.ID == "" {
		return ErrMissingID
	}
	if e.Category == "" {
		return ErrMissingCategory
	}
	if e.Source == "" {
		return ErrMissingSource
	}
	return nil
}
