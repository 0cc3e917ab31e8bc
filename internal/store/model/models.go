package model

import (
	"gorm.io/datatypes"
)

// EventModel is the durable copy of a processed event. The in-memory
// ring is the hot query path; this table is the archive.
type EventModel struct {
	ID          int64          `gorm:"column:id;primaryKey"`
	EventID     string         `gorm:"column:event_id;uniqueIndex"`
	Category    string         `gorm:"column:category;index"`
	Source      string         `gorm:"column:source;index"`
	Severity    string         `gorm:"column:severity"`
	Title       string         `gorm:"column:title"`
	Description string         `gorm:"column:description"`
	MarketID    string         `gorm:"column:market_id;index"`
	OutcomeID   string         `gorm:"column:outcome_id"`
	Payload     datatypes.JSON `gorm:"column:payload;type:TEXT"`
	Tags        datatypes.JSON `gorm:"column:tags;type:TEXT"`
	Processed   bool           `gorm:"column:processed"`
	Timestamp   int64          `gorm:"column:timestamp;index"`
	CreatedAt   int64          `gorm:"column:created_at"`
}

func (EventModel) TableName() string { return "events" }

// TriggerModel persists trigger definitions created over the API so
// they survive restarts. File-loaded triggers are not persisted; the
// file is their source of truth.
type TriggerModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	TriggerID     string         `gorm:"column:trigger_id;uniqueIndex"`
	Name          string         `gorm:"column:name"`
	Description   string         `gorm:"column:description"`
	Enabled       bool           `gorm:"column:enabled"`
	Categories    datatypes.JSON `gorm:"column:categories;type:TEXT"`
	Sources       datatypes.JSON `gorm:"column:sources;type:TEXT"`
	MinSeverity   string         `gorm:"column:min_severity"`
	Conditions    datatypes.JSON `gorm:"column:conditions;type:TEXT"`
	ConditionType string         `gorm:"column:condition_type"`
	Actions       datatypes.JSON `gorm:"column:actions;type:TEXT"`
	Cooldown      int            `gorm:"column:cooldown_seconds"`
	MarketIDs     datatypes.JSON `gorm:"column:market_ids;type:TEXT"`
	OutcomeIDs    datatypes.JSON `gorm:"column:outcome_ids;type:TEXT"`
	Tags          datatypes.JSON `gorm:"column:tags;type:TEXT"`
	Expiration    *int64         `gorm:"column:expiration"`
	CreatedAt     int64          `gorm:"column:created_at"`
	UpdatedAt     int64          `gorm:"column:updated_at"`
}

func (TriggerModel) TableName() string { return "triggers" }

type OrderModel struct {
	ID            int64   `gorm:"column:id;primaryKey"`
	OrderID       string  `gorm:"column:order_id;uniqueIndex"`
	MarketID      string  `gorm:"column:market_id;index"`
	OutcomeID     string  `gorm:"column:outcome_id"`
	Direction     string  `gorm:"column:direction"`
	Size          float64 `gorm:"column:size"`
	LimitPrice    float64 `gorm:"column:limit_price"`
	Strategy      string  `gorm:"column:strategy;index"`
	SignalID      string  `gorm:"column:signal_id"`
	Status        string  `gorm:"column:status;index"`
	Reason        string  `gorm:"column:reason"`
	StopLoss      float64 `gorm:"column:stop_loss"`
	TakeProfit    float64 `gorm:"column:take_profit"`
	ExecutedPrice float64 `gorm:"column:executed_price"`
	CreatedAt     int64   `gorm:"column:created_at;index"`
	ExecutedAt    *int64  `gorm:"column:executed_at"`
}

func (OrderModel) TableName() string { return "orders" }

type PositionModel struct {
	ID            int64   `gorm:"column:id;primaryKey"`
	PositionID    string  `gorm:"column:position_id;uniqueIndex"`
	MarketID      string  `gorm:"column:market_id;index"`
	OutcomeID     string  `gorm:"column:outcome_id"`
	Direction     string  `gorm:"column:direction"`
	Size          float64 `gorm:"column:size"`
	EntryPrice    float64 `gorm:"column:entry_price"`
	CurrentPrice  float64 `gorm:"column:current_price"`
	RealizedPnL   float64 `gorm:"column:realized_pnl"`
	UnrealizedPnL float64 `gorm:"column:unrealized_pnl"`
	Strategy      string  `gorm:"column:strategy;index"`
	StopLoss      float64 `gorm:"column:stop_loss"`
	TakeProfit    float64 `gorm:"column:take_profit"`
	OrderID       string  `gorm:"column:order_id;index"`
	State         string  `gorm:"column:state;index"`
	CloseReason   string  `gorm:"column:close_reason"`
	OpenedAt      int64   `gorm:"column:opened_at;index"`
	ClosedAt      *int64  `gorm:"column:closed_at"`
}

func (PositionModel) TableName() string { return "positions" }

// AuditModel archives trigger evaluation outcomes.
type AuditModel struct {
	ID        int64  `gorm:"column:id;primaryKey"`
	TriggerID string `gorm:"column:trigger_id;index"`
	EventID   string `gorm:"column:event_id;index"`
	Matched   bool   `gorm:"column:matched"`
	Reason    string `gorm:"column:reason"`
	At        int64  `gorm:"column:at;index"`
}

func (AuditModel) TableName() string { return "trigger_audit" }
