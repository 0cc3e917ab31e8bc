// Package gormstore is the SQLite persistence layer: event archive,
// trigger definitions, order and position history, trigger audit log.
package gormstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"polyedge/internal/event"
	storemodel "polyedge/internal/store/model"
	"polyedge/internal/trigger"
	"polyedge/internal/types"
)

// Store wraps Gorm + SQLite. Safe for concurrent use; the pool is kept
// small to keep WAL lock contention low.
type Store struct {
	db *gorm.DB
}

var (
	_ trigger.AuditSink = (*Store)(nil)
)

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: database path is empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	// The pure-Go driver understands the _pragma dsn options and needs no cgo.
	dialector := &sqlite.Dialector{DriverName: "sqlite", DSN: dsn}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&storemodel.EventModel{},
		&storemodel.TriggerModel{},
		&storemodel.OrderModel{},
		&storemodel.PositionModel{},
		&storemodel.AuditModel{},
	); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --------------------- Events -------------------------

func (s *Store) SaveEvent(ev event.Event) error {
	if s == nil || s.db == nil {
		return nil
	}
	m := storemodel.EventModel{
		EventID:     ev.ID,
		Category:    string(ev.Category),
		Source:      ev.Source,
		Severity:    string(ev.Severity),
		Title:       ev.Title,
		Description: ev.Description,
		MarketID:    ev.MarketID,
		OutcomeID:   ev.OutcomeID,
		Payload:     toJSON(ev.Payload),
		Tags:        toJSON(ev.Tags),
		Processed:   ev.Processed,
		Timestamp:   ev.Timestamp.Unix(),
		CreatedAt:   time.Now().Unix(),
	}
	return s.db.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"processed"}),
		}).
		Create(&m).Error
}

// RecentEvents returns up to limit archived events, newest first.
func (s *Store) RecentEvents(limit int) ([]event.Event, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	var models []storemodel.EventModel
	if err := s.db.Order("timestamp DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]event.Event, 0, len(models))
	for _, m := range models {
		ev := event.Event{
			ID:          m.EventID,
			Timestamp:   time.Unix(m.Timestamp, 0).UTC(),
			Category:    event.Category(m.Category),
			Source:      m.Source,
			Severity:    event.Severity(m.Severity),
			Title:       m.Title,
			Description: m.Description,
			MarketID:    m.MarketID,
			OutcomeID:   m.OutcomeID,
			Processed:   m.Processed,
		}
		fromJSON(m.Payload, &ev.Payload)
		fromJSON(m.Tags, &ev.Tags)
		out = append(out, ev)
	}
	return out, nil
}

// --------------------- Triggers -------------------------

func (s *Store) SaveTrigger(t trigger.Trigger) error {
	if s == nil || s.db == nil {
		return nil
	}
	m := storemodel.TriggerModel{
		TriggerID:     t.ID,
		Name:          t.Name,
		Description:   t.Description,
		Enabled:       t.Enabled,
		Categories:    toJSON(t.Categories),
		Sources:       toJSON(t.Sources),
		MinSeverity:   string(t.MinSeverity),
		Conditions:    toJSON(t.Conditions),
		ConditionType: string(t.ConditionType),
		Actions:       toJSON(t.Actions),
		Cooldown:      t.Cooldown,
		MarketIDs:     toJSON(t.MarketIDs),
		OutcomeIDs:    toJSON(t.OutcomeIDs),
		Tags:          toJSON(t.Tags),
		CreatedAt:     t.CreatedAt.Unix(),
		UpdatedAt:     t.UpdatedAt.Unix(),
	}
	if t.Expiration != nil {
		exp := t.Expiration.Unix()
		m.Expiration = &exp
	}
	return s.db.
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "trigger_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "description", "enabled", "categories", "sources",
				"min_severity", "conditions", "condition_type", "actions",
				"cooldown_seconds", "market_ids", "outcome_ids", "tags",
				"expiration", "updated_at",
			}),
		}).
		Create(&m).Error
}

func (s *Store) DeleteTrigger(id string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Where("trigger_id = ?", id).Delete(&storemodel.TriggerModel{}).Error
}

func (s *Store) ListTriggers() ([]trigger.Trigger, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var models []storemodel.TriggerModel
	if err := s.db.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]trigger.Trigger, 0, len(models))
	for _, m := range models {
		t := trigger.Trigger{
			ID:            m.TriggerID,
			Name:          m.Name,
			Description:   m.Description,
			Enabled:       m.Enabled,
			MinSeverity:   event.Severity(m.MinSeverity),
			ConditionType: trigger.ConditionType(m.ConditionType),
			Cooldown:      m.Cooldown,
			CreatedAt:     time.Unix(m.CreatedAt, 0).UTC(),
			UpdatedAt:     time.Unix(m.UpdatedAt, 0).UTC(),
		}
		fromJSON(m.Categories, &t.Categories)
		fromJSON(m.Sources, &t.Sources)
		fromJSON(m.Conditions, &t.Conditions)
		fromJSON(m.Actions, &t.Actions)
		fromJSON(m.MarketIDs, &t.MarketIDs)
		fromJSON(m.OutcomeIDs, &t.OutcomeIDs)
		fromJSON(m.Tags, &t.Tags)
		if m.Expiration != nil {
			exp := time.Unix(*m.Expiration, 0).UTC()
			t.Expiration = &exp
		}
		out = append(out, t)
	}
	return out, nil
}

// --------------------- Orders -------------------------

func (s *Store) SaveOrder(o types.Order) error {
	if s == nil || s.db == nil {
		return nil
	}
	m := storemodel.OrderModel{
		OrderID:       o.ID,
		MarketID:      o.MarketID,
		OutcomeID:     o.OutcomeID,
		Direction:     string(o.Direction),
		Size:          o.Size,
		LimitPrice:    o.LimitPrice,
		Strategy:      o.Strategy,
		SignalID:      o.SignalID,
		Status:        string(o.Status),
		Reason:        o.Reason,
		StopLoss:      o.StopLoss,
		TakeProfit:    o.TakeProfit,
		ExecutedPrice: o.ExecutedPrice,
		CreatedAt:     o.CreatedAt.Unix(),
	}
	if o.ExecutedAt != nil {
		at := o.ExecutedAt.Unix()
		m.ExecutedAt = &at
	}
	return s.db.
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "reason", "executed_price", "executed_at",
			}),
		}).
		Create(&m).Error
}

// RecentOrders returns up to limit orders, newest first.
func (s *Store) RecentOrders(limit int) ([]types.Order, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	var models []storemodel.OrderModel
	if err := s.db.Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]types.Order, 0, len(models))
	for _, m := range models {
		o := types.Order{
			ID:            m.OrderID,
			MarketID:      m.MarketID,
			OutcomeID:     m.OutcomeID,
			Direction:     types.Direction(m.Direction),
			Size:          m.Size,
			LimitPrice:    m.LimitPrice,
			Strategy:      m.Strategy,
			SignalID:      m.SignalID,
			Status:        types.OrderStatus(m.Status),
			Reason:        m.Reason,
			StopLoss:      m.StopLoss,
			TakeProfit:    m.TakeProfit,
			ExecutedPrice: m.ExecutedPrice,
			CreatedAt:     time.Unix(m.CreatedAt, 0).UTC(),
		}
		if m.ExecutedAt != nil {
			at := time.Unix(*m.ExecutedAt, 0).UTC()
			o.ExecutedAt = &at
		}
		out = append(out, o)
	}
	return out, nil
}

// --------------------- Positions -------------------------

// SavePosition upserts the position row. Implements the ledger's
// persistence sink.
func (s *Store) SavePosition(p types.Position) error {
	if s == nil || s.db == nil {
		return nil
	}
	m := storemodel.PositionModel{
		PositionID:    p.ID,
		MarketID:      p.MarketID,
		OutcomeID:     p.OutcomeID,
		Direction:     string(p.Direction),
		Size:          p.Size,
		EntryPrice:    p.EntryPrice,
		CurrentPrice:  p.CurrentPrice,
		RealizedPnL:   p.RealizedPnL,
		UnrealizedPnL: p.UnrealizedPnL,
		Strategy:      p.Strategy,
		StopLoss:      p.StopLoss,
		TakeProfit:    p.TakeProfit,
		OrderID:       p.OrderID,
		State:         p.State.String(),
		CloseReason:   p.CloseReason,
		OpenedAt:      p.OpenedAt.Unix(),
	}
	if p.ClosedAt != nil {
		at := p.ClosedAt.Unix()
		m.ClosedAt = &at
	}
	return s.db.
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "position_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"current_price", "realized_pnl", "unrealized_pnl",
				"stop_loss", "take_profit", "state", "close_reason", "closed_at",
			}),
		}).
		Create(&m).Error
}

// ActivePositions loads every non-closed position for startup
// rehydration of the ledger.
func (s *Store) ActivePositions() ([]types.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var models []storemodel.PositionModel
	if err := s.db.Where("state <> ?", types.PositionClosed.String()).
		Order("opened_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]types.Position, 0, len(models))
	for _, m := range models {
		out = append(out, positionFromModel(m))
	}
	return out, nil
}

// Positions returns up to limit positions in any state, newest first.
func (s *Store) Positions(limit int) ([]types.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	var models []storemodel.PositionModel
	if err := s.db.Order("opened_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]types.Position, 0, len(models))
	for _, m := range models {
		out = append(out, positionFromModel(m))
	}
	return out, nil
}

func positionFromModel(m storemodel.PositionModel) types.Position {
	p := types.Position{
		ID:            m.PositionID,
		MarketID:      m.MarketID,
		OutcomeID:     m.OutcomeID,
		Direction:     types.Direction(m.Direction),
		Size:          m.Size,
		EntryPrice:    m.EntryPrice,
		CurrentPrice:  m.CurrentPrice,
		RealizedPnL:   m.RealizedPnL,
		UnrealizedPnL: m.UnrealizedPnL,
		Strategy:      m.Strategy,
		StopLoss:      m.StopLoss,
		TakeProfit:    m.TakeProfit,
		OrderID:       m.OrderID,
		CloseReason:   m.CloseReason,
		OpenedAt:      time.Unix(m.OpenedAt, 0).UTC(),
	}
	switch m.State {
	case types.PositionClosing.String():
		p.State = types.PositionClosing
	case types.PositionClosed.String():
		p.State = types.PositionClosed
	default:
		p.State = types.PositionOpen
	}
	if m.ClosedAt != nil {
		at := time.Unix(*m.ClosedAt, 0).UTC()
		p.ClosedAt = &at
	}
	return p
}

// --------------------- Trigger audit -------------------------

func (s *Store) AppendAudit(records []trigger.AuditRecord) error {
	if s == nil || s.db == nil || len(records) == 0 {
		return nil
	}
	models := make([]storemodel.AuditModel, 0, len(records))
	for _, r := range records {
		models = append(models, storemodel.AuditModel{
			TriggerID: r.TriggerID,
			EventID:   r.EventID,
			Matched:   r.Matched,
			Reason:    r.Reason,
			At:        r.At.Unix(),
		})
	}
	return s.db.Create(&models).Error
}

func toJSON(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func fromJSON(raw datatypes.JSON, dst any) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, dst)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
