package config

import (
	"strings"
	"time"

	"polyedge/internal/risk"
	"polyedge/internal/strategy"
)

// Config is the main configuration carrier.
type Config struct {
	App        AppConfig        `toml:"app"`
	Store      StoreConfig      `toml:"store"`
	Market     MarketConfig     `toml:"market"`
	Exchange   ExchangeConfig   `toml:"exchange"`
	Risk       risk.Config      `toml:"risk"`
	Strategies StrategiesConfig `toml:"strategies"`
	Engine     EngineConfig     `toml:"engine"`
	Scheduler  SchedulerConfig  `toml:"scheduler"`
	Notify     NotifyConfig     `toml:"notify"`
	Triggers   TriggersConfig   `toml:"triggers"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type MarketConfig struct {
	ActiveSource string         `toml:"active_source"`
	Sources      []MarketSource `toml:"sources"`
}

type MarketSource struct {
	Name               string   `toml:"name"`
	Enabled            bool     `toml:"enabled"`
	WSURL              string   `toml:"ws_url"`
	Markets            []string `toml:"markets"`
	Symbols            []string `toml:"symbols"`
	PriceChangePct     float64  `toml:"price_change_pct"`
	ChangeWindowMinute int      `toml:"change_window_minutes"`
}

func (m MarketConfig) ResolveActiveSource() MarketSource {
	if len(m.Sources) == 0 {
		return MarketSource{Name: "clob", Enabled: true}
	}
	active := strings.ToLower(strings.TrimSpace(m.ActiveSource))
	var fallback MarketSource
	for _, src := range m.Sources {
		if fallback.Name == "" {
			fallback = src
		}
		if !src.Enabled {
			continue
		}
		if active == "" || strings.ToLower(src.Name) == active {
			return src
		}
	}
	return fallback
}

type ExchangeConfig struct {
	Mode                 string `toml:"mode"` // "paper" for now
	LatencyMillis        int    `toml:"latency_ms"`
	SubmitTimeoutSeconds int    `toml:"submit_timeout_seconds"`
}

func (e ExchangeConfig) Latency() time.Duration {
	return time.Duration(e.LatencyMillis) * time.Millisecond
}

func (e ExchangeConfig) SubmitTimeout() time.Duration {
	return time.Duration(e.SubmitTimeoutSeconds) * time.Second
}

// StrategiesConfig selects and tunes the strategy set.
type StrategiesConfig struct {
	Enabled       []string                     `toml:"enabled"`
	Momentum      strategy.MomentumConfig      `toml:"momentum"`
	Arbitrage     strategy.ArbitrageConfig     `toml:"arbitrage"`
	MeanReversion strategy.MeanReversionConfig `toml:"mean_reversion"`
	EventDriven   strategy.EventDrivenConfig   `toml:"event_driven"`
	SmartMoney    strategy.SmartMoneyConfig    `toml:"smart_money"`
}

func (s StrategiesConfig) IsEnabled(name string) bool {
	for _, n := range s.Enabled {
		if strings.EqualFold(strings.TrimSpace(n), name) {
			return true
		}
	}
	return false
}

// EngineConfig mirrors the engine tuning knobs with durations in units
// the config file states explicitly.
type EngineConfig struct {
	Workers       int `toml:"workers"`
	EvalQueue     int `toml:"eval_queue"`
	ActorQueue    int `toml:"actor_queue"`
	RingCapacity  int `toml:"ring_capacity"`
	DedupCapacity int `toml:"dedup_capacity"`
}

type SchedulerConfig struct {
	StrategyIntervalSeconds  int `toml:"strategy_interval_seconds"`
	MarkIntervalSeconds      int `toml:"mark_interval_seconds"`
	PortfolioIntervalSeconds int `toml:"portfolio_interval_seconds"`
	ReconcileIntervalSeconds int `toml:"reconcile_interval_seconds"`
}

func (s SchedulerConfig) StrategyInterval() time.Duration {
	return time.Duration(s.StrategyIntervalSeconds) * time.Second
}

func (s SchedulerConfig) MarkInterval() time.Duration {
	return time.Duration(s.MarkIntervalSeconds) * time.Second
}

func (s SchedulerConfig) PortfolioInterval() time.Duration {
	return time.Duration(s.PortfolioIntervalSeconds) * time.Second
}

func (s SchedulerConfig) ReconcileInterval() time.Duration {
	return time.Duration(s.ReconcileIntervalSeconds) * time.Second
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type TriggersConfig struct {
	Path  string `toml:"path"`
	Watch bool   `toml:"watch"`
}

// keySet tracks field paths explicitly set in the config files.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes one field's defaulting rule.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
