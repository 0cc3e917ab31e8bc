package config

import (
	"strings"

	"polyedge/internal/risk"
)

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9980"
	defaultAppLogPath  = "data/logs/polyedge.log"

	defaultStorePath = "data/db/polyedge.db"

	defaultExchangeMode      = "paper"
	defaultExchangeLatencyMs = 150
	defaultSubmitTimeoutSec  = 30

	defaultStrategyIntervalSec  = 60
	defaultMarkIntervalSec      = 30
	defaultPortfolioIntervalSec = 60
	defaultReconcileIntervalSec = 120

	defaultTriggersPath = "configs/triggers.yaml"
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Exchange.applyDefaults(keys)
	c.Risk = riskDefaults(c.Risk, keys)
	c.Scheduler.applyDefaults(keys)
	c.Triggers.applyDefaults(keys)
	if len(c.Strategies.Enabled) == 0 && !keys.isSet("strategies.enabled") {
		c.Strategies.Enabled = []string{"event_driven"}
	}
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
	)
}

func (e *ExchangeConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("exchange.mode", &e.Mode, defaultExchangeMode),
		fieldDefault{
			key:   "exchange.latency_ms",
			need:  func() bool { return e.LatencyMillis <= 0 },
			apply: func() { e.LatencyMillis = defaultExchangeLatencyMs },
		},
		fieldDefault{
			key:   "exchange.submit_timeout_seconds",
			need:  func() bool { return e.SubmitTimeoutSeconds <= 0 },
			apply: func() { e.SubmitTimeoutSeconds = defaultSubmitTimeoutSec },
		},
	)
}

func riskDefaults(r risk.Config, keys keySet) risk.Config {
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "risk.max_position_size",
			need:  func() bool { return r.MaxPositionSize <= 0 },
			apply: func() { r.MaxPositionSize = 50 },
		},
		fieldDefault{
			key:   "risk.daily_loss_limit",
			need:  func() bool { return r.DailyLossLimit <= 0 },
			apply: func() { r.DailyLossLimit = 100 },
		},
		fieldDefault{
			key:   "risk.max_concurrent_positions",
			need:  func() bool { return r.MaxConcurrentPositions <= 0 },
			apply: func() { r.MaxConcurrentPositions = 10 },
		},
		fieldDefault{
			key:   "risk.portfolio_risk_cap",
			need:  func() bool { return r.PortfolioRiskCap <= 0 },
			apply: func() { r.PortfolioRiskCap = 0.5 },
		},
		fieldDefault{
			key:   "risk.total_capital",
			need:  func() bool { return r.TotalCapital <= 0 },
			apply: func() { r.TotalCapital = 1000 },
		},
		fieldDefault{
			key:   "risk.max_depth_fraction",
			need:  func() bool { return r.MaxDepthFraction <= 0 },
			apply: func() { r.MaxDepthFraction = 0.25 },
		},
	)
	return r
}

func (s *SchedulerConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "scheduler.strategy_interval_seconds",
			need:  func() bool { return s.StrategyIntervalSeconds <= 0 },
			apply: func() { s.StrategyIntervalSeconds = defaultStrategyIntervalSec },
		},
		fieldDefault{
			key:   "scheduler.mark_interval_seconds",
			need:  func() bool { return s.MarkIntervalSeconds <= 0 },
			apply: func() { s.MarkIntervalSeconds = defaultMarkIntervalSec },
		},
		fieldDefault{
			key:   "scheduler.portfolio_interval_seconds",
			need:  func() bool { return s.PortfolioIntervalSeconds <= 0 },
			apply: func() { s.PortfolioIntervalSeconds = defaultPortfolioIntervalSec },
		},
		fieldDefault{
			key:   "scheduler.reconcile_interval_seconds",
			need:  func() bool { return s.ReconcileIntervalSeconds <= 0 },
			apply: func() { s.ReconcileIntervalSeconds = defaultReconcileIntervalSec },
		},
	)
}

func (t *TriggersConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("triggers.path", &t.Path, defaultTriggersPath),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
