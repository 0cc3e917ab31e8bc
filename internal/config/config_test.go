package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `
app:
  env: prod
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9980", cfg.App.HTTPAddr)
	assert.Equal(t, "data/db/polyedge.db", cfg.Store.Path)
	assert.Equal(t, "paper", cfg.Exchange.Mode)
	assert.Equal(t, 150, cfg.Exchange.LatencyMillis)
	assert.Equal(t, 30, cfg.Exchange.SubmitTimeoutSeconds)
	assert.Equal(t, 50.0, cfg.Risk.MaxPositionSize)
	assert.Equal(t, 100.0, cfg.Risk.DailyLossLimit)
	assert.Equal(t, []string{"event_driven"}, cfg.Strategies.Enabled)
	assert.Equal(t, 60, cfg.Scheduler.StrategyIntervalSeconds)
}

func TestLoadExplicitZeroSuppressesDefault(t *testing.T) {
	dir := t.TempDir()
	// An explicitly written zero means "disabled", not "use default".
	path := writeConfig(t, dir, "config.yaml", `
scheduler:
  mark_interval_seconds: 0
exchange:
  latency_ms: 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Scheduler.MarkIntervalSeconds)
	assert.Equal(t, 0, cfg.Exchange.LatencyMillis)
	// Untouched siblings still default.
	assert.Equal(t, 60, cfg.Scheduler.PortfolioIntervalSeconds)
}

func TestLoadMergesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
app:
  env: dev
  http_addr: ":7000"
risk:
  max_position_size: 25
`)
	path := writeConfig(t, dir, "config.yaml", `
include:
  - base.yaml
app:
  env: prod
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	// The including file wins; non-conflicting keys come from the base.
	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, ":7000", cfg.App.HTTPAddr)
	assert.Equal(t, 25.0, cfg.Risk.MaxPositionSize)
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "include: [b.yaml]\n")
	writeConfig(t, dir, "b.yaml", "include: [a.yaml]\n")

	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown strategy",
			yaml:    "strategies:\n  enabled: [astrology]\n",
			wantErr: "unknown strategy",
		},
		{
			name:    "smart money without wallets",
			yaml:    "strategies:\n  enabled: [smart_money]\n",
			wantErr: "wallets",
		},
		{
			name:    "arbitrage without pairs",
			yaml:    "strategies:\n  enabled: [arbitrage]\n",
			wantErr: "pairs",
		},
		{
			name:    "telegram without token",
			yaml:    "notify:\n  telegram:\n    enabled: true\n    chat_id: \"42\"\n",
			wantErr: "bot_token",
		},
		{
			name:    "unsupported exchange mode",
			yaml:    "exchange:\n  mode: live\n",
			wantErr: "exchange.mode",
		},
		{
			name:    "portfolio cap out of range",
			yaml:    "risk:\n  portfolio_risk_cap: 1.5\n",
			wantErr: "portfolio_risk_cap",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeConfig(t, dir, "config.yaml", tc.yaml)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadTelegramSecretsFromEnv(t *testing.T) {
	t.Setenv("POLYEDGE_TELEGRAM_TOKEN", "tok-123")
	t.Setenv("POLYEDGE_TELEGRAM_CHAT_ID", "chat-9")

	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `
notify:
  telegram:
    enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", cfg.Notify.Telegram.BotToken)
	assert.Equal(t, "chat-9", cfg.Notify.Telegram.ChatID)
}

func TestResolveActiveSource(t *testing.T) {
	m := MarketConfig{
		ActiveSource: "binance",
		Sources: []MarketSource{
			{Name: "clob", Enabled: true},
			{Name: "binance", Enabled: true, Symbols: []string{"BTCUSDT"}},
		},
	}
	assert.Equal(t, "binance", m.ResolveActiveSource().Name)

	// Disabled active source falls through to the first entry.
	m.Sources[1].Enabled = false
	assert.Equal(t, "clob", m.ResolveActiveSource().Name)

	// No sources at all defaults to an enabled clob source.
	src := MarketConfig{}.ResolveActiveSource()
	assert.Equal(t, "clob", src.Name)
	assert.True(t, src.Enabled)
}
