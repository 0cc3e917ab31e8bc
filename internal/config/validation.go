package config

import (
	"fmt"
	"strings"
)

var knownStrategies = map[string]struct{}{
	"momentum":       {},
	"arbitrage":      {},
	"mean_reversion": {},
	"event_driven":   {},
	"smart_money":    {},
}

func validate(c *Config) error {
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	if err := c.Strategies.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	if err := c.Exchange.validate(); err != nil {
		return err
	}
	return nil
}

func (s StrategiesConfig) validate() error {
	for _, name := range s.Enabled {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, ok := knownStrategies[key]; !ok {
			return fmt.Errorf("strategies.enabled contains unknown strategy %q", name)
		}
	}
	if s.IsEnabled("smart_money") && len(s.SmartMoney.Wallets) == 0 {
		return fmt.Errorf("strategies.smart_money.wallets is required when smart_money is enabled")
	}
	if s.IsEnabled("arbitrage") && len(s.Arbitrage.Pairs) == 0 {
		return fmt.Errorf("strategies.arbitrage.pairs is required when arbitrage is enabled")
	}
	return nil
}

func (n NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if strings.TrimSpace(n.Telegram.BotToken) == "" {
			return fmt.Errorf("notify.telegram.bot_token is required when telegram is enabled")
		}
		if strings.TrimSpace(n.Telegram.ChatID) == "" {
			return fmt.Errorf("notify.telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

func (e ExchangeConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(e.Mode)) {
	case "paper":
		return nil
	default:
		return fmt.Errorf("exchange.mode %q is not supported (only \"paper\")", e.Mode)
	}
}
