package app

import (
	"fmt"
	"strings"

	"polyedge/internal/config"
	"polyedge/internal/strategy"
)

// StartupSummary is printed once at boot so an operator can confirm
// what the process is actually running with.
type StartupSummary struct {
	Env          string
	HTTPAddr     string
	StorePath    string
	MarketSource string
	Markets      []string
	Symbols      []string
	Exchange     string
	Strategies   []string
	TriggerCount int
	Risk         RiskSummary
}

type RiskSummary struct {
	MaxPositionSize        float64
	DailyLossLimit         float64
	MaxConcurrentPositions int
	PortfolioRiskCap       float64
	TotalCapital           float64
}

func buildSummary(cfg *config.Config, strategies []strategy.Strategy, triggerCount int) *StartupSummary {
	src := cfg.Market.ResolveActiveSource()
	names := make([]string, 0, len(strategies))
	for _, s := range strategies {
		names = append(names, s.Name())
	}
	return &StartupSummary{
		Env:          cfg.App.Env,
		HTTPAddr:     cfg.App.HTTPAddr,
		StorePath:    cfg.Store.Path,
		MarketSource: src.Name,
		Markets:      src.Markets,
		Symbols:      src.Symbols,
		Exchange:     cfg.Exchange.Mode,
		Strategies:   names,
		TriggerCount: triggerCount,
		Risk: RiskSummary{
			MaxPositionSize:        cfg.Risk.MaxPositionSize,
			DailyLossLimit:         cfg.Risk.DailyLossLimit,
			MaxConcurrentPositions: cfg.Risk.MaxConcurrentPositions,
			PortfolioRiskCap:       cfg.Risk.PortfolioRiskCap,
			TotalCapital:           cfg.Risk.TotalCapital,
		},
	}
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 72))
	fmt.Println("STARTUP SUMMARY")
	fmt.Println(strings.Repeat("=", 72))

	fmt.Println("[SERVICE]")
	fmt.Printf("  env:        %s\n", orDash(s.Env))
	fmt.Printf("  http:       %s\n", orDash(s.HTTPAddr))
	fmt.Printf("  store:      %s\n", orDash(s.StorePath))
	fmt.Printf("  exchange:   %s\n", orDash(s.Exchange))
	fmt.Println()

	fmt.Println("[MARKET DATA]")
	fmt.Printf("  source:     %s\n", orDash(s.MarketSource))
	fmt.Printf("  markets:    %s\n", formatList(s.Markets))
	fmt.Printf("  symbols:    %s\n", formatList(s.Symbols))
	fmt.Println()

	fmt.Println("[PIPELINE]")
	fmt.Printf("  strategies: %s\n", formatList(s.Strategies))
	fmt.Printf("  triggers:   %d\n", s.TriggerCount)
	fmt.Println()

	fmt.Println("[RISK LIMITS]")
	fmt.Printf("  max position size:  %.2f\n", s.Risk.MaxPositionSize)
	fmt.Printf("  daily loss limit:   %.2f\n", s.Risk.DailyLossLimit)
	fmt.Printf("  max positions:      %d\n", s.Risk.MaxConcurrentPositions)
	fmt.Printf("  portfolio cap:      %.2f of %.2f\n", s.Risk.PortfolioRiskCap, s.Risk.TotalCapital)
	fmt.Println(strings.Repeat("=", 72))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
