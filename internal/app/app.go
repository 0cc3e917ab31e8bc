// Package app wires configuration into a running service: store,
// ledger, market feeds, trigger pipeline, strategies, engine, HTTP API
// and the periodic schedulers.
package app

import (
	"context"
	"fmt"
	"time"

	"polyedge/internal/config"
	"polyedge/internal/engine"
	"polyedge/internal/gateway/marketdata"
	"polyedge/internal/logger"
	"polyedge/internal/scheduler"
	"polyedge/internal/store/gormstore"
	httpapi "polyedge/internal/transport/http"
	"polyedge/internal/trigger"

	"golang.org/x/sync/errgroup"
)

// App owns the wired components and their lifecycle.
type App struct {
	cfg     *config.Config
	eng     *engine.Engine
	server  *httpapi.Server
	store   *gormstore.Store
	audit   *trigger.AuditTrail
	loader  *trigger.Loader
	clob    *marketdata.CLOBFeed
	binance *marketdata.BinanceFeed

	Summary *StartupSummary
}

// NewApp builds the application from config without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run starts every component and blocks until the context is cancelled
// or a component fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}

	if a.audit != nil && a.store != nil {
		a.audit.Start(a.store, 5*time.Second)
		defer a.audit.Stop()
	}
	if a.loader != nil && a.cfg.Triggers.Watch {
		if err := a.loader.Watch(); err != nil {
			logger.Warnf("trigger file watch unavailable: %v", err)
		}
	}

	a.eng.Start()
	defer a.eng.Stop()

	group, ctx := errgroup.WithContext(ctx)

	if a.server != nil {
		group.Go(func() error {
			if err := a.server.Start(ctx); err != nil {
				return fmt.Errorf("http server error: %w", err)
			}
			return nil
		})
	}

	if a.clob != nil {
		group.Go(func() error {
			return a.clob.Start(ctx)
		})
	}
	if a.binance != nil {
		group.Go(func() error {
			if err := a.binance.Start(ctx); err != nil {
				return fmt.Errorf("binance feed error: %w", err)
			}
			<-ctx.Done()
			a.binance.Stop()
			return nil
		})
	}

	a.startSchedulers(ctx, group)

	err := group.Wait()
	if a.store != nil {
		if cerr := a.store.Close(); cerr != nil {
			logger.Warnf("store close: %v", cerr)
		}
	}
	return err
}

func (a *App) startSchedulers(ctx context.Context, group *errgroup.Group) {
	sched := a.cfg.Scheduler
	runs := []struct {
		name     string
		interval time.Duration
		task     func()
	}{
		{"strategy", sched.StrategyInterval(), a.eng.RunStrategyCycle},
		{"mark", sched.MarkInterval(), a.eng.RunMarkCycle},
		{"portfolio", sched.PortfolioInterval(), a.eng.RunPortfolioCycle},
		{"reconcile", sched.ReconcileInterval(), a.eng.RunReconcile},
	}
	for _, r := range runs {
		if r.interval <= 0 {
			logger.Warnf("scheduler %s disabled (interval=%s)", r.name, r.interval)
			continue
		}
		s := scheduler.NewIntervalScheduler(ctx, r.name, r.interval, 0)
		task := r.task
		group.Go(func() error {
			s.Start(task)
			return nil
		})
	}
}

// Engine exposes the running engine (for testing harnesses).
func (a *App) Engine() *engine.Engine {
	if a == nil {
		return nil
	}
	return a.eng
}
