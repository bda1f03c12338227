package app

import (
	"context"
	"time"

	"github.com/cyrup-ai/action-items-sub005/internal/capability"
)

// startRefreshSweep launches the periodic background refresh ticker.
// Disabled when the configured interval is zero.
func (a *App) startRefreshSweep() {
	interval := a.cfg.Plugins.RefreshInterval.Std()
	if interval <= 0 {
		return
	}

	a.refreshStop = make(chan struct{})
	a.refreshDone = make(chan struct{})

	go func() {
		defer close(a.refreshDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-a.refreshStop:
				return
			case <-ticker.C:
				a.refreshAll()
			}
		}
	}()
}

// refreshAll runs the background refresh hook on every plugin declaring
// the capability. Failures are logged per plugin; the sweep continues.
func (a *App) refreshAll() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Bridge.CallTimeout.Std())
	defer cancel()

	for _, p := range a.registry.List() {
		if !p.Manifest().HasCapability(capability.CapabilityBackgroundRefresh) {
			continue
		}
		if _, err := p.BackgroundRefresh(ctx).Await(ctx); err != nil {
			a.logger.Warn("background refresh failed", "plugin", p.ID(), "error", err)
		}
	}
}

// stopRefreshSweep stops the ticker and waits for an in-flight sweep.
func (a *App) stopRefreshSweep() {
	if a.refreshStop == nil {
		return
	}
	close(a.refreshStop)
	<-a.refreshDone
	a.refreshStop = nil
}
