package platform

import (
	"context"
	"log/slog"

	"github.com/aretw0/notely/pkg/adapters/notify"
	"github.com/aretw0/notely/pkg/core"
)

type initializer interface {
	Initialize(ctx context.Context) error
}

// Probe checks once which host APIs are usable. Components receive the result
// instead of discovering missing APIs through failed calls.
func Probe(ctx context.Context, store core.Store, sched core.Scheduler, sink core.Sink, bridge core.Bridge, logger *slog.Logger) core.Capabilities {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var caps core.Capabilities

	if store != nil {
		caps.Storage = true
		if p, ok := store.(core.Prober); ok {
			if err := p.Available(ctx); err != nil {
				logger.Debug("storage unavailable", "error", err)
				caps.Storage = false
			}
		}
	}

	if sched != nil {
		caps.Scheduler = true
		if i, ok := sched.(initializer); ok {
			if err := i.Initialize(ctx); err != nil {
				logger.Debug("scheduler unavailable", "error", err)
				caps.Scheduler = false
			}
		}
		if p, ok := sched.(core.Prober); ok && caps.Scheduler {
			if err := p.Available(ctx); err != nil {
				logger.Debug("scheduler unavailable", "error", err)
				caps.Scheduler = false
			}
		}
	}

	if sink != nil {
		_, off := sink.(notify.Unavailable)
		caps.Notifications = !off
	}

	caps.Bridge = bridge != nil
	return caps
}
