package platform

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/aretw0/notely/pkg/adapters/bridge"
	"github.com/aretw0/notely/pkg/adapters/notify"
	"github.com/aretw0/notely/pkg/background"
	"github.com/aretw0/notely/pkg/content"
	"github.com/aretw0/notely/pkg/core"
	"github.com/aretw0/notely/pkg/notes"
	"github.com/aretw0/notely/pkg/popup"
	"github.com/aretw0/notely/pkg/prefs"
)

// Context kinds, used as prefix of the write origin.
const (
	KindBackground = "background"
	KindContent    = "content"
	KindPopup      = "popup"
	KindOptions    = "options"
	KindCLI        = "cli"
)

// Host is one process of the notely system. Every context it creates shares
// the same store, scheduler, sink and bridge.
type Host struct {
	Store        core.Store
	Scheduler    core.Scheduler
	Sink         core.Sink
	Router       *bridge.Router
	Capabilities core.Capabilities
	Path         string

	instance string
	logger   *slog.Logger
	opts     *options
}

// New wires a host around the store at uri.
//
//	host, err := platform.New("~/.notely", platform.WithLogger(logger))
func New(uri string, opts ...Option) (*Host, error) {
	o := applyOptions(opts)
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	store, path, err := initStore(uri, o)
	if err != nil {
		return nil, err
	}

	sink := o.sink
	if sink == nil {
		sink = notify.NewLogSink(logger)
	}

	h := &Host{
		Store:     store,
		Scheduler: initScheduler(path, o),
		Sink:      sink,
		Router:    bridge.NewRouter(logger),
		Path:      path,
		instance:  uuid.NewString()[:8],
		logger:    logger,
		opts:      o,
	}

	if o.capabilities != nil {
		h.Capabilities = *o.capabilities
	} else {
		h.Capabilities = Probe(context.Background(), h.Store, h.Scheduler, h.Sink, h.Router, logger)
	}
	logger.Debug("host ready", "path", path, "instance", h.instance, "capabilities", h.Capabilities)
	return h, nil
}

// Logger returns the host logger.
func (h *Host) Logger() *slog.Logger {
	return h.logger
}

// ContextName is the write origin of a context of the given kind in this process.
func (h *Host) ContextName(kind string) string {
	return kind + "#" + h.instance
}

// Service creates the store handle of a new context.
func (h *Host) Service(kind string) *core.Service {
	opts := []core.ServiceOption{
		core.WithAvailability(h.Capabilities.Storage),
		core.WithServiceLogger(h.logger),
	}
	if size, ok := h.opts.config["event_buffer"].(int); ok {
		opts = append(opts, core.WithEventBuffer(size))
	}
	return core.NewService(h.Store, h.ContextName(kind), opts...)
}

// Repository creates a note repository acting through svc. Timers are armed
// only when the scheduler capability is present.
func (h *Host) Repository(svc *core.Service) *notes.Repository {
	opts := []notes.Option{
		notes.WithLogger(h.logger.With("context", svc.Name())),
		notes.WithClock(h.opts.clock),
	}
	if h.Capabilities.Scheduler {
		opts = append(opts, notes.WithScheduler(h.Scheduler))
	}
	if optimistic, _ := h.opts.config["optimistic"].(bool); optimistic {
		retries, _ := h.opts.config["retries"].(int)
		opts = append(opts, notes.WithOptimisticConcurrency(retries))
	}
	return notes.NewRepository(svc, opts...)
}

// Prefs creates preference accessors for svc.
func (h *Host) Prefs(svc *core.Service) *prefs.Prefs {
	return prefs.New(svc, h.logger)
}

// Background creates the background controller of this host.
func (h *Host) Background() *background.Controller {
	return background.New(background.Config{
		Service:      h.Service(KindBackground),
		Scheduler:    h.Scheduler,
		Sink:         h.Sink,
		Bridge:       h.Router,
		Tabs:         h.Router,
		Capabilities: h.Capabilities,
		Logger:       h.logger.With("context", KindBackground),
	})
}

// Content creates the widget of the page called target.
func (h *Host) Content(target string) *content.Widget {
	svc := h.Service(KindContent)
	var reg content.Registrar
	if h.Capabilities.Bridge {
		reg = h.Router
	}
	return content.New(content.Config{
		Service:    svc,
		Repository: h.Repository(svc),
		Prefs:      h.Prefs(svc),
		Bridge:     reg,
		Target:     target,
		Logger:     h.logger.With("context", KindContent),
	})
}

// Popup creates a viewer. The clipboard may be nil.
func (h *Host) Popup(cb popup.Clipboard) *popup.Viewer {
	svc := h.Service(KindPopup)
	return popup.New(popup.Config{
		Service:    svc,
		Repository: h.Repository(svc),
		Prefs:      h.Prefs(svc),
		Clipboard:  cb,
		Clock:      h.opts.clock,
		Logger:     h.logger.With("context", KindPopup),
	})
}
