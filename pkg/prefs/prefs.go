// Package prefs reads and writes the user preferences shared by every context.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aretw0/notely/pkg/core"
	"github.com/aretw0/notely/pkg/typed"
)

// Prefs gives one context typed access to the preference keys.
type Prefs struct {
	svc    *core.Service
	logger *slog.Logger
	popup  *typed.Key[core.PopupPrefs]
	fab    *typed.Key[core.FabPosition]
}

// New creates Prefs bound to svc. A nil logger discards diagnostics.
func New(svc *core.Service, logger *slog.Logger) *Prefs {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Prefs{
		svc:    svc,
		logger: logger,
		popup: typed.NewKey[core.PopupPrefs](svc, core.KeyPopupPrefs,
			typed.WithDefault(core.DefaultPopupPrefs),
			typed.WithDecoder(decodePopupPrefs),
		),
		fab: typed.NewKey[core.FabPosition](svc, core.KeyFabPos,
			typed.WithDefault(core.DefaultFabPosition),
			typed.WithDecoder(decodeFabPosition),
		),
	}
}

func decodePopupPrefs(raw json.RawMessage) (core.PopupPrefs, bool) {
	var p core.PopupPrefs
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, false
	}
	if !p.SortBy.Valid() {
		p.SortBy = core.SortDateDesc
	}
	return p, true
}

// decodeFabPosition rejects positions missing either offset.
func decodeFabPosition(raw json.RawMessage) (core.FabPosition, bool) {
	var p struct {
		Bottom *float64 `json:"bottom"`
		Right  *float64 `json:"right"`
	}
	if err := json.Unmarshal(raw, &p); err != nil || p.Bottom == nil || p.Right == nil {
		return core.FabPosition{}, false
	}
	return core.FabPosition{Bottom: *p.Bottom, Right: *p.Right}, true
}

// Options returns the stored options object.
func (p *Prefs) Options(ctx context.Context) (core.Options, error) {
	var opts core.Options
	if _, err := p.svc.GetValue(ctx, core.KeyOptions, &opts); err != nil {
		return core.Options{}, err
	}
	return opts, nil
}

// FloatingButton reports whether the floating button is enabled. Read failures
// count as enabled.
func (p *Prefs) FloatingButton(ctx context.Context) bool {
	opts, err := p.Options(ctx)
	if err != nil {
		p.logger.Warn("failed to read options, using defaults", "error", err)
		return true
	}
	return opts.FloatingButtonEnabled()
}

// SetFloatingButton stores the toggle and keeps every other field of the
// options object. The read-modify-write is not atomic.
func (p *Prefs) SetFloatingButton(ctx context.Context, enabled bool) error {
	fields := map[string]json.RawMessage{}
	items, err := p.svc.Get(ctx, core.KeyOptions)
	if err != nil {
		return err
	}
	if raw, ok := items[core.KeyOptions]; ok {
		if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
			p.logger.Warn("options value is not an object, replacing it", "error", err)
			fields = map[string]json.RawMessage{}
		}
	}

	value, _ := json.Marshal(enabled)
	fields["floatingButton"] = value
	return p.svc.SetValue(ctx, core.KeyOptions, fields)
}

// PopupPrefs returns the persisted popup state or its default.
func (p *Prefs) PopupPrefs(ctx context.Context) (core.PopupPrefs, error) {
	v, _, err := p.popup.Load(ctx)
	return v, err
}

// SetPopupPrefs persists the popup state.
func (p *Prefs) SetPopupPrefs(ctx context.Context, v core.PopupPrefs) error {
	if !v.SortBy.Valid() {
		return fmt.Errorf("unknown sort order %q", v.SortBy)
	}
	return p.popup.Store(ctx, v)
}

// PopupKey exposes the typed popupPrefs key, for watching.
func (p *Prefs) PopupKey() *typed.Key[core.PopupPrefs] {
	return p.popup
}

// FabPosition returns the floating button offset or the 20/20 default.
func (p *Prefs) FabPosition(ctx context.Context) (core.FabPosition, error) {
	v, _, err := p.fab.Load(ctx)
	return v, err
}

// SetFabPosition persists the floating button offset.
func (p *Prefs) SetFabPosition(ctx context.Context, pos core.FabPosition) error {
	return p.fab.Store(ctx, pos)
}
