// Package content implements the capture widget injected into every page: a
// draggable floating button and a panel that saves notes and reminders.
package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/aretw0/notely/pkg/core"
	"github.com/aretw0/notely/pkg/notes"
	"github.com/aretw0/notely/pkg/prefs"
)

// AlertStorageUnavailable is shown when Save runs without a storage capability.
const AlertStorageUnavailable = "Chrome storage unavailable. Install/enable the extension."

// Registrar installs bridge listeners for a target.
type Registrar interface {
	Register(target string, listener core.Listener) func()
}

// Form is the content of the capture panel.
type Form struct {
	Title   string
	Text    string
	Type    core.NoteType
	Minutes int
}

// Config wires a widget to its page.
type Config struct {
	Service    *core.Service
	Repository *notes.Repository
	Prefs      *prefs.Prefs
	Bridge     Registrar
	Target     string
	Logger     *slog.Logger
}

// Widget is the per-page content context.
type Widget struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	open        bool
	form        Form
	position    core.FabPosition
	unregister  func()
	opened      chan struct{}
}

// New creates a widget and starts listening on the bridge when one is given.
func New(cfg Config) *Widget {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Prefs == nil {
		cfg.Prefs = prefs.New(cfg.Service, logger)
	}
	if cfg.Repository == nil {
		cfg.Repository = notes.NewRepository(cfg.Service, notes.WithLogger(logger))
	}
	w := &Widget{
		cfg:      cfg,
		logger:   logger.With("target", cfg.Target),
		form:     Form{Type: core.NoteJournal},
		position: core.DefaultFabPosition(),
		opened:   make(chan struct{}, 1),
	}
	if cfg.Bridge != nil {
		w.unregister = cfg.Bridge.Register(cfg.Target, w.handleMessage)
	}
	return w
}

func (w *Widget) handleMessage(ctx context.Context, msg core.Message) {
	if msg.Type != core.MessageOpenForm {
		return
	}
	w.EnsureInitialized(ctx)
	w.OpenPanel()
}

// Boot runs at page load. The widget is injected only when the floating button
// option is enabled; it reports whether injection happened.
func (w *Widget) Boot(ctx context.Context) bool {
	if !w.cfg.Prefs.FloatingButton(ctx) {
		w.logger.Debug("floating button disabled")
		return false
	}
	w.EnsureInitialized(ctx)
	return true
}

// EnsureInitialized injects the widget once per page. Later calls do nothing.
func (w *Widget) EnsureInitialized(ctx context.Context) {
	w.mu.Lock()
	if w.initialized {
		w.mu.Unlock()
		return
	}
	w.initialized = true
	w.mu.Unlock()

	pos, err := w.cfg.Prefs.FabPosition(ctx)
	if err != nil {
		w.logger.Debug("using default button position", "error", err)
		pos = core.DefaultFabPosition()
	}
	w.mu.Lock()
	w.position = pos
	w.mu.Unlock()
}

// Initialized reports whether the widget was injected.
func (w *Widget) Initialized() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.initialized
}

// OpenPanel shows the capture panel.
func (w *Widget) OpenPanel() {
	w.mu.Lock()
	w.open = true
	w.mu.Unlock()
	select {
	case w.opened <- struct{}{}:
	default:
	}
}

// TogglePanel flips the panel, like a click on the floating button.
func (w *Widget) TogglePanel() {
	w.mu.Lock()
	w.open = !w.open
	w.mu.Unlock()
}

// ClosePanel hides the panel and keeps the form content.
func (w *Widget) ClosePanel() {
	w.mu.Lock()
	w.open = false
	w.mu.Unlock()
}

// IsOpen reports whether the capture panel is visible.
func (w *Widget) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

// Opened signals every time the panel gets opened through OpenPanel.
func (w *Widget) Opened() <-chan struct{} {
	return w.opened
}

// Form returns the current form content.
func (w *Widget) Form() Form {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.form
}

// Fill replaces the form content. Switching away from a reminder clears minutes.
func (w *Widget) Fill(f Form) {
	if f.Type != core.NoteNotification {
		f.Minutes = 0
	}
	w.mu.Lock()
	w.form = f
	w.mu.Unlock()
}

// Save stores f as a note. On success the panel closes and the form resets to
// an empty journal entry; on failure both stay as they are.
func (w *Widget) Save(ctx context.Context, f Form) (notes.AddResult, error) {
	f.Title = strings.TrimSpace(f.Title)
	f.Text = strings.TrimSpace(f.Text)
	if f.Type == "" {
		f.Type = core.NoteJournal
	}
	if !f.Type.Valid() {
		return notes.AddResult{}, fmt.Errorf("unknown note type %q", f.Type)
	}
	if w.cfg.Service == nil || !w.cfg.Service.Available() {
		w.logger.Warn(AlertStorageUnavailable)
		return notes.AddResult{}, fmt.Errorf("%s: %w", AlertStorageUnavailable, core.ErrStoreUnavailable)
	}

	minutes := 0
	if f.Type == core.NoteNotification {
		minutes = f.Minutes
	}
	res, err := w.cfg.Repository.AddNote(ctx, core.Note{Title: f.Title, Text: f.Text, Type: f.Type}, minutes)
	if err != nil {
		return notes.AddResult{}, err
	}

	w.mu.Lock()
	w.open = false
	w.form = Form{Type: core.NoteJournal}
	w.mu.Unlock()
	return res, nil
}

// SaveForm saves the current form content.
func (w *Widget) SaveForm(ctx context.Context) (notes.AddResult, error) {
	return w.Save(ctx, w.Form())
}

// Position returns the floating button offset.
func (w *Widget) Position() core.FabPosition {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.position
}

// MoveTo ends a drag at pos. Offsets are clamped at 0 on screen; a zero offset
// is persisted as the 20px default, so the next page starts there.
func (w *Widget) MoveTo(ctx context.Context, pos core.FabPosition) error {
	pos.Bottom = clamp(pos.Bottom)
	pos.Right = clamp(pos.Right)
	w.mu.Lock()
	w.position = pos
	w.mu.Unlock()

	stored := core.FabPosition{Bottom: orDefault(pos.Bottom), Right: orDefault(pos.Right)}
	if err := w.cfg.Prefs.SetFabPosition(ctx, stored); err != nil {
		w.logger.Warn("failed to persist button position", "error", err)
		return err
	}
	return nil
}

// Close detaches the widget from the bridge.
func (w *Widget) Close() {
	w.mu.Lock()
	unregister := w.unregister
	w.unregister = nil
	w.mu.Unlock()
	if unregister != nil {
		unregister()
	}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

func orDefault(v float64) float64 {
	if v == 0 {
		return core.DefaultFabPosition().Bottom
	}
	return v
}

// IsStorageUnavailable reports whether err is the storage alert returned by Save.
func IsStorageUnavailable(err error) bool {
	return errors.Is(err, core.ErrStoreUnavailable)
}
