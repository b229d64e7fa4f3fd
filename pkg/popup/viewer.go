// Package popup implements the note viewer opened from the toolbar: it lists,
// searches, sorts, edits and deletes the stored notes and follows changes made
// by other contexts while open.
package popup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/aretw0/notely/pkg/core"
	"github.com/aretw0/notely/pkg/notes"
	"github.com/aretw0/notely/pkg/prefs"
)

// Messages shown in the error state.
const (
	MessageUnavailable = "Chrome storage API unavailable. Run as an extension."
	MessageLoadFailed  = "Failed to load notes"
)

// CopiedFor is how long a copied note stays marked.
const CopiedFor = 1200 * time.Millisecond

// State is what the viewer currently shows.
type State int

const (
	StateLoading State = iota
	StateError
	StateEmpty
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateError:
		return "error"
	case StateEmpty:
		return "empty"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Clipboard receives copied note text.
type Clipboard interface {
	WriteAll(text string) error
}

// Item is a normalized note with its position in the stored sequence.
type Item struct {
	core.Note
	OriginalIndex int
}

// Config wires a viewer to the host.
type Config struct {
	Service    *core.Service
	Repository *notes.Repository
	Prefs      *prefs.Prefs
	Clipboard  Clipboard
	Clock      core.Clock
	Logger     *slog.Logger
}

// Viewer is the popup context. Create one per open; Close releases it.
type Viewer struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	loading  bool
	errMsg   string
	notes    []core.Note
	query    string
	sortBy   core.SortBy
	copied   int
	copiedAt time.Time
	sub      *core.Subscription
	updates  chan struct{}
}

// New creates a viewer in the loading state.
func New(cfg Config) *Viewer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Clock == nil {
		cfg.Clock = core.SystemClock
	}
	if cfg.Repository == nil {
		cfg.Repository = notes.NewRepository(cfg.Service, notes.WithLogger(logger))
	}
	if cfg.Prefs == nil {
		cfg.Prefs = prefs.New(cfg.Service, logger)
	}
	return &Viewer{
		cfg:     cfg,
		logger:  logger,
		loading: true,
		sortBy:  core.SortDateDesc,
		copied:  -1,
		updates: make(chan struct{}, 1),
	}
}

// Open loads notes and preferences and starts following changes.
func (v *Viewer) Open(ctx context.Context) error {
	if v.cfg.Service == nil || !v.cfg.Service.Available() {
		v.fail(MessageUnavailable)
		return core.ErrStoreUnavailable
	}

	items, err := v.cfg.Service.Get(ctx, core.KeyNotes, core.KeyPopupPrefs)
	if err != nil {
		v.fail(loadMessage(err))
		return err
	}

	v.mu.Lock()
	v.notes = v.cfg.Repository.Decode(items[core.KeyNotes])
	v.applyPrefsLocked(items[core.KeyPopupPrefs])
	v.loading = false
	v.errMsg = ""
	v.mu.Unlock()

	sub, err := v.cfg.Service.Subscribe(ctx, "{"+core.KeyNotes+","+core.KeyPopupPrefs+"}", v.onChange)
	if err != nil {
		v.logger.Debug("changes not observable, list will not refresh", "error", err)
		return nil
	}
	v.mu.Lock()
	v.sub = sub
	v.mu.Unlock()
	return nil
}

func loadMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return MessageLoadFailed
}

func (v *Viewer) fail(msg string) {
	v.mu.Lock()
	v.loading = false
	v.errMsg = msg
	v.mu.Unlock()
	v.signal()
}

// applyPrefsLocked takes query and sortBy from raw only when they are strings.
func (v *Viewer) applyPrefsLocked(raw json.RawMessage) {
	if raw == nil {
		return
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return
	}
	if q, ok := fields["query"].(string); ok {
		v.query = q
	}
	if s, ok := fields["sortBy"].(string); ok {
		v.sortBy = core.SortBy(s)
	}
}

func (v *Viewer) onChange(cs core.ChangeSet) {
	if cs.Area != core.AreaLocal {
		return
	}
	v.mu.Lock()
	if c, ok := cs.Changes[core.KeyNotes]; ok {
		v.notes = v.cfg.Repository.Decode(c.New)
	}
	// Own preference writes are already applied.
	if c, ok := cs.Changes[core.KeyPopupPrefs]; ok && cs.Origin != v.cfg.Service.Name() {
		v.applyPrefsLocked(c.New)
	}
	v.mu.Unlock()
	v.signal()
}

func (v *Viewer) signal() {
	select {
	case v.updates <- struct{}{}:
	default:
	}
}

// Updates signals whenever the shown data changed because of a store change.
func (v *Viewer) Updates() <-chan struct{} {
	return v.updates
}

// State reports what the viewer shows.
func (v *Viewer) State() State {
	v.mu.Lock()
	loading, errMsg := v.loading, v.errMsg
	v.mu.Unlock()
	switch {
	case loading:
		return StateLoading
	case errMsg != "":
		return StateError
	case len(v.Visible()) == 0:
		return StateEmpty
	}
	return StateReady
}

// Error returns the message of the error state.
func (v *Viewer) Error() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.errMsg
}

// Query returns the search text.
func (v *Viewer) Query() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.query
}

// Sort returns the ordering.
func (v *Viewer) Sort() core.SortBy {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sortBy
}

// SetQuery changes the search text and persists the preferences.
func (v *Viewer) SetQuery(ctx context.Context, q string) error {
	v.mu.Lock()
	v.query = q
	v.mu.Unlock()
	return v.persistPrefs(ctx)
}

// SetSort changes the ordering and persists the preferences.
func (v *Viewer) SetSort(ctx context.Context, by core.SortBy) error {
	if !by.Valid() {
		return fmt.Errorf("unknown sort order %q", by)
	}
	v.mu.Lock()
	v.sortBy = by
	v.mu.Unlock()
	return v.persistPrefs(ctx)
}

func (v *Viewer) persistPrefs(ctx context.Context) error {
	if !v.cfg.Service.Available() {
		return nil
	}
	v.mu.Lock()
	p := core.PopupPrefs{Query: v.query, SortBy: v.sortBy}
	v.mu.Unlock()
	if !p.SortBy.Valid() {
		p.SortBy = core.SortDateDesc
	}
	if err := v.cfg.Prefs.SetPopupPrefs(ctx, p); err != nil {
		v.logger.Warn("failed to persist popup preferences", "error", err)
		return err
	}
	return nil
}

// Visible returns the notes matching the query in the selected order.
func (v *Viewer) Visible() []Item {
	v.mu.Lock()
	list := v.notes
	q := strings.ToLower(strings.TrimSpace(v.query))
	by := v.sortBy
	v.mu.Unlock()

	items := make([]Item, 0, len(list))
	for i, n := range list {
		if q != "" && !strings.Contains(strings.ToLower(n.Title+" "+n.Text), q) {
			continue
		}
		items = append(items, Item{Note: n, OriginalIndex: i})
	}
	sortItems(items, by)
	return items
}

func sortItems(items []Item, by core.SortBy) {
	switch by {
	case core.SortTitleAsc, core.SortTitleDesc:
		c := collate.New(language.Und)
		sort.SliceStable(items, func(i, j int) bool {
			if by == core.SortTitleAsc {
				return c.CompareString(items[i].Title, items[j].Title) < 0
			}
			return c.CompareString(items[j].Title, items[i].Title) < 0
		})
	case core.SortDateAsc:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].CreatedAtMillis() < items[j].CreatedAtMillis()
		})
	default:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].CreatedAtMillis() > items[j].CreatedAtMillis()
		})
	}
}

// Refresh reloads the notes.
func (v *Viewer) Refresh(ctx context.Context) error {
	if !v.cfg.Service.Available() {
		v.fail(MessageUnavailable)
		return core.ErrStoreUnavailable
	}
	v.mu.Lock()
	v.loading = true
	v.errMsg = ""
	v.mu.Unlock()

	list, err := v.cfg.Repository.List(ctx)
	if err != nil {
		v.fail(loadMessage(err))
		return err
	}
	v.mu.Lock()
	v.notes = list
	v.loading = false
	v.mu.Unlock()
	return nil
}

// Delete removes the note stored at originalIndex. A stale index may hit a
// different note when the list changed since it was shown.
func (v *Viewer) Delete(ctx context.Context, originalIndex int) error {
	if err := v.cfg.Repository.DeleteNoteAt(ctx, originalIndex); err != nil {
		return err
	}
	return v.reload(ctx)
}

// Edit replaces title and text of the note stored at originalIndex.
func (v *Viewer) Edit(ctx context.Context, originalIndex int, title, text string) error {
	if err := v.cfg.Repository.EditNoteAt(ctx, originalIndex, title, text); err != nil {
		return err
	}
	return v.reload(ctx)
}

func (v *Viewer) reload(ctx context.Context) error {
	list, err := v.cfg.Repository.List(ctx)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.notes = list
	v.mu.Unlock()
	return nil
}

// Copy writes the text of the note at originalIndex to the clipboard and marks
// it as copied for a short while. Clipboard failures are ignored.
func (v *Viewer) Copy(originalIndex int) error {
	v.mu.Lock()
	if originalIndex < 0 || originalIndex >= len(v.notes) {
		v.mu.Unlock()
		return fmt.Errorf("no note at index %d", originalIndex)
	}
	text := v.notes[originalIndex].Text
	v.mu.Unlock()

	if v.cfg.Clipboard == nil {
		return nil
	}
	if err := v.cfg.Clipboard.WriteAll(text); err != nil {
		v.logger.Debug("clipboard write failed", "error", err)
		return nil
	}
	v.mu.Lock()
	v.copied = originalIndex
	v.copiedAt = v.cfg.Clock()
	v.mu.Unlock()
	return nil
}

// CopiedIndex returns the note copied within the last CopiedFor, or -1.
func (v *Viewer) CopiedIndex() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.copied < 0 || v.cfg.Clock().Sub(v.copiedAt) >= CopiedFor {
		return -1
	}
	return v.copied
}

// Close stops following changes.
func (v *Viewer) Close() {
	v.mu.Lock()
	sub := v.sub
	v.sub = nil
	v.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}
