// Package core holds the domain types and ports shared by every notely context.
package core

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Store keys shared by all contexts.
const (
	KeyNotes      = "notes"
	KeyOptions    = "options"
	KeyPopupPrefs = "popupPrefs"
	KeyFabPos     = "fabPos"

	// PayloadPrefix prefixes the synthetic key holding a ReminderPayload.
	PayloadPrefix = "alarm_"
	// AlarmPrefix prefixes every timer armed by the note repository.
	AlarmPrefix = "notely_"
)

// NoteType classifies a note.
type NoteType string

const (
	NoteJournal      NoteType = "journal"
	NoteTodo         NoteType = "todo"
	NoteNotification NoteType = "notification"
)

// Valid reports whether t is one of the known note types.
func (t NoteType) Valid() bool {
	switch t {
	case NoteJournal, NoteTodo, NoteNotification:
		return true
	}
	return false
}

// Note is a captured note. Position in the stored sequence is its only identity.
type Note struct {
	Title     string   `json:"title"`
	Text      string   `json:"text"`
	Type      NoteType `json:"type,omitempty"`
	CreatedAt *int64   `json:"createdAt,omitempty"` // epoch ms, nil when unknown

	// Legacy is set when the stored element was a bare string.
	Legacy bool `json:"-"`
}

// UnmarshalJSON accepts both the structured form and the legacy bare string.
// Older objects stored the body under "content" instead of "text".
func (n *Note) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*n = Note{Text: s, Legacy: true}
		return nil
	}

	var raw struct {
		Title     string   `json:"title"`
		Text      string   `json:"text"`
		Content   string   `json:"content"`
		Type      NoteType `json:"type"`
		CreatedAt *float64 `json:"createdAt"`
	}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return err
	}

	*n = Note{Title: raw.Title, Text: raw.Text, Type: raw.Type}
	if n.Text == "" {
		n.Text = raw.Content
	}
	if raw.CreatedAt != nil {
		ms := int64(*raw.CreatedAt)
		n.CreatedAt = &ms
	}
	return nil
}

// CreatedAtMillis returns the creation time or 0 when unknown.
func (n Note) CreatedAtMillis() int64 {
	if n.CreatedAt == nil {
		return 0
	}
	return *n.CreatedAt
}

// Millis is a small helper to take the address of an epoch value.
func Millis(ms int64) *int64 {
	return &ms
}

// ReminderPayload is the alert content stored next to an armed timer.
type ReminderPayload struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// AlarmID derives the timer id of a reminder note. Two reminders created in the
// same millisecond collide.
func AlarmID(createdAt int64) string {
	return AlarmPrefix + strconv.FormatInt(createdAt, 10)
}

// PayloadKey is the store key of the payload belonging to alarmID.
func PayloadKey(alarmID string) string {
	return PayloadPrefix + alarmID
}

// IsReminderAlarm reports whether id was armed by the note repository.
func IsReminderAlarm(id string) bool {
	return strings.HasPrefix(id, AlarmPrefix) && len(id) > len(AlarmPrefix)
}

// SortBy is the popup ordering.
type SortBy string

const (
	SortDateDesc  SortBy = "date_desc"
	SortDateAsc   SortBy = "date_asc"
	SortTitleAsc  SortBy = "title_asc"
	SortTitleDesc SortBy = "title_desc"
)

// Valid reports whether s is a known ordering.
func (s SortBy) Valid() bool {
	switch s {
	case SortDateDesc, SortDateAsc, SortTitleAsc, SortTitleDesc:
		return true
	}
	return false
}

// PopupPrefs mirrors the popup's transient UI state.
type PopupPrefs struct {
	Query  string `json:"query"`
	SortBy SortBy `json:"sortBy"`
}

// DefaultPopupPrefs is used when nothing was persisted yet.
func DefaultPopupPrefs() PopupPrefs {
	return PopupPrefs{SortBy: SortDateDesc}
}

// Options holds the user preferences edited by the options page.
type Options struct {
	FloatingButton *bool `json:"floatingButton,omitempty"`
}

// FloatingButtonEnabled applies the "on unless disabled" default.
func (o Options) FloatingButtonEnabled() bool {
	return o.FloatingButton == nil || *o.FloatingButton
}

// FabPosition is the floating button offset in pixels.
type FabPosition struct {
	Bottom float64 `json:"bottom"`
	Right  float64 `json:"right"`
}

// DefaultFabPosition is used when no valid position was stored.
func DefaultFabPosition() FabPosition {
	return FabPosition{Bottom: 20, Right: 20}
}
