package core

import "context"

// MessageType identifies a cross-context message.
type MessageType string

// MessageOpenForm asks a content widget to open its capture form. It has no payload.
const MessageOpenForm MessageType = "NOTELY_OPEN_FORM"

// CommandToggleForm is the global keyboard command bound to MessageOpenForm.
const CommandToggleForm = "toggle_note_form"

// Message is the envelope sent over the bridge.
type Message struct {
	Type MessageType `json:"type"`
}

// Listener receives bridged messages inside the target context.
type Listener func(ctx context.Context, msg Message)

// Bridge is one-shot, fire-and-forget message passing between contexts.
// Messages to unreachable targets or targets without listener are dropped.
type Bridge interface {
	Send(ctx context.Context, target string, msg Message)
}

// TabQuery resolves the page that currently has focus.
type TabQuery interface {
	ActiveTarget(ctx context.Context) (string, bool)
}
