// Package notify provides core.Sink implementations.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/fatih/color"

	"github.com/aretw0/notely/pkg/core"
)

// LogSink presents notifications as structured log records.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Present implements core.Sink.
func (s *LogSink) Present(ctx context.Context, n core.Notification) error {
	s.logger.InfoContext(ctx, "notification",
		"id", n.ID,
		"title", n.Title,
		"message", n.Message,
		"priority", n.Priority,
	)
	return nil
}

// ConsoleSink prints notifications to a terminal. A notification whose id was
// already shown replaces the earlier one in the registry instead of adding a new entry.
type ConsoleSink struct {
	out io.Writer

	mu     sync.Mutex
	shown  map[string]core.Notification
	order  []string
	title  func(a ...interface{}) string
	urgent func(a ...interface{}) string
}

// NewConsoleSink creates a ConsoleSink writing to out (stdout when nil).
func NewConsoleSink(out io.Writer) *ConsoleSink {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleSink{
		out:    out,
		shown:  make(map[string]core.Notification),
		title:  color.New(color.FgYellow, color.Bold).SprintFunc(),
		urgent: color.New(color.FgRed, color.Bold).SprintFunc(),
	}
}

// Present implements core.Sink.
func (s *ConsoleSink) Present(ctx context.Context, n core.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	verb := "🔔"
	if _, ok := s.shown[n.ID]; ok {
		verb = "🔁"
	} else {
		s.order = append(s.order, n.ID)
	}
	s.shown[n.ID] = n

	title := s.title(n.Title)
	if n.Priority > core.DefaultPriority {
		title = s.urgent(n.Title)
	}
	_, err := fmt.Fprintf(s.out, "%s %s\n   %s\n", verb, title, n.Message)
	return err
}

// Shown returns the notifications currently displayed, oldest first.
func (s *ConsoleSink) Shown() []core.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Notification, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.shown[id])
	}
	return out
}

// Unavailable is the sink of a host without notification permission.
type Unavailable struct{}

// Present implements core.Sink.
func (Unavailable) Present(ctx context.Context, n core.Notification) error {
	return core.ErrSinkUnavailable
}

// Multi presents to every sink, returning the first error after trying all of them.
type Multi []core.Sink

// Present implements core.Sink.
func (m Multi) Present(ctx context.Context, n core.Notification) error {
	var first error
	for _, s := range m {
		if err := s.Present(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}
