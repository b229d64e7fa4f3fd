package notes

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/aretw0/notely/pkg/core"
)

// Fallback alert content used when the payload is missing or empty.
const (
	FallbackTitle   = "Reminder"
	FallbackMessage = "Time is up!"
)

// Reminders turns fired timers into notifications. It needs no UI context.
type Reminders struct {
	svc    *core.Service
	sink   core.Sink
	logger *slog.Logger
}

// NewReminders creates the firing handler. A nil sink drops every alert.
func NewReminders(svc *core.Service, sink core.Sink, logger *slog.Logger) *Reminders {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reminders{svc: svc, sink: sink, logger: logger}
}

// HandleAlarm presents the stored payload of alarm and then clears it. The
// payload is removed even when reading or presenting failed, so a second fire
// of the same id shows the fallback content.
func (r *Reminders) HandleAlarm(ctx context.Context, alarm core.Alarm) {
	if !core.IsReminderAlarm(alarm.ID) {
		return
	}
	key := core.PayloadKey(alarm.ID)

	var payload core.ReminderPayload
	if _, err := r.svc.GetValue(ctx, key, &payload); err != nil {
		r.logger.Warn("failed to read reminder payload", "alarm", alarm.ID, "error", err)
		payload = core.ReminderPayload{}
	}

	n := core.Notification{
		ID:       alarm.ID,
		Title:    payload.Title,
		Message:  payload.Text,
		Priority: core.DefaultPriority,
	}
	if n.Title == "" {
		n.Title = FallbackTitle
	}
	if n.Message == "" {
		n.Message = FallbackMessage
	}

	if r.sink == nil {
		r.logger.Warn("no notification sink, alert dropped", "alarm", alarm.ID)
	} else if err := r.sink.Present(ctx, n); err != nil {
		r.logger.Warn("failed to present reminder", "alarm", alarm.ID, "error", err)
	}

	if err := r.svc.Remove(ctx, key); err != nil {
		r.logger.Warn("failed to clear reminder payload", "alarm", alarm.ID, "error", err)
	}
}

// Orphans lists alarm ids whose payload is stored but that have no pending
// timer. Nothing is deleted.
func (r *Reminders) Orphans(ctx context.Context, pending []core.Alarm) ([]string, error) {
	keys, err := r.svc.Keys(ctx)
	if err != nil {
		return nil, err
	}
	armed := make(map[string]struct{}, len(pending))
	for _, a := range pending {
		armed[a.ID] = struct{}{}
	}

	var orphans []string
	for _, k := range keys {
		id, ok := strings.CutPrefix(k, core.PayloadPrefix)
		if !ok || !core.IsReminderAlarm(id) {
			continue
		}
		if _, ok := armed[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	return orphans, nil
}
