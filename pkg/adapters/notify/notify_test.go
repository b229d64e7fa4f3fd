package notify_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notely/pkg/adapters/notify"
	"github.com/aretw0/notely/pkg/core"
)

func TestConsoleSink_ReplacesSameID(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	sink := notify.NewConsoleSink(&buf)
	ctx := context.Background()

	require.NoError(t, sink.Present(ctx, core.Notification{ID: "notely_1", Title: "Call", Message: "Bob", Priority: 2}))
	require.NoError(t, sink.Present(ctx, core.Notification{ID: "notely_2", Title: "Other", Message: "x", Priority: 2}))
	require.NoError(t, sink.Present(ctx, core.Notification{ID: "notely_1", Title: "Reminder", Message: "Time is up!", Priority: 2}))

	shown := sink.Shown()
	require.Len(t, shown, 2)
	assert.Equal(t, "Reminder", shown[0].Title)
	assert.Equal(t, "notely_2", shown[1].ID)
	assert.Contains(t, buf.String(), "Call")
	assert.Contains(t, buf.String(), "Time is up!")
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := notify.NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, sink.Present(context.Background(), core.Notification{ID: "n", Title: "T", Message: "M", Priority: 2}))
	assert.Contains(t, buf.String(), "title=T")
	assert.Contains(t, buf.String(), "priority=2")
}

func TestUnavailableAndMulti(t *testing.T) {
	ctx := context.Background()
	assert.ErrorIs(t, notify.Unavailable{}.Present(ctx, core.Notification{}), core.ErrSinkUnavailable)

	var buf bytes.Buffer
	multi := notify.Multi{notify.Unavailable{}, notify.NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))}
	err := multi.Present(ctx, core.Notification{ID: "x", Title: "still logged"})
	assert.True(t, errors.Is(err, core.ErrSinkUnavailable))
	assert.Contains(t, buf.String(), "still logged")
}
