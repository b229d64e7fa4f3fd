package typed_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aretw0/notely/pkg/adapters/memory"
	"github.com/aretw0/notely/pkg/core"
	"github.com/aretw0/notely/pkg/typed"
)

type window struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func TestKey_LoadStore(t *testing.T) {
	svc := core.NewService(memory.NewStore(), "options")
	ctx := context.Background()
	key := typed.NewKey[window](svc, "window", typed.WithDefault(func() window { return window{800, 600} }))

	v, found, err := key.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if found || v.Width != 800 {
		t.Errorf("expected default, got %+v (found=%v)", v, found)
	}

	if err := key.Store(ctx, window{1024, 768}); err != nil {
		t.Fatal(err)
	}
	v, found, _ = key.Load(ctx)
	if !found || v.Width != 1024 || v.Height != 768 {
		t.Errorf("unexpected value %+v", v)
	}

	if err := key.Update(ctx, func(w window) window { w.Height = 1; return w }); err != nil {
		t.Fatal(err)
	}
	v, _, _ = key.Load(ctx)
	if v.Height != 1 || v.Width != 1024 {
		t.Errorf("update lost fields: %+v", v)
	}
}

func TestKey_InvalidFallsBack(t *testing.T) {
	svc := core.NewService(memory.NewStore(), "content")
	ctx := context.Background()
	key := typed.NewKey[window](svc, "window",
		typed.WithDefault(func() window { return window{1, 1} }),
		typed.WithDecoder(func(raw json.RawMessage) (window, bool) {
			var w window
			err := json.Unmarshal(raw, &w)
			return w, err == nil && w.Width > 0
		}),
	)

	if err := svc.SetValue(ctx, "window", map[string]any{"width": 0}); err != nil {
		t.Fatal(err)
	}
	v, found, err := key.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if found || v != (window{1, 1}) {
		t.Errorf("expected default for rejected value, got %+v", v)
	}
}

func TestKey_Unavailable(t *testing.T) {
	svc := core.NewService(memory.NewStore(), "popup", core.WithAvailability(false))
	key := typed.NewKey[window](svc, "window")
	if _, _, err := key.Load(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestKey_Watch(t *testing.T) {
	store := memory.NewStore()
	reader := core.NewService(store, "popup")
	writer := core.NewService(store, "options")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := typed.NewKey[window](reader, "window").Watch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := typed.NewKey[window](writer, "window").Store(ctx, window{2, 3}); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-changes:
		if c.New != (window{2, 3}) || c.Origin != "options" || c.Removed {
			t.Errorf("unexpected change %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("no change received")
	}
}
