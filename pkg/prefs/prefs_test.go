package prefs_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notely/pkg/adapters/memory"
	"github.com/aretw0/notely/pkg/core"
	"github.com/aretw0/notely/pkg/prefs"
)

func TestFloatingButton_DefaultAndSiblings(t *testing.T) {
	store := memory.NewStore()
	svc := core.NewService(store, "options")
	p := prefs.New(svc, nil)
	ctx := context.Background()

	assert.True(t, p.FloatingButton(ctx), "absent options means enabled")

	require.NoError(t, store.Set(ctx, map[string]json.RawMessage{
		core.KeyOptions: json.RawMessage(`{"theme":"dark","floatingButton":true}`),
	}))
	require.NoError(t, p.SetFloatingButton(ctx, false))
	assert.False(t, p.FloatingButton(ctx))

	got, err := store.Get(ctx, core.KeyOptions)
	require.NoError(t, err)
	assert.JSONEq(t, `{"theme":"dark","floatingButton":false}`, string(got[core.KeyOptions]))
}

func TestFloatingButton_ReadFailureIsEnabled(t *testing.T) {
	svc := core.NewService(memory.NewStore(), "content", core.WithAvailability(false))
	assert.True(t, prefs.New(svc, nil).FloatingButton(context.Background()))
}

func TestPopupPrefs(t *testing.T) {
	store := memory.NewStore()
	p := prefs.New(core.NewService(store, "popup"), nil)
	ctx := context.Background()

	v, err := p.PopupPrefs(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.DefaultPopupPrefs(), v)

	require.NoError(t, p.SetPopupPrefs(ctx, core.PopupPrefs{Query: "milk", SortBy: core.SortTitleDesc}))
	v, err = p.PopupPrefs(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.PopupPrefs{Query: "milk", SortBy: core.SortTitleDesc}, v)

	assert.Error(t, p.SetPopupPrefs(ctx, core.PopupPrefs{SortBy: "shuffle"}))

	require.NoError(t, store.Set(ctx, map[string]json.RawMessage{
		core.KeyPopupPrefs: json.RawMessage(`{"query":"x","sortBy":"shuffle"}`),
	}))
	v, err = p.PopupPrefs(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.SortDateDesc, v.SortBy)
	assert.Equal(t, "x", v.Query)
}

func TestFabPosition(t *testing.T) {
	store := memory.NewStore()
	p := prefs.New(core.NewService(store, "content"), nil)
	ctx := context.Background()

	pos, err := p.FabPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.DefaultFabPosition(), pos)

	require.NoError(t, store.Set(ctx, map[string]json.RawMessage{core.KeyFabPos: json.RawMessage(`{"bottom":40}`)}))
	pos, err = p.FabPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.DefaultFabPosition(), pos, "partial position is ignored")

	require.NoError(t, p.SetFabPosition(ctx, core.FabPosition{Bottom: 0, Right: 75.5}))
	pos, err = p.FabPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.FabPosition{Bottom: 0, Right: 75.5}, pos)
}
