package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	notelylifecycle "github.com/aretw0/notely/pkg/adapters/lifecycle"
	"github.com/aretw0/notely/pkg/core"
)

func TestSource_ForwardsChangeSets(t *testing.T) {
	changes := make(chan core.ChangeSet, 1)
	src := notelylifecycle.NewSource(changes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, src.Start(ctx))

	changes <- core.ChangeSet{Area: core.AreaLocal, Origin: "popup", Changes: map[string]core.Change{core.KeyNotes: {}}}
	select {
	case ev := <-src.Events():
		assert.Equal(t, `local change [notes] from "popup"`, ev.String())
	case <-time.After(time.Second):
		t.Fatal("event not forwarded")
	}

	close(changes)
	select {
	case _, ok := <-src.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("source not closed")
	}
}
