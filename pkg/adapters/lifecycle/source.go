// Package lifecycle exposes store change streams as lifecycle event sources.
package lifecycle

import (
	"context"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/notely/pkg/core"
)

type changeSource struct {
	changes <-chan core.ChangeSet
	out     chan lifecycle.Event
}

// NewSource creates a lifecycle.Source emitting every change set read from changes.
func NewSource(changes <-chan core.ChangeSet) lifecycle.Source {
	return &changeSource{
		changes: changes,
		out:     make(chan lifecycle.Event),
	}
}

func (s *changeSource) Events() <-chan lifecycle.Event {
	return s.out
}

func (s *changeSource) Start(ctx context.Context) error {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case cs, ok := <-s.changes:
				if !ok {
					return nil
				}
				// core.ChangeSet has String(), so it is a lifecycle.Event.
				select {
				case s.out <- cs:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}
