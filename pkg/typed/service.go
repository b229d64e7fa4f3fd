// Package typed offers type-safe accessors over single store keys.
package typed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/notely/pkg/core"
)

// Key reads and writes one store key as a T.
type Key[T any] struct {
	svc     *core.Service
	name    string
	def     func() T
	decoder func(json.RawMessage) (T, bool)
}

// KeyOption configures a Key.
type KeyOption[T any] func(*Key[T])

// WithDefault sets the value returned when the key is absent or invalid.
func WithDefault[T any](def func() T) KeyOption[T] {
	return func(k *Key[T]) {
		k.def = def
	}
}

// WithDecoder replaces plain JSON decoding. Returning false rejects the stored
// value and the default is used instead.
func WithDecoder[T any](decode func(json.RawMessage) (T, bool)) KeyOption[T] {
	return func(k *Key[T]) {
		k.decoder = decode
	}
}

// NewKey creates a typed accessor for key name.
func NewKey[T any](svc *core.Service, name string, opts ...KeyOption[T]) *Key[T] {
	k := &Key[T]{
		svc:  svc,
		name: name,
		def: func() T {
			var zero T
			return zero
		},
		decoder: func(raw json.RawMessage) (T, bool) {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				return v, false
			}
			return v, true
		},
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Name returns the store key.
func (k *Key[T]) Name() string {
	return k.name
}

// Decode applies the key's decoding rules to a raw stored value.
func (k *Key[T]) Decode(raw json.RawMessage) (T, bool) {
	if raw == nil {
		return k.def(), false
	}
	v, ok := k.decoder(raw)
	if !ok {
		return k.def(), false
	}
	return v, true
}

// Load returns the stored value. Absent or undecodable values yield the default
// with found=false; only store failures are errors.
func (k *Key[T]) Load(ctx context.Context) (value T, found bool, err error) {
	items, err := k.svc.Get(ctx, k.name)
	if err != nil {
		return k.def(), false, err
	}
	value, found = k.Decode(items[k.name])
	return value, found, nil
}

// Store writes v under the key.
func (k *Key[T]) Store(ctx context.Context, v T) error {
	return k.svc.SetValue(ctx, k.name, v)
}

// Update is a plain read-modify-write. Concurrent updates may be lost.
func (k *Key[T]) Update(ctx context.Context, fn func(T) T) error {
	current, _, err := k.Load(ctx)
	if err != nil {
		return fmt.Errorf("update %s: %w", k.name, err)
	}
	return k.Store(ctx, fn(current))
}

// Change is a decoded change of the key.
type Change[T any] struct {
	Old     T
	New     T
	Removed bool
	Origin  string
}

// Watch streams decoded changes of the key until ctx is done.
func (k *Key[T]) Watch(ctx context.Context) (<-chan Change[T], error) {
	raw, err := k.svc.Watch(ctx, k.name)
	if err != nil {
		return nil, err
	}
	out := make(chan Change[T])
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(out)
		for cs := range raw {
			c, ok := cs.Changes[k.name]
			if !ok {
				continue
			}
			oldV, _ := k.Decode(c.Old)
			newV, _ := k.Decode(c.New)
			select {
			case out <- Change[T]{Old: oldV, New: newV, Removed: c.Removed(), Origin: cs.Origin}:
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})
	return out, nil
}
