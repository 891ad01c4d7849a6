// Package lock serializes writers per hashed identifier when the registry
// runs single-node without redis.
package lock

import (
	"context"
	"sync"
	"time"
)

// Keyed is an in-process keyed mutex. The ttl is ignored; a lock lives
// until its release func runs.
type Keyed struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewKeyed() *Keyed {
	return &Keyed{slots: make(map[string]chan struct{})}
}

// Lock blocks until the key is free or ctx is done. The returned func
// releases the key.
func (k *Keyed) Lock(ctx context.Context, key string, _ time.Duration) (func(), error) {
	k.mu.Lock()
	slot, ok := k.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		k.slots[key] = slot
	}
	k.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
