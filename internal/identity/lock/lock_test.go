package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idregistry/internal/identity/lock"
)

func TestKeyedLockSerializesSameKey(t *testing.T) {
	k := lock.NewKeyed()
	ctx := context.Background()

	release, err := k.Lock(ctx, "record-1", time.Second)
	require.NoError(t, err)

	blocked := make(chan struct{})
	go func() {
		r2, err := k.Lock(ctx, "record-1", time.Second)
		assert.NoError(t, err)
		r2()
		close(blocked)
	}()

	select {
	case <-blocked:
		t.Fatal("second locker acquired while first still held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatal("second locker never acquired after release")
	}
}

func TestKeyedLockIndependentKeys(t *testing.T) {
	k := lock.NewKeyed()
	ctx := context.Background()

	r1, err := k.Lock(ctx, "record-1", time.Second)
	require.NoError(t, err)
	defer r1()

	r2, err := k.Lock(ctx, "record-2", time.Second)
	require.NoError(t, err)
	r2()
}

func TestKeyedLockHonorsContext(t *testing.T) {
	k := lock.NewKeyed()

	release, err := k.Lock(context.Background(), "record-1", time.Second)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "record-1", time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
