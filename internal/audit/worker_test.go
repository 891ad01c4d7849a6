package audit_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idregistry/internal/audit"
)

func TestQueueAndWorkerDrainEvents(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	queue := audit.NewQueue(8, logger)
	sink := audit.NewMemoryStore()
	worker := audit.NewWorker(sink, queue, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	svc := audit.NewService(queue)
	require.NoError(t, svc.Emit(ctx, audit.Event{
		Action:      audit.ActionIdentityCreated,
		RecordRefID: "ref-1",
	}))

	require.Eventually(t, func() bool {
		return len(sink.Events()) == 1
	}, time.Second, 10*time.Millisecond)

	got := sink.Events()[0]
	assert.Equal(t, audit.ActionIdentityCreated, got.Action)
	assert.NotEmpty(t, got.ID, "emit assigns an event ID")
	assert.False(t, got.Timestamp.IsZero())

	cancel()
	<-done
}

func TestQueueDropsWhenFull(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	queue := audit.NewQueue(1, logger)

	// No worker draining: the second append must not block.
	require.NoError(t, queue.Append(context.Background(), audit.Event{ID: "1"}))
	done := make(chan struct{})
	go func() {
		_ = queue.Append(context.Background(), audit.Event{ID: "2"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("append blocked on a full queue")
	}
}

func TestFanoutAppendsToEverySink(t *testing.T) {
	a := audit.NewMemoryStore()
	b := audit.NewMemoryStore()
	fanout := audit.Fanout{a, b}

	require.NoError(t, fanout.Append(context.Background(), audit.Event{ID: "1"}))
	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
}
