package audit

import (
	"context"
	"log/slog"
)

// Queue is a Store that buffers events in a channel for the Worker. Append
// never blocks a request; when the buffer is full the event is dropped and
// counted against the trail's completeness.
type Queue struct {
	inbox  chan Event
	logger *slog.Logger
}

func NewQueue(size int, logger *slog.Logger) *Queue {
	return &Queue{inbox: make(chan Event, size), logger: logger}
}

func (q *Queue) Append(ctx context.Context, event Event) error {
	select {
	case q.inbox <- event:
	default:
		q.logger.WarnContext(ctx, "event trail buffer full, dropping event",
			"action", event.Action, "record_ref_id", event.RecordRefID)
	}
	return nil
}

// Worker drains a queue into the durable sink.
type Worker struct {
	store  Store
	queue  *Queue
	logger *slog.Logger
}

func NewWorker(store Store, queue *Queue, logger *slog.Logger) *Worker {
	return &Worker{store: store, queue: queue, logger: logger}
}

// Run consumes until ctx is done. Sink failures are logged, not fatal; the
// trail is best-effort by design of the write path.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.queue.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "append trail event", "error", err, "action", event.Action)
			}
		}
	}
}
