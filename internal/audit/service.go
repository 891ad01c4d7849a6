package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"idregistry/pkg/requestcontext"
)

// Service stamps and appends trail events. It writes through the store so
// tests can swap sinks easily.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) Emit(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Actor == "" {
		event.Actor = requestcontext.Actor(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	return s.store.Append(ctx, event)
}
