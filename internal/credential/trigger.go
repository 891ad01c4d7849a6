package credential

//go:generate mockgen -source=trigger.go -destination=mocks/mocks.go -package=mocks Store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"idregistry/pkg/requestcontext"
)

// Store persists reissue requests. Save upserts by request ID.
type Store interface {
	ListByRecord(ctx context.Context, hashedIdentifier string) ([]ReissueRequest, error)
	Save(ctx context.Context, req ReissueRequest) error
}

// Trigger reconciles the reissue request table with a record's status
// after every committed write.
type Trigger struct {
	store        Store
	partnerID    string
	activeStatus string
	logger       *slog.Logger
}

func NewTrigger(store Store, partnerID, activeStatus string, logger *slog.Logger) *Trigger {
	return &Trigger{store: store, partnerID: partnerID, activeStatus: activeStatus, logger: logger}
}

// Sync applies the status transition table and reports how many requests
// ended up in each status:
//
//	record active,   no requests   -> raise one NEW request, no expiry
//	record active,   requests      -> move every request to NEW
//	record inactive, requests      -> move every request to DELETED
//	record inactive, no requests   -> nothing to do
//
// A raised request records the encrypted identifier for the downstream
// partner; moved requests keep the one they were raised with.
func (t *Trigger) Sync(ctx context.Context, hashedIdentifier, encryptedIdentifier, recordStatus string) (map[string]int, error) {
	existing, err := t.store.ListByRecord(ctx, hashedIdentifier)
	if err != nil {
		return nil, fmt.Errorf("list reissue requests: %w", err)
	}

	active := recordStatus == t.activeStatus
	actor, now := requestcontext.Actor(ctx), requestcontext.Now(ctx)

	switch {
	case active && len(existing) == 0:
		req := ReissueRequest{
			ID:                  uuid.NewString(),
			HashedIdentifier:    hashedIdentifier,
			EncryptedIdentifier: encryptedIdentifier,
			PartnerID:           t.partnerID,
			Status:              StatusNew,
			CreatedBy:           actor,
			CreatedAt:           now,
			UpdatedBy:           actor,
			UpdatedAt:           now,
		}
		if err := t.store.Save(ctx, req); err != nil {
			return nil, fmt.Errorf("raise reissue request: %w", err)
		}
		t.logger.InfoContext(ctx, "reissue request raised", "request_id", req.ID, "partner_id", req.PartnerID)
		return map[string]int{StatusNew: 1}, nil

	case active:
		return t.moveAll(ctx, existing, StatusNew, actor)

	case len(existing) > 0:
		return t.moveAll(ctx, existing, StatusDeleted, actor)

	default:
		return nil, nil
	}
}

func (t *Trigger) moveAll(ctx context.Context, reqs []ReissueRequest, status, actor string) (map[string]int, error) {
	now := requestcontext.Now(ctx)
	for _, req := range reqs {
		req.Status = status
		req.UpdatedBy = actor
		req.UpdatedAt = now
		if err := t.store.Save(ctx, req); err != nil {
			return nil, fmt.Errorf("move reissue request %s to %s: %w", req.ID, status, err)
		}
	}
	t.logger.InfoContext(ctx, "reissue requests moved", "count", len(reqs), "status", status)
	return map[string]int{status: len(reqs)}, nil
}
