// Package audit captures the registry's event trail. Events are emitted
// after a write commits, queued in process, and drained to the configured
// sink by a background worker.
package audit

import (
	"context"
	"time"
)

// Actions recorded on the trail.
const (
	ActionIdentityCreated   = "IDENTITY_CREATED"
	ActionIdentityUpdated   = "IDENTITY_UPDATED"
	ActionIdentityRetrieved = "IDENTITY_RETRIEVED"
)

// Event is one trail entry. No plaintext identifier ever appears here; the
// record is referenced by its hashed form.
type Event struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	Action           string    `json:"action"`
	HashedIdentifier string    `json:"hashedIdentifier"`
	RecordRefID      string    `json:"recordRefId"`
	Actor            string    `json:"actor"`
	RequestID        string    `json:"requestId,omitempty"`
	Status           string    `json:"status,omitempty"`
	Detail           string    `json:"detail,omitempty"`
}

// Store is an event sink. Append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
}
