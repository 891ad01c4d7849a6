// Package credential tracks credential reissue requests raised when a
// record's canonical state changes. Downstream issuance consumes the
// request table; this package only maintains it.
package credential

import "time"

// Reissue request statuses.
const (
	// StatusNew marks a request awaiting pickup by the issuance pipeline.
	StatusNew = "NEW"
	// StatusIssued marks a request the pipeline has completed. Never set
	// here; the pipeline writes it.
	StatusIssued = "ISSUED"
	// StatusDeleted marks a request withdrawn because the record left the
	// active status.
	StatusDeleted = "DELETED"
)

// ReissueRequest is one pending or settled credential action for a record,
// addressed by the record's hashed identifier. EncryptedIdentifier carries
// the individual's encrypted reference so the downstream partner can
// address them without the plaintext identifier.
type ReissueRequest struct {
	ID                  string
	HashedIdentifier    string
	EncryptedIdentifier string
	PartnerID           string
	Status              string
	Expiry              *time.Time
	CreatedBy           string
	CreatedAt           time.Time
	UpdatedBy           string
	UpdatedAt           time.Time
}
