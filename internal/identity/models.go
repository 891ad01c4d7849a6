// Package identity holds the canonical registry record types. Records are
// keyed by the shard-prefixed hashed identifier; the plaintext identifier
// only ever appears inside the encryption composite handed to the record
// store boundary.
package identity

import (
	"encoding/json"
	"time"
)

// Record is the canonical identity for one individual.
type Record struct {
	// RefID is assigned once at creation and never reused.
	RefID string
	// EncryptedIdentifier carries the encryption composite of the
	// plaintext identifier; the record store encrypts it at rest.
	EncryptedIdentifier string
	// HashedIdentifier is the shard-prefixed salted hash. Unique and
	// immutable after creation.
	HashedIdentifier string

	// Payload is the canonical structured identity data as JSON.
	Payload     []byte
	PayloadHash string

	RegistrationID string
	Status         string
	// AnonymousProfile is an optional PII-free sub-document reconciled
	// with the same merge semantics as the payload.
	AnonymousProfile string

	CreatedBy string
	CreatedAt time.Time
	UpdatedBy string
	UpdatedAt time.Time

	// Version backs optimistic conflict detection; the store rejects a
	// save whose version is stale.
	Version int64

	Documents  []DocumentArtifact
	Biometrics []BiometricArtifact
}

// DocumentArtifact is a stored demographic document. At most one per
// category per record.
type DocumentArtifact struct {
	RecordRefID string
	Category    string
	TypeCode    string
	StorageID   string
	Name        string
	Format      string
	ContentHash string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedBy   string
	UpdatedAt   time.Time
}

// BiometricArtifact is a stored biometric container reference. At most one
// per biometric category per record.
type BiometricArtifact struct {
	RecordRefID string
	StorageID   string
	// Category is the payload key the container was submitted under
	// (also called the biometric file type).
	Category    string
	Name        string
	ContentHash string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedBy   string
	UpdatedAt   time.Time
}

// HistoryRecord is an immutable snapshot of a record at a point in time.
// Append-only; never mutated or deleted.
type HistoryRecord struct {
	RecordRefID         string
	At                  time.Time
	EncryptedIdentifier string
	HashedIdentifier    string
	Payload             []byte
	PayloadHash         string
	RegistrationID      string
	Status              string
	AnonymousProfile    string
	CreatedBy           string
	CreatedAt           time.Time
}

// DocumentHistory snapshots one ingested demographic artifact.
type DocumentHistory struct {
	RecordRefID string
	At          time.Time
	Category    string
	TypeCode    string
	StorageID   string
	Name        string
	Format      string
	ContentHash string
	CreatedBy   string
	CreatedAt   time.Time
}

// BiometricHistory snapshots one ingested biometric artifact.
type BiometricHistory struct {
	RecordRefID string
	At          time.Time
	StorageID   string
	Category    string
	Name        string
	ContentHash string
	CreatedBy   string
	CreatedAt   time.Time
}

// Document is a submitted artifact: a payload category plus the
// base64-encoded content.
type Document struct {
	Category string `json:"category"`
	Value    string `json:"value"`
}

// Request is one create or update submission.
type Request struct {
	Identifier       string
	RegistrationID   string
	Status           string
	Identity         json.RawMessage
	AnonymousProfile json.RawMessage
	Documents        []Document
	// Draft suppresses history snapshots and credential reissue; a draft
	// becomes canonical only once resubmitted without the flag.
	Draft bool
}

// Clone deep-copies a record so in-memory stores never leak aliased slices
// to callers.
func (r *Record) Clone() *Record {
	clone := *r
	clone.Payload = append([]byte(nil), r.Payload...)
	clone.Documents = append([]DocumentArtifact(nil), r.Documents...)
	clone.Biometrics = append([]BiometricArtifact(nil), r.Biometrics...)
	return &clone
}
