// Package blob stores artifact bytes outside the relational record. Keys
// embed an ingestion timestamp and are never reused, so an orphaned blob
// (written, then the surrounding transaction aborted) can never be mistaken
// for live data.
package blob

import "context"

// Namespaces separate biometric containers from demographic scans.
const (
	NamespaceBiometrics   = "biometrics"
	NamespaceDemographics = "demographics"
)

// Store is the blob collaborator contract. Implementations wrap backend
// failures in sentinel.ErrUnavailable so callers can classify them as
// storage access errors.
type Store interface {
	Put(ctx context.Context, namespace, key string, data []byte) error
	Get(ctx context.Context, namespace, key string) ([]byte, error)
}

// Key builds the store key for one artifact of one record.
func Key(hashOnly, artifactID string) string {
	return hashOnly + "/" + artifactID
}
