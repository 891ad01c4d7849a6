// Package security provides the digest primitives used for hashed
// identifiers and content hashes. Field-level encryption is NOT here: the
// engine only prepares the plaintext composite, and the record store
// boundary owns actual encryption.
package security

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher computes hex-encoded SHA-256 digests.
type Hasher struct{}

func NewHasher() Hasher { return Hasher{} }

// Hash digests content (payloads, artifact bytes).
func (Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SaltedHash digests an identifier with its shard salt prepended, so equal
// identifiers on different shards never share a digest.
func (Hasher) SaltedHash(data, salt []byte) string {
	h := sha256.New()
	h.Write(salt)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
